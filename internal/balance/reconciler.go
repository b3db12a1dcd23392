// Package balance keeps the local coin balance reconciled against the remote
// account service. The remote value is authoritative; anything cached locally
// is advisory and must be re-fetched before a spend decision.
package balance

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"studio/internal/api"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/payment"
	"studio/internal/state"
)

// CoinsPerUSDC is the top-up exchange rate.
const CoinsPerUSDC = 100

// Source fetches the authoritative balance.
type Source interface {
	CoinBalance(ctx context.Context) (*api.BalanceResponse, error)
}

// Reconciler fetches the remote balance and publishes it into the app state.
// Concurrent refreshes collapse into a single remote call.
type Reconciler struct {
	source Source
	app    *state.App
	logger *infra.Logger
	group  singleflight.Group
}

// NewReconciler constructs a Reconciler.
func NewReconciler(source Source, app *state.App, logger *infra.Logger) *Reconciler {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Reconciler{source: source, app: app, logger: logger}
}

// Refresh fetches the remote balance, stores it, and returns the snapshot.
// On failure the previously stored snapshot is left untouched: the caller
// must treat the balance as unknown, not as zero.
func (r *Reconciler) Refresh(ctx context.Context) (domain.BalanceSnapshot, error) {
	v, err, _ := r.group.Do("balance", func() (any, error) {
		resp, err := r.source.CoinBalance(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh balance: %w", err)
		}
		snap := domain.BalanceSnapshot{Coins: resp.Coins, FetchedAt: time.Now()}
		r.app.SetBalance(snap.Coins, snap.FetchedAt)
		r.logger.Debug().Int64("coins", snap.Coins).Msg("balance: refreshed")
		return snap, nil
	})
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	return v.(domain.BalanceSnapshot), nil
}

// PreviewCoins converts a decimal USDC amount into the coins it would buy at
// the fixed exchange rate. Used for top-up previews before the transfer.
func PreviewCoins(amountUSDC string, decimals int) (int64, error) {
	base, err := payment.USDCToBaseUnits(amountUSDC, decimals)
	if err != nil {
		return 0, err
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	coins := new(big.Int).Mul(base, big.NewInt(CoinsPerUSDC))
	coins.Quo(coins, unit)
	return coins.Int64(), nil
}
