// Package payment drives the on-chain top-up flow: network assurance,
// transfer submission, receipt confirmation, and the backend claim that
// credits the account.
package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/wallet"
)

// Phase is the executor's position in the top-up state machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseNetworkCheck      Phase = "network_check"
	PhaseAwaitingSignature Phase = "awaiting_signature"
	PhaseSubmitted         Phase = "submitted"
	PhaseConfirming        Phase = "confirming"
	PhaseSettled           Phase = "settled"
	PhaseFailed            Phase = "failed"
)

// ErrInFlight rejects a second top-up while one is already running.
// On-chain transfers must not be duplicated by an impatient double click.
var ErrInFlight = errors.New("a top-up is already in progress")

// Claimer submits a mined transfer to the backend for crediting.
type Claimer interface {
	ClaimTopUp(ctx context.Context, txHash string) error
}

// Refresher re-fetches the authoritative balance after settlement.
type Refresher interface {
	Refresh(ctx context.Context) (domain.BalanceSnapshot, error)
}

// Options configures the Executor.
type Options struct {
	Provider     wallet.Provider
	Chain        wallet.ChainParams
	TreasuryAddr string
	Claimer      Claimer
	Refresher    Refresher
	Logger       *infra.Logger

	// ReceiptPollInterval defaults to 2s, ReceiptTimeout to 180s.
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
}

// Executor runs one top-up at a time against a wallet provider.
type Executor struct {
	provider     wallet.Provider
	chain        wallet.ChainParams
	treasuryAddr string
	claimer      Claimer
	refresher    Refresher
	logger       *infra.Logger

	pollInterval time.Duration
	timeout      time.Duration

	runMu sync.Mutex

	phaseMu sync.Mutex
	phase   Phase
}

// Result reports a finished top-up.
type Result struct {
	TxHash string
	Coins  int64
}

// NewExecutor constructs an Executor with defaults applied.
func NewExecutor(opts Options) (*Executor, error) {
	if opts.Provider == nil {
		return nil, errors.New("payment: wallet provider is required")
	}
	if opts.Claimer == nil {
		return nil, errors.New("payment: claimer is required")
	}
	pollInterval := opts.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	timeout := opts.ReceiptTimeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Executor{
		provider:     opts.Provider,
		chain:        opts.Chain,
		treasuryAddr: strings.TrimSpace(opts.TreasuryAddr),
		claimer:      opts.Claimer,
		refresher:    opts.Refresher,
		logger:       logger,
		pollInterval: pollInterval,
		timeout:      timeout,
		phase:        PhaseIdle,
	}, nil
}

// Phase returns the executor's current position in the state machine.
func (e *Executor) Phase() Phase {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()
	return e.phase
}

func (e *Executor) setPhase(p Phase) {
	e.phaseMu.Lock()
	e.phase = p
	e.phaseMu.Unlock()
}

// TopUp transfers the given decimal USDC amount from the connected address
// to the treasury and claims the resulting credit. It fails fast when a
// previous invocation is still running.
func (e *Executor) TopUp(ctx context.Context, from, amountUSDC string) (*Result, error) {
	if !e.runMu.TryLock() {
		return nil, ErrInFlight
	}
	defer e.runMu.Unlock()

	result, err := e.run(ctx, from, amountUSDC)
	if err != nil {
		e.setPhase(PhaseFailed)
		return result, err
	}
	e.setPhase(PhaseSettled)
	return result, nil
}

func (e *Executor) run(ctx context.Context, from, amountUSDC string) (*Result, error) {
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("payment: from address is required: %w", domain.ErrValidation)
	}
	if e.treasuryAddr == "" {
		return nil, fmt.Errorf("payment: treasury address is not configured: %w", domain.ErrValidation)
	}
	value, err := USDCToBaseUnits(amountUSDC, e.chain.Decimals)
	if err != nil {
		return nil, err
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("payment: amount must be positive: %w", domain.ErrValidation)
	}

	e.setPhase(PhaseNetworkCheck)
	if err := wallet.EnsureChain(ctx, e.provider, e.chain); err != nil {
		return nil, err
	}

	e.setPhase(PhaseAwaitingSignature)
	txHash, err := e.provider.SendTransaction(ctx, wallet.TxRequest{
		From:  from,
		To:    e.treasuryAddr,
		Value: value,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("tx_hash", txHash).Str("amount_usdc", amountUSDC).Msg("payment: transfer submitted")

	e.setPhase(PhaseSubmitted)
	receipt, err := e.awaitReceipt(ctx, txHash)
	if err != nil {
		return &Result{TxHash: txHash}, err
	}
	if !receipt.Succeeded() {
		return &Result{TxHash: txHash}, &domain.PaymentFailedError{TxHash: txHash, Status: receipt.Status}
	}

	if err := e.settle(ctx, txHash); err != nil {
		return &Result{TxHash: txHash}, err
	}
	coins := int64(0)
	if e.refresher != nil {
		if snap, err := e.refresher.Refresh(ctx); err == nil {
			coins = snap.Coins
		} else {
			e.logger.Warn().Err(err).Msg("payment: balance refresh after settle failed")
		}
	}
	return &Result{TxHash: txHash, Coins: coins}, nil
}

// Claim re-submits a stored transaction hash to the claim endpoint. This is
// the recovery path for "transfer succeeded but claim did not run".
func (e *Executor) Claim(ctx context.Context, txHash string) error {
	if err := e.settle(ctx, txHash); err != nil {
		return err
	}
	if e.refresher != nil {
		if _, err := e.refresher.Refresh(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("payment: balance refresh after claim failed")
		}
	}
	return nil
}

func (e *Executor) settle(ctx context.Context, txHash string) error {
	if err := e.claimer.ClaimTopUp(ctx, txHash); err != nil {
		return fmt.Errorf("claim top-up: %w", err)
	}
	e.logger.Info().Str("tx_hash", txHash).Msg("payment: top-up claimed")
	return nil
}

func (e *Executor) awaitReceipt(ctx context.Context, txHash string) (*wallet.Receipt, error) {
	e.setPhase(PhaseConfirming)
	deadline := time.Now().Add(e.timeout)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.provider.TransactionReceipt(ctx, txHash)
		if err != nil {
			e.logger.Warn().Err(err).Str("tx_hash", txHash).Msg("payment: receipt lookup failed")
		} else if receipt != nil {
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, &domain.TimeoutError{TxHash: txHash, Wait: e.timeout.String()}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
