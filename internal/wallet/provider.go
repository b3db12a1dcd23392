// Package wallet drives an external wallet provider: chain assurance,
// native-asset transfers, and receipt lookups.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"studio/internal/domain"
)

// ChainParams describes the network a payment must run on.
type ChainParams struct {
	ChainIDHex     string
	ChainName      string
	RPCURLs        []string
	ExplorerURLs   []string
	CurrencyName   string
	CurrencySymbol string
	Decimals       int
}

// ArcTestnet is the settlement network for top-ups: USDC is the native
// asset, with 6 decimals.
var ArcTestnet = ChainParams{
	ChainIDHex:     "0x4cef52", // 5042002
	ChainName:      "Arc Testnet",
	RPCURLs:        []string{"https://rpc.testnet.arc.network"},
	ExplorerURLs:   []string{"https://testnet.arcscan.app"},
	CurrencyName:   "USDC",
	CurrencySymbol: "USDC",
	Decimals:       6,
}

// TxRequest is a native-asset transfer.
type TxRequest struct {
	From  string
	To    string
	Value *big.Int
}

// Receipt is the subset of a transaction receipt the payment flow needs.
// Status is "0x1" for success.
type Receipt struct {
	TxHash string `json:"transactionHash"`
	Status string `json:"status"`
}

// Succeeded reports whether the receipt records a successful execution.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == "0x1"
}

// Provider is the wallet surface the payment executor drives. Implementations
// wrap a browser wallet bridge or a plain JSON-RPC endpoint.
type Provider interface {
	// ChainID returns the hex chain id the wallet is currently attached to.
	ChainID(ctx context.Context) (string, error)
	// SwitchChain asks the wallet to attach to the given chain. It returns
	// ErrUnknownChain when the wallet does not know the chain yet.
	SwitchChain(ctx context.Context, chainIDHex string) error
	// AddChain registers a chain with the wallet.
	AddChain(ctx context.Context, params ChainParams) error
	// SendTransaction submits a transfer and returns the transaction hash.
	SendTransaction(ctx context.Context, tx TxRequest) (string, error)
	// TransactionReceipt returns the receipt for a hash, or nil while the
	// transaction is still pending.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

// ErrUnknownChain signals that SwitchChain targeted a chain the wallet has
// not registered (EIP-1193 error code 4902).
var ErrUnknownChain = fmt.Errorf("chain not registered with wallet: %w", domain.ErrWallet)

// ErrRejected signals that the user declined a wallet prompt (code 4001).
var ErrRejected = fmt.Errorf("request rejected in wallet: %w", domain.ErrWallet)

// EnsureChain verifies the provider is attached to the wanted network,
// switching and, when the chain is unknown, registering it first. This is
// the network-assurance step of the payment flow.
func EnsureChain(ctx context.Context, p Provider, params ChainParams) error {
	current, err := p.ChainID(ctx)
	if err == nil && current == params.ChainIDHex {
		return nil
	}

	switch err := p.SwitchChain(ctx, params.ChainIDHex); {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnknownChain):
		if err := p.AddChain(ctx, params); err != nil {
			return fmt.Errorf("add chain %s: %w", params.ChainName, err)
		}
		if err := p.SwitchChain(ctx, params.ChainIDHex); err != nil {
			return fmt.Errorf("switch to %s after add: %w", params.ChainName, err)
		}
		return nil
	default:
		return fmt.Errorf("switch to %s: %w", params.ChainName, err)
	}
}
