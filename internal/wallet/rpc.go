package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
)

// EIP-1193 provider error codes surfaced by wallet bridges.
const (
	codeUserRejected = 4001
	codeUnknownChain = 4902
)

// RPCOptions configures the JSON-RPC wallet provider.
type RPCOptions struct {
	Endpoint       string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// RPCProvider speaks JSON-RPC to a wallet bridge exposing the EIP-1193
// request surface over HTTP.
type RPCProvider struct {
	endpoint   string
	httpClient *http.Client
	logger     *infra.Logger
	nextID     atomic.Int64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// NewRPCProvider constructs a provider for the given endpoint.
func NewRPCProvider(opts RPCOptions) (*RPCProvider, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("wallet: rpc endpoint is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &RPCProvider{endpoint: endpoint, httpClient: httpClient, logger: logger}, nil
}

// ChainID implements Provider.
func (p *RPCProvider) ChainID(ctx context.Context) (string, error) {
	var id string
	if err := p.call(ctx, "eth_chainId", nil, &id); err != nil {
		return "", err
	}
	return id, nil
}

// SwitchChain implements Provider.
func (p *RPCProvider) SwitchChain(ctx context.Context, chainIDHex string) error {
	params := []map[string]string{{"chainId": chainIDHex}}
	return p.call(ctx, "wallet_switchEthereumChain", params, nil)
}

// AddChain implements Provider.
func (p *RPCProvider) AddChain(ctx context.Context, chain ChainParams) error {
	params := []map[string]any{{
		"chainId":           chain.ChainIDHex,
		"chainName":         chain.ChainName,
		"rpcUrls":           chain.RPCURLs,
		"blockExplorerUrls": chain.ExplorerURLs,
		"nativeCurrency": map[string]any{
			"name":     chain.CurrencyName,
			"symbol":   chain.CurrencySymbol,
			"decimals": chain.Decimals,
		},
	}}
	return p.call(ctx, "wallet_addEthereumChain", params, nil)
}

// SendTransaction implements Provider.
func (p *RPCProvider) SendTransaction(ctx context.Context, tx TxRequest) (string, error) {
	if tx.Value == nil {
		return "", fmt.Errorf("wallet: transfer value is required: %w", domain.ErrValidation)
	}
	params := []map[string]string{{
		"from":  tx.From,
		"to":    tx.To,
		"value": "0x" + tx.Value.Text(16),
	}}
	var txHash string
	if err := p.call(ctx, "eth_sendTransaction", params, &txHash); err != nil {
		return "", err
	}
	p.logger.Debug().Str("tx_hash", txHash).Msg("wallet: transaction submitted")
	return txHash, nil
}

// TransactionReceipt implements Provider. A nil receipt with nil error means
// the transaction is still pending.
func (p *RPCProvider) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var receipt *Receipt
	if err := p.call(ctx, "eth_getTransactionReceipt", []string{txHash}, &receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (p *RPCProvider) call(ctx context.Context, method string, params, out any) error {
	payload := rpcRequest{
		JSONRPC: "2.0",
		ID:      p.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wallet: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("wallet: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("wallet: %s: %v: %w", method, err, domain.ErrNetwork)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("wallet: read response: %v: %w", err, domain.ErrNetwork)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("wallet: %s: status %d: %w", method, resp.StatusCode, domain.ErrNetwork)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("wallet: decode response: %w", err)
	}
	if decoded.Error != nil {
		return mapProviderError(method, decoded.Error)
	}
	if out != nil && len(decoded.Result) > 0 {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("wallet: decode %s result: %w", method, err)
		}
	}
	return nil
}

func mapProviderError(method string, e *rpcError) error {
	switch e.Code {
	case codeUserRejected:
		return fmt.Errorf("%s: %s: %w", method, e.Message, ErrRejected)
	case codeUnknownChain:
		return fmt.Errorf("%s: %s: %w", method, e.Message, ErrUnknownChain)
	default:
		return fmt.Errorf("%s: %s (code %d): %w", method, e.Message, e.Code, domain.ErrWallet)
	}
}
