package payment

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"studio/internal/domain"
	"studio/internal/wallet"
)

type stubProvider struct {
	mu       sync.Mutex
	chainID  string
	txHash   string
	sendErr  error
	sent     []wallet.TxRequest
	receipts []*wallet.Receipt
	sendGate chan struct{}
}

func (s *stubProvider) ChainID(ctx context.Context) (string, error) {
	return s.chainID, nil
}

func (s *stubProvider) SwitchChain(ctx context.Context, chainIDHex string) error {
	s.chainID = chainIDHex
	return nil
}

func (s *stubProvider) AddChain(ctx context.Context, params wallet.ChainParams) error {
	return nil
}

func (s *stubProvider) SendTransaction(ctx context.Context, tx wallet.TxRequest) (string, error) {
	if s.sendGate != nil {
		<-s.sendGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, tx)
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return s.txHash, nil
}

func (s *stubProvider) TransactionReceipt(ctx context.Context, txHash string) (*wallet.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.receipts) == 0 {
		return nil, nil
	}
	r := s.receipts[0]
	s.receipts = s.receipts[1:]
	return r, nil
}

type stubClaimer struct {
	mu     sync.Mutex
	hashes []string
	err    error
}

func (c *stubClaimer) ClaimTopUp(ctx context.Context, txHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes = append(c.hashes, txHash)
	return c.err
}

type stubRefresher struct {
	mu    sync.Mutex
	calls int
	coins int64
	err   error
}

func (r *stubRefresher) Refresh(ctx context.Context) (domain.BalanceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return domain.BalanceSnapshot{}, r.err
	}
	return domain.BalanceSnapshot{Coins: r.coins, FetchedAt: time.Now()}, nil
}

func newTestExecutor(t *testing.T, provider *stubProvider, claimer *stubClaimer, refresher *stubRefresher, timeout time.Duration) *Executor {
	t.Helper()
	opts := Options{
		Provider:            provider,
		Chain:               wallet.ArcTestnet,
		TreasuryAddr:        "0xtreasury",
		Claimer:             claimer,
		ReceiptPollInterval: time.Millisecond,
		ReceiptTimeout:      timeout,
	}
	if refresher != nil {
		opts.Refresher = refresher
	}
	exec, err := NewExecutor(opts)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return exec
}

func TestTopUpSettles(t *testing.T) {
	provider := &stubProvider{
		chainID: "0x1",
		txHash:  "0xabc",
		receipts: []*wallet.Receipt{
			nil, // still pending on first poll
			{TxHash: "0xabc", Status: "0x1"},
		},
	}
	claimer := &stubClaimer{}
	refresher := &stubRefresher{coins: 250}
	exec := newTestExecutor(t, provider, claimer, refresher, time.Second)

	result, err := exec.TopUp(context.Background(), "0xme", "2.50")
	if err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	if result.TxHash != "0xabc" || result.Coins != 250 {
		t.Fatalf("result = %+v", result)
	}
	if exec.Phase() != PhaseSettled {
		t.Fatalf("phase = %q, want settled", exec.Phase())
	}
	if len(claimer.hashes) != 1 || claimer.hashes[0] != "0xabc" {
		t.Fatalf("claimed hashes = %v", claimer.hashes)
	}
	if refresher.calls != 1 {
		t.Fatalf("refresh calls = %d, want 1", refresher.calls)
	}
	if provider.chainID != wallet.ArcTestnet.ChainIDHex {
		t.Fatalf("network assurance did not switch chain, on %q", provider.chainID)
	}
	want := big.NewInt(2_500_000)
	if len(provider.sent) != 1 || provider.sent[0].Value.Cmp(want) != 0 {
		t.Fatalf("sent = %+v, want value %s", provider.sent, want)
	}
	if provider.sent[0].To != "0xtreasury" {
		t.Fatalf("transfer to %q, want treasury", provider.sent[0].To)
	}
}

func TestTopUpRevertedTransaction(t *testing.T) {
	provider := &stubProvider{
		chainID:  wallet.ArcTestnet.ChainIDHex,
		txHash:   "0xdead",
		receipts: []*wallet.Receipt{{TxHash: "0xdead", Status: "0x0"}},
	}
	claimer := &stubClaimer{}
	exec := newTestExecutor(t, provider, claimer, nil, time.Second)

	result, err := exec.TopUp(context.Background(), "0xme", "1.00")
	if !errors.Is(err, domain.ErrPaymentFailed) {
		t.Fatalf("error = %v, want payment failed", err)
	}
	if result == nil || result.TxHash != "0xdead" {
		t.Fatalf("result should carry the tx hash, got %+v", result)
	}
	if len(claimer.hashes) != 0 {
		t.Fatalf("reverted transfer must not be claimed")
	}
	if exec.Phase() != PhaseFailed {
		t.Fatalf("phase = %q, want failed", exec.Phase())
	}
}

func TestTopUpReceiptTimeout(t *testing.T) {
	provider := &stubProvider{chainID: wallet.ArcTestnet.ChainIDHex, txHash: "0xslow"}
	exec := newTestExecutor(t, provider, &stubClaimer{}, nil, 5*time.Millisecond)

	result, err := exec.TopUp(context.Background(), "0xme", "1.00")
	var timeoutErr *domain.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want TimeoutError", err)
	}
	if timeoutErr.TxHash != "0xslow" {
		t.Fatalf("timeout should carry tx hash, got %q", timeoutErr.TxHash)
	}
	if result == nil || result.TxHash != "0xslow" {
		t.Fatalf("result = %+v", result)
	}
}

func TestTopUpValidation(t *testing.T) {
	provider := &stubProvider{chainID: wallet.ArcTestnet.ChainIDHex, txHash: "0xabc"}

	t.Run("non-positive amount", func(t *testing.T) {
		exec := newTestExecutor(t, provider, &stubClaimer{}, nil, time.Second)
		if _, err := exec.TopUp(context.Background(), "0xme", "0"); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("error = %v, want validation", err)
		}
	})

	t.Run("missing treasury", func(t *testing.T) {
		exec, err := NewExecutor(Options{
			Provider: provider,
			Chain:    wallet.ArcTestnet,
			Claimer:  &stubClaimer{},
		})
		if err != nil {
			t.Fatalf("NewExecutor: %v", err)
		}
		if _, err := exec.TopUp(context.Background(), "0xme", "1.00"); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("error = %v, want validation", err)
		}
	})

	t.Run("missing from address", func(t *testing.T) {
		exec := newTestExecutor(t, provider, &stubClaimer{}, nil, time.Second)
		if _, err := exec.TopUp(context.Background(), "", "1.00"); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("error = %v, want validation", err)
		}
	})
}

func TestTopUpRejectsConcurrentRun(t *testing.T) {
	gate := make(chan struct{})
	provider := &stubProvider{
		chainID:  wallet.ArcTestnet.ChainIDHex,
		txHash:   "0xabc",
		receipts: []*wallet.Receipt{{TxHash: "0xabc", Status: "0x1"}},
		sendGate: gate,
	}
	exec := newTestExecutor(t, provider, &stubClaimer{}, nil, time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := exec.TopUp(context.Background(), "0xme", "1.00")
		done <- err
	}()

	// Wait for the first run to hold the lock at the signature step.
	deadline := time.After(time.Second)
	for exec.Phase() != PhaseAwaitingSignature {
		select {
		case <-deadline:
			t.Fatal("first run never reached awaiting_signature")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := exec.TopUp(context.Background(), "0xme", "1.00"); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second run error = %v, want ErrInFlight", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestClaimRecovery(t *testing.T) {
	claimer := &stubClaimer{}
	refresher := &stubRefresher{coins: 100}
	exec := newTestExecutor(t, &stubProvider{chainID: wallet.ArcTestnet.ChainIDHex}, claimer, refresher, time.Second)

	if err := exec.Claim(context.Background(), "0xolder"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimer.hashes) != 1 || claimer.hashes[0] != "0xolder" {
		t.Fatalf("claimed hashes = %v", claimer.hashes)
	}
	if refresher.calls != 1 {
		t.Fatalf("refresh calls = %d, want 1", refresher.calls)
	}
}
