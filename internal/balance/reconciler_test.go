package balance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studio/internal/api"
	"studio/internal/domain"
	"studio/internal/state"
)

type stubSource struct {
	coins int64
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (s *stubSource) CoinBalance(ctx context.Context) (*api.BalanceResponse, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &api.BalanceResponse{Coins: s.coins}, nil
}

func TestRefreshStoresSnapshot(t *testing.T) {
	app := state.NewApp(nil)
	source := &stubSource{coins: 120}
	r := NewReconciler(source, app, nil)

	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Coins != 120 {
		t.Fatalf("coins = %d, want 120", snap.Coins)
	}
	if got := app.Balance().Coins; got != 120 {
		t.Fatalf("stored coins = %d, want 120", got)
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	app := state.NewApp(nil)
	app.SetBalance(75, time.Now())
	source := &stubSource{err: errors.New("boom")}
	r := NewReconciler(source, app, nil)

	if _, err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := app.Balance().Coins; got != 75 {
		t.Fatalf("stored coins = %d, want previous value 75", got)
	}
}

func TestConcurrentRefreshesCollapse(t *testing.T) {
	app := state.NewApp(nil)
	source := &stubSource{coins: 10, delay: 20 * time.Millisecond}
	r := NewReconciler(source, app, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Refresh(context.Background()); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := source.calls.Load(); calls != 1 {
		t.Fatalf("remote calls = %d, want 1", calls)
	}
}

func TestPreviewCoins(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{amount: "1", want: 100},
		{amount: "2.50", want: 250},
		{amount: "0.01", want: 1},
		{amount: "0.001", want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.amount, func(t *testing.T) {
			got, err := PreviewCoins(tc.amount, 6)
			if err != nil {
				t.Fatalf("PreviewCoins(%q): %v", tc.amount, err)
			}
			if got != tc.want {
				t.Fatalf("PreviewCoins(%q) = %d, want %d", tc.amount, got, tc.want)
			}
		})
	}

	if _, err := PreviewCoins("abc", 6); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
