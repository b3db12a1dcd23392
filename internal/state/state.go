package state

import (
	"sync"
	"time"

	"studio/internal/domain"
)

// App is the explicit application-state container injected into the
// orchestrator and reconciler. All mutation goes through setters; the
// balance setter publishes on the feed so display surfaces refresh.
//
// The stored balance snapshot is for display only. Spend gating always
// re-fetches through the reconciler first.
type App struct {
	mu sync.RWMutex

	userID        string
	walletAddress string
	accessToken   string
	balance       domain.BalanceSnapshot

	feed *Feed
}

// NewApp constructs the container around a change feed.
func NewApp(feed *Feed) *App {
	if feed == nil {
		feed = NewFeed()
	}
	return &App{feed: feed}
}

// Feed returns the change feed shared by the container.
func (a *App) Feed() *Feed { return a.feed }

// AccountKey derives the current history partition key.
func (a *App) AccountKey() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return domain.AccountKey(a.userID, a.walletAddress)
}

// SetUser records the signed-in user id (empty clears it).
func (a *App) SetUser(userID string) {
	a.mu.Lock()
	a.userID = userID
	a.mu.Unlock()
}

// SetWalletAddress records the connected wallet address (empty disconnects).
func (a *App) SetWalletAddress(addr string) {
	a.mu.Lock()
	a.walletAddress = addr
	a.mu.Unlock()
}

// WalletAddress returns the connected wallet address, if any.
func (a *App) WalletAddress() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.walletAddress
}

// SetAccessToken stores the bearer credential supplied by session bootstrap.
func (a *App) SetAccessToken(token string) {
	a.mu.Lock()
	a.accessToken = token
	a.mu.Unlock()
}

// AccessToken returns the bearer credential.
func (a *App) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accessToken
}

// SetBalance stores a fresh snapshot and notifies balance subscribers.
// Negative values clamp to zero.
func (a *App) SetBalance(coins int64, fetchedAt time.Time) {
	if coins < 0 {
		coins = 0
	}
	a.mu.Lock()
	a.balance = domain.BalanceSnapshot{Coins: coins, FetchedAt: fetchedAt}
	key := domain.AccountKey(a.userID, a.walletAddress)
	a.mu.Unlock()

	a.feed.Publish(Change{Kind: ChangeBalance, AccountKey: key})
}

// Balance returns the last stored snapshot, for display purposes only.
func (a *App) Balance() domain.BalanceSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance
}
