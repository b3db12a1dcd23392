package domain

import "time"

// BalanceSnapshot is the authoritative coin balance last fetched from the
// remote API. Locally cached values are advisory only: every spend decision
// must be preceded by a fresh fetch.
type BalanceSnapshot struct {
	Coins     int64
	FetchedAt time.Time
}
