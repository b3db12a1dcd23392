package domain

import (
	"fmt"
	"strings"
	"time"
)

// AssetType classifies a history record by the asset it references.
type AssetType string

const (
	AssetVideo AssetType = "video"
	AssetImage AssetType = "image"
)

// AnonymousAccount is the partition key used when neither a signed-in user
// nor a connected wallet is available.
const AnonymousAccount = "anonymous"

// AccountKey derives the history partition key for the active identity.
// A signed-in user wins over a connected wallet.
func AccountKey(userID, walletAddress string) string {
	if id := strings.TrimSpace(userID); id != "" {
		return "user:" + id
	}
	if addr := strings.TrimSpace(walletAddress); addr != "" {
		return "wallet:" + strings.ToLower(addr)
	}
	return AnonymousAccount
}

// HistoryRecord is a persisted reference to one completed generation.
// AssetURL is stored bare: the bearer credential is appended only at
// render or download time, never persisted.
type HistoryRecord struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id,omitempty"`
	AccountKey  string    `json:"-"`
	AssetType   AssetType `json:"asset_type"`
	Mode        JobKind   `json:"mode"`
	Prompt      string    `json:"prompt,omitempty"`
	Title       string    `json:"title,omitempty"`
	AssetURL    string    `json:"asset_url"`
	Model       string    `json:"model,omitempty"`
	AspectRatio string    `json:"aspect_ratio,omitempty"`
	CreatedAt   int64     `json:"created_at"`
	// ExpiresAt of zero means the record never expires (older records
	// were written without an expiry).
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// IdentityKey returns the deduplication key for the record: the job id when
// present, else the asset URL, else the local id.
func (r HistoryRecord) IdentityKey() string {
	if r.JobID != "" {
		return r.JobID
	}
	if r.AssetURL != "" {
		return r.AssetURL
	}
	return r.ID
}

// Expired reports whether the record's expiry has passed at the given time.
func (r HistoryRecord) Expired(now time.Time) bool {
	return r.ExpiresAt > 0 && r.ExpiresAt <= now.UnixMilli()
}

// DaysUntilExpiry returns the whole days remaining before expiry, rounded
// up, or -1 when the record never expires.
func (r HistoryRecord) DaysUntilExpiry(now time.Time) int {
	if r.ExpiresAt == 0 {
		return -1
	}
	diff := r.ExpiresAt - now.UnixMilli()
	if diff <= 0 {
		return 0
	}
	const day = 24 * 60 * 60 * 1000
	return int((diff + day - 1) / day)
}

// RelativeTime renders a coarse "3h ago" style timestamp for list views.
func RelativeTime(tsMillis int64, now time.Time) string {
	if tsMillis <= 0 {
		return ""
	}
	sec := (now.UnixMilli() - tsMillis) / 1000
	switch {
	case sec < 60:
		return "just now"
	case sec < 3600:
		return fmt.Sprintf("%dm ago", sec/60)
	case sec < 86400:
		return fmt.Sprintf("%dh ago", sec/3600)
	default:
		return fmt.Sprintf("%dd ago", sec/86400)
	}
}
