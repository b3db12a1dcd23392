// Package history persists completed generations per account partition on
// the local filesystem. Records are stored with bare asset URLs; credentials
// are appended by callers at fetch time only.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/state"
)

const (
	videoCapacity = 50
	imageCapacity = 100

	// VideoTTL bounds how long a produced video stays listed. Images are
	// kept until the capacity truncates them.
	VideoTTL = 48 * time.Hour
)

// Options configures a Store.
type Options struct {
	// Dir is the root directory for history files, one subdirectory per
	// account partition.
	Dir    string
	Feed   *state.Feed
	Logger *infra.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

// Store is a file-backed history store. All mutations take a
// read-modify-write cycle under one mutex, so concurrent flows within the
// process cannot lose each other's inserts.
type Store struct {
	dir    string
	feed   *state.Feed
	logger *infra.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewStore initializes a Store rooted at opts.Dir.
func NewStore(opts Options) (*Store, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, errors.New("history: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure directory: %w", err)
	}
	feed := opts.Feed
	if feed == nil {
		feed = state.NewFeed()
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{dir: dir, feed: feed, logger: logger, now: now}, nil
}

// List returns the partition's records of the given type, newest first.
// Records whose expiry has passed are filtered out even when not yet swept.
func (s *Store) List(accountKey string, assetType domain.AssetType) ([]domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(accountKey, assetType)
	if err != nil {
		return nil, err
	}
	now := s.now()
	live := make([]domain.HistoryRecord, 0, len(records))
	for _, r := range records {
		if r.Expired(now) {
			continue
		}
		r.AccountKey = accountKey
		live = append(live, r)
	}
	return live, nil
}

// Add inserts the record at the head of its partition, deduplicates by
// identity key, and truncates to the collection's capacity. A video record
// without an expiry gets the default TTL stamped on.
func (s *Store) Add(accountKey string, rec domain.HistoryRecord) error {
	now := s.now()
	if rec.ID == "" {
		rec.ID = strconv.FormatInt(now.UnixMilli(), 10)
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now.UnixMilli()
	}
	if rec.AssetType == domain.AssetVideo && rec.ExpiresAt == 0 {
		rec.ExpiresAt = rec.CreatedAt + VideoTTL.Milliseconds()
	}

	if err := s.add(accountKey, rec); err != nil {
		return err
	}
	// Publish after releasing the lock: handlers may read the store.
	s.publish(accountKey, rec.AssetType)
	return nil
}

func (s *Store) add(accountKey string, rec domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(accountKey, rec.AssetType)
	if err != nil {
		return err
	}

	merged := make([]domain.HistoryRecord, 0, len(records)+1)
	merged = append(merged, rec)
	seen := map[string]bool{rec.IdentityKey(): true}
	for _, r := range records {
		key := r.IdentityKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, r)
	}
	if limit := capacityFor(rec.AssetType); len(merged) > limit {
		merged = merged[:limit]
	}

	return s.save(accountKey, rec.AssetType, merged)
}

// Delete removes the record whose id or asset URL matches. Deleting an
// unknown id is a no-op.
func (s *Store) Delete(accountKey, idOrURL string, assetType domain.AssetType) error {
	changed, err := s.delete(accountKey, idOrURL, assetType)
	if err != nil {
		return err
	}
	if changed {
		s.publish(accountKey, assetType)
	}
	return nil
}

func (s *Store) delete(accountKey, idOrURL string, assetType domain.AssetType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(accountKey, assetType)
	if err != nil {
		return false, err
	}
	kept := records[:0]
	for _, r := range records {
		if r.ID == idOrURL || (r.AssetURL != "" && r.AssetURL == idOrURL) {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == len(records) {
		return false, nil
	}
	if err := s.save(accountKey, assetType, kept); err != nil {
		return false, err
	}
	return true, nil
}

// SweepExpired drops every record whose expiry has passed and reports how
// many were removed. Callers run this on view entry, not on a timer.
func (s *Store) SweepExpired(accountKey string, assetType domain.AssetType) (int, error) {
	removed, err := s.sweep(accountKey, assetType)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Debug().Str("account", accountKey).Int("removed", removed).Msg("history: swept expired records")
		s.publish(accountKey, assetType)
	}
	return removed, nil
}

func (s *Store) sweep(accountKey string, assetType domain.AssetType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(accountKey, assetType)
	if err != nil {
		return 0, err
	}
	now := s.now()
	kept := records[:0]
	for _, r := range records {
		if r.Expired(now) {
			continue
		}
		kept = append(kept, r)
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.save(accountKey, assetType, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) publish(accountKey string, assetType domain.AssetType) {
	kind := state.ChangeVideoHistory
	if assetType == domain.AssetImage {
		kind = state.ChangeImageHistory
	}
	s.feed.Publish(state.Change{Kind: kind, AccountKey: accountKey})
}

func (s *Store) load(accountKey string, assetType domain.AssetType) ([]domain.HistoryRecord, error) {
	path, err := s.path(accountKey, assetType)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}
	var records []domain.HistoryRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		// A corrupt partition file must not brick the view; start fresh.
		s.logger.Warn().Err(err).Str("path", path).Msg("history: discarding unreadable partition file")
		return nil, nil
	}
	return records, nil
}

func (s *Store) save(accountKey string, assetType domain.AssetType, records []domain.HistoryRecord) error {
	path, err := s.path(accountKey, assetType)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("history: ensure directory: %w", err)
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("history: encode records: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("history: write %s: %w", path, err)
	}
	return nil
}

func (s *Store) path(accountKey string, assetType domain.AssetType) (string, error) {
	partition, err := sanitizePartition(accountKey)
	if err != nil {
		return "", err
	}
	name := "videos.json"
	if assetType == domain.AssetImage {
		name = "images.json"
	}
	return filepath.Join(s.dir, partition, name), nil
}

func capacityFor(assetType domain.AssetType) int {
	if assetType == domain.AssetImage {
		return imageCapacity
	}
	return videoCapacity
}

// sanitizePartition maps an account key onto a safe directory name and
// prevents escaping the store root.
func sanitizePartition(accountKey string) (string, error) {
	key := strings.TrimSpace(accountKey)
	if key == "" {
		key = domain.AnonymousAccount
	}
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := filepath.Clean(b.String())
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("history: invalid account key")
	}
	return cleaned, nil
}
