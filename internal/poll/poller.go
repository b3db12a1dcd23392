// Package poll drives a remote generation job to a terminal state. It is the
// single place where the remote status vocabulary and remote failure text are
// translated for the rest of the application.
package poll

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/api"
	"studio/internal/domain"
	"studio/internal/infra"
)

// Fetcher retrieves the current status envelope for the job being polled.
type Fetcher func(ctx context.Context) (*api.JobStatus, error)

// Options configures a Poller.
type Options struct {
	// Interval between polls, default 2s.
	Interval time.Duration
	// AssetLagLimit caps consecutive "succeeded but no asset yet" polls
	// before the job is declared failed. Default 150 (~5 minutes at the
	// default interval).
	AssetLagLimit int
	Logger        *infra.Logger
}

// Result is the terminal outcome of a polling run.
type Result struct {
	State    domain.LifecycleState
	AssetURL string
	Message  string
}

// Poller repeatedly fetches a job status until it reaches a terminal state.
type Poller struct {
	interval time.Duration
	lagLimit int
	logger   *infra.Logger
}

// New constructs a Poller with defaults applied.
func New(opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	lagLimit := opts.AssetLagLimit
	if lagLimit <= 0 {
		lagLimit = 150
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Poller{interval: interval, lagLimit: lagLimit, logger: logger}
}

// Await polls the job until it reaches ready or failed, or ctx is cancelled.
// Fetches are issued sequentially, so responses are applied in issue order by
// construction; a response that comes back after cancellation is discarded
// rather than applied. Transient fetch errors are logged and retried - only
// an explicit terminal status from a successful response ends the loop.
func (p *Poller) Await(ctx context.Context, jobID string, fetch Fetcher) (*Result, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	lagged := 0
	for {
		status, err := fetch(ctx)
		if ctx.Err() != nil {
			// The view is gone; drop whatever the in-flight request returned.
			return nil, ctx.Err()
		}
		if err != nil {
			p.logger.Warn().Err(err).Str("job_id", jobID).Msg("poll: status fetch failed, retrying")
		} else {
			assetURL := status.AssetURL()
			switch state := domain.MapRemoteStatus(status.Status, assetURL); state {
			case domain.StateReady:
				return &Result{State: domain.StateReady, AssetURL: assetURL}, nil
			case domain.StateFailed:
				return &Result{State: domain.StateFailed, Message: FriendlyFailure(status.ErrorText())}, nil
			default:
				if domain.SuccessStatus(status.Status) {
					lagged++
					if lagged >= p.lagLimit {
						p.logger.Error().Str("job_id", jobID).Int("polls", lagged).Msg("poll: asset never delivered")
						return nil, fmt.Errorf("job %s: asset was not delivered: %w", jobID, domain.ErrRemoteJob)
					}
				} else {
					lagged = 0
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// FriendlyFailure rewrites known upstream failure text into copy fit for
// display. Unknown text passes through untouched; empty text gets a generic
// message.
func FriendlyFailure(remote string) string {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "Generation failed"
	}
	lower := strings.ToLower(remote)
	switch {
	case strings.Contains(lower, "maintenance"):
		return "The generation service is undergoing maintenance. Please try again shortly."
	case strings.Contains(lower, "upstream"),
		strings.Contains(lower, "502"),
		strings.Contains(lower, "503"),
		strings.Contains(lower, "504"):
		return "The generation service is temporarily unavailable. Please try again in a few minutes."
	}
	return remote
}
