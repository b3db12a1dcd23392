// Package orchestrator sequences a generation from "user clicked generate"
// to "asset saved to history": fresh balance check, request validation,
// remote job creation, polling, and the terminal bookkeeping.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"studio/internal/api"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/poll"
	"studio/internal/state"
)

const titleMaxRunes = 30

// Request describes one generation the user asked for.
type Request struct {
	Kind            domain.JobKind
	Prompt          string
	Model           string
	AspectRatio     string
	Provider        string
	DurationSeconds int
	Resolution      string
	Quality         string
	// ImageURLs are the input images for image-driven modes.
	ImageURLs []string
}

// JobAPI is the slice of the remote client the orchestrator needs.
type JobAPI interface {
	CreateVideoJob(ctx context.Context, req api.VideoJobRequest) (*api.JobStatus, error)
	CreateTextToImageJob(ctx context.Context, req api.ImageJobRequest) (*api.JobStatus, error)
	CreateImageToImageJob(ctx context.Context, req api.ImageJobRequest) (*api.JobStatus, error)
	GetVideoJob(ctx context.Context, jobID string) (*api.JobStatus, error)
	GetImageJob(ctx context.Context, jobID string) (*api.JobStatus, error)
	NormalizeAssetURL(raw string) string
}

// Refresher re-fetches the authoritative balance.
type Refresher interface {
	Refresh(ctx context.Context) (domain.BalanceSnapshot, error)
}

// HistoryWriter persists completed generations.
type HistoryWriter interface {
	Add(accountKey string, rec domain.HistoryRecord) error
}

// Options configures an Orchestrator.
type Options struct {
	API     JobAPI
	Balance Refresher
	History HistoryWriter
	App     *state.App
	Poller  *poll.Poller
	Logger  *infra.Logger
}

// Orchestrator runs the generation flow end to end.
type Orchestrator struct {
	api     JobAPI
	balance Refresher
	history HistoryWriter
	app     *state.App
	poller  *poll.Poller
	logger  *infra.Logger
}

// New constructs an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.API == nil {
		return nil, errors.New("orchestrator: api client is required")
	}
	if opts.Balance == nil {
		return nil, errors.New("orchestrator: balance refresher is required")
	}
	if opts.History == nil {
		return nil, errors.New("orchestrator: history writer is required")
	}
	if opts.App == nil {
		return nil, errors.New("orchestrator: app state is required")
	}
	poller := opts.Poller
	if poller == nil {
		poller = poll.New(poll.Options{Logger: opts.Logger})
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Orchestrator{
		api:     opts.API,
		balance: opts.Balance,
		history: opts.History,
		app:     opts.App,
		poller:  poller,
		logger:  logger,
	}, nil
}

// Generate runs the full flow for one request. The returned job carries the
// final lifecycle state even when an error is returned.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*domain.GenerationJob, error) {
	job := &domain.GenerationJob{Kind: req.Kind, State: domain.StateWaiting}

	// The stored snapshot is advisory only; the spend decision needs a
	// fresh value.
	snap, err := o.balance.Refresh(ctx)
	if err != nil {
		return job, err
	}
	cost := Cost(req)
	if snap.Coins < cost {
		return job, &domain.InsufficientFundsError{Required: cost, Balance: snap.Coins}
	}
	job.State = domain.StateConfirmed

	if err := validate(req); err != nil {
		return job, err
	}

	job.State = domain.StateGenerating
	status, err := o.createJob(ctx, req)
	if err != nil {
		job.State = domain.StateFailed
		return job, err
	}
	job.JobID = status.JobID
	o.logger.Info().Str("job_id", job.JobID).Str("kind", string(req.Kind)).Msg("orchestrator: job created")

	assetURL := status.AssetURL()
	switch domain.MapRemoteStatus(status.Status, assetURL) {
	case domain.StateReady:
		// Synchronous short-circuit; no polling needed.
		return o.finishReady(ctx, job, req, assetURL)
	case domain.StateFailed:
		return o.finishFailed(ctx, job, poll.FriendlyFailure(status.ErrorText()))
	}

	result, err := o.poller.Await(ctx, job.JobID, o.fetcher(req.Kind, job.JobID))
	if err != nil {
		job.State = domain.StateFailed
		return job, err
	}
	if result.State == domain.StateFailed {
		return o.finishFailed(ctx, job, result.Message)
	}
	return o.finishReady(ctx, job, req, result.AssetURL)
}

func (o *Orchestrator) createJob(ctx context.Context, req Request) (*api.JobStatus, error) {
	if req.Kind.IsVideo() {
		return o.api.CreateVideoJob(ctx, api.VideoJobRequest{
			Prompt:          req.Prompt,
			Model:           req.Model,
			AspectRatio:     req.AspectRatio,
			Provider:        req.Provider,
			DurationSeconds: req.DurationSeconds,
			Resolution:      req.Resolution,
			Quality:         req.Quality,
			ImageURLs:       req.ImageURLs,
		})
	}
	imageReq := api.ImageJobRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		AspectRatio: req.AspectRatio,
	}
	if req.Kind == domain.JobKindImageToImage {
		imageReq.ImageURL = req.ImageURLs[0]
		if len(req.ImageURLs) > 1 {
			imageReq.ImageURL2 = req.ImageURLs[1]
		}
		return o.api.CreateImageToImageJob(ctx, imageReq)
	}
	return o.api.CreateTextToImageJob(ctx, imageReq)
}

func (o *Orchestrator) fetcher(kind domain.JobKind, jobID string) poll.Fetcher {
	if kind.IsVideo() {
		return func(ctx context.Context) (*api.JobStatus, error) {
			return o.api.GetVideoJob(ctx, jobID)
		}
	}
	return func(ctx context.Context) (*api.JobStatus, error) {
		return o.api.GetImageJob(ctx, jobID)
	}
}

// finishReady refreshes the balance and persists the history record. The
// history write happens before the flow is considered complete; a completed
// generation must never be silently lost, so a failed write is the only
// storage error surfaced in the log rather than returned.
func (o *Orchestrator) finishReady(ctx context.Context, job *domain.GenerationJob, req Request, assetURL string) (*domain.GenerationJob, error) {
	job.State = domain.StateReady
	job.ResultURL = o.api.NormalizeAssetURL(assetURL)

	if _, err := o.balance.Refresh(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("orchestrator: balance refresh after success failed")
	}

	assetType := domain.AssetImage
	if req.Kind.IsVideo() {
		assetType = domain.AssetVideo
	}
	rec := domain.HistoryRecord{
		JobID:       job.JobID,
		AssetType:   assetType,
		Mode:        req.Kind,
		Prompt:      req.Prompt,
		Title:       TitleFromPrompt(req.Prompt, assetType),
		AssetURL:    job.ResultURL,
		Model:       req.Model,
		AspectRatio: req.AspectRatio,
	}
	if err := o.history.Add(o.app.AccountKey(), rec); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.JobID).Msg("orchestrator: history write failed")
	}
	return job, nil
}

// finishFailed refreshes the balance once (the server may have refunded the
// spend) and surfaces the failure. No history record is written.
func (o *Orchestrator) finishFailed(ctx context.Context, job *domain.GenerationJob, message string) (*domain.GenerationJob, error) {
	job.State = domain.StateFailed
	job.ErrorMessage = message

	if _, err := o.balance.Refresh(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("orchestrator: balance refresh after failure failed")
	}
	return job, &domain.RemoteJobError{JobID: job.JobID, Message: message}
}

func validate(req Request) error {
	if req.Kind.IsImageDriven() && len(req.ImageURLs) == 0 {
		return fmt.Errorf("%s requires an input image: %w", req.Kind, domain.ErrValidation)
	}
	if !req.Kind.IsImageDriven() && strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("prompt is required: %w", domain.ErrValidation)
	}
	return nil
}

var titleCaser = cases.Title(language.English)

// TitleFromPrompt derives a short human title from the first line of the
// prompt. An empty prompt falls back to a generic label.
func TitleFromPrompt(prompt string, assetType domain.AssetType) string {
	line, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		if assetType == domain.AssetVideo {
			return "Generated Video"
		}
		return "Generated Image"
	}
	runes := []rune(line)
	if len(runes) > titleMaxRunes {
		line = string(runes[:titleMaxRunes])
	}
	return titleCaser.String(line)
}
