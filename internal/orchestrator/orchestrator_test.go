package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"studio/internal/api"
	"studio/internal/domain"
	"studio/internal/poll"
	"studio/internal/state"
)

type stubAPI struct {
	createCalls  int
	createStatus *api.JobStatus
	createErr    error

	getCalls int
	polls    []*api.JobStatus
}

func (s *stubAPI) create() (*api.JobStatus, error) {
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createStatus, nil
}

func (s *stubAPI) CreateVideoJob(ctx context.Context, req api.VideoJobRequest) (*api.JobStatus, error) {
	return s.create()
}

func (s *stubAPI) CreateTextToImageJob(ctx context.Context, req api.ImageJobRequest) (*api.JobStatus, error) {
	return s.create()
}

func (s *stubAPI) CreateImageToImageJob(ctx context.Context, req api.ImageJobRequest) (*api.JobStatus, error) {
	return s.create()
}

func (s *stubAPI) getJob() (*api.JobStatus, error) {
	idx := s.getCalls
	if idx >= len(s.polls) {
		idx = len(s.polls) - 1
	}
	s.getCalls++
	return s.polls[idx], nil
}

func (s *stubAPI) GetVideoJob(ctx context.Context, jobID string) (*api.JobStatus, error) {
	return s.getJob()
}

func (s *stubAPI) GetImageJob(ctx context.Context, jobID string) (*api.JobStatus, error) {
	return s.getJob()
}

func (s *stubAPI) NormalizeAssetURL(raw string) string {
	if strings.HasPrefix(raw, "/") {
		return "http://localhost:8001" + raw
	}
	return raw
}

type stubRefresher struct {
	coins int64
	calls int
	err   error
}

func (r *stubRefresher) Refresh(ctx context.Context) (domain.BalanceSnapshot, error) {
	r.calls++
	if r.err != nil {
		return domain.BalanceSnapshot{}, r.err
	}
	return domain.BalanceSnapshot{Coins: r.coins, FetchedAt: time.Now()}, nil
}

type stubHistory struct {
	records []domain.HistoryRecord
	keys    []string
}

func (h *stubHistory) Add(accountKey string, rec domain.HistoryRecord) error {
	h.records = append(h.records, rec)
	h.keys = append(h.keys, accountKey)
	return nil
}

func newTestOrchestrator(t *testing.T, client *stubAPI, refresher *stubRefresher, store *stubHistory) (*Orchestrator, *state.App) {
	t.Helper()
	app := state.NewApp(nil)
	app.SetUser("42")
	o, err := New(Options{
		API:     client,
		Balance: refresher,
		History: store,
		App:     app,
		Poller:  poll.New(poll.Options{Interval: time.Millisecond}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, app
}

func TestGenerateInsufficientFunds(t *testing.T) {
	client := &stubAPI{}
	refresher := &stubRefresher{coins: 40}
	store := &stubHistory{}
	o, _ := newTestOrchestrator(t, client, refresher, store)

	job, err := o.Generate(context.Background(), Request{
		Kind:            domain.JobKindTextToVideo,
		Prompt:          "a storm over the sea",
		DurationSeconds: 4,
	})

	var fundsErr *domain.InsufficientFundsError
	if !errors.As(err, &fundsErr) {
		t.Fatalf("error = %v, want InsufficientFundsError", err)
	}
	if fundsErr.Shortfall() != 10 {
		t.Fatalf("shortfall = %d, want 10", fundsErr.Shortfall())
	}
	if client.createCalls != 0 {
		t.Fatalf("no job may be created, got %d create calls", client.createCalls)
	}
	if job.State != domain.StateWaiting {
		t.Fatalf("state = %q, want waiting", job.State)
	}
}

func TestGeneratePollsToReady(t *testing.T) {
	client := &stubAPI{
		createStatus: &api.JobStatus{JobID: "job-1", Status: "processing"},
		polls: []*api.JobStatus{
			{JobID: "job-1", Status: "processing"},
			{JobID: "job-1", Status: "succeeded", VideoURL: "https://x/a.mp4"},
		},
	}
	refresher := &stubRefresher{coins: 500}
	store := &stubHistory{}
	o, _ := newTestOrchestrator(t, client, refresher, store)

	job, err := o.Generate(context.Background(), Request{
		Kind:            domain.JobKindTextToVideo,
		Prompt:          "a storm over the sea",
		DurationSeconds: 4,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if job.State != domain.StateReady {
		t.Fatalf("state = %q, want ready", job.State)
	}
	if job.ResultURL != "https://x/a.mp4" {
		t.Fatalf("result url = %q", job.ResultURL)
	}
	if len(store.records) != 1 {
		t.Fatalf("records = %d, want 1", len(store.records))
	}
	rec := store.records[0]
	if rec.AssetURL != "https://x/a.mp4" {
		t.Fatalf("asset url = %q, must be stored bare", rec.AssetURL)
	}
	if strings.Contains(rec.AssetURL, "token=") {
		t.Fatal("credential must never be persisted")
	}
	if rec.AssetType != domain.AssetVideo {
		t.Fatalf("asset type = %q", rec.AssetType)
	}
	if store.keys[0] != "user:42" {
		t.Fatalf("account key = %q", store.keys[0])
	}
	// Pre-spend check plus post-success refresh.
	if refresher.calls != 2 {
		t.Fatalf("refresh calls = %d, want 2", refresher.calls)
	}
}

func TestGenerateRemoteFailure(t *testing.T) {
	client := &stubAPI{
		createStatus: &api.JobStatus{JobID: "job-1", Status: "failed", Error: "maintenance"},
	}
	refresher := &stubRefresher{coins: 500}
	store := &stubHistory{}
	o, _ := newTestOrchestrator(t, client, refresher, store)

	job, err := o.Generate(context.Background(), Request{
		Kind:            domain.JobKindTextToVideo,
		Prompt:          "a storm over the sea",
		DurationSeconds: 4,
	})

	if !errors.Is(err, domain.ErrRemoteJob) {
		t.Fatalf("error = %v, want remote job error", err)
	}
	if job.State != domain.StateFailed {
		t.Fatalf("state = %q, want failed", job.State)
	}
	if len(store.records) != 0 {
		t.Fatal("failed job must not write history")
	}
	// Pre-spend check plus exactly one refund refresh.
	if refresher.calls != 2 {
		t.Fatalf("refresh calls = %d, want 2", refresher.calls)
	}
	var jobErr *domain.RemoteJobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("error = %v, want RemoteJobError", err)
	}
	if !strings.Contains(jobErr.Message, "maintenance") {
		t.Fatalf("message = %q, want friendly maintenance copy", jobErr.Message)
	}
}

func TestGenerateSynchronousShortCircuit(t *testing.T) {
	client := &stubAPI{
		createStatus: &api.JobStatus{JobID: "job-1", Status: "succeeded", ImageURL: "/files/a.png"},
	}
	refresher := &stubRefresher{coins: 500}
	store := &stubHistory{}
	o, _ := newTestOrchestrator(t, client, refresher, store)

	job, err := o.Generate(context.Background(), Request{
		Kind:   domain.JobKindTextToImage,
		Prompt: "a lighthouse at dusk",
		Model:  "ai-image",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if client.getCalls != 0 {
		t.Fatalf("short-circuit must skip polling, got %d polls", client.getCalls)
	}
	if job.ResultURL != "http://localhost:8001/files/a.png" {
		t.Fatalf("result url = %q, want normalized absolute URL", job.ResultURL)
	}
	if len(store.records) != 1 {
		t.Fatalf("records = %d, want 1", len(store.records))
	}
}

func TestGenerateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "image-to-image without input image",
			req:  Request{Kind: domain.JobKindImageToImage, Prompt: "restyle this"},
		},
		{
			name: "image-to-video without input image",
			req:  Request{Kind: domain.JobKindImageToVideo, Prompt: "animate this", DurationSeconds: 4},
		},
		{
			name: "text-to-image without prompt",
			req:  Request{Kind: domain.JobKindTextToImage, Model: "ai-image"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &stubAPI{}
			o, _ := newTestOrchestrator(t, client, &stubRefresher{coins: 500}, &stubHistory{})

			_, err := o.Generate(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("error = %v, want validation", err)
			}
			if client.createCalls != 0 {
				t.Fatalf("validation must run before any remote call, got %d create calls", client.createCalls)
			}
		})
	}
}

func TestGenerateBalanceFetchFailure(t *testing.T) {
	client := &stubAPI{}
	refresher := &stubRefresher{err: errors.New("boom")}
	o, _ := newTestOrchestrator(t, client, refresher, &stubHistory{})

	_, err := o.Generate(context.Background(), Request{
		Kind: domain.JobKindTextToImage, Prompt: "x", Model: "ai-image",
	})
	if err == nil {
		t.Fatal("expected error when balance is unknown")
	}
	if client.createCalls != 0 {
		t.Fatal("unknown balance must not allow a spend")
	}
}

func TestCost(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want int64
	}{
		{name: "4s video", req: Request{Kind: domain.JobKindTextToVideo, DurationSeconds: 4}, want: 50},
		{name: "6s video", req: Request{Kind: domain.JobKindTextToVideo, DurationSeconds: 6}, want: 75},
		{name: "8s video", req: Request{Kind: domain.JobKindImageToVideo, DurationSeconds: 8}, want: 100},
		{name: "unknown duration falls back to lowest tier", req: Request{Kind: domain.JobKindTextToVideo, DurationSeconds: 12}, want: 50},
		{name: "cheap image model", req: Request{Kind: domain.JobKindTextToImage, Model: "ai-image"}, want: 1},
		{name: "premium image model", req: Request{Kind: domain.JobKindTextToImage, Model: "ai-premium"}, want: 6},
		{name: "unknown image model", req: Request{Kind: domain.JobKindImageToImage, Model: "mystery"}, want: 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Cost(tc.req); got != tc.want {
				t.Fatalf("Cost = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestTitleFromPrompt(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		assetType domain.AssetType
		want      string
	}{
		{name: "first line only", prompt: "a storm over the sea\nwide shot", assetType: domain.AssetVideo, want: "A Storm Over The Sea"},
		{name: "truncated to limit", prompt: strings.Repeat("x", 40), assetType: domain.AssetImage, want: "X" + strings.Repeat("x", 29)},
		{name: "empty video prompt", prompt: "", assetType: domain.AssetVideo, want: "Generated Video"},
		{name: "empty image prompt", prompt: "   ", assetType: domain.AssetImage, want: "Generated Image"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TitleFromPrompt(tc.prompt, tc.assetType); got != tc.want {
				t.Fatalf("TitleFromPrompt = %q, want %q", got, tc.want)
			}
		})
	}
}
