// Package api implements the client for the remote generation service:
// job creation, job status, coin balance, and top-up claims.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
)

// TokenSource supplies the current bearer credential, or "" when signed out.
type TokenSource func() string

// Options configures the generation API client.
type Options struct {
	BaseURL        string
	Token          TokenSource
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the generation API.
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
	logger     *infra.Logger
}

// VideoJobRequest captures the inputs for a video generation job.
type VideoJobRequest struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
	Resolution      string   `json:"resolution,omitempty"`
	Quality         string   `json:"quality,omitempty"`
	ImageURLs       []string `json:"image_urls,omitempty"`
	Watermark       string   `json:"watermark,omitempty"`
}

// ImageJobRequest captures the inputs for an image generation job.
type ImageJobRequest struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Mode        string `json:"mode,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageURL2   string `json:"image_url2,omitempty"`
}

// JobStatus is the status envelope shared by job creation and job polling.
type JobStatus struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// AssetURL returns whichever produced-asset field is populated.
func (s JobStatus) AssetURL() string {
	if s.VideoURL != "" {
		return s.VideoURL
	}
	return s.ImageURL
}

// ErrorText returns the failure text from whichever field the API used.
func (s JobStatus) ErrorText() string {
	if s.Error != "" {
		return s.Error
	}
	return s.Detail
}

// BalanceResponse is the coin balance envelope.
type BalanceResponse struct {
	Coins int64 `json:"coins"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	token := opts.Token
	if token == nil {
		token = func() string { return "" }
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CreateVideoJob submits a text-to-video or image-to-video job.
func (c *Client) CreateVideoJob(ctx context.Context, req VideoJobRequest) (*JobStatus, error) {
	return c.postJob(ctx, "/video/text-to-video", req)
}

// CreateTextToImageJob submits a text-to-image job.
func (c *Client) CreateTextToImageJob(ctx context.Context, req ImageJobRequest) (*JobStatus, error) {
	return c.postJob(ctx, "/image/text-to-image", req)
}

// CreateImageToImageJob submits an image-to-image job.
func (c *Client) CreateImageToImageJob(ctx context.Context, req ImageJobRequest) (*JobStatus, error) {
	return c.postJob(ctx, "/image/image-to-image", req)
}

// GetVideoJob fetches the status envelope for a video job.
func (c *Client) GetVideoJob(ctx context.Context, jobID string) (*JobStatus, error) {
	return c.getJob(ctx, "/video/jobs/"+url.PathEscape(jobID))
}

// GetImageJob fetches the status envelope for an image job.
func (c *Client) GetImageJob(ctx context.Context, jobID string) (*JobStatus, error) {
	return c.getJob(ctx, "/image/job/"+url.PathEscape(jobID))
}

// CoinBalance fetches the authoritative coin balance.
func (c *Client) CoinBalance(ctx context.Context) (*BalanceResponse, error) {
	var out BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/coins/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClaimTopUp asks the backend to credit the account for a mined transfer.
func (c *Client) ClaimTopUp(ctx context.Context, txHash string) error {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return fmt.Errorf("api: tx hash is required: %w", domain.ErrValidation)
	}
	body := map[string]string{"tx_hash": txHash}
	return c.do(ctx, http.MethodPost, "/coins/topup/claim", body, nil)
}

// NormalizeAssetURL resolves relative asset paths against the API base.
func (c *Client) NormalizeAssetURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "/") {
		return c.baseURL + raw
	}
	return raw
}

// AppendToken attaches the bearer credential to an asset URL as a query
// parameter. Media elements cannot send Authorization headers, so download
// endpoints accept the token this way. Call this at fetch time only: the
// credentialed form must never be persisted.
func (c *Client) AppendToken(raw string) string {
	normalized := c.NormalizeAssetURL(raw)
	token := c.token()
	if normalized == "" || token == "" {
		return normalized
	}
	parsed, err := url.Parse(normalized)
	if err != nil {
		return normalized
	}
	q := parsed.Query()
	if q.Has("token") {
		return normalized
	}
	q.Set("token", token)
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

func (c *Client) postJob(ctx context.Context, path string, req any) (*JobStatus, error) {
	var out JobStatus
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJob(ctx context.Context, path string) (*JobStatus, error) {
	var out JobStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("api: %s %s: %v: %w", method, path, err, domain.ErrNetwork)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %v: %w", err, domain.ErrNetwork)
	}

	if resp.StatusCode >= 300 {
		var detail struct {
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil {
			if msg := firstNonEmpty(detail.Detail, detail.Message); msg != "" {
				return fmt.Errorf("api: %s", msg)
			}
		}
		return fmt.Errorf("api: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Msg("api: request completed")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
