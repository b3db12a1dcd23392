// Package httpapi is the loopback gateway that serves history views and
// credentialed asset downloads to the local UI. Appending the bearer token
// to asset URLs happens here, at fetch time, so the credentialed form never
// leaves the process or lands in any persisted state.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"studio/internal/api"
	"studio/internal/domain"
	"studio/internal/history"
	"studio/internal/infra"
	"studio/internal/state"
)

// App carries the gateway's dependencies.
type App struct {
	History *history.Store
	State   *state.App
	Client  *api.Client
	HTTP    *http.Client
	Logger  *infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"detail": msg})
}

// Health reports liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

type historyItem struct {
	domain.HistoryRecord
	CreatedAgo    string `json:"created_ago,omitempty"`
	ExpiresInDays int    `json:"expires_in_days"`
}

// ListVideos returns the current account's video history, newest first.
// Entering the view also sweeps expired records.
func (a *App) ListVideos(w http.ResponseWriter, r *http.Request) {
	a.listHistory(w, r, domain.AssetVideo)
}

// ListImages returns the current account's image history, newest first.
func (a *App) ListImages(w http.ResponseWriter, r *http.Request) {
	a.listHistory(w, r, domain.AssetImage)
}

func (a *App) listHistory(w http.ResponseWriter, r *http.Request, assetType domain.AssetType) {
	account := a.State.AccountKey()
	if _, err := a.History.SweepExpired(account, assetType); err != nil {
		a.Logger.Warn().Err(err).Msg("httpapi: expiry sweep failed")
	}
	records, err := a.History.List(account, assetType)
	if err != nil {
		a.Logger.Error().Err(err).Msg("httpapi: history list failed")
		a.jsonError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	now := time.Now()
	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, historyItem{
			HistoryRecord: rec,
			CreatedAgo:    domain.RelativeTime(rec.CreatedAt, now),
			ExpiresInDays: rec.DaysUntilExpiry(now),
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// DeleteRecord removes one history record by id or asset URL.
func (a *App) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	assetType, ok := collectionType(chi.URLParam(r, "collection"))
	if !ok {
		a.jsonError(w, http.StatusNotFound, "unknown collection")
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		a.jsonError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := a.History.Delete(a.State.AccountKey(), id, assetType); err != nil {
		a.Logger.Error().Err(err).Msg("httpapi: history delete failed")
		a.jsonError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadAsset streams a remote asset with the bearer credential appended.
func (a *App) DownloadAsset(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		a.jsonError(w, http.StatusBadRequest, "url is required")
		return
	}
	target := a.Client.AppendToken(raw)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		a.jsonError(w, http.StatusBadRequest, "unsupported url")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid url")
		return
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("httpapi: asset fetch failed")
		a.jsonError(w, http.StatusBadGateway, "asset fetch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.jsonError(w, http.StatusBadGateway, "asset fetch failed")
		return
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		a.Logger.Warn().Err(err).Msg("httpapi: asset stream interrupted")
	}
}

func collectionType(name string) (domain.AssetType, bool) {
	switch name {
	case "videos":
		return domain.AssetVideo, true
	case "images":
		return domain.AssetImage, true
	}
	return "", false
}
