package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"studio/internal/middleware"
)

// NewRouter wires the gateway routes.
func NewRouter(app *App, logger zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(allowedOrigins),
	)

	r.Get("/healthz", app.Health)

	r.Route("/history", func(r chi.Router) {
		r.Get("/videos", app.ListVideos)
		r.Get("/images", app.ListImages)
		r.Delete("/{collection}/{id}", app.DeleteRecord)
	})

	r.Get("/assets", app.DownloadAsset)

	return r
}
