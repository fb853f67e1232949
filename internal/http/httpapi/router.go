package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"stickerforge/internal/http/handlers"
	"stickerforge/internal/middleware"
)

func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.Locale("en"))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/stickers", func(r chi.Router) {
		r.Post("/generate", app.StickersGenerate)
		r.Post("/poll", app.StickersPoll)
		r.Post("/batch", app.StickersBatch)
		r.Get("/batch/{job_id}/download", app.StickersBatchDownload)
	})

	return r
}
