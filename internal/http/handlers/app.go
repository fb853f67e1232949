package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"stickerforge/internal/domain"
	"stickerforge/internal/infra"
	"stickerforge/internal/sticker"
	"stickerforge/internal/storage"
)

// Submitter packages generation tasks into asynchronous jobs.
type Submitter interface {
	SubmitSingle(ctx context.Context, task domain.Task) (sticker.Submission, error)
	SubmitBatch(ctx context.Context, tasks []domain.Task) (sticker.BatchSubmission, error)
}

// Poller resolves correlation ids against remote jobs within a bounded
// budget.
type Poller interface {
	AwaitWithBudget(ctx context.Context, jobID, correlationID string, interval, budget time.Duration) (sticker.Result, error)
}

// Pipeline post-processes raw generated images into finished stickers.
type Pipeline interface {
	Process(raw []byte) []byte
}

// App carries the wired dependencies for all request handlers.
type App struct {
	Config    *infra.Config
	Logger    infra.Logger
	SQL       infra.SQLExecutor
	Submitter Submitter
	Poller    Poller
	Pipeline  Pipeline
	Store     storage.BlobStore
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes a JSON error body. The error field carries the (already
// truncated) diagnostic; code is a stable machine-readable slug.
func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, map[string]string{"code": code, "error": msg})
}
