package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stickerforge/internal/domain"
	"stickerforge/internal/middleware"
	"stickerforge/internal/sqlinline"
	"stickerforge/internal/sticker"
	"stickerforge/pkg/zip"
)

type stickerRequest struct {
	Prompt     string `json:"prompt"`
	Model      string `json:"model"`
	Size       string `json:"size"`
	Quality    string `json:"quality"`
	Background string `json:"background"`
	Format     string `json:"format"`
}

type pollRequest struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
}

type pendingResponse struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

type batchRequest struct {
	Items []stickerRequest `json:"items"`
}

type batchItem struct {
	CorrelationID string `json:"correlation_id"`
	Seq           int    `json:"seq"`
}

type batchResponse struct {
	JobID string      `json:"job_id"`
	Items []batchItem `json:"items"`
}

// StickersGenerate submits a single task and waits for it within the short
// synchronous budget. The response is either the finished sticker or a
// pending signal carrying the ids needed to poll later.
func (a *App) StickersGenerate(w http.ResponseWriter, r *http.Request) {
	var req stickerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	task := req.task()
	if strings.TrimSpace(task.Prompt) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}

	sub, err := a.Submitter.SubmitSingle(r.Context(), task)
	if err != nil {
		a.upstreamError(w, err)
		return
	}
	a.recordSubmission(r, sub.JobID, sub.CorrelationID, 1, task.Prompt)

	a.resolve(w, r, sub.JobID, sub.CorrelationID, a.Config.SyncBudget)
}

// StickersPoll re-resolves a previously submitted task. It returns the same
// two shapes as StickersGenerate so callers can loop on it until ready or
// their own deadline.
func (a *App) StickersPoll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.JobID == "" || req.CorrelationID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id and correlation_id are required")
		return
	}
	a.resolve(w, r, req.JobID, req.CorrelationID, a.Config.PollBudget)
}

// StickersBatch submits many tasks as one job and returns immediately with
// the per-item correlation ids, in submission order.
func (a *App) StickersBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	tasks := make([]domain.Task, 0, len(req.Items))
	for _, item := range req.Items {
		tasks = append(tasks, item.task())
	}
	sub, err := a.Submitter.SubmitBatch(r.Context(), tasks)
	if err != nil {
		if errors.Is(err, sticker.ErrEmptyBatch) {
			a.error(w, http.StatusBadRequest, "bad_request", "no items with a prompt")
			return
		}
		a.upstreamError(w, err)
		return
	}
	items := make([]batchItem, 0, len(sub.Records))
	for _, rec := range sub.Records {
		a.recordSubmission(r, sub.JobID, rec.CorrelationID, rec.Seq, rec.Task.Prompt)
		items = append(items, batchItem{CorrelationID: rec.CorrelationID, Seq: rec.Seq})
	}
	a.json(w, http.StatusAccepted, batchResponse{JobID: sub.JobID, Items: items})
}

// StickersBatchDownload polls every item of a batch sequentially in
// submission order, each within its own bounded budget, and streams the
// finished stickers as a zip archive. A stalled item blocks the ones behind
// it; the handler reports the stalled item's ids instead of waiting
// indefinitely.
func (a *App) StickersBatchDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	rows, err := a.SQL.Query(r.Context(), sqlinline.QSelectJobSubmissions, jobID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load submissions")
		return
	}
	defer rows.Close()
	type registryRow struct {
		correlationID string
		seq           int
	}
	var items []registryRow
	for rows.Next() {
		var rec registryRow
		var job, prompt, status string
		if err := rows.Scan(&job, &rec.correlationID, &rec.seq, &prompt, &status); err != nil {
			continue
		}
		items = append(items, rec)
	}
	if len(items) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no submissions for job")
		return
	}

	stickers := make([]zip.Sticker, 0, len(items))
	for _, item := range items {
		res, err := a.Poller.AwaitWithBudget(r.Context(), jobID, item.correlationID, a.Config.PollInterval, a.Config.DownloadBudget)
		if err != nil {
			a.upstreamError(w, err)
			return
		}
		if !res.Ready {
			a.pending(w, r, jobID, item.correlationID, res.Phase)
			return
		}
		data, err := base64.StdEncoding.DecodeString(res.Payload)
		if err != nil {
			a.error(w, http.StatusBadGateway, "upstream", "result payload is not valid base64")
			return
		}
		finished := a.Pipeline.Process(data)
		a.storeAsset(r, jobID, item.correlationID, finished)
		stickers = append(stickers, zip.Sticker{
			Filename: fmt.Sprintf("%04d-%s.png", item.seq, item.correlationID),
			Data:     finished,
		})
	}

	archive := zip.ArchiveStickers(stickers)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=stickers-%s.zip", jobID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// resolve runs the bounded poll loop and writes either the finished sticker
// or a pending response.
func (a *App) resolve(w http.ResponseWriter, r *http.Request, jobID, correlationID string, budget time.Duration) {
	res, err := a.Poller.AwaitWithBudget(r.Context(), jobID, correlationID, a.Config.PollInterval, budget)
	if err != nil {
		a.upstreamError(w, err)
		return
	}
	if !res.Ready {
		a.pending(w, r, jobID, correlationID, res.Phase)
		return
	}
	data, err := base64.StdEncoding.DecodeString(res.Payload)
	if err != nil {
		a.error(w, http.StatusBadGateway, "upstream", "result payload is not valid base64")
		return
	}
	finished := a.Pipeline.Process(data)
	a.storeAsset(r, jobID, correlationID, finished)

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(finished)
}

func (a *App) pending(w http.ResponseWriter, r *http.Request, jobID, correlationID, phase string) {
	status := phase
	if status == "" {
		status = "pending"
	}
	a.json(w, http.StatusAccepted, pendingResponse{
		JobID:         jobID,
		CorrelationID: correlationID,
		Status:        status,
		Message:       pendingMessage(middleware.LocaleFromContext(r.Context())),
	})
}

func (a *App) upstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrResultMissing):
		a.error(w, http.StatusBadGateway, "result_missing", err.Error())
	case errors.Is(err, domain.ErrUpload), errors.Is(err, domain.ErrJobCreate), errors.Is(err, domain.ErrStatusQuery):
		a.error(w, http.StatusBadGateway, "upstream", err.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// recordSubmission writes a registry row. The registry is bookkeeping for
// batch downloads and audits; a write failure is logged, not surfaced.
func (a *App) recordSubmission(r *http.Request, jobID, correlationID string, seq int, prompt string) {
	if _, err := a.SQL.Exec(r.Context(), sqlinline.QInsertSubmission, jobID, correlationID, seq, prompt); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Str("correlation_id", correlationID).
			Msg("failed to record submission")
	}
}

func (a *App) storeAsset(r *http.Request, jobID, correlationID string, data []byte) {
	key := fmt.Sprintf("stickers/%s/%s.png", jobID, correlationID)
	storedKey, err := a.Store.Write(r.Context(), key, data)
	if err != nil {
		a.Logger.Warn().Err(err).Str("key", key).Msg("failed to store sticker asset")
		return
	}
	if _, err := a.SQL.Exec(r.Context(), sqlinline.QResolveSubmission, jobID, correlationID,
		string(domain.SubmissionCompleted), storedKey); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to mark submission resolved")
	}
}

func pendingMessage(locale string) string {
	if locale == "id" {
		return "stiker masih diproses, coba lagi dengan job_id dan correlation_id yang sama"
	}
	return "sticker is still generating, poll again with the same job_id and correlation_id"
}

func (req stickerRequest) task() domain.Task {
	return domain.Task{
		Prompt:     req.Prompt,
		Model:      req.Model,
		Size:       req.Size,
		Quality:    req.Quality,
		Background: req.Background,
		Format:     req.Format,
	}
}
