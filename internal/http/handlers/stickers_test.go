package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stickerforge/internal/domain"
	handlers "stickerforge/internal/http/handlers"
	"stickerforge/internal/http/httpapi"
	"stickerforge/internal/infra"
	"stickerforge/internal/sticker"
)

type fakeSubmitter struct {
	single    sticker.Submission
	batch     sticker.BatchSubmission
	err       error
	lastTask  domain.Task
	lastTasks []domain.Task
}

func (f *fakeSubmitter) SubmitSingle(_ context.Context, task domain.Task) (sticker.Submission, error) {
	f.lastTask = task
	return f.single, f.err
}

func (f *fakeSubmitter) SubmitBatch(_ context.Context, tasks []domain.Task) (sticker.BatchSubmission, error) {
	f.lastTasks = tasks
	return f.batch, f.err
}

type fakePoller struct {
	results map[string]sticker.Result
	err     error
	budgets []time.Duration
}

func (f *fakePoller) AwaitWithBudget(_ context.Context, jobID, correlationID string, _, budget time.Duration) (sticker.Result, error) {
	f.budgets = append(f.budgets, budget)
	if f.err != nil {
		return sticker.Result{}, f.err
	}
	if res, ok := f.results[correlationID]; ok {
		return res, nil
	}
	return sticker.Result{Phase: "in_progress"}, nil
}

type stubPipeline struct{}

func (stubPipeline) Process(raw []byte) []byte {
	return append([]byte("processed-"), raw...)
}

type fakeStore struct {
	keys []string
}

func (f *fakeStore) Write(_ context.Context, key string, _ []byte) (string, error) {
	f.keys = append(f.keys, key)
	return key, nil
}

type execCall struct {
	query string
	args  []any
}

type fakeSQL struct {
	execs     []execCall
	queryRows [][]any
}

func (f *fakeSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	return pgconn.CommandTag{}, nil
}

func (f *fakeSQL) QueryRow(context.Context, string, ...any) pgx.Row {
	return handlers.NewSimpleRow(nil)
}

func (f *fakeSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &fakeRows{rows: f.queryRows}, nil
}

type fakeRows struct {
	handlers.TestRowsBase
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan arity %d != %d", len(dest), len(row))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		default:
			return fmt.Errorf("unsupported scan dest %T", dest[i])
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) Close() {}

func testConfig() *infra.Config {
	return &infra.Config{
		AppEnv:         "test",
		PollInterval:   time.Millisecond,
		SyncBudget:     10 * time.Millisecond,
		PollBudget:     20 * time.Millisecond,
		DownloadBudget: 30 * time.Millisecond,
	}
}

func newTestApp(submitter *fakeSubmitter, poller *fakePoller, sql *fakeSQL) (*handlers.App, *fakeStore) {
	store := &fakeStore{}
	app := &handlers.App{
		Config:    testConfig(),
		Logger:    infra.NewLogger("test"),
		SQL:       sql,
		Submitter: submitter,
		Poller:    poller,
		Pipeline:  stubPipeline{},
		Store:     store,
	}
	return app, store
}

func TestStickersGenerateReady(t *testing.T) {
	raw := []byte("rawpng")
	submitter := &fakeSubmitter{single: sticker.Submission{JobID: "batch-1", CorrelationID: "c1"}}
	poller := &fakePoller{results: map[string]sticker.Result{
		"c1": {Ready: true, Phase: "completed", Payload: base64.StdEncoding.EncodeToString(raw)},
	}}
	sql := &fakeSQL{}
	app, store := newTestApp(submitter, poller, sql)
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/stickers/generate",
		strings.NewReader(`{"prompt":"a corgi"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", res.Code, http.StatusOK, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q, want image/png", ct)
	}
	if !bytes.Equal(res.Body.Bytes(), append([]byte("processed-"), raw...)) {
		t.Fatalf("body = %q, want post-processed image", res.Body.String())
	}
	if submitter.lastTask.Prompt != "a corgi" {
		t.Fatalf("submitted prompt = %q", submitter.lastTask.Prompt)
	}
	if len(store.keys) != 1 || store.keys[0] != "stickers/batch-1/c1.png" {
		t.Fatalf("stored keys = %v", store.keys)
	}
	// One registry insert plus one resolution update.
	if len(sql.execs) != 2 {
		t.Fatalf("sql execs = %d, want 2", len(sql.execs))
	}
}

func TestStickersGeneratePendingWithinBudget(t *testing.T) {
	submitter := &fakeSubmitter{single: sticker.Submission{JobID: "batch-1", CorrelationID: "c1"}}
	poller := &fakePoller{results: map[string]sticker.Result{}}
	app, _ := newTestApp(submitter, poller, &fakeSQL{})
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/stickers/generate",
		strings.NewReader(`{"prompt":"a corgi"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusAccepted)
	}
	var pending struct {
		JobID         string `json:"job_id"`
		CorrelationID string `json:"correlation_id"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if pending.JobID != "batch-1" || pending.CorrelationID != "c1" {
		t.Fatalf("pending ids = %+v", pending)
	}
	if pending.Status != "in_progress" {
		t.Fatalf("pending status = %q, want in_progress", pending.Status)
	}
	if len(poller.budgets) != 1 || poller.budgets[0] != app.Config.SyncBudget {
		t.Fatalf("poll budgets = %v, want sync budget", poller.budgets)
	}
}

func TestStickersGenerateRequiresPrompt(t *testing.T) {
	app, _ := newTestApp(&fakeSubmitter{}, &fakePoller{}, &fakeSQL{})
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/stickers/generate", strings.NewReader(`{"prompt":"  "}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusBadRequest)
	}
}

func TestStickersGenerateUpstreamFailure(t *testing.T) {
	submitter := &fakeSubmitter{err: fmt.Errorf("%w: status 500: boom", domain.ErrUpload)}
	app, _ := newTestApp(submitter, &fakePoller{}, &fakeSQL{})
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/stickers/generate", strings.NewReader(`{"prompt":"p"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusBadGateway)
	}
	var body struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != "upstream" {
		t.Fatalf("code = %q, want upstream", body.Code)
	}
	if !strings.Contains(body.Error, "boom") {
		t.Fatalf("error field missing diagnostic: %q", body.Error)
	}
}

func TestStickersPollReturnsSameShapes(t *testing.T) {
	raw := []byte("imgbytes")
	poller := &fakePoller{results: map[string]sticker.Result{
		"c1": {Ready: true, Phase: "completed", Payload: base64.StdEncoding.EncodeToString(raw)},
	}}
	app, _ := newTestApp(&fakeSubmitter{}, poller, &fakeSQL{})
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/stickers/poll",
		strings.NewReader(`{"job_id":"batch-1","correlation_id":"c1"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusOK)
	}
	if ct := res.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q, want image/png", ct)
	}
	if len(poller.budgets) != 1 || poller.budgets[0] != app.Config.PollBudget {
		t.Fatalf("poll budgets = %v, want poll budget", poller.budgets)
	}

	// Not ready yet: the same endpoint answers pending with the ids echoed.
	req = httptest.NewRequest(http.MethodPost, "/v1/stickers/poll",
		strings.NewReader(`{"job_id":"batch-1","correlation_id":"c2"}`))
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusAccepted)
	}
}

func TestStickersPollRequiresIDs(t *testing.T) {
	app, _ := newTestApp(&fakeSubmitter{}, &fakePoller{}, &fakeSQL{})
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/stickers/poll", strings.NewReader(`{"job_id":"x"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusBadRequest)
	}
}

func TestStickersBatchSubmit(t *testing.T) {
	submitter := &fakeSubmitter{batch: sticker.BatchSubmission{
		JobID: "batch-7",
		Records: []domain.CorrelationRecord{
			{CorrelationID: "id-0001", Seq: 1, Task: domain.Task{Prompt: "one"}},
			{CorrelationID: "id-0002", Seq: 2, Task: domain.Task{Prompt: "two"}},
		},
	}}
	sql := &fakeSQL{}
	app, _ := newTestApp(submitter, &fakePoller{}, sql)
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/stickers/batch",
		strings.NewReader(`{"items":[{"prompt":"one"},{"prompt":"two"}]}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusAccepted)
	}
	var body struct {
		JobID string `json:"job_id"`
		Items []struct {
			CorrelationID string `json:"correlation_id"`
			Seq           int    `json:"seq"`
		} `json:"items"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.JobID != "batch-7" || len(body.Items) != 2 {
		t.Fatalf("response = %+v", body)
	}
	if body.Items[0].CorrelationID != "id-0001" || body.Items[1].Seq != 2 {
		t.Fatalf("items out of order: %+v", body.Items)
	}
	if len(sql.execs) != 2 {
		t.Fatalf("registry inserts = %d, want 2", len(sql.execs))
	}
}

func TestStickersBatchDownloadAllReady(t *testing.T) {
	raw := []byte("img")
	payload := base64.StdEncoding.EncodeToString(raw)
	poller := &fakePoller{results: map[string]sticker.Result{
		"id-0001": {Ready: true, Payload: payload},
		"id-0002": {Ready: true, Payload: payload},
	}}
	sql := &fakeSQL{queryRows: [][]any{
		{"batch-7", "id-0001", 1, "one", "pending"},
		{"batch-7", "id-0002", 2, "two", "pending"},
	}}
	app, store := newTestApp(&fakeSubmitter{}, poller, sql)
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/v1/stickers/batch/batch-7/download", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", res.Code, http.StatusOK, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q, want application/zip", ct)
	}
	if len(store.keys) != 2 {
		t.Fatalf("stored assets = %d, want 2", len(store.keys))
	}
}

func TestStickersBatchDownloadStalledItem(t *testing.T) {
	poller := &fakePoller{results: map[string]sticker.Result{
		"id-0001": {Ready: true, Payload: base64.StdEncoding.EncodeToString([]byte("img"))},
		// id-0002 never becomes ready.
	}}
	sql := &fakeSQL{queryRows: [][]any{
		{"batch-7", "id-0001", 1, "one", "pending"},
		{"batch-7", "id-0002", 2, "two", "pending"},
	}}
	app, _ := newTestApp(&fakeSubmitter{}, poller, sql)
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/v1/stickers/batch/batch-7/download", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusAccepted)
	}
	var pending struct {
		JobID         string `json:"job_id"`
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if pending.CorrelationID != "id-0002" {
		t.Fatalf("stalled item = %q, want id-0002", pending.CorrelationID)
	}
}

func TestStickersBatchDownloadUnknownJob(t *testing.T) {
	app, _ := newTestApp(&fakeSubmitter{}, &fakePoller{}, &fakeSQL{})
	router := httpapi.NewRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/v1/stickers/batch/nope/download", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusNotFound)
	}
}
