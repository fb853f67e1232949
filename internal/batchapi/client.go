package batchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stickerforge/internal/domain"
	"stickerforge/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without
// credentials.
var ErrMissingAPIKey = errors.New("batchapi: api key is required")

// Upstream diagnostics are truncated before they travel up into error chains
// and API responses.
const maxDiagnostic = 200

// Options configures the batch generation API client.
type Options struct {
	APIKey           string
	BaseURL          string
	CompletionWindow string
	HTTPClient       *http.Client
	Logger           *infra.Logger
	RequestTimeout   time.Duration
}

// Client performs HTTP calls against a queue-based generation service that
// follows the files + batches protocol: an uploaded newline-delimited input
// artifact, an asynchronous job referencing it, and a downloadable output
// artifact once the job completes.
type Client struct {
	apiKey           string
	baseURL          string
	completionWindow string
	httpClient       *http.Client
	logger           *infra.Logger
}

// InputRecord is one line of the submission artifact.
type InputRecord struct {
	CustomID string          `json:"custom_id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Body     json.RawMessage `json:"body"`
}

// OutputRecord is one line of a completed job's output artifact.
type OutputRecord struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// JobState is the tagged union of remote job states. Exactly one of
// JobPending, JobCompleted or JobFailed is returned per status query; fields
// only valid in certain states never appear on the wrong variant.
type JobState interface {
	jobState()
}

// JobPending covers the states a job moves through before reaching a
// terminal one: validating, in_progress and cancelling.
type JobPending struct {
	Phase string
}

// JobCompleted carries the output artifact id of a finished job.
type JobCompleted struct {
	OutputFileID string
}

// JobFailed covers terminal non-success states: failed, expired and
// cancelled. ErrorFileID is empty unless the service produced an error
// artifact.
type JobFailed struct {
	Phase       string
	ErrorFileID string
}

func (JobPending) jobState()   {}
func (JobCompleted) jobState() {}
func (JobFailed) jobState()    {}

type fileResponse struct {
	ID string `json:"id"`
}

type jobResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OutputFileID string `json:"output_file_id"`
	ErrorFileID  string `json:"error_file_id"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	window := strings.TrimSpace(opts.CompletionWindow)
	if window == "" {
		window = "24h"
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
		apiKey:           strings.TrimSpace(opts.APIKey),
		baseURL:          baseURL,
		completionWindow: window,
		httpClient:       httpClient,
		logger:           logger,
	}, nil
}

// UploadInput uploads a newline-delimited submission artifact and returns the
// file id the job will reference.
func (c *Client) UploadInput(ctx context.Context, filename string, jsonl []byte) (string, error) {
	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	if err := form.WriteField("purpose", "batch"); err != nil {
		return "", fmt.Errorf("batchapi: encode form: %w", err)
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("batchapi: encode form: %w", err)
	}
	if _, err := part.Write(jsonl); err != nil {
		return "", fmt.Errorf("batchapi: encode form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("batchapi: encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", buf)
	if err != nil {
		return "", fmt.Errorf("batchapi: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	raw, status, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrUpload, Truncate(err.Error()))
	}
	if status >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrUpload, status, Truncate(string(raw)))
	}
	var decoded fileResponse
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.ID == "" {
		return "", fmt.Errorf("%w: malformed upload response: %s", domain.ErrUpload, Truncate(string(raw)))
	}
	c.logger.Debug().Str("file_id", decoded.ID).Int("bytes", len(jsonl)).Msg("batchapi: input artifact uploaded")
	return decoded.ID, nil
}

// CreateJob creates an asynchronous job over the uploaded artifact. The
// completion window is a nominal ceiling, not an expected wait.
func (c *Client) CreateJob(ctx context.Context, inputFileID, endpoint string) (string, error) {
	payload := map[string]string{
		"input_file_id":     inputFileID,
		"endpoint":          endpoint,
		"completion_window": c.completionWindow,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("batchapi: encode job request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batches", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("batchapi: build job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	raw, status, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrJobCreate, Truncate(err.Error()))
	}
	if status >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrJobCreate, status, Truncate(string(raw)))
	}
	var decoded jobResponse
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.ID == "" {
		return "", fmt.Errorf("%w: malformed job response: %s", domain.ErrJobCreate, Truncate(string(raw)))
	}
	c.logger.Debug().Str("job_id", decoded.ID).Str("input_file_id", inputFileID).Msg("batchapi: job created")
	return decoded.ID, nil
}

// State queries the current status of a job. The returned value is read-only
// observation; polling never mutates the remote record.
func (c *Client) State(ctx context.Context, jobID string) (JobState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/batches/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("batchapi: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	raw, status, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStatusQuery, Truncate(err.Error()))
	}
	if status >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrStatusQuery, status, Truncate(string(raw)))
	}
	var decoded jobResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: malformed status response: %s", domain.ErrStatusQuery, Truncate(string(raw)))
	}
	switch decoded.Status {
	case "validating", "in_progress", "cancelling":
		return JobPending{Phase: decoded.Status}, nil
	case "completed":
		return JobCompleted{OutputFileID: decoded.OutputFileID}, nil
	case "failed", "expired", "cancelled":
		return JobFailed{Phase: decoded.Status, ErrorFileID: decoded.ErrorFileID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown job status %q", domain.ErrStatusQuery, decoded.Status)
	}
}

// DownloadFile fetches an artifact's raw content.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("batchapi: build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	raw, status, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStatusQuery, Truncate(err.Error()))
	}
	if status >= 300 {
		return nil, fmt.Errorf("%w: download status %d: %s", domain.ErrStatusQuery, status, Truncate(string(raw)))
	}
	return raw, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

// Truncate caps upstream diagnostics so error chains and API responses stay
// readable.
func Truncate(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxDiagnostic {
		return s
	}
	return string(runes[:maxDiagnostic]) + "..."
}
