package sticker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stickerforge/internal/batchapi"
	"stickerforge/internal/domain"
)

// GenerationEndpoint is the target endpoint recorded in every submission
// artifact line.
const GenerationEndpoint = "/v1/images/generations"

// ErrEmptyBatch indicates that every task in a batch had a blank prompt.
var ErrEmptyBatch = errors.New("sticker: no tasks with a prompt to submit")

type submitAPI interface {
	UploadInput(ctx context.Context, filename string, jsonl []byte) (string, error)
	CreateJob(ctx context.Context, inputFileID, endpoint string) (string, error)
}

// Defaults fills the model configuration for tasks that leave fields blank.
type Defaults struct {
	Model      string
	Size       string
	Quality    string
	Background string
	Format     string
}

// Submitter packages generation tasks into asynchronous jobs and hands back
// the identifiers needed to correlate results later.
type Submitter struct {
	api      submitAPI
	defaults Defaults
	now      func() time.Time
}

// Submission identifies a single submitted task.
type Submission struct {
	JobID         string
	CorrelationID string
}

// BatchSubmission identifies a multi-task job. Records preserve the order of
// the surviving input tasks so results can be mapped back positionally.
type BatchSubmission struct {
	JobID   string
	Records []domain.CorrelationRecord
}

// NewSubmitter wires a Submitter over the batch API client.
func NewSubmitter(api submitAPI, defaults Defaults) *Submitter {
	return &Submitter{api: api, defaults: defaults, now: time.Now}
}

// SubmitSingle uploads one task as a one-line artifact and creates a job for
// it. The correlation id combines the submission timestamp with a random
// suffix so it is unique across submissions and never reused.
func (s *Submitter) SubmitSingle(ctx context.Context, task domain.Task) (Submission, error) {
	if strings.TrimSpace(task.Prompt) == "" {
		return Submission{}, fmt.Errorf("sticker: prompt is required")
	}
	correlationID := fmt.Sprintf("sticker-%d-%s", s.now().UnixNano(), uuid.NewString()[:8])
	record, err := s.encodeRecord(correlationID, task)
	if err != nil {
		return Submission{}, err
	}
	jobID, err := s.submit(ctx, append(record, '\n'))
	if err != nil {
		return Submission{}, err
	}
	return Submission{JobID: jobID, CorrelationID: correlationID}, nil
}

// SubmitBatch uploads N tasks as one artifact. Tasks with blank prompts are
// filtered out before id assignment; they are never submitted and never
// receive a correlation id. Correlation ids carry a zero-padded 1-based
// sequence number matching the surviving input order.
func (s *Submitter) SubmitBatch(ctx context.Context, tasks []domain.Task) (BatchSubmission, error) {
	base := s.now().UnixMilli()
	records := make([]domain.CorrelationRecord, 0, len(tasks))
	buf := &bytes.Buffer{}
	for _, task := range tasks {
		if strings.TrimSpace(task.Prompt) == "" {
			continue
		}
		seq := len(records) + 1
		correlationID := fmt.Sprintf("sticker-%d-%04d", base, seq)
		line, err := s.encodeRecord(correlationID, task)
		if err != nil {
			return BatchSubmission{}, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
		records = append(records, domain.CorrelationRecord{
			CorrelationID: correlationID,
			Seq:           seq,
			Task:          task,
		})
	}
	if len(records) == 0 {
		return BatchSubmission{}, ErrEmptyBatch
	}
	jobID, err := s.submit(ctx, buf.Bytes())
	if err != nil {
		return BatchSubmission{}, err
	}
	return BatchSubmission{JobID: jobID, Records: records}, nil
}

func (s *Submitter) submit(ctx context.Context, jsonl []byte) (string, error) {
	fileID, err := s.api.UploadInput(ctx, "sticker-tasks.jsonl", jsonl)
	if err != nil {
		return "", err
	}
	return s.api.CreateJob(ctx, fileID, GenerationEndpoint)
}

type generationBody struct {
	Prompt       string `json:"prompt"`
	Model        string `json:"model"`
	N            int    `json:"n"`
	Size         string `json:"size,omitempty"`
	Quality      string `json:"quality,omitempty"`
	Background   string `json:"background,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

func (s *Submitter) encodeRecord(correlationID string, task domain.Task) ([]byte, error) {
	body := generationBody{
		Prompt:       strings.TrimSpace(task.Prompt),
		Model:        fallback(task.Model, s.defaults.Model),
		N:            1,
		Size:         fallback(task.Size, s.defaults.Size),
		Quality:      fallback(task.Quality, s.defaults.Quality),
		Background:   fallback(task.Background, s.defaults.Background),
		OutputFormat: fallback(task.Format, s.defaults.Format),
	}
	encodedBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("sticker: encode task body: %w", err)
	}
	record := batchapi.InputRecord{
		CustomID: correlationID,
		Method:   "POST",
		URL:      GenerationEndpoint,
		Body:     encodedBody,
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("sticker: encode input record: %w", err)
	}
	return encoded, nil
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}
