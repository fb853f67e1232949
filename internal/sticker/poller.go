package sticker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"stickerforge/internal/batchapi"
	"stickerforge/internal/domain"
)

type pollAPI interface {
	State(ctx context.Context, jobID string) (batchapi.JobState, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Poller observes remote jobs and extracts individual results by correlation
// id. It holds no mutable state: any number of callers may poll the same job
// concurrently, and repeated polls of a resolved result return identical
// bytes.
type Poller struct {
	api pollAPI
}

// Result is the outcome of one fetch attempt. Ready carries the base64 image
// payload; otherwise Phase reports the job's current status.
type Result struct {
	Ready   bool
	Phase   string
	Payload string
}

// NewPoller wires a Poller over the batch API client.
func NewPoller(api pollAPI) *Poller {
	return &Poller{api: api}
}

// FetchResult resolves a single correlation id against a job. A job only
// counts as resolved when its status is completed; any pending or terminal
// non-success state comes back as a not-ready Result. A completed job whose
// output contains no matching record is a protocol violation that will not
// heal on retry, reported as domain.ErrResultMissing.
func (p *Poller) FetchResult(ctx context.Context, jobID, correlationID string) (Result, error) {
	state, err := p.api.State(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	switch s := state.(type) {
	case batchapi.JobPending:
		return Result{Phase: s.Phase}, nil
	case batchapi.JobFailed:
		return Result{Phase: s.Phase}, nil
	case batchapi.JobCompleted:
		if s.OutputFileID == "" {
			return Result{}, fmt.Errorf("%w: job %s completed without an output artifact", domain.ErrResultMissing, jobID)
		}
		payload, err := p.extract(ctx, s.OutputFileID, correlationID)
		if err != nil {
			return Result{}, err
		}
		return Result{Ready: true, Phase: "completed", Payload: payload}, nil
	default:
		return Result{}, fmt.Errorf("%w: unexpected job state %T", domain.ErrStatusQuery, state)
	}
}

// imageResponse is the nested sub-response body carried by a successful
// output record.
type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (p *Poller) extract(ctx context.Context, outputFileID, correlationID string) (string, error) {
	artifact, err := p.api.DownloadFile(ctx, outputFileID)
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(artifact))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record batchapi.OutputRecord
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		if record.CustomID != correlationID {
			continue
		}
		if record.Error != nil {
			return "", fmt.Errorf("%w: record %s failed upstream: %s", domain.ErrResultMissing,
				correlationID, batchapi.Truncate(record.Error.Message))
		}
		if record.Response == nil || record.Response.StatusCode >= 300 {
			return "", fmt.Errorf("%w: record %s carries no successful sub-response", domain.ErrResultMissing, correlationID)
		}
		var decoded imageResponse
		if err := json.Unmarshal(record.Response.Body, &decoded); err != nil || len(decoded.Data) == 0 || decoded.Data[0].B64JSON == "" {
			return "", fmt.Errorf("%w: record %s has no image payload", domain.ErrResultMissing, correlationID)
		}
		return decoded.Data[0].B64JSON, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: read output artifact: %s", domain.ErrStatusQuery, batchapi.Truncate(err.Error()))
	}
	return "", fmt.Errorf("%w: no record for %s", domain.ErrResultMissing, correlationID)
}
