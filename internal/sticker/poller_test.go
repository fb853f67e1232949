package sticker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"stickerforge/internal/batchapi"
	"stickerforge/internal/domain"
)

type fakePollAPI struct {
	states     []batchapi.JobState
	stateErr   error
	stateCalls int
	artifact   []byte
	downloads  int
}

func (f *fakePollAPI) State(context.Context, string) (batchapi.JobState, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	idx := f.stateCalls
	f.stateCalls++
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	return f.states[idx], nil
}

func (f *fakePollAPI) DownloadFile(context.Context, string) ([]byte, error) {
	f.downloads++
	return f.artifact, nil
}

func outputLine(t *testing.T, correlationID, payload string) []byte {
	t.Helper()
	record := map[string]any{
		"custom_id": correlationID,
		"response": map[string]any{
			"status_code": 200,
			"body": map[string]any{
				"data": []map[string]string{{"b64_json": payload}},
			},
		},
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("encode output record: %v", err)
	}
	return append(encoded, '\n')
}

func TestFetchResultNotReadyWhilePending(t *testing.T) {
	api := &fakePollAPI{states: []batchapi.JobState{batchapi.JobPending{Phase: "validating"}}}
	p := NewPoller(api)

	res, err := p.FetchResult(context.Background(), "batch-1", "c1")
	if err != nil {
		t.Fatalf("fetch result: %v", err)
	}
	if res.Ready {
		t.Fatalf("pending job must not be ready")
	}
	if res.Phase != "validating" {
		t.Fatalf("phase = %q, want %q", res.Phase, "validating")
	}
	if api.downloads != 0 {
		t.Fatalf("pending job must not download artifacts")
	}
}

func TestFetchResultExtractsMatchingRecord(t *testing.T) {
	artifact := append(outputLine(t, "other", "AAAA"), outputLine(t, "c1", "QkJCQg==")...)
	api := &fakePollAPI{
		states:   []batchapi.JobState{batchapi.JobCompleted{OutputFileID: "file-out"}},
		artifact: artifact,
	}
	p := NewPoller(api)

	res, err := p.FetchResult(context.Background(), "batch-1", "c1")
	if err != nil {
		t.Fatalf("fetch result: %v", err)
	}
	if !res.Ready {
		t.Fatalf("completed job with matching record must be ready")
	}
	if res.Payload != "QkJCQg==" {
		t.Fatalf("payload = %q, want %q", res.Payload, "QkJCQg==")
	}
}

func TestFetchResultMissingRecordIsTerminal(t *testing.T) {
	api := &fakePollAPI{
		states:   []batchapi.JobState{batchapi.JobCompleted{OutputFileID: "file-out"}},
		artifact: outputLine(t, "someone-else", "AAAA"),
	}
	p := NewPoller(api)

	_, err := p.FetchResult(context.Background(), "batch-1", "c1")
	if !errors.Is(err, domain.ErrResultMissing) {
		t.Fatalf("err = %v, want ErrResultMissing", err)
	}
}

func TestFetchResultFailedSubResponse(t *testing.T) {
	record, _ := json.Marshal(map[string]any{
		"custom_id": "c1",
		"error":     map[string]string{"code": "invalid_prompt", "message": "rejected"},
	})
	api := &fakePollAPI{
		states:   []batchapi.JobState{batchapi.JobCompleted{OutputFileID: "file-out"}},
		artifact: append(record, '\n'),
	}
	p := NewPoller(api)

	_, err := p.FetchResult(context.Background(), "batch-1", "c1")
	if !errors.Is(err, domain.ErrResultMissing) {
		t.Fatalf("err = %v, want ErrResultMissing", err)
	}
}

func TestFetchResultIdempotent(t *testing.T) {
	api := &fakePollAPI{
		states:   []batchapi.JobState{batchapi.JobCompleted{OutputFileID: "file-out"}},
		artifact: outputLine(t, "c1", "UEFZTE9BRA=="),
	}
	p := NewPoller(api)

	first, err := p.FetchResult(context.Background(), "batch-1", "c1")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := p.FetchResult(context.Background(), "batch-1", "c1")
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("fetch %d = %#v, want identical %#v", i, again, first)
		}
	}
}

func TestFetchResultStatusQueryFailure(t *testing.T) {
	api := &fakePollAPI{stateErr: fmt.Errorf("%w: status 503", domain.ErrStatusQuery)}
	p := NewPoller(api)

	_, err := p.FetchResult(context.Background(), "batch-1", "c1")
	if !errors.Is(err, domain.ErrStatusQuery) {
		t.Fatalf("err = %v, want ErrStatusQuery", err)
	}
}

func TestAwaitWithBudgetReadyAfterTwoIntervals(t *testing.T) {
	api := &fakePollAPI{
		states: []batchapi.JobState{
			batchapi.JobPending{Phase: "in_progress"},
			batchapi.JobPending{Phase: "in_progress"},
			batchapi.JobCompleted{OutputFileID: "file-out"},
		},
		artifact: outputLine(t, "c1", "X"),
	}
	p := NewPoller(api)

	res, err := p.AwaitWithBudget(context.Background(), "batch-1", "c1", 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !res.Ready {
		t.Fatalf("expected ready result")
	}
	if res.Payload != "X" {
		t.Fatalf("payload = %q, want %q", res.Payload, "X")
	}
	if api.stateCalls != 3 {
		t.Fatalf("state calls = %d, want 3 (ready after exactly 2 intervals)", api.stateCalls)
	}
}

func TestAwaitWithBudgetReturnsPendingWithinBounds(t *testing.T) {
	api := &fakePollAPI{states: []batchapi.JobState{batchapi.JobPending{Phase: "in_progress"}}}
	p := NewPoller(api)

	interval := 5 * time.Millisecond
	budget := 30 * time.Millisecond
	start := time.Now()
	res, err := p.AwaitWithBudget(context.Background(), "batch-1", "c1", interval, budget)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if res.Ready {
		t.Fatalf("stalled job must come back pending")
	}
	if res.Phase != "in_progress" {
		t.Fatalf("phase = %q, want %q", res.Phase, "in_progress")
	}
	if elapsed < budget {
		t.Fatalf("returned before budget: %v < %v", elapsed, budget)
	}
	if elapsed > budget+interval+100*time.Millisecond {
		t.Fatalf("overran budget: %v", elapsed)
	}
}

func TestAwaitWithBudgetZeroBudgetPollsOnce(t *testing.T) {
	api := &fakePollAPI{states: []batchapi.JobState{batchapi.JobPending{Phase: "validating"}}}
	p := NewPoller(api)

	res, err := p.AwaitWithBudget(context.Background(), "batch-1", "c1", 10*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if res.Ready {
		t.Fatalf("expected pending result")
	}
	if api.stateCalls != 1 {
		t.Fatalf("state calls = %d, want 1", api.stateCalls)
	}
}

func TestAwaitWithBudgetHonorsContext(t *testing.T) {
	api := &fakePollAPI{states: []batchapi.JobState{batchapi.JobPending{Phase: "in_progress"}}}
	p := NewPoller(api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.AwaitWithBudget(ctx, "batch-1", "c1", 10*time.Millisecond, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
