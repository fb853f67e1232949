package sticker

import (
	"context"
	"time"
)

// AwaitWithBudget polls FetchResult until the result is ready or the budget
// elapses. A not-ready outcome after the budget is a Pending signal, not an
// error: the caller re-invokes later with the same ids. The loop always
// returns within budget plus at most one interval, and never mutates remote
// or local state.
func (p *Poller) AwaitWithBudget(ctx context.Context, jobID, correlationID string, interval, budget time.Duration) (Result, error) {
	start := time.Now()
	for {
		res, err := p.FetchResult(ctx, jobID, correlationID)
		if err != nil {
			return Result{}, err
		}
		if res.Ready {
			return res, nil
		}
		if time.Since(start) >= budget {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}
