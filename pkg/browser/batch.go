package browser

import (
	"context"
	"fmt"
	"time"
)

// MaxBatchActions bounds the length of one batch.
const MaxBatchActions = 100

// BatchRequest is an ordered list of interactions against one target.
type BatchRequest struct {
	Actions     []ActRequest `json:"actions"`
	StopOnError *bool        `json:"stop_on_error,omitempty"`
}

// Validate checks the batch shape and every item.
func (r *BatchRequest) Validate() error {
	if len(r.Actions) == 0 {
		return Validationf("actions must not be empty")
	}
	if len(r.Actions) > MaxBatchActions {
		return Validationf("at most %d actions are allowed per batch", MaxBatchActions)
	}
	for i := range r.Actions {
		if err := r.Actions[i].Validate(); err != nil {
			return &ValidationError{Message: fmt.Sprintf("actions[%d]", i), Err: err}
		}
	}
	return nil
}

func (r BatchRequest) stopOnError() bool {
	return r.StopOnError == nil || *r.StopOnError
}

// BatchItem is the outcome of one batch entry.
type BatchItem struct {
	Index  int        `json:"index"`
	OK     bool       `json:"ok"`
	Result *ActResult `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// BatchResult is the outcome of a batch. Per-item failures never fail the
// batch itself.
type BatchResult struct {
	TargetID  string       `json:"target_id"`
	Results   []BatchItem  `json:"results"`
	Completed int          `json:"completed"`
	Failed    int          `json:"failed"`
	Perf      PerfCounters `json:"-"`
}

// ActBatch runs every action in order against the same target. With
// stop-on-error (the default) it halts after the first failure.
func (s *ProfileSession) ActBatch(ctx context.Context, targetID string, req BatchRequest, cfg ActConfig) (*BatchResult, error) {
	start := time.Now()

	id, _, err := s.Tab(targetID)
	if err != nil {
		return nil, err
	}

	out := &BatchResult{TargetID: id, Results: make([]BatchItem, 0, len(req.Actions))}
	for i, action := range req.Actions {
		res, err := s.Act(ctx, id, action, cfg)
		out.Perf.Add(res.Perf)

		if err != nil {
			out.Failed++
			out.Results = append(out.Results, BatchItem{Index: i, OK: false, Error: err.Error()})
			if req.stopOnError() {
				break
			}
			continue
		}

		out.Completed++
		out.Results = append(out.Results, BatchItem{Index: i, OK: true, Result: &res})
	}

	out.Perf.TotalMs = time.Since(start).Milliseconds()
	return out, nil
}
