// Package bulk fans one user action out as independent per-ID requests and
// folds the results back into an aggregate report. A bulk operation never
// fails atomically: every dispatched ID gets an outcome, and only the
// all-failed case is treated as a blocking failure by callers.
package bulk

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"crawldash/internal/model"
	"crawldash/internal/store"
)

type Kind string

const (
	KindAnalyze Kind = "analyze"
	KindDelete  Kind = "delete"
)

// DefaultWorkers bounds the fan-out so a large selection cannot flood the
// backend. Zero disables the bound (one request goroutine per ID).
const DefaultWorkers = 8

// Ops is the per-ID operation surface of the backend collaborator.
type Ops interface {
	Analyze(ctx context.Context, id string) (model.Job, error)
	Delete(ctx context.Context, id string) error
}

// Outcome is the resolution of one ID within a bulk operation.
type Outcome struct {
	ID        string
	Job       model.Job // resulting record for a fresh analyze success
	Err       error
	Coalesced bool // resolved by an operation already in flight
}

type Report struct {
	OpID     string
	Kind     Kind
	Outcomes []Outcome
}

func (r Report) Failed() []Outcome {
	failed := make([]Outcome, 0)
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// AllFailed reports whether every dispatched ID failed, the only case that
// escalates to a blocking user-visible error.
func (r Report) AllFailed() bool {
	return len(r.Outcomes) > 0 && len(r.Failed()) == len(r.Outcomes)
}

type Coordinator struct {
	ops     Ops
	workers int

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

func NewCoordinator(ops Ops, workers int) *Coordinator {
	return &Coordinator{
		ops:      ops,
		workers:  workers,
		inflight: make(map[string]chan struct{}),
	}
}

// Run executes kind over ids concurrently and blocks until every ID has an
// outcome. Duplicate ids are deduplicated before dispatch. An ID that
// already has an outstanding operation from a prior Run is never dispatched
// twice: it is coalesced into a no-op success resolved when the outstanding
// request settles.
func (c *Coordinator) Run(ctx context.Context, kind Kind, ids []string) (Report, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return Report{}, errors.New("bulk operation requires at least one id")
	}

	report := Report{
		OpID:     uuid.NewString(),
		Kind:     kind,
		Outcomes: make([]Outcome, len(ids)),
	}

	fresh := make([]int, 0, len(ids))
	waiting := make([]int, 0)
	doors := make(map[string]chan struct{}, len(ids))

	c.mu.Lock()
	for i, id := range ids {
		if door, busy := c.inflight[id]; busy {
			doors[id] = door
			waiting = append(waiting, i)
			continue
		}
		door := make(chan struct{})
		c.inflight[id] = door
		doors[id] = door
		fresh = append(fresh, i)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup

	for _, i := range waiting {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ids[i]
			select {
			case <-doors[id]:
				report.Outcomes[i] = Outcome{ID: id, Coalesced: true}
			case <-ctx.Done():
				report.Outcomes[i] = Outcome{ID: id, Err: ctx.Err()}
			}
		}(i)
	}

	workers := c.workers
	if workers <= 0 || workers > len(fresh) {
		workers = len(fresh)
	}
	dispatch := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range dispatch {
				id := ids[i]
				report.Outcomes[i] = c.resolve(ctx, kind, id)
				c.mu.Lock()
				door := c.inflight[id]
				delete(c.inflight, id)
				c.mu.Unlock()
				close(door)
			}
		}()
	}
	for _, i := range fresh {
		dispatch <- i
	}
	close(dispatch)

	wg.Wait()
	return report, nil
}

func (c *Coordinator) resolve(ctx context.Context, kind Kind, id string) Outcome {
	switch kind {
	case KindDelete:
		if err := c.ops.Delete(ctx, id); err != nil {
			return Outcome{ID: id, Err: err}
		}
		return Outcome{ID: id}
	default:
		job, err := c.ops.Analyze(ctx, id)
		if err != nil {
			return Outcome{ID: id, Err: err}
		}
		return Outcome{ID: id, Job: job}
	}
}

// Apply folds a report into the store on the update loop. Successes mutate
// the store and drop their IDs from the selection; failures leave the prior
// record untouched and keep the ID selected for retry. Coalesced successes
// mutate nothing: the outstanding operation they piggybacked on applies its
// own result.
func Apply(report Report, st *store.JobStore) {
	for _, o := range report.Outcomes {
		if o.Err != nil {
			continue
		}
		if !o.Coalesced {
			switch report.Kind {
			case KindDelete:
				st.Remove(o.ID)
			case KindAnalyze:
				st.Upsert(o.Job)
			}
		}
		st.Deselect(o.ID)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
