package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrSuperseded = errors.New("analysis superseded by a newer request")
	ErrAborted    = errors.New("analysis aborted by caller")
)

type activeRun struct {
	id     string
	cancel context.CancelCauseFunc
}

// Runs tracks the in-flight analysis of each session. Starting a new run for a
// session cancels the previous one.
type Runs struct {
	mu     sync.Mutex
	active map[string]activeRun
}

func NewRuns() *Runs {
	return &Runs{active: make(map[string]activeRun)}
}

// Begin starts a run. An empty session never supersedes anything. end must be
// called when the run finishes.
func (r *Runs) Begin(parent context.Context, session string) (ctx context.Context, runID string, end func()) {
	ctx, cancel := context.WithCancelCause(parent)
	runID = uuid.NewString()

	if session == "" {
		return ctx, runID, func() { cancel(nil) }
	}

	r.mu.Lock()
	if prev, ok := r.active[session]; ok {
		prev.cancel(ErrSuperseded)
	}
	r.active[session] = activeRun{id: runID, cancel: cancel}
	r.mu.Unlock()

	end = func() {
		r.mu.Lock()
		if cur, ok := r.active[session]; ok && cur.id == runID {
			delete(r.active, session)
		}
		r.mu.Unlock()
		cancel(nil)
	}
	return ctx, runID, end
}

// Cancel aborts the in-flight run of session, reporting whether there was one.
func (r *Runs) Cancel(session string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.active[session]
	if !ok {
		return false
	}
	cur.cancel(ErrAborted)
	delete(r.active, session)
	return true
}

func (r *Runs) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// runError maps a cancelled run context to the reason it was cancelled.
func runError(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrSuperseded) || errors.Is(cause, ErrAborted) {
		return cause
	}
	return ctx.Err()
}
