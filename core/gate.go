package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// WorkspaceFactory creates a job-private temporary storage scope.
// Implementations live in adapters/storage/.
type WorkspaceFactory func(jobID string) (Workspace, error)

// Gate bounds the number of simultaneous pipeline executions.  Jobs beyond
// the slot budget queue in arrival order; semaphore.Weighted grants waiters
// FIFO, so no starvation beyond queue fairness.
type Gate struct {
	sem      *semaphore.Weighted
	slots    int64
	timeout  time.Duration
	newScope WorkspaceFactory

	active int64
}

// NewGate creates a Gate with the given slot count and queue wait ceiling.
// timeout == 0 means queued jobs wait until their context is done.
func NewGate(slots int, timeout time.Duration, f WorkspaceFactory) *Gate {
	if slots <= 0 {
		slots = 3
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(slots)),
		slots:    int64(slots),
		timeout:  timeout,
		newScope: f,
	}
}

// Admission represents a granted concurrency slot plus the job's private
// temporary storage scope.  Release is idempotent and must be called on
// every exit path.
type Admission struct {
	Scope Workspace

	gate *Gate
	once sync.Once
}

// Release frees the slot and deletes the temporary scope.
func (a *Admission) Release() {
	a.once.Do(func() {
		if a.Scope != nil {
			_ = a.Scope.Close()
		}
		atomic.AddInt64(&a.gate.active, -1)
		a.gate.sem.Release(1)
	})
}

// Admit blocks until a slot is free or the queue wait expires.  A caller
// cancelling its context while queued leaves no side effects.
func (g *Gate) Admit(ctx context.Context, jobID string) (*Admission, error) {
	acquireCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.sem.Acquire(acquireCtx, 1); err != nil {
		return nil, apperrors.New(apperrors.KindQueueTimeout, "gate.admit", err)
	}

	var scope Workspace
	if g.newScope != nil {
		var err error
		scope, err = g.newScope(jobID)
		if err != nil {
			g.sem.Release(1)
			return nil, apperrors.New(apperrors.KindInternal, "gate.scope", err)
		}
	}

	atomic.AddInt64(&g.active, 1)
	return &Admission{Scope: scope, gate: g}, nil
}

// Active returns the number of jobs currently holding a slot.
func (g *Gate) Active() int64 { return atomic.LoadInt64(&g.active) }

// Slots returns the configured concurrency bound.
func (g *Gate) Slots() int64 { return g.slots }
