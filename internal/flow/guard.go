package flow

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Guard admits one submission at a time. A second submission while one is
// pending is refused, never queued.
type Guard struct {
	sem     *semaphore.Weighted
	pending atomic.Bool
}

func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// Do runs fn unless another call is in flight, in which case it returns
// ErrSubmissionPending without calling fn.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.sem.TryAcquire(1) {
		return ErrSubmissionPending
	}
	g.pending.Store(true)
	defer func() {
		g.pending.Store(false)
		g.sem.Release(1)
	}()
	return fn(ctx)
}

func (g *Guard) Pending() bool {
	return g.pending.Load()
}
