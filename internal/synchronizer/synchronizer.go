// Package synchronizer keeps a negotiation record fresh by polling the
// ledger while a flow is bound to it.
package synchronizer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/odtboun/River/common/logger"
	"github.com/odtboun/River/internal/model"
)

const DefaultInterval = 5 * time.Second

// Fetcher reads the current record for a negotiation.
type Fetcher interface {
	Fetch(ctx context.Context, id int64) (*model.NegotiationRecord, error)
}

// ApplyFunc receives every fetched record and reports whether polling can
// stop, which it can once the result is on screen.
type ApplyFunc func(rec *model.NegotiationRecord) (done bool)

type Option func(*Synchronizer)

func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Synchronizer runs at most one polling handle at a time.
type Synchronizer struct {
	fetcher  Fetcher
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	current *Handle
}

func New(fetcher Fetcher, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		fetcher:  fetcher,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start stops the running handle, if any, and begins polling id. ctx only
// carries log fields and trace context; the handle lives until Stop or
// until apply reports done.
func (s *Synchronizer) Start(ctx context.Context, id int64, apply ApplyFunc) *Handle {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		NegotiationID: logger.Ptr(id),
		Component:     "river.synchronizer",
	})
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	h := &Handle{
		id:       id,
		fetcher:  s.fetcher,
		apply:    apply,
		interval: s.interval,
		logger:   s.logger,
		sem:      semaphore.NewWeighted(1),
		ctx:      pollCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.current = h
	s.mu.Unlock()

	go h.run()
	return h
}

// Current returns the running handle or nil.
func (s *Synchronizer) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Stop stops the running handle. Safe to call when nothing runs.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// Handle is one polling session bound to a negotiation id.
type Handle struct {
	id       int64
	fetcher  Fetcher
	apply    ApplyFunc
	interval time.Duration
	logger   *slog.Logger

	// sem admits one fetch at a time across ticks and Refresh.
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (h *Handle) ID() int64 {
	return h.id
}

// Done is closed once the polling loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stop cancels any in-flight fetch and waits for the loop to exit. No
// record is applied after Stop returns.
func (h *Handle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	h.cancel()
	<-h.done
}

// Refresh fetches immediately, waiting for an in-flight poll to finish
// first. It is a no-op on a stopped handle.
func (h *Handle) Refresh(ctx context.Context) error {
	if h.isStopped() {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unlink := context.AfterFunc(h.ctx, cancel)
	defer unlink()

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	h.fetchAndApply(ctx)
	return nil
}

func (h *Handle) run() {
	defer close(h.done)

	if err := h.sem.Acquire(h.ctx, 1); err != nil {
		return
	}
	if h.fetchAndApply(h.ctx) {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if !h.sem.TryAcquire(1) {
				h.logger.DebugContext(h.ctx, "poll skipped, fetch in flight")
				continue
			}
			if h.fetchAndApply(h.ctx) {
				h.logger.DebugContext(h.ctx, "polling finished, result available")
				return
			}
		}
	}
}

// fetchAndApply must be called holding the semaphore and releases it.
func (h *Handle) fetchAndApply(ctx context.Context) bool {
	defer h.sem.Release(1)

	rec, err := h.fetcher.Fetch(ctx, h.id)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.DebugContext(ctx, "negotiation fetch failed", "error", err)
		}
		return false
	}
	if rec == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	return h.apply(rec)
}

func (h *Handle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}
