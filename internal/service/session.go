package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/odtboun/River/internal/app"
	"github.com/odtboun/River/internal/flow"
	"github.com/odtboun/River/internal/model"
)

var ErrShuttingDown = errors.New("session service shutting down")

// Session is what the HTTP layer drives. *app.Session implements it.
type Session interface {
	Open(ctx context.Context, rawQuery string)
	SetView(view model.View)
	SetFields(fields []model.Field)
	SetInput(field model.Field, raw string) error
	OverrideTotal(raw string)
	ResetTotal()
	Perform(ctx context.Context, action flow.Action) error
	Reset()
	DismissError()
	ConnectBurner(ctx context.Context) (model.Identity, error)
	ConnectExternal(ctx context.Context) (model.Identity, error)
	Disconnect(ctx context.Context)
	ExportWallet(ctx context.Context) ([]byte, error)
	ImportWallet(ctx context.Context, data []byte) (model.Identity, error)
	ClearWallet(ctx context.Context) error
	State() app.State
	Subscribe() (<-chan model.Step, func())
	Touch()
}

type SessionService interface {
	// Get returns the session of a device, creating it on first use.
	Get(ctx context.Context, deviceID string) (Session, error)
	Close(deviceID string)
	Shutdown()
}

// SessionFactory builds a fresh app session for a device.
type SessionFactory func(ctx context.Context, deviceID string) (*app.Session, error)

type sessionService struct {
	factory SessionFactory
	idleTTL time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*app.Session
	closed   bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSessionService starts the idle sweeper. A non-positive idleTTL keeps
// sessions until Close or Shutdown.
func NewSessionService(factory SessionFactory, idleTTL, sweepInterval time.Duration, logger *slog.Logger) SessionService {
	return newSessionService(factory, idleTTL, sweepInterval, logger)
}

func newSessionService(factory SessionFactory, idleTTL, sweepInterval time.Duration, logger *slog.Logger) *sessionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &sessionService{
		factory:  factory,
		idleTTL:  idleTTL,
		logger:   logger,
		sessions: make(map[string]*app.Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if idleTTL > 0 && sweepInterval > 0 {
		go s.run(sweepInterval)
	} else {
		close(s.done)
	}
	return s
}

func (s *sessionService) Get(ctx context.Context, deviceID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrShuttingDown
	}
	if sess, ok := s.sessions[deviceID]; ok {
		sess.Touch()
		return sess, nil
	}

	sess, err := s.factory(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	s.sessions[deviceID] = sess
	s.logger.DebugContext(ctx, "app session created", "sessions", len(s.sessions))
	return sess, nil
}

func (s *sessionService) Close(deviceID string) {
	s.mu.Lock()
	sess, ok := s.sessions[deviceID]
	delete(s.sessions, deviceID)
	s.mu.Unlock()

	if ok {
		sess.Close()
	}
}

// Shutdown stops the sweeper and closes every session.
func (s *sessionService) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done

	s.mu.Lock()
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*app.Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func (s *sessionService) run(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if n := s.sweep(now); n > 0 {
				s.logger.Info("idle app sessions closed", "count", n)
			}
		}
	}
}

// sweep closes sessions idle for longer than the TTL and reports how many.
func (s *sessionService) sweep(now time.Time) int {
	s.mu.Lock()
	var idle []*app.Session
	for deviceID, sess := range s.sessions {
		if now.Sub(sess.LastSeen()) > s.idleTTL {
			idle = append(idle, sess)
			delete(s.sessions, deviceID)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		sess.Close()
	}
	return len(idle)
}

func (s *sessionService) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
