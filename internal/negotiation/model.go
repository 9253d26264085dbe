package negotiation

import (
	"sync"

	"github.com/odtboun/River/internal/model"
)

// Model holds the snapshot of one app session and re-derives the step after
// every mutation. Subscribers receive the step produced by each mutation.
type Model struct {
	mu     sync.Mutex
	snap   Snapshot
	step   model.Step
	nextID int
	subs   map[int]chan model.Step
}

func NewModel(role model.Role) *Model {
	m := &Model{
		snap: Snapshot{Role: role},
		subs: make(map[int]chan model.Step),
	}
	m.step = DeriveStep(m.snap)
	return m
}

// SetRecord replaces the cached record. The latest fetch always wins.
func (m *Model) SetRecord(rec *model.NegotiationRecord) model.Step {
	return m.update(func(s *Snapshot) { s.Record = rec.Clone() })
}

func (m *Model) SetIdentity(identity model.Identity) model.Step {
	return m.update(func(s *Snapshot) { s.Identity = identity })
}

func (m *Model) SetRole(role model.Role) model.Step {
	return m.update(func(s *Snapshot) { s.Role = role })
}

// SetID binds the model to a negotiation. Changing the id drops a record
// that belongs to another negotiation.
func (m *Model) SetID(id *int64) model.Step {
	return m.update(func(s *Snapshot) {
		if id == nil {
			s.ID = nil
			s.Record = nil
			return
		}
		v := *id
		s.ID = &v
		if s.Record != nil && s.Record.ID != v {
			s.Record = nil
		}
	})
}

// Clear drops the negotiation and record but keeps role and identity.
func (m *Model) Clear() model.Step {
	return m.update(func(s *Snapshot) {
		s.ID = nil
		s.Record = nil
	})
}

func (m *Model) Step() model.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Snapshot returns a copy of the current snapshot.
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snap
	s.Record = s.Record.Clone()
	if s.ID != nil {
		v := *s.ID
		s.ID = &v
	}
	return s
}

// Subscribe returns a channel carrying the latest derived step. A slow
// reader only ever sees the newest step. The current step is delivered
// immediately.
func (m *Model) Subscribe() (<-chan model.Step, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan model.Step, 1)
	ch <- m.step
	key := m.nextID
	m.nextID++
	m.subs[key] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[key]; ok {
				delete(m.subs, key)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close drops every subscriber.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, ch := range m.subs {
		delete(m.subs, key)
		close(ch)
	}
}

func (m *Model) update(mutate func(*Snapshot)) model.Step {
	m.mu.Lock()
	defer m.mu.Unlock()

	mutate(&m.snap)
	m.step = DeriveStep(m.snap)
	for _, ch := range m.subs {
		publish(ch, m.step)
	}
	return m.step
}

// publish replaces an undelivered step with step. Callers hold m.mu, which
// makes this goroutine the only sender.
func publish(ch chan model.Step, step model.Step) {
	select {
	case ch <- step:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- step
}
