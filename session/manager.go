package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/mediarun/runtime/capability"
	"github.com/mediarun/runtime/compiler"
	"github.com/mediarun/runtime/events"
	"github.com/mediarun/runtime/scheduler"
)

// Manager tracks every live Session on a host, keyed by session id, so a
// transport can route an inbound DataChunk or Control message to the
// right session without holding its own bookkeeping.
type Manager struct {
	compiler  *compiler.Compiler
	gate      *capability.Gate
	scheduler *scheduler.Scheduler
	bus       *events.EventBus

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager constructs a Manager sharing one compiler, gate, scheduler,
// and event bus across every session it creates (§5, "Shared resources").
func NewManager(comp *compiler.Compiler, gate *capability.Gate, sched *scheduler.Scheduler, bus *events.EventBus) *Manager {
	return &Manager{
		compiler:  comp,
		gate:      gate,
		scheduler: sched,
		bus:       bus,
		sessions:  make(map[string]*Session),
	}
}

// Open creates and registers a new Session. The caller still must call
// Init on the returned Session with the client's manifest.
func (m *Manager) Open(sessionID string) *Session {
	s := New(sessionID, m.compiler, m.gate, m.scheduler, m.bus)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

// Get looks up a live session by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Forget removes a session from the manager's bookkeeping. Call it once
// a session's Messages() channel has drained after Closed, to bound
// memory use across a long-running host.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Count returns the number of sessions currently tracked.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every tracked session, used on server shutdown.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(context.Background()); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", s.ID(), err)
		}
	}
	return firstErr
}
