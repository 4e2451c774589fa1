package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	audit "raceday/pkg/platform/audit"
)

// InMemoryStore keeps audit events in process. Used by tests and the in-memory wiring.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	s.events = append(s.events, event)
	return nil
}

// AppendAll appends events in order under one lock. Transactions in the in-memory
// registration store flush their buffered audit rows through this on commit.
func (s *InMemoryStore) AppendAll(_ context.Context, events []audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if e.Category == "" {
			e.Category = audit.AuditEvent(e.Action).Category()
		}
		s.events = append(s.events, e)
	}
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListByAction returns every event recorded for action, oldest first.
func (s *InMemoryStore) ListByAction(_ context.Context, action audit.AuditEvent) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.Action == string(action) {
			out = append(out, e)
		}
	}
	return out
}

// ListAll returns all audit events.
func (s *InMemoryStore) ListAll(_ context.Context) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}
