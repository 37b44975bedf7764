package cache

import (
	"context"
	"sync"
	"time"

	"rentaldesk/console/internal/domain"
)

// SessionStore holds console sessions until they expire. Get reports a missing
// or expired session as found=false with a nil error.
type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.Session, bool, error)
	Set(ctx context.Context, session *domain.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type entry struct {
	session   domain.Session
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process. Used when REDIS_ADDR is unset.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]entry
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]entry),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (*domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.sessions, id)
		return nil, false, nil
	}
	session := e.session
	return &session, true, nil
}

func (m *MemorySessionStore) Set(_ context.Context, session *domain.Session, ttl time.Duration) error {
	if session == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = entry{session: *session, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}
