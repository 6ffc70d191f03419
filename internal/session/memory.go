package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	session  *Session
	lastUsed time.Time
}

// MemoryStore keeps sessions in process. Entries idle for longer than the
// TTL are treated as gone.
type MemoryStore struct {
	mutex    sync.RWMutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

func (m *MemoryStore) expired(e *memoryEntry) bool {
	return m.ttl > 0 && m.now().Sub(e.lastUsed) > m.ttl
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(e) {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}
	e.lastUsed = m.now()
	return e.session.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	now := m.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	m.mutex.Lock()
	m.sessions[s.ID] = &memoryEntry{session: s.Clone(), lastUsed: now}
	m.mutex.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mutex.Lock()
	delete(m.sessions, id)
	m.mutex.Unlock()
	return nil
}

// Count returns the number of live sessions
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	n := 0
	for _, e := range m.sessions {
		if !m.expired(e) {
			n++
		}
	}
	return n, nil
}

// Sweep drops idle sessions and returns how many were removed
func (m *MemoryStore) Sweep(ctx context.Context) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("expired sessions removed", "count", removed)
	}
	return removed, nil
}
