// Package memory provides an in-memory implementation of
// auth.SessionManager for testing and single-process deployments. Entries
// are lost when the process restarts. Optional LRU eviction limits memory
// usage.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/portier-dev/portier/pkg/auth"
	"github.com/portier-dev/portier/pkg/session"
)

// entry holds a persisted login and its metadata.
type entry struct {
	principal *auth.Principal
	mechanism string
	expiresAt time.Time
	lruElem   *list.Element // position in LRU list
}

// Manager is an in-memory SessionManager with TTL expiry and optional LRU
// eviction.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
	ttl     time.Duration
	now     func() time.Time // injectable for tests
}

// Ensure Manager implements auth.SessionManager at compile time.
var _ auth.SessionManager = (*Manager)(nil)

// New creates a new in-memory session manager. If maxSize is 0 the store
// grows without limit; otherwise the least recently used entry is evicted
// when the limit is reached. A zero ttl falls back to session.DefaultTTL.
func New(maxSize int, ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = session.DefaultTTL
	}
	return &Manager{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Save persists a login under the session ID, replacing any existing entry.
func (m *Manager) Save(_ context.Context, sessionID string, p *auth.Principal, mechanism string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, exists := m.entries[sessionID]; exists {
		e.principal = p
		e.mechanism = mechanism
		e.expiresAt = m.now().Add(m.ttl)
		m.lruList.MoveToFront(e.lruElem)
		return nil
	}

	// Evict if at capacity.
	if m.maxSize > 0 && len(m.entries) >= m.maxSize {
		m.evictOldest()
	}

	elem := m.lruList.PushFront(sessionID)
	m.entries[sessionID] = &entry{
		principal: p,
		mechanism: mechanism,
		expiresAt: m.now().Add(m.ttl),
		lruElem:   elem,
	}

	return nil
}

// Load returns the persisted identity for the session ID. Expired and
// unknown sessions return session.ErrNotFound.
func (m *Manager) Load(_ context.Context, sessionID string) (*auth.Principal, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[sessionID]
	if !ok {
		return nil, "", session.ErrNotFound
	}
	if m.now().After(e.expiresAt) {
		m.remove(sessionID, e)
		return nil, "", session.ErrNotFound
	}

	m.lruList.MoveToFront(e.lruElem)
	return e.principal, e.mechanism, nil
}

// Clear forgets the session's identity. Clearing an unknown session is
// not an error.
func (m *Manager) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[sessionID]; ok {
		m.remove(sessionID, e)
	}
	return nil
}

// Len returns the number of live entries, counting any not yet expired.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictOldest removes the least recently used entry.
// Must be called with the lock held.
func (m *Manager) evictOldest() {
	back := m.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	if e, ok := m.entries[id]; ok {
		m.remove(id, e)
	}
}

// remove deletes an entry. Must be called with the lock held.
func (m *Manager) remove(sessionID string, e *entry) {
	m.lruList.Remove(e.lruElem)
	delete(m.entries, sessionID)
}
