// Package session provides the per-request session layer: a key-value store
// contract with in-memory and Redis implementations, a mutable Session value,
// and a cookie-binding Manager middleware.
package session

import (
	"context"
	"sync"
	"time"
)

// Store is the session key-value capability. A session is a flat map of
// string keys to string values, addressed by an opaque session id.
//
// A missing session is not an error: Get returns a nil map. Store errors are
// infrastructure failures and are surfaced as session_store errors by the
// Manager.
type Store interface {
	// Get returns the values of the session with the given id, or nil when
	// no such session exists.
	Get(ctx context.Context, id string) (map[string]string, error)

	// Insert writes the session values, replacing any previous state.
	Insert(ctx context.Context, id string, values map[string]string) error

	// Remove deletes the session. Removing an absent session is a no-op.
	Remove(ctx context.Context, id string) error
}

// DefaultTTL is the session lifetime used when none is configured.
const DefaultTTL = 24 * time.Hour

// DefaultCleanupInterval is how often the in-memory store sweeps expired
// sessions.
const DefaultCleanupInterval = 5 * time.Minute

// timedEntry wraps session values with their expiry for TTL tracking.
type timedEntry struct {
	values    map[string]string
	expiresAt time.Time
}

// MemoryStore implements Store with an in-memory map. It is thread-safe and
// suitable for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*timedEntry

	ttl             time.Duration
	cleanupInterval time.Duration

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*MemoryStore)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStore creates an in-memory session store and starts the background
// cleanup goroutine.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions:        make(map[string]*timedEntry),
		ttl:             DefaultTTL,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	now := time.Now()

	s.mu.RLock()
	var expired []string
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range expired {
		delete(s.sessions, id)
	}
}

// Get returns the values of the session with the given id, or nil when no
// such session exists or it has expired.
func (s *MemoryStore) Get(ctx context.Context, id string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}

	// Return a defensive copy to prevent aliasing issues
	values := make(map[string]string, len(entry.values))
	for k, v := range entry.values {
		values[k] = v
	}
	return values, nil
}

// Insert writes the session values, replacing any previous state.
func (s *MemoryStore) Insert(ctx context.Context, id string, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Make a defensive copy to prevent aliasing issues
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = &timedEntry{
		values:    copied,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Remove deletes the session.
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Len returns the number of live sessions. Useful in tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ Store = (*MemoryStore)(nil)
