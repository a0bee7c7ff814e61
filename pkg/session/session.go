package session

import (
	"sync"

	"github.com/google/uuid"
)

// Session is the mutable per-request view of one stored session. It tracks
// its own mutations so the Manager can commit them atomically at the end of
// the request.
//
// A Session is safe for concurrent use, though a single request normally
// touches it from one goroutine.
type Session struct {
	mu sync.Mutex

	id     string
	values map[string]string

	// isNew marks a session that does not exist in the store yet.
	isNew bool

	// dirty marks pending value mutations.
	dirty bool

	// rotatedFrom holds the previous id after RegenerateID, so the Manager
	// can remove the old record on commit.
	rotatedFrom string

	// destroyed marks the session for removal on commit.
	destroyed bool
}

// newSession wraps stored values in a Session. A nil values map creates a
// fresh session with a new id.
func newSession(id string, values map[string]string) *Session {
	if values == nil {
		return &Session{
			id:     uuid.NewString(),
			values: make(map[string]string),
			isNew:  true,
		}
	}
	return &Session{id: id, values: values}
}

// ID returns the current session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// IsNew reports whether the session has no stored record yet.
func (s *Session) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNew
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value under key.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

// Delete removes the value stored under key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Pop returns and removes the value stored under key. Single-use values such
// as the OAuth CSRF state are consumed through Pop.
func (s *Session) Pop(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if ok {
		delete(s.values, key)
		s.dirty = true
	}
	return v, ok
}

// RegenerateID assigns the session a fresh id while keeping its values.
// The Manager removes the record under the old id on commit. This is the
// session fixation defence applied on login.
func (s *Session) RegenerateID() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rotatedFrom == "" && !s.isNew {
		s.rotatedFrom = s.id
	}
	s.id = uuid.NewString()
	s.dirty = true
}

// Destroy marks the session for removal on commit.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.values = make(map[string]string)
}

// snapshot returns the commit-relevant state under one lock acquisition.
func (s *Session) snapshot() (id, rotatedFrom string, values map[string]string, isNew, dirty, destroyed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]string, len(s.values))
	for k, v := range s.values {
		copied[k] = v
	}
	return s.id, s.rotatedFrom, copied, s.isNew, s.dirty, s.destroyed
}

// markCommitted resets mutation tracking after a successful commit.
func (s *Session) markCommitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isNew = false
	s.dirty = false
	s.rotatedFrom = ""
}
