package memory

import (
	"context"
	"sync"
	"time"
)

// CodeStore is an in-memory implementation of app.CodeStore for single-node
// deployments and tests. A zero TTL keeps reservations until released.
type CodeStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock func() time.Time
	codes map[string]time.Time
}

func NewCodeStore(ttl time.Duration) *CodeStore {
	return &CodeStore{
		ttl:   ttl,
		clock: time.Now,
		codes: make(map[string]time.Time),
	}
}

func (s *CodeStore) Reserve(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if expiresAt, ok := s.codes[code]; ok && (expiresAt.IsZero() || expiresAt.After(now)) {
		return false, nil
	}
	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl)
	}
	s.codes[code] = expiresAt
	return true, nil
}

// Refresh extends the reservation of code, taking it back if it lapsed.
func (s *CodeStore) Refresh(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = s.clock().Add(s.ttl)
	}
	s.codes[code] = expiresAt
	return true, nil
}

func (s *CodeStore) Release(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	return nil
}

// Reserved reports whether code is currently held.
func (s *CodeStore) Reserved(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.codes[code]
	return ok && (expiresAt.IsZero() || expiresAt.After(s.clock()))
}
