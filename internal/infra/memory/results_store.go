package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// ResultsStore keeps completed session results in memory.
type ResultsStore struct {
	mu      sync.RWMutex
	results map[string]domain.SessionResults
	order   []string
}

func NewResultsStore() *ResultsStore {
	return &ResultsStore{results: make(map[string]domain.SessionResults)}
}

func (s *ResultsStore) SaveResults(_ context.Context, results domain.SessionResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[results.SessionID]; !ok {
		s.order = append(s.order, results.SessionID)
	}
	s.results[results.SessionID] = results
	return nil
}

// Get returns the results saved for a session.
func (s *ResultsStore) Get(sessionID string) (domain.SessionResults, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[sessionID]
	return res, ok
}

// Len returns how many sessions were saved.
func (s *ResultsStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Notifier records completion announcements; used when Redis is disabled.
type Notifier struct {
	mu        sync.Mutex
	completed []domain.SessionResults
}

func (n *Notifier) QuizCompleted(_ context.Context, results domain.SessionResults) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, results)
	return nil
}

// Completed returns the announcements seen so far.
func (n *Notifier) Completed() []domain.SessionResults {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.SessionResults(nil), n.completed...)
}
