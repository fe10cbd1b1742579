package app

import (
	"context"
	"fmt"

	"live-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultsStore persists the outcome of a completed session.
type ResultsStore interface {
	SaveResults(ctx context.Context, results domain.SessionResults) error
}

// Notifier announces completed sessions to other services.
type Notifier interface {
	QuizCompleted(ctx context.Context, results domain.SessionResults) error
}

// QuizService contains the host-facing use cases around live sessions.
type QuizService struct {
	quizzes  QuizRepository
	registry *Registry
}

func NewQuizService(quizzes QuizRepository, registry *Registry) *QuizService {
	return &QuizService{quizzes: quizzes, registry: registry}
}

// CreateSession loads the quiz and opens a lobby for it.
func (s *QuizService) CreateSession(ctx context.Context, hostID, quizID string) (*Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz %s", domain.ErrNoQuestions, quizID)
	}
	return s.registry.Create(ctx, hostID, quiz)
}

// Session resolves a join code to a live session.
func (s *QuizService) Session(code string) (*Session, error) {
	return s.registry.Lookup(code)
}

// Summary returns the current view of a session, completed ones included.
func (s *QuizService) Summary(ctx context.Context, code string) (Snapshot, error) {
	session, ok := s.registry.Get(code)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, code)
	}
	return session.Snapshot(ctx)
}

// Registry exposes the session registry to transports.
func (s *QuizService) Registry() *Registry {
	return s.registry
}
