package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/timer"
)

// CodeStore reserves join codes so that two live sessions never share one,
// including across service instances when backed by Redis.
type CodeStore interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
	// Refresh extends a reservation; false means another owner holds the code.
	Refresh(ctx context.Context, code string) (bool, error)
}

// RegistryConfig controls join codes and retention of completed sessions.
type RegistryConfig struct {
	CodeLength  int
	MaxAttempts int
	Retention   time.Duration
	Session     SessionConfig
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		CodeLength:  6,
		MaxAttempts: 32,
		Retention:   5 * time.Minute,
		Session:     DefaultSessionConfig(),
	}
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithSchedulerFactory replaces the wall-clock scheduler given to new sessions.
func WithSchedulerFactory(f func() timer.Scheduler) RegistryOption {
	return func(r *Registry) { r.newScheduler = f }
}

// WithCodeGenerator replaces the random join code source.
func WithCodeGenerator(f func() string) RegistryOption {
	return func(r *Registry) { r.generate = f }
}

// Registry maps join codes to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	codes        CodeStore
	cfg          RegistryConfig
	deps         SessionDeps
	newScheduler func() timer.Scheduler
	generate     func() string
	logger       *slog.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewRegistry builds a registry. deps is the template for every session; its
// Scheduler and OnComplete are set per session.
func NewRegistry(codes CodeStore, cfg RegistryConfig, deps SessionDeps, opts ...RegistryOption) *Registry {
	defaults := DefaultRegistryConfig()
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaults.CodeLength
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{
		sessions:     make(map[string]*Session),
		codes:        codes,
		cfg:          cfg,
		deps:         deps,
		newScheduler: func() timer.Scheduler { return timer.NewGroup() },
		logger:       deps.Logger,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	r.generate = r.randomCode
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// randomCode returns a numeric code without a leading zero.
func (r *Registry) randomCode() string {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	code := strconv.Itoa(1 + r.rnd.Intn(9))
	for i := 1; i < r.cfg.CodeLength; i++ {
		code += strconv.Itoa(r.rnd.Intn(10))
	}
	return code
}

// Create starts a new session for quiz under a freshly reserved join code.
func (r *Registry) Create(ctx context.Context, hostID string, quiz domain.Quiz) (*Session, error) {
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz %s", domain.ErrNoQuestions, quiz.ID)
	}
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		code := r.generate()
		if r.isLive(code) {
			continue
		}
		reserved, err := r.codes.Reserve(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("reserve join code: %w", err)
		}
		if !reserved {
			continue
		}

		deps := r.deps
		deps.Scheduler = r.newScheduler()
		deps.OnComplete = r.completed
		session := NewSession(uuid.NewString(), code, hostID, quiz, r.cfg.Session, deps)

		r.mu.Lock()
		old := r.sessions[code]
		r.sessions[code] = session
		r.mu.Unlock()
		if old != nil {
			old.Close()
		}
		r.logger.Info("session created", "code", code, "session", session.ID(), "quiz", quiz.ID, "host", hostID)
		return session, nil
	}
	return nil, domain.ErrJoinCodeExhausted
}

func (r *Registry) isLive(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return ok && s.State() != domain.StateComplete
}

// completed runs on the session worker; the release must not call back into it.
func (r *Registry) completed(s *Session) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.codes.Release(ctx, s.Code()); err != nil {
			r.logger.Warn("failed to release join code", "code", s.Code(), "error", err)
		}
	}()
}

// Get returns the session registered under code, live or retained.
func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Lookup returns a live session; completed sessions yield ErrSessionClosed.
func (r *Registry) Lookup(code string) (*Session, error) {
	s, ok := r.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, code)
	}
	if s.State() == domain.StateComplete {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionClosed, code)
	}
	return s, nil
}

// Destroy stops a session and forgets it.
func (r *Registry) Destroy(ctx context.Context, code string) {
	r.mu.Lock()
	s, ok := r.sessions[code]
	delete(r.sessions, code)
	r.mu.Unlock()
	if !ok {
		return
	}
	live := s.State() != domain.StateComplete
	s.Close()
	if live {
		if err := r.codes.Release(ctx, code); err != nil {
			r.logger.Warn("failed to release join code", "code", code, "error", err)
		}
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops completed sessions retained longer than the retention window.
func (r *Registry) Sweep(now time.Time) int {
	var expired []*Session
	r.mu.Lock()
	for code, s := range r.sessions {
		at, done := s.CompletedAt()
		if done && !now.Before(at.Add(r.cfg.Retention)) {
			expired = append(expired, s)
			delete(r.sessions, code)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		r.logger.Debug("swept completed sessions", "count", len(expired))
	}
	return len(expired)
}

// Heartbeat refreshes the reservation of every live session's join code.
func (r *Registry) Heartbeat(ctx context.Context) {
	r.mu.RLock()
	live := make([]string, 0, len(r.sessions))
	for code, s := range r.sessions {
		if s.State() != domain.StateComplete {
			live = append(live, code)
		}
	}
	r.mu.RUnlock()

	for _, code := range live {
		held, err := r.codes.Refresh(ctx, code)
		switch {
		case err != nil:
			r.logger.Warn("failed to refresh join code", "code", code, "error", err)
		case !held:
			r.logger.Error("join code reservation lost to another owner", "code", code)
		}
	}
}

// Run sweeps and refreshes join codes on interval until ctx is done. The
// interval must stay well below the code store TTL.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.deps.Now())
			r.Heartbeat(ctx)
		}
	}
}

// Shutdown ends every live session so results are persisted, then stops them.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for code, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, code)
	}
	r.mu.Unlock()

	for _, s := range all {
		if s.State() != domain.StateComplete {
			if _, err := s.Do(ctx, EndQuiz{Reason: "shutdown"}); err != nil {
				r.logger.Warn("failed to end session on shutdown", "code", s.Code(), "error", err)
			}
		}
		s.Close()
	}
}
