package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

type createSessionResponse struct {
	JoinCode       string `json:"joinCode"`
	SessionID      string `json:"sessionId"`
	TotalQuestions int    `json:"totalQuestions"`
}

type sessionParticipant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Ready  bool   `json:"ready"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
}

type sessionSummary struct {
	JoinCode          string               `json:"joinCode"`
	SessionID         string               `json:"sessionId"`
	QuizID            string               `json:"quizId"`
	Title             string               `json:"title"`
	State             domain.SessionState  `json:"state"`
	QuestionIndex     int                  `json:"questionIndex"`
	TotalQuestions    int                  `json:"totalQuestions"`
	QuestionsAnswered int                  `json:"questionsAnswered"`
	Participants      []sessionParticipant `json:"participants"`
}

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter mounts health, websocket and session REST routes.
func NewRouter(cfg RouterConfig, service *app.QuizService, tokens *auth.Service, ws *WSHandler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	api := &sessionAPI{service: service, logger: logger}
	r.Route("/api/sessions", func(sr chi.Router) {
		sr.Use(tokens.Middleware)
		sr.With(auth.RequireHost).Post("/", api.create)
		sr.Get("/{code}", api.get)
	})
	return r
}

type sessionAPI struct {
	service *app.QuizService
	logger  *slog.Logger
}

func (a *sessionAPI) create(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "quizId required", http.StatusBadRequest)
		return
	}
	session, err := a.service.CreateSession(r.Context(), claims.Subject, req.QuizID)
	if err != nil {
		a.logger.Warn("create session failed", "quiz", req.QuizID, "host", claims.Subject, "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusCreated, createSessionResponse{
		JoinCode:       session.Code(),
		SessionID:      session.ID(),
		TotalQuestions: len(session.Quiz().Questions),
	})
}

func (a *sessionAPI) get(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.Summary(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	out := sessionSummary{
		JoinCode:          snap.Code,
		SessionID:         snap.ID,
		QuizID:            snap.QuizID,
		Title:             snap.Title,
		State:             snap.State,
		QuestionIndex:     snap.QuestionIndex,
		TotalQuestions:    snap.TotalQuestions,
		QuestionsAnswered: snap.Graded,
		Participants:      make([]sessionParticipant, 0, len(snap.Participants)),
	}
	for _, p := range snap.Participants {
		out.Participants = append(out.Participants, sessionParticipant{
			ID: p.ID, Name: p.DisplayName, Avatar: p.Avatar, Ready: p.Ready, Score: p.CumulativeScore, Rank: p.Rank,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoQuestions), errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrJoinCodeExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
