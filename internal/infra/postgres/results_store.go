package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions"`

	ID                string    `bun:"id,pk"`
	JoinCode          string    `bun:"join_code,notnull"`
	QuizID            string    `bun:"quiz_id,notnull"`
	HostID            string    `bun:"host_id,notnull"`
	Reason            string    `bun:"reason,notnull"`
	StartedAt         time.Time `bun:"started_at,notnull"`
	CompletedAt       time.Time `bun:"completed_at,notnull"`
	TotalQuestions    int       `bun:"total_questions,notnull"`
	QuestionsAnswered int       `bun:"questions_answered,notnull"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:quiz_results"`

	SessionID     string            `bun:"session_id,pk"`
	ParticipantID string            `bun:"participant_id,pk"`
	DisplayName   string            `bun:"display_name,notnull"`
	Avatar        string            `bun:"avatar,notnull"`
	Rank          int               `bun:"rank,notnull"`
	Score         int               `bun:"score,notnull"`
	CorrectCount  int               `bun:"correct_count,notnull"`
	Percentage    int               `bun:"percentage,notnull"`
	Responses     []domain.Response `bun:"responses,type:jsonb"`
}

// ResultsStore writes completed sessions to Postgres through bun.
type ResultsStore struct {
	db *bun.DB
}

func NewResultsStore(db *bun.DB) *ResultsStore {
	return &ResultsStore{db: db}
}

// SaveResults stores a session and its standings in one transaction. A
// repeated save of the same session is a no-op.
func (s *ResultsStore) SaveResults(ctx context.Context, results domain.SessionResults) error {
	session := sessionRow{
		ID:                results.SessionID,
		JoinCode:          results.JoinCode,
		QuizID:            results.QuizID,
		HostID:            results.HostID,
		Reason:            results.Reason,
		StartedAt:         results.StartedAt,
		CompletedAt:       results.CompletedAt,
		TotalQuestions:    results.TotalQuestions,
		QuestionsAnswered: results.QuestionsAnswered,
	}
	rows := make([]resultRow, 0, len(results.Participants))
	for _, p := range results.Participants {
		rows = append(rows, resultRow{
			SessionID:     results.SessionID,
			ParticipantID: p.ParticipantID,
			DisplayName:   p.DisplayName,
			Avatar:        p.Avatar,
			Rank:          p.Rank,
			Score:         p.Score,
			CorrectCount:  p.CorrectCount,
			Percentage:    p.Percentage,
			Responses:     p.Responses,
		})
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().Model(&session).On("CONFLICT (id) DO NOTHING").Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 || len(rows) == 0 {
			return nil
		}
		_, err = tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("save results %s: %w", results.SessionID, err)
	}
	return nil
}

// LoadResults reads a stored session back, standings ordered by rank.
func (s *ResultsStore) LoadResults(ctx context.Context, sessionID string) (domain.SessionResults, error) {
	var session sessionRow
	err := s.db.NewSelect().Model(&session).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionResults{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return domain.SessionResults{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var rows []resultRow
	if err := s.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID).Order("rank ASC").Scan(ctx); err != nil {
		return domain.SessionResults{}, fmt.Errorf("load standings %s: %w", sessionID, err)
	}

	out := domain.SessionResults{
		SessionID:         session.ID,
		JoinCode:          session.JoinCode,
		QuizID:            session.QuizID,
		HostID:            session.HostID,
		Reason:            session.Reason,
		StartedAt:         session.StartedAt,
		CompletedAt:       session.CompletedAt,
		TotalQuestions:    session.TotalQuestions,
		QuestionsAnswered: session.QuestionsAnswered,
		Participants:      make([]domain.ParticipantResult, 0, len(rows)),
	}
	for _, r := range rows {
		out.Participants = append(out.Participants, domain.ParticipantResult{
			ParticipantID: r.ParticipantID,
			DisplayName:   r.DisplayName,
			Avatar:        r.Avatar,
			Rank:          r.Rank,
			Score:         r.Score,
			CorrectCount:  r.CorrectCount,
			Percentage:    r.Percentage,
			Responses:     r.Responses,
		})
	}
	return out, nil
}
