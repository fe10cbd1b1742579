package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// CompletedChannel carries one JSON event per completed session.
const CompletedChannel = "quiz:completed"

// CompletedEvent is the message published on CompletedChannel.
type CompletedEvent struct {
	SessionID         string              `json:"sessionId"`
	JoinCode          string              `json:"joinCode"`
	QuizID            string              `json:"quizId"`
	HostID            string              `json:"hostId"`
	Reason            string              `json:"reason"`
	CompletedAt       time.Time           `json:"completedAt"`
	QuestionsAnswered int                 `json:"questionsAnswered"`
	Participants      int                 `json:"participants"`
	Podium            []CompletedStanding `json:"podium"`
}

type CompletedStanding struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Rank          int    `json:"rank"`
	Score         int    `json:"score"`
}

const podiumSize = 3

// Notifier publishes completion events for downstream services.
type Notifier struct {
	client  *redis.Client
	channel string
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client, channel: CompletedChannel}
}

func (n *Notifier) QuizCompleted(ctx context.Context, results domain.SessionResults) error {
	event := CompletedEvent{
		SessionID:         results.SessionID,
		JoinCode:          results.JoinCode,
		QuizID:            results.QuizID,
		HostID:            results.HostID,
		Reason:            results.Reason,
		CompletedAt:       results.CompletedAt,
		QuestionsAnswered: results.QuestionsAnswered,
		Participants:      len(results.Participants),
		Podium:            make([]CompletedStanding, 0, podiumSize),
	}
	for i, p := range results.Participants {
		if i == podiumSize {
			break
		}
		event.Podium = append(event.Podium, CompletedStanding{
			ParticipantID: p.ParticipantID,
			Name:          p.DisplayName,
			Rank:          p.Rank,
			Score:         p.Score,
		})
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish completion: %w", err)
	}
	return nil
}
