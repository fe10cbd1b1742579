package domain

import (
	"fmt"
	"time"
)

// DefaultTimeLimitSeconds applies to questions authored without a time limit.
const DefaultTimeLimitSeconds = 30

// NoAnswer is the option index a client sends to pass on a question.
const NoAnswer = -1

// Option is one selectable answer of a question.
type Option struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	ImageURL           string   `json:"imageUrl,omitempty"`
	Options            []Option `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	TimeLimitSeconds   int      `json:"timeLimitSeconds"`
	BaseScore          int      `json:"baseScore"` // scoring default if zero
}

// TimeLimit returns the question's answer window.
func (q Question) TimeLimit() time.Duration {
	secs := q.TimeLimitSeconds
	if secs <= 0 {
		secs = DefaultTimeLimitSeconds
	}
	return time.Duration(secs) * time.Second
}

// Public strips the correct option so the question can be sent while it is open.
func (q Question) Public(index int) PublicQuestion {
	options := make([]Option, len(q.Options))
	copy(options, q.Options)
	return PublicQuestion{
		Index:            index,
		ID:               q.ID,
		Text:             q.Text,
		ImageURL:         q.ImageURL,
		Options:          options,
		TimeLimitSeconds: int(q.TimeLimit() / time.Second),
	}
}

// PublicQuestion is the client-facing view of an open question.
type PublicQuestion struct {
	Index            int      `json:"index"`
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	Options          []Option `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// SessionState is a phase of a live session.
type SessionState string

const (
	StateLobby        SessionState = "LOBBY"
	StateStarting     SessionState = "STARTING"
	StateQuestionOpen SessionState = "QUESTION_OPEN"
	StateGrading      SessionState = "GRADING"
	StateFeedback     SessionState = "FEEDBACK"
	StateComplete     SessionState = "COMPLETE"
)

// Participant is a member of a session roster.
// An empty ConnectionID means temporarily disconnected, not removed.
type Participant struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"name"`
	ConnectionID    string    `json:"-"`
	Ready           bool      `json:"ready"`
	Avatar          string    `json:"avatar,omitempty"`
	CumulativeScore int       `json:"score"`
	Rank            int       `json:"rank"`
	PreviousRank    int       `json:"previousRank"`
	FirstCorrectAt  time.Time `json:"-"`
	JoinedAt        time.Time `json:"joinedAt"`
}

// Connected reports whether a live connection is attached.
func (p Participant) Connected() bool {
	return p.ConnectionID != ""
}

// Submission is the single accepted answer of a participant for a question.
type Submission struct {
	ParticipantID     string    `json:"participantId"`
	QuestionIndex     int       `json:"questionIndex"`
	ChosenOptionIndex int       `json:"chosenOptionIndex"`
	SubmittedAt       time.Time `json:"submittedAt"`
	ElapsedMs         int64     `json:"elapsedMs"`
	Score             int       `json:"score"`
	IsCorrect         bool      `json:"isCorrect"`
	Graded            bool      `json:"graded"`
}

// SubmitResult is returned for every submit call. Duplicate marks a retry
// that returned the already-recorded submission.
type SubmitResult struct {
	Submission Submission `json:"submission"`
	Duplicate  bool       `json:"duplicate"`
}

// FeedbackEntry is one participant's outcome for a graded question.
type FeedbackEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	TotalScore   int    `json:"totalScore"`
	IsCorrect    bool   `json:"isCorrect"`
	Rank         int    `json:"rank"`
	PreviousRank int    `json:"previousRank"`
}

// Response is a participant's recorded outcome for one question.
type Response struct {
	QuestionIndex     int    `json:"questionIndex"`
	QuestionID        string `json:"questionId"`
	ChosenOptionIndex int    `json:"chosenOptionIndex"`
	IsCorrect         bool   `json:"isCorrect"`
	Score             int    `json:"score"`
	ElapsedMs         int64  `json:"elapsedMs"`
}

// ParticipantResult is the final standing written to the results store.
type ParticipantResult struct {
	ParticipantID string     `json:"participantId"`
	DisplayName   string     `json:"name"`
	Avatar        string     `json:"avatar,omitempty"`
	Rank          int        `json:"rank"`
	Score         int        `json:"score"`
	CorrectCount  int        `json:"correctCount"`
	Percentage    int        `json:"percentage"`
	Responses     []Response `json:"responses"`
}

// SessionResults is the durable record of a completed session.
type SessionResults struct {
	SessionID         string              `json:"sessionId"`
	JoinCode          string              `json:"joinCode"`
	QuizID            string              `json:"quizId"`
	HostID            string              `json:"hostId"`
	Reason            string              `json:"reason"`
	StartedAt         time.Time           `json:"startedAt"`
	CompletedAt       time.Time           `json:"completedAt"`
	TotalQuestions    int                 `json:"totalQuestions"`
	QuestionsAnswered int                 `json:"questionsAnswered"`
	Participants      []ParticipantResult `json:"participants"`
}

// Validate checks that every question can be answered and graded.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz %s", ErrNoQuestions, q.ID)
	}
	for i, question := range q.Questions {
		if len(question.Options) < 2 {
			return fmt.Errorf("%w: question %d has %d options", ErrInvalidQuiz, i, len(question.Options))
		}
		if question.CorrectOptionIndex < 0 || question.CorrectOptionIndex >= len(question.Options) {
			return fmt.Errorf("%w: question %d correct option %d out of range", ErrInvalidQuiz, i, question.CorrectOptionIndex)
		}
	}
	return nil
}
