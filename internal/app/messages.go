package app

import "live-quiz-service/internal/domain"

// Outbound message types.
const (
	MsgStudentJoined        = "studentJoined"
	MsgStudentReady         = "studentReady"
	MsgStudentDisconnected  = "studentDisconnected"
	MsgStudentReconnected   = "studentReconnected"
	MsgNoStudentsRemaining  = "noStudentsRemaining"
	MsgWaiting              = "waitingForNextQuestion"
	MsgSessionState         = "sessionState"
	MsgTakenAvatars         = "takenAvatars"
	MsgQuizStartingSoon     = "quizStartingSoon"
	MsgQuizStarted          = "quizStarted"
	MsgPreparingNext        = "preparingNextQuestion"
	MsgNewQuestion          = "newQuestion"
	MsgAnswerAccepted       = "answerAccepted"
	MsgStudentSubmitted     = "studentSubmitted"
	MsgSubmissionProgress   = "submissionProgress"
	MsgAllStudentsSubmitted = "allStudentsSubmitted"
	MsgFeedback             = "feedback"
	MsgDetailedResults      = "detailedResults"
	MsgQuizCompleted        = "quizCompleted"
	MsgSessionEnded         = "sessionEnded"
	MsgError                = "error"
)

// Audience selects which connections of a session receive a message.
type Audience int

const (
	// ToAll reaches the host and every participant.
	ToAll Audience = iota
	// ToHost reaches the host connection only.
	ToHost
	// ToParticipant reaches the participant named by Target.
	ToParticipant
	// ToConnection reaches the single connection named by Target.
	ToConnection
)

// Outbound is a message produced by a session for the connection hub.
type Outbound struct {
	Audience Audience
	Target   string
	Type     string
	Payload  any
}

// Emitter delivers session output. Emit is called from the session worker
// and must not block.
type Emitter interface {
	Emit(code string, msgs ...Outbound)
}

type participantRef struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type readyPayload struct {
	ID     string `json:"id"`
	Avatar string `json:"avatar,omitempty"`
}

type startingPayload struct {
	TotalQuestions int   `json:"totalQuestions"`
	StartsAt       int64 `json:"startsAt"`
}

// QuestionPayload carries an open question; the correct option is never included.
type QuestionPayload struct {
	CurrentQuestion domain.PublicQuestion `json:"currentQuestion"`
	QuestionNumber  int                   `json:"questionNumber"`
	TotalQuestions  int                   `json:"totalQuestions"`
	IsLastQuestion  bool                  `json:"isLastQuestion"`
	EndTime         int64                 `json:"endTime"`
}

type preparingPayload struct {
	IsLastQuestion bool `json:"isLastQuestion"`
	QuestionNumber int  `json:"questionNumber"`
}

type acceptedPayload struct {
	QuestionIndex int  `json:"questionIndex"`
	Duplicate     bool `json:"duplicate"`
}

type progressPayload struct {
	QuestionIndex int `json:"questionIndex"`
	Submitted     int `json:"submitted"`
	Expected      int `json:"expected"`
}

// GradedPayload is broadcast once a question has been graded.
type GradedPayload struct {
	QuestionIndex      int                    `json:"questionIndex"`
	CorrectOptionIndex int                    `json:"correctOptionIndex"`
	Feedback           []domain.FeedbackEntry `json:"feedback"`
}

type personalFeedback struct {
	QuestionIndex      int  `json:"questionIndex"`
	CorrectOptionIndex int  `json:"correctOptionIndex"`
	IsCorrect          bool `json:"isCorrect"`
	Score              int  `json:"score"`
	TotalScore         int  `json:"totalScore"`
	Rank               int  `json:"rank"`
	PreviousRank       int  `json:"previousRank"`
}

type completedPayload struct {
	Reason  string                     `json:"reason"`
	Ranking []domain.ParticipantResult `json:"ranking"`
}

type takenAvatarsPayload struct {
	Avatars []string `json:"avatars"`
}

// StatePayload lets a (re)connecting client resync.
type StatePayload struct {
	State           domain.SessionState    `json:"state"`
	QuestionIndex   int                    `json:"questionIndex"`
	TotalQuestions  int                    `json:"totalQuestions"`
	CurrentQuestion *domain.PublicQuestion `json:"currentQuestion,omitempty"`
	EndTime         int64                  `json:"endTime,omitempty"`
	HasSubmitted    bool                   `json:"hasSubmitted"`
	CumulativeScore int                    `json:"cumulativeScore"`
	Rank            int                    `json:"rank"`
	Participants    []participantRef       `json:"participants,omitempty"`
}

// ErrorPayload is sent to the connection whose event failed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(connID string, err error) Outbound {
	return Outbound{
		Audience: ToConnection,
		Target:   connID,
		Type:     MsgError,
		Payload:  ErrorPayload{Code: domain.ErrorCode(err), Message: err.Error()},
	}
}
