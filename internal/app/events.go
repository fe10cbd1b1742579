package app

// Event is one inbound input of a session. Every kind is applied by the
// session worker, one at a time, in arrival order.
type Event interface {
	origin() string
}

// Origin names the connection an event came from; errors are reported there.
type Origin struct {
	ConnectionID string
}

func (o Origin) origin() string { return o.ConnectionID }

// Join adds a participant or reattaches a known one.
type Join struct {
	Origin
	ParticipantID string
	DisplayName   string
}

// HostAttach binds the host connection.
type HostAttach struct {
	Origin
}

// Disconnect detaches a connection; the participant stays in the roster.
type Disconnect struct {
	Origin
	ParticipantID string
	Host          bool
}

// Ready marks a participant ready, optionally claiming an avatar.
type Ready struct {
	Origin
	ParticipantID string
	Avatar        string
}

// TakenAvatars asks for the avatars already claimed.
type TakenAvatars struct {
	Origin
}

// SubmitAnswer records a participant's answer.
type SubmitAnswer struct {
	Origin
	ParticipantID string
	QuestionIndex int
	OptionIndex   int
}

// StartQuiz is the host command that leaves the lobby.
type StartQuiz struct {
	Origin
}

// NextQuestion is the host command that advances past feedback.
type NextQuestion struct {
	Origin
}

// EndQuiz is the host command that completes the session at any time.
type EndQuiz struct {
	Origin
	Reason string
}

// ViewDetailedResults asks for the host report.
type ViewDetailedResults struct {
	Origin
}

type timerKind int

const (
	timerCountdown timerKind = iota
	timerQuestion
	timerPrepare
	timerIdle
)

func (k timerKind) String() string {
	switch k {
	case timerCountdown:
		return "countdown"
	case timerQuestion:
		return "question"
	case timerPrepare:
		return "prepare"
	default:
		return "idle"
	}
}

// timerFired is delivered by the scheduler; seq discards timers that were
// superseded after they had already queued.
type timerFired struct {
	Origin
	kind timerKind
	seq  uint64
}

type snapshotRequest struct {
	Origin
}
