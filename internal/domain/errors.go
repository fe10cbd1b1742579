package domain

import "errors"

var (
	// ErrProtocol marks a malformed or unsupported inbound frame.
	ErrProtocol = errors.New("malformed message")
	// ErrUnauthorized is returned when a non-host sends a host-only command.
	ErrUnauthorized = errors.New("command not allowed for this connection")
	// ErrInvalidToken is returned when a connection token cannot be validated.
	ErrInvalidToken = errors.New("invalid auth token")
	// ErrStaleSubmission is returned for answers to a question that is not open.
	ErrStaleSubmission = errors.New("question is not open for submissions")
	// ErrSessionNotFound is returned when no active session uses the join code.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned for events that reach a completed session.
	ErrSessionClosed = errors.New("quiz session is closed")
	// ErrSessionBusy is returned when a session's event queue is full.
	ErrSessionBusy = errors.New("quiz session is busy, retry")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in quiz")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions indicates a quiz that cannot be played.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrInvalidQuiz indicates malformed quiz content.
	ErrInvalidQuiz = errors.New("invalid quiz content")
	// ErrInvalidOption indicates a submitted option index is out of range.
	ErrInvalidOption = errors.New("option not found")
	// ErrNotEnoughParticipants guards the start of a session.
	ErrNotEnoughParticipants = errors.New("not enough participants to start")
	// ErrInvalidTransition is returned when a command does not apply to the current state.
	ErrInvalidTransition = errors.New("command not valid in current state")
	// ErrAvatarTaken is returned when another participant already picked the avatar.
	ErrAvatarTaken = errors.New("avatar already taken")
	// ErrJoinCodeExhausted is returned when no free join code could be found.
	ErrJoinCodeExhausted = errors.New("no free join code available")
)

// ErrorCode maps an error onto the stable code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrProtocol):
		return "protocolError"
	case errors.Is(err, ErrUnauthorized):
		return "authorizationError"
	case errors.Is(err, ErrInvalidToken):
		return "invalidToken"
	case errors.Is(err, ErrStaleSubmission):
		return "staleSubmission"
	case errors.Is(err, ErrSessionNotFound):
		return "sessionNotFound"
	case errors.Is(err, ErrSessionClosed):
		return "sessionClosed"
	case errors.Is(err, ErrSessionBusy):
		return "sessionBusy"
	case errors.Is(err, ErrParticipantNotFound):
		return "participantNotFound"
	case errors.Is(err, ErrQuizNotFound):
		return "quizNotFound"
	case errors.Is(err, ErrNoQuestions):
		return "noQuestions"
	case errors.Is(err, ErrInvalidOption):
		return "invalidOption"
	case errors.Is(err, ErrNotEnoughParticipants):
		return "notEnoughParticipants"
	case errors.Is(err, ErrInvalidTransition):
		return "invalidTransition"
	case errors.Is(err, ErrAvatarTaken):
		return "avatarTaken"
	default:
		return "internalError"
	}
}
