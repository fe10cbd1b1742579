package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// submitPayload uses pointers so missing fields are told apart from zero.
type submitPayload struct {
	QuestionIndex *int `json:"questionIndex"`
	OptionIndex   *int `json:"optionIndex"`
}

type readyPayload struct {
	Avatar string `json:"avatar"`
}

// client is one websocket connection attached to a session.
type client struct {
	id            string
	code          string
	participantID string
	name          string
	host          bool
	session       *app.Session
	send          chan []byte
}

// Hub fans session output out to the attached connections. It implements
// app.Emitter: Emit never blocks, frames for a full buffer are dropped.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*client
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{rooms: make(map[string]map[string]*client), logger: logger}
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.code]
	if !ok {
		room = make(map[string]*client)
		h.rooms[c.code] = room
	}
	room[c.id] = c
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.code]
	if !ok {
		return
	}
	delete(room, c.id)
	if len(room) == 0 {
		delete(h.rooms, c.code)
	}
}

// Connections returns the number of connections attached to a session.
func (h *Hub) Connections(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

func (h *Hub) Emit(code string, msgs ...app.Outbound) {
	for _, msg := range msgs {
		frame, err := json.Marshal(outboundMessage[any]{Type: msg.Type, Payload: msg.Payload})
		if err != nil {
			h.logger.Error("failed to encode frame", "code", code, "type", msg.Type, "error", err)
			continue
		}
		h.mu.RLock()
		for _, c := range h.rooms[code] {
			if !c.wants(msg) {
				continue
			}
			select {
			case c.send <- frame:
			default:
				h.logger.Warn("dropping frame for slow connection", "code", code, "conn", c.id, "type", msg.Type)
			}
		}
		h.mu.RUnlock()
	}
}

func (c *client) wants(msg app.Outbound) bool {
	switch msg.Audience {
	case app.ToAll:
		return true
	case app.ToHost:
		return c.host
	case app.ToParticipant:
		return !c.host && c.participantID == msg.Target
	case app.ToConnection:
		return c.id == msg.Target
	default:
		return false
	}
}

// direct queues a frame for one connection, outside any session.
func (c *client) direct(msgType string, payload any) {
	frame, err := json.Marshal(outboundMessage[any]{Type: msgType, Payload: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *client) fail(err error) {
	c.direct(app.MsgError, app.ErrorPayload{Code: domain.ErrorCode(err), Message: err.Error()})
}

var hostCommands = map[string]bool{
	"startQuiz":           true,
	"nextQuestion":        true,
	"endQuiz":             true,
	"viewDetailedResults": true,
}

// decode turns an inbound frame into a session event.
func (c *client) decode(data []byte) (app.Event, error) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}
	if hostCommands[in.Type] && !c.host {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, in.Type)
	}
	origin := app.Origin{ConnectionID: c.id}

	switch in.Type {
	case "startQuiz":
		return app.StartQuiz{Origin: origin}, nil
	case "nextQuestion":
		return app.NextQuestion{Origin: origin}, nil
	case "endQuiz":
		return app.EndQuiz{Origin: origin, Reason: "host"}, nil
	case "viewDetailedResults":
		return app.ViewDetailedResults{Origin: origin}, nil
	case "takenAvatars":
		return app.TakenAvatars{Origin: origin}, nil
	}

	if c.host {
		return nil, fmt.Errorf("%w: %s is not a host command", domain.ErrUnauthorized, in.Type)
	}
	switch in.Type {
	case "submitAnswer":
		var p submitPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: submitAnswer: %v", domain.ErrProtocol, err)
		}
		if p.QuestionIndex == nil || p.OptionIndex == nil {
			return nil, fmt.Errorf("%w: submitAnswer needs questionIndex and optionIndex", domain.ErrProtocol)
		}
		return app.SubmitAnswer{
			Origin:        origin,
			ParticipantID: c.participantID,
			QuestionIndex: *p.QuestionIndex,
			OptionIndex:   *p.OptionIndex,
		}, nil
	case "ready":
		var p readyPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				return nil, fmt.Errorf("%w: ready: %v", domain.ErrProtocol, err)
			}
		}
		return app.Ready{Origin: origin, ParticipantID: c.participantID, Avatar: p.Avatar}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported message type %q", domain.ErrProtocol, in.Type)
	}
}

// dispatch decodes a frame and offers it to the session queue without waiting.
func (c *client) dispatch(data []byte) error {
	ev, err := c.decode(data)
	if err != nil {
		return err
	}
	return c.session.Offer(ev)
}
