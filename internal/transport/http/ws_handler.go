package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

// WSConfig tunes connection keepalive and buffering.
type WSConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
}

func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval:   10 * time.Second,
		PongTimeout:    5 * time.Second,
		WriteWait:      10 * time.Second,
		SendBuffer:     64,
		MaxMessageSize: 4096,
	}
}

type WSHandler struct {
	service  *app.QuizService
	tokens   *auth.Service
	hub      *Hub
	cfg      WSConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, tokens *auth.Service, hub *Hub, cfg WSConfig, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWSConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaults.PongTimeout
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	return &WSHandler{
		service: service,
		tokens:  tokens,
		hub:     hub,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// originChecker allows every origin when none are configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// ServeWS authenticates the connection, attaches it to the session named by
// pin and pumps frames until either side goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.tokens.Parse(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	code := r.URL.Query().Get("pin")
	if code == "" {
		http.Error(w, "missing pin", http.StatusBadRequest)
		return
	}
	session, err := h.service.Session(code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if claims.IsHost() && claims.Subject != session.HostID() {
		http.Error(w, "not the host of this session", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := &client{
		id:            uuid.NewString(),
		code:          code,
		participantID: claims.Subject,
		name:          claims.Name,
		host:          claims.IsHost(),
		session:       session,
		send:          make(chan []byte, h.cfg.SendBuffer),
	}
	logger := h.logger.With("code", code, "conn", c.id, "participant", c.participantID, "host", c.host)

	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go h.writePump(ctx, conn, c, writerDone, logger)

	h.hub.attach(c)
	var attach app.Event = app.Join{Origin: app.Origin{ConnectionID: c.id}, ParticipantID: c.participantID, DisplayName: c.name}
	if c.host {
		attach = app.HostAttach{Origin: app.Origin{ConnectionID: c.id}}
	}
	if err := session.Post(ctx, attach); err != nil {
		c.fail(err)
	} else {
		logger.Info("connection attached")
		h.readPump(conn, c, logger)
	}

	h.hub.detach(c)
	detachCtx, detachCancel := context.WithTimeout(context.Background(), time.Second)
	if err := session.Post(detachCtx, app.Disconnect{
		Origin:        app.Origin{ConnectionID: c.id},
		ParticipantID: c.participantID,
		Host:          c.host,
	}); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
		logger.Warn("failed to report disconnect", "error", err)
	}
	detachCancel()
	cancel()
	<-writerDone
	_ = conn.Close()
	logger.Info("connection closed")
}

func (h *WSHandler) readPump(conn *websocket.Conn, c *client, logger *slog.Logger) {
	pongWait := h.cfg.PingInterval + h.cfg.PongTimeout
	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws read error", "error", err)
			}
			return
		}
		if err := c.dispatch(data); err != nil {
			logger.Warn("inbound frame rejected", "error", err)
			c.fail(err)
			if errors.Is(err, domain.ErrSessionClosed) {
				return
			}
		}
	}
}

// writePump is the only writer of conn.
func (h *WSHandler) writePump(ctx context.Context, conn *websocket.Conn, c *client, done chan<- struct{}, logger *slog.Logger) {
	defer close(done)
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Warn("ws write error", "error", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				_ = conn.Close()
				return
			}
		case <-c.session.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(h.cfg.WriteWait))
			_ = conn.Close()
			return
		case <-ctx.Done():
			h.drain(conn, c)
			return
		}
	}
}

// drain flushes frames queued before the reader gave up, such as an error reply.
func (h *WSHandler) drain(conn *websocket.Conn, c *client) {
	for {
		select {
		case frame := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
