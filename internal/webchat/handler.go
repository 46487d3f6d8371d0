// Package webchat serves the diagnostic conversation over a websocket.
package webchat

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/valooran/patient-intake-system/internal/auth"
	"github.com/valooran/patient-intake-system/internal/conversation"
	"github.com/valooran/patient-intake-system/internal/observability/metrics"
	"github.com/valooran/patient-intake-system/pkg/logging"
	"golang.org/x/net/websocket"
)

// maxFrameBytes caps one inbound websocket frame.
const maxFrameBytes = 16 << 10

// Authenticator turns a bearer token into a verified identity.
type Authenticator func(token string) (auth.Identity, error)

// TurnLimiter decides whether a user may start another chat turn.
type TurnLimiter interface {
	Allow(key string) bool
}

// Handler manages websocket chat connections.
type Handler struct {
	engine       conversation.TurnHandler
	authenticate Authenticator
	logger       *logging.Logger
	limiter      TurnLimiter
	metrics      *metrics.ConversationMetrics
}

type Option func(*Handler)

// WithTurnLimiter throttles message frames per user, sharing buckets with POST /api/chat.
func WithTurnLimiter(l TurnLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

func WithMetrics(m *metrics.ConversationMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.conn, msg)
}

// InboundMessage is what the client sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what the server sends.
type OutboundMessage struct {
	Type      string                   `json:"type"` // "ready", "typing", "reply", "pong", "error"
	Text      string                   `json:"text,omitempty"`
	Result    *conversation.TurnResult `json:"result,omitempty"`
	Timestamp string                   `json:"timestamp,omitempty"`
}

// NewHandler creates a web chat handler.
func NewHandler(engine conversation.TurnHandler, authenticate Authenticator, logger *logging.Logger, opts ...Option) *Handler {
	if engine == nil {
		panic("webchat: engine cannot be nil")
	}
	if authenticate == nil {
		panic("webchat: authenticator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		engine:       engine,
		authenticate: authenticate,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleWebSocket authenticates the caller, then upgrades to a websocket. Browsers cannot
// set headers on websocket requests, so the token may also arrive as ?token=.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	if token == "" {
		writeMsg(w, http.StatusUnauthorized, "No token")
		return
	}
	identity, err := h.authenticate(token)
	if err != nil {
		writeMsg(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		conn.MaxPayloadBytes = maxFrameBytes
		// Hijacked connections keep the server's request deadlines.
		_ = conn.SetDeadline(time.Time{})
		h.serveWS(conn, r, identity)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request, identity auth.Identity) {
	ctx := auth.WithIdentity(r.Context(), identity)
	wsc := &wsConn{conn: conn}

	h.metrics.WebChatConnected()
	defer h.metrics.WebChatDisconnected()

	h.logger.Info("webchat: connection opened", "user_id", identity.UserID)
	_ = wsc.send(OutboundMessage{Type: "ready", Timestamp: now()})

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "user_id", identity.UserID, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = wsc.send(OutboundMessage{Type: "pong"})
		case "message":
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				_ = wsc.send(OutboundMessage{Type: "error", Text: "Message is required"})
				continue
			}
			if h.limiter != nil && !h.limiter.Allow(identity.UserID) {
				h.logger.Warn("webchat: turn rate limited", "user_id", identity.UserID)
				_ = wsc.send(OutboundMessage{Type: "error", Text: "Too many requests"})
				continue
			}
			_ = wsc.send(OutboundMessage{Type: "typing"})
			result := h.engine.HandleTurn(ctx, identity.UserID, text)
			if err := wsc.send(OutboundMessage{Type: "reply", Result: &result, Timestamp: now()}); err != nil {
				h.logger.Warn("webchat: failed to deliver reply", "user_id", identity.UserID, "error", err)
				return
			}
		default:
			_ = wsc.send(OutboundMessage{Type: "error", Text: "Unsupported message type"})
		}
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}
