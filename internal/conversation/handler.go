package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/valooran/patient-intake-system/internal/auth"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

// maxMessageBytes caps a single chat message body.
const maxMessageBytes = 16 << 10

// TurnHandler is the engine surface the transports depend on.
type TurnHandler interface {
	HandleTurn(ctx context.Context, userID, message string) TurnResult
}

// Handler wires HTTP requests to the conversation engine.
type Handler struct {
	engine TurnHandler
	logger *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(engine TurnHandler, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("conversation: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Not authorized"})
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode chat request", "error", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "Invalid request body"})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "Message is required"})
		return
	}

	result := h.engine.HandleTurn(r.Context(), identity.UserID, message)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
