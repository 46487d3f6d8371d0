package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/valooran/patient-intake-system/internal/auth"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

// Handler handles HTTP requests for appointments.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new appointments handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("appointments: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Book handles POST /api/appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeMsg(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode booking request", "error", err)
		writeMsg(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	appt, err := h.service.Book(r.Context(), identity.UserID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// ListMine handles GET /api/appointments/user.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeMsg(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	items, err := h.service.ListForUser(r.Context(), identity.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListAll handles GET /api/appointments (admin).
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	items, err := h.service.ListAll(r.Context(), identity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// UpdateStatus handles PATCH /api/appointments/{id} (admin).
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeMsg(w, http.StatusBadRequest, "missing appointment id")
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMsg(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, err := ParseDecision(req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}

	appt, err := h.service.SetStatus(r.Context(), identity, id, status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		writeMsg(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrValidation.Error()+": "))
	case errors.Is(err, ErrForbidden):
		writeMsg(w, http.StatusForbidden, "Admin access only")
	case errors.Is(err, ErrNotFound):
		writeMsg(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrTerminalStatus):
		writeMsg(w, http.StatusConflict, "Appointment has already been decided")
	default:
		h.logger.Error("appointment request failed", "error", err)
		writeMsg(w, http.StatusInternalServerError, "Server error")
	}
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
