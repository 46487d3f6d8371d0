package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valooran/patient-intake-system/internal/appointments"
	"github.com/valooran/patient-intake-system/internal/auth"
	"github.com/valooran/patient-intake-system/internal/conversation"
	"github.com/valooran/patient-intake-system/internal/feedback"
	httpmiddleware "github.com/valooran/patient-intake-system/internal/http/middleware"
	"github.com/valooran/patient-intake-system/internal/observability/metrics"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

const testSecret = "router-secret"

type testEnv struct {
	router http.Handler
	client *conversation.StubLLMClient
}

func newTestRouter(t *testing.T) *testEnv {
	t.Helper()

	logger := logging.New("error")
	reg := prometheus.NewRegistry()

	client := conversation.NewStubLLMClient()
	store := conversation.NewMemorySessionStore()
	engine := conversation.NewEngine(client, store, logger,
		conversation.WithMetrics(metrics.NewConversationMetrics(reg)))

	apptService := appointments.NewService(appointments.NewInMemoryRepository(), logger,
		appointments.WithMetrics(metrics.NewAppointmentMetrics(reg)))
	feedbackService := feedback.NewService(feedback.NewInMemoryRepository(), logger)

	cfg := &Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(engine, logger),
		AppointmentsHandler: appointments.NewHandler(apptService, logger),
		FeedbackHandler:     feedback.NewHandler(feedbackService, logger),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		JWTSecret:           testSecret,
	}
	return &testEnv{router: New(cfg), client: client}
}

func bearer(t *testing.T, identity auth.Identity) string {
	t.Helper()
	token, err := httpmiddleware.MintToken(testSecret, identity, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t)
	rr := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterRequiresToken(t *testing.T) {
	env := newTestRouter(t)
	for _, path := range []string{"/api/chat", "/api/appointments", "/api/feedback"} {
		rr := env.do(t, http.MethodPost, path, "", map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestRouterAdminRoutesRejectPatients(t *testing.T) {
	env := newTestRouter(t)
	patient := bearer(t, auth.Identity{UserID: "patient-1", Role: auth.RoleUser})

	rr := env.do(t, http.MethodGet, "/api/appointments", patient, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = env.do(t, http.MethodPatch, "/api/appointments/abc", patient, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/feedback", patient, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

// A patient describes a headache, receives a diagnosis, books, and an admin approves.
func TestRouterHeadacheToApprovedAppointment(t *testing.T) {
	env := newTestRouter(t)
	env.client.QuestionsBeforeConclusion = 2
	patient := bearer(t, auth.Identity{UserID: "patient-1", Role: auth.RoleUser})
	admin := bearer(t, auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})

	messages := []string{
		"I've had a headache for three days",
		"It's a dull pressure around my forehead",
		"No fever or vision problems, mostly after work",
	}
	var last map[string]any
	for i, msg := range messages {
		rr := env.do(t, http.MethodPost, "/api/chat", patient, map[string]string{"message": msg})
		require.Equal(t, http.StatusOK, rr.Code, "turn %d", i)
		last = map[string]any{}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&last))
		if i < len(messages)-1 {
			assert.Equal(t, false, last["isConclusion"], "turn %d", i)
		}
	}
	require.Equal(t, true, last["isConclusion"])
	disease, _ := last["disease"].(string)
	require.NotEmpty(t, disease)
	severity, _ := last["severity"].(string)
	var meds []string
	for _, m := range last["medications"].([]any) {
		meds = append(meds, m.(string))
	}

	rr := env.do(t, http.MethodPost, "/api/appointments", patient, map[string]any{
		"doctor":            "Dr. Rao",
		"hospital":          "City General",
		"time":              time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"diseaseConclusion": disease,
		"severity":          severity,
		"medications":       meds,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var booked appointments.Appointment
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&booked))
	assert.Equal(t, appointments.StatusPending, booked.Status)

	rr = env.do(t, http.MethodPatch, "/api/appointments/"+booked.ID, admin, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodPatch, "/api/appointments/"+booked.ID, admin, map[string]string{"status": "rejected"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/appointments/user", patient, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var mine []appointments.Appointment
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&mine))
	require.Len(t, mine, 1)
	assert.Equal(t, appointments.StatusApproved, mine[0].Status)
	assert.Equal(t, disease, mine[0].DiseaseConclusion)

	rr = env.do(t, http.MethodPost, "/api/feedback", patient, map[string]any{"rating": 5, "comment": "quick and clear"})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/feedback", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "intake_conversation_turns_total")
	assert.Contains(t, rr.Body.String(), "intake_appointments_booked_total")
}
