package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/valooran/patient-intake-system/internal/appointments"
	"github.com/valooran/patient-intake-system/internal/conversation"
	"github.com/valooran/patient-intake-system/internal/feedback"
	httpmiddleware "github.com/valooran/patient-intake-system/internal/http/middleware"
	"github.com/valooran/patient-intake-system/internal/webchat"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	AppointmentsHandler *appointments.Handler
	FeedbackHandler     *feedback.Handler
	WebChatHandler      *webchat.Handler
	MetricsHandler      http.Handler
	JWTSecret           string
	CORS                httpmiddleware.CORSPolicy

	// ChatLimiter throttles chat turns per user. Optional.
	ChatLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.CORS.Enabled() {
		r.Use(httpmiddleware.CORS(cfg.CORS))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		// The websocket authenticates from its query string before upgrading.
		if cfg.WebChatHandler != nil {
			public.Get("/api/chat/ws", cfg.WebChatHandler.HandleWebSocket)
		}
	})

	r.Group(func(api chi.Router) {
		api.Use(middleware.Compress(5))
		api.Use(httpmiddleware.RequireUser(cfg.JWTSecret))

		if cfg.ConversationHandler != nil {
			chat := api.With()
			if cfg.ChatLimiter != nil {
				chat = chat.With(httpmiddleware.UserRateLimit(cfg.ChatLimiter))
			}
			chat.Post("/api/chat", cfg.ConversationHandler.Chat)
		}

		if cfg.AppointmentsHandler != nil {
			api.Route("/api/appointments", func(r chi.Router) {
				r.Post("/", cfg.AppointmentsHandler.Book)
				r.Get("/user", cfg.AppointmentsHandler.ListMine)
				r.With(httpmiddleware.RequireAdmin).Get("/", cfg.AppointmentsHandler.ListAll)
				r.With(httpmiddleware.RequireAdmin).Patch("/{id}", cfg.AppointmentsHandler.UpdateStatus)
			})
		}

		if cfg.FeedbackHandler != nil {
			api.Route("/api/feedback", func(r chi.Router) {
				r.Post("/", cfg.FeedbackHandler.Submit)
				r.With(httpmiddleware.RequireAdmin).Get("/", cfg.FeedbackHandler.List)
			})
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
