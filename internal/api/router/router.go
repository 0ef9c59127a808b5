package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/leadqual-platform/internal/business"
	"github.com/wolfman30/leadqual-platform/internal/calendar"
	"github.com/wolfman30/leadqual-platform/internal/conversation"
	httpmiddleware "github.com/wolfman30/leadqual-platform/internal/http/middleware"
	"github.com/wolfman30/leadqual-platform/internal/leads"
	"github.com/wolfman30/leadqual-platform/internal/meetings"
	"github.com/wolfman30/leadqual-platform/internal/messaging"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	LeadsHandler        *leads.Handler
	MessagingHandler    *messaging.Handler
	ConversationHandler *conversation.Handler
	MeetingsHandler     *meetings.Handler
	BusinessHandler     *business.Handler
	CalendarHandler     *calendar.Handler

	// Resolves X-API-Key on lead intake.
	APIKeys   httpmiddleware.BusinessLookup
	JWTSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	IntakeLimiter      *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	intake := func(next http.Handler) http.Handler { return next }
	if cfg.IntakeLimiter != nil {
		intake = httpmiddleware.RateLimit(cfg.IntakeLimiter)
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.MessagingHandler != nil {
			public.With(intake).Post("/webhooks/twilio", cfg.MessagingHandler.TwilioWebhook)
		}
	})

	// Server-to-server lead intake
	if cfg.LeadsHandler != nil && cfg.APIKeys != nil {
		r.With(httpmiddleware.APIKey(cfg.APIKeys), intake).Post("/api/leads", cfg.LeadsHandler.CreateLead)
	}

	// Dashboard API scoped by the business_id claim
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.BusinessJWT(cfg.JWTSecret))

		if cfg.LeadsHandler != nil {
			api.Get("/api/leads", cfg.LeadsHandler.ListLeads)
			api.Get("/api/leads/{leadID}", cfg.LeadsHandler.GetLead)
			api.Patch("/api/leads/{leadID}/status", cfg.LeadsHandler.UpdateStatus)
		}
		if cfg.ConversationHandler != nil {
			api.Get("/api/conversations/{conversationID}/messages", cfg.ConversationHandler.Messages)
			api.Post("/api/conversations/{conversationID}/close", cfg.ConversationHandler.Close)
			api.Get("/api/jobs/{jobID}", cfg.ConversationHandler.JobStatus)
		}
		if cfg.MeetingsHandler != nil {
			api.Get("/api/availability", cfg.MeetingsHandler.Availability)
			api.Post("/api/meetings", cfg.MeetingsHandler.Book)
			api.Get("/api/meetings", cfg.MeetingsHandler.List)
			api.Post("/api/meetings/{meetingID}/cancel", cfg.MeetingsHandler.Cancel)
		}
		if cfg.BusinessHandler != nil {
			api.Route("/api/business", func(b chi.Router) {
				b.Get("/hours", cfg.BusinessHandler.GetHours)
				b.Put("/hours", cfg.BusinessHandler.PutHours)
				b.Get("/assistant", cfg.BusinessHandler.GetAssistant)
				b.Put("/assistant", cfg.BusinessHandler.PutAssistant)
			})
		}
		if cfg.CalendarHandler != nil {
			api.Route("/api/calendar", func(c chi.Router) {
				c.Get("/connect", cfg.CalendarHandler.ConnectURL)
				c.Post("/credentials", cfg.CalendarHandler.SaveCredential)
				c.Delete("/credentials", cfg.CalendarHandler.DeleteCredential)
			})
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
