// Package router assembles the public HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/guestpilot/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/guestpilot/internal/http/middleware"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	IntakeHandler   http.Handler
	WhatsAppHandler http.Handler
	AdminHandler    *handlers.AdminHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler

	CORSAllowedOrigins []string

	// Per-IP limits on the webhook endpoints. Zero disables limiting.
	WebhookRateLimit float64
	WebhookRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", handlers.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Webhooks. The /.netlify/functions paths keep existing integrations working.
	r.Group(func(webhooks chi.Router) {
		webhooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateBurst))
		if cfg.IntakeHandler != nil {
			webhooks.Handle("/webhooks/messages", cfg.IntakeHandler)
			webhooks.Handle("/.netlify/functions/receive-message", cfg.IntakeHandler)
		}
		if cfg.WhatsAppHandler != nil {
			webhooks.Handle("/webhooks/whatsapp", cfg.WhatsAppHandler)
			webhooks.Handle("/.netlify/functions/whatsapp-webhook", cfg.WhatsAppHandler)
		}
	})

	// Host console, only served when a signing secret is configured.
	if cfg.AdminHandler != nil && cfg.AdminAuthSecret != "" {
		r.With(httpmiddleware.AdminJWT(cfg.AdminAuthSecret)).Mount("/admin", cfg.AdminHandler.Routes())
	}

	return r
}
