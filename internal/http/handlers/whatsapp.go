package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/guestpilot/internal/channels/whatsapp"
	"github.com/wolfman30/guestpilot/internal/observability/metrics"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// WhatsAppProcessor handles one parsed inbound message.
type WhatsAppProcessor interface {
	Process(ctx context.Context, msg whatsapp.ParsedMessage) error
}

// WhatsAppConfig holds the Meta webhook credentials.
type WhatsAppConfig struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret string
}

// WhatsAppHandler serves the WhatsApp Business webhook.
type WhatsAppHandler struct {
	processor   WhatsAppProcessor
	verifyToken string
	appSecret   string
	metrics     *metrics.IntakeMetrics
	logger      *logging.Logger
}

func NewWhatsAppHandler(processor WhatsAppProcessor, cfg WhatsAppConfig, m *metrics.IntakeMetrics, logger *logging.Logger) *WhatsAppHandler {
	if processor == nil {
		panic("handlers: whatsapp processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppHandler{
		processor:   processor,
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		metrics:     m,
		logger:      logger,
	}
}

func (h *WhatsAppHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerification(w, r)
	case http.MethodPost:
		start := time.Now()
		status := h.handleInbound(w, r)
		h.metrics.ObserveInbound(whatsapp.Provider, status)
		h.metrics.ObserveLatency(whatsapp.Provider, time.Since(start).Seconds())
	default:
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WhatsAppHandler) handleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, token, challenge := q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge")
	if mode == "" || token == "" || challenge == "" {
		http.Error(w, "Missing parameters", http.StatusBadRequest)
		return
	}
	echo, ok := whatsapp.VerifyChallenge(mode, token, challenge, h.verifyToken)
	if !ok {
		h.logger.Warn("whatsapp verification rejected", "mode", mode)
		http.Error(w, "Invalid verification token", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, echo)
}

func (h *WhatsAppHandler) handleInbound(w http.ResponseWriter, r *http.Request) int {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		jsonError(w, "Invalid message format", http.StatusBadRequest)
		return http.StatusBadRequest
	}
	if h.appSecret != "" && !whatsapp.VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		jsonError(w, "Invalid signature", http.StatusUnauthorized)
		return http.StatusUnauthorized
	}

	msg := whatsapp.ParseWebhookEvent(body)
	if msg == nil {
		jsonError(w, "Invalid message format", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	if err := h.processor.Process(r.Context(), *msg); err != nil {
		if errors.Is(err, whatsapp.ErrUnroutable) || errors.Is(err, rental.ErrPropertyNotFound) {
			h.logger.Warn("whatsapp message for unknown property", "phone_number_id", msg.PhoneNumberID, "error", err)
			jsonError(w, "Property not found", http.StatusNotFound)
			return http.StatusNotFound
		}
		h.logger.Error("whatsapp webhook failed", "message_id", msg.MessageID, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return http.StatusInternalServerError
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	return http.StatusOK
}
