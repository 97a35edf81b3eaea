package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/guestpilot/internal/conversation"
	"github.com/wolfman30/guestpilot/internal/intake"
	"github.com/wolfman30/guestpilot/internal/observability/metrics"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// IntakeService stores an inbound guest message.
type IntakeService interface {
	Intake(ctx context.Context, in intake.Inbound, allowUndated bool) (conversation.IntakeResult, error)
}

// IntakeConfig controls conversation creation from the generic webhook.
type IntakeConfig struct {
	// RequireStayDates rejects a first message without both stay dates.
	RequireStayDates bool
}

// IntakeHandler serves the generic JSON webhook.
type IntakeHandler struct {
	service      IntakeService
	normalizer   *intake.Normalizer
	allowUndated bool
	metrics      *metrics.IntakeMetrics
	logger       *logging.Logger
}

func NewIntakeHandler(service IntakeService, normalizer *intake.Normalizer, cfg IntakeConfig, m *metrics.IntakeMetrics, logger *logging.Logger) *IntakeHandler {
	if service == nil {
		panic("handlers: intake service cannot be nil")
	}
	if normalizer == nil {
		normalizer = intake.NewNormalizer()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &IntakeHandler{
		service:      service,
		normalizer:   normalizer,
		allowUndated: !cfg.RequireStayDates,
		metrics:      m,
		logger:       logger,
	}
}

type intakeResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversationId"`
	AIResponse     string `json:"aiResponse,omitempty"`
}

func (h *IntakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := h.serve(w, r)
	h.metrics.ObserveInbound("generic", status)
	h.metrics.ObserveLatency("generic", time.Since(start).Seconds())
}

func (h *IntakeHandler) serve(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return http.StatusMethodNotAllowed
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return http.StatusBadRequest
	}
	in, err := h.normalizer.Decode(body)
	if err != nil {
		return h.fail(w, err)
	}

	res, err := h.service.Intake(r.Context(), in, h.allowUndated)
	if err != nil {
		return h.fail(w, err)
	}

	resp := intakeResponse{Success: true, ConversationID: res.Conversation.ID}
	if res.Replied {
		resp.AIResponse = res.Reply
	}
	writeJSON(w, http.StatusOK, resp)
	return http.StatusOK
}

func (h *IntakeHandler) fail(w http.ResponseWriter, err error) int {
	status, msg := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("intake failed", "status", status, "error", err)
	} else {
		h.logger.Info("intake rejected", "status", status, "error", err)
	}
	jsonError(w, msg, status)
	return status
}
