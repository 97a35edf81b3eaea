package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/guestpilot/internal/conversation"
	"github.com/wolfman30/guestpilot/internal/events"
	"github.com/wolfman30/guestpilot/internal/intake"
	"github.com/wolfman30/guestpilot/internal/observability/metrics"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// Provider is the dedupe namespace for WhatsApp message IDs.
const Provider = "whatsapp"

// ErrUnroutable is returned when a business number maps to no property.
var ErrUnroutable = errors.New("whatsapp: no property configured for business number")

// PropertyRouter maps the receiving business phone_number_id to a property.
type PropertyRouter struct {
	byPhone  map[string]string
	fallback string
}

func NewPropertyRouter(byPhone map[string]string, defaultPropertyID string) *PropertyRouter {
	m := make(map[string]string, len(byPhone))
	for k, v := range byPhone {
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return &PropertyRouter{byPhone: m, fallback: strings.TrimSpace(defaultPropertyID)}
}

// ParsePropertyMap decodes a JSON object of phone_number_id to property ID.
func ParsePropertyMap(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("whatsapp: parse property map: %w", err)
	}
	return m, nil
}

// Route returns the property for phoneNumberID, falling back to the default.
func (r *PropertyRouter) Route(phoneNumberID string) (string, bool) {
	if id, ok := r.byPhone[strings.TrimSpace(phoneNumberID)]; ok && id != "" {
		return id, true
	}
	return r.fallback, r.fallback != ""
}

// ConversationService is the part of the conversation service the adapter drives.
type ConversationService interface {
	Intake(ctx context.Context, in intake.Inbound, allowUndated bool) (conversation.IntakeResult, error)
	RecordReply(ctx context.Context, conversationID, text string) (rental.Conversation, error)
}

// TextSender delivers a reply to a WhatsApp number.
type TextSender interface {
	SendText(ctx context.Context, to, text string) error
}

// AdapterConfig controls how WhatsApp messages open conversations.
type AdapterConfig struct {
	// AllowUndated lets a first message open a conversation without stay
	// dates; WhatsApp envelopes never carry them.
	AllowUndated bool
}

// Adapter feeds parsed WhatsApp messages into the conversation service and
// sends auto-pilot replies back over the Cloud API.
type Adapter struct {
	service      ConversationService
	router       *PropertyRouter
	sender       TextSender
	dedupe       events.Deduper
	allowUndated bool
	metrics      *metrics.IntakeMetrics
	logger       *logging.Logger
}

// NewAdapter builds an Adapter. A nil dedupe store disables redelivery
// detection; the resolver still ignores a repeated message ID.
func NewAdapter(service ConversationService, router *PropertyRouter, sender TextSender, dedupe events.Deduper, cfg AdapterConfig, m *metrics.IntakeMetrics, logger *logging.Logger) *Adapter {
	if service == nil {
		panic("whatsapp: conversation service cannot be nil")
	}
	if router == nil {
		router = NewPropertyRouter(nil, "")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{
		service:      service,
		router:       router,
		sender:       sender,
		dedupe:       dedupe,
		allowUndated: cfg.AllowUndated,
		metrics:      m,
		logger:       logger,
	}
}

// Process stores msg and, when auto-pilot produced a reply, sends it.
// Send failures are logged; the inbound message stays stored.
func (a *Adapter) Process(ctx context.Context, msg ParsedMessage) error {
	propertyID, ok := a.router.Route(msg.PhoneNumberID)
	if !ok {
		return ErrUnroutable
	}

	if a.dedupe != nil {
		first, err := a.dedupe.MarkProcessed(ctx, Provider, msg.MessageID)
		if err != nil {
			a.logger.Warn("whatsapp: dedupe unavailable, processing anyway", "message_id", msg.MessageID, "error", err)
		} else if !first {
			a.logger.Info("whatsapp: duplicate delivery skipped", "message_id", msg.MessageID)
			return nil
		}
	}

	res, err := a.service.Intake(ctx, intake.Inbound{
		PropertyID: propertyID,
		Identity:   msg.From,
		GuestName:  msg.GuestName,
		Platform:   rental.PlatformWhatsApp,
		Message:    msg.Message(),
	}, a.allowUndated)
	if err != nil {
		if a.dedupe != nil {
			if ferr := a.dedupe.Forget(context.WithoutCancel(ctx), Provider, msg.MessageID); ferr != nil {
				a.logger.Warn("whatsapp: failed to clear dedupe mark", "message_id", msg.MessageID, "error", ferr)
			}
		}
		return fmt.Errorf("whatsapp: intake %s: %w", msg.MessageID, err)
	}

	if !res.Replied || strings.TrimSpace(res.Reply) == "" {
		return nil
	}
	if a.sender == nil {
		a.logger.Warn("whatsapp: reply generated but no sender configured", "conversation_id", res.Conversation.ID)
		return nil
	}
	if err := a.sender.SendText(ctx, msg.From, res.Reply); err != nil {
		a.metrics.ObserveOutbound(Provider, "failed")
		a.logger.Error("whatsapp: failed to send reply",
			"conversation_id", res.Conversation.ID,
			"error", err,
		)
		return nil
	}
	a.metrics.ObserveOutbound(Provider, "sent")
	if _, err := a.service.RecordReply(ctx, res.Conversation.ID, res.Reply); err != nil {
		a.logger.Error("whatsapp: failed to record sent reply", "conversation_id", res.Conversation.ID, "error", err)
	}
	return nil
}
