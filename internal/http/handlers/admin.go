package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/guestpilot/internal/http/middleware"
	"github.com/wolfman30/guestpilot/internal/property"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/reply"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// PropertyAdmin is the property side of the console.
type PropertyAdmin interface {
	List(ctx context.Context) ([]rental.Property, error)
	Get(ctx context.Context, id string) (rental.Property, error)
	Update(ctx context.Context, id string, u property.Update) (rental.Property, error)
	SetAutoPilot(ctx context.Context, id string, enabled bool) (rental.Property, error)
	AddInstruction(ctx context.Context, id string, in rental.AIInstruction) (rental.AIInstruction, error)
	UpdateInstruction(ctx context.Context, id, instructionID string, u property.InstructionUpdate) (rental.AIInstruction, error)
	DeleteInstruction(ctx context.Context, id, instructionID string) error
	AddFAQ(ctx context.Context, id string, item rental.FAQItem) (rental.FAQItem, error)
	UpdateFAQ(ctx context.Context, id, faqID string, u property.FAQUpdate) (rental.FAQItem, error)
	RecordFAQUse(ctx context.Context, id, faqID string) (rental.FAQItem, error)
	DeleteFAQ(ctx context.Context, id, faqID string) error
}

// ConversationAdmin is the conversation side of the console.
type ConversationAdmin interface {
	ListConversations(ctx context.Context, propertyID string) ([]rental.Conversation, error)
	GetConversation(ctx context.Context, id string) (rental.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	AddHostMessage(ctx context.Context, conversationID, text, sender string) (rental.Conversation, error)
}

// Previewer generates a reply without persisting anything.
type Previewer interface {
	Preview(ctx context.Context, p rental.Property, msg rental.Message) reply.Result
}

// AdminHandler serves the host console API.
type AdminHandler struct {
	properties    PropertyAdmin
	conversations ConversationAdmin
	previewer     Previewer
	logger        *logging.Logger
}

func NewAdminHandler(properties PropertyAdmin, conversations ConversationAdmin, previewer Previewer, logger *logging.Logger) *AdminHandler {
	if properties == nil || conversations == nil {
		panic("handlers: admin services cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{properties: properties, conversations: conversations, previewer: previewer, logger: logger}
}

// Routes returns the console routes, relative to the admin mount point.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/properties", func(r chi.Router) {
		r.Get("/", h.ListProperties)
		r.Route("/{propertyID}", func(r chi.Router) {
			r.Get("/", h.GetProperty)
			r.Put("/", h.UpdateProperty)
			r.Put("/autopilot", h.SetAutoPilot)
			r.Get("/instructions", h.ListInstructions)
			r.Post("/instructions", h.AddInstruction)
			r.Put("/instructions/{instructionID}", h.UpdateInstruction)
			r.Delete("/instructions/{instructionID}", h.DeleteInstruction)
			r.Get("/faq", h.ListFAQ)
			r.Post("/faq", h.AddFAQ)
			r.Put("/faq/{faqID}", h.UpdateFAQ)
			r.Post("/faq/{faqID}/use", h.RecordFAQUse)
			r.Delete("/faq/{faqID}", h.DeleteFAQ)
			r.Post("/sandbox", h.Sandbox)
			r.Get("/conversations", h.ListConversations)
		})
	})
	r.Route("/conversations/{conversationID}", func(r chi.Router) {
		r.Get("/", h.GetConversation)
		r.Delete("/", h.DeleteConversation)
		r.Post("/messages", h.AddMessage)
	})
	return r
}

func (h *AdminHandler) ListProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.properties.List(r.Context())
	if err != nil {
		h.fail(w, "list properties", err)
		return
	}
	if props == nil {
		props = []rental.Property{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": props})
}

func (h *AdminHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.properties.Get(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		h.fail(w, "get property", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	var u property.Update
	if err := decodeJSON(w, r, &u); err != nil {
		h.fail(w, "update property", err)
		return
	}
	p, err := h.properties.Update(r.Context(), chi.URLParam(r, "propertyID"), u)
	if err != nil {
		h.fail(w, "update property", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) SetAutoPilot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, "set autopilot", err)
		return
	}
	if req.Enabled == nil {
		jsonError(w, "enabled is required", http.StatusBadRequest)
		return
	}
	p, err := h.properties.SetAutoPilot(r.Context(), chi.URLParam(r, "propertyID"), *req.Enabled)
	if err != nil {
		h.fail(w, "set autopilot", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) ListInstructions(w http.ResponseWriter, r *http.Request) {
	p, err := h.properties.Get(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		h.fail(w, "list instructions", err)
		return
	}
	instructions := p.Instructions
	if instructions == nil {
		instructions = []rental.AIInstruction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"instructions": instructions})
}

type instructionRequest struct {
	Type     rental.InstructionType `json:"type"`
	Content  string                 `json:"content"`
	Active   *bool                  `json:"isActive"`
	Priority int                    `json:"priority"`
}

func (h *AdminHandler) AddInstruction(w http.ResponseWriter, r *http.Request) {
	var req instructionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, "add instruction", err)
		return
	}
	in, err := h.properties.AddInstruction(r.Context(), chi.URLParam(r, "propertyID"), rental.AIInstruction{
		Type:     req.Type,
		Content:  req.Content,
		Active:   req.Active == nil || *req.Active,
		Priority: req.Priority,
	})
	if err != nil {
		h.fail(w, "add instruction", err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (h *AdminHandler) UpdateInstruction(w http.ResponseWriter, r *http.Request) {
	var u property.InstructionUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		h.fail(w, "update instruction", err)
		return
	}
	in, err := h.properties.UpdateInstruction(r.Context(), chi.URLParam(r, "propertyID"), chi.URLParam(r, "instructionID"), u)
	if err != nil {
		h.fail(w, "update instruction", err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *AdminHandler) DeleteInstruction(w http.ResponseWriter, r *http.Request) {
	err := h.properties.DeleteInstruction(r.Context(), chi.URLParam(r, "propertyID"), chi.URLParam(r, "instructionID"))
	if err != nil {
		h.fail(w, "delete instruction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListFAQ(w http.ResponseWriter, r *http.Request) {
	p, err := h.properties.Get(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		h.fail(w, "list faq", err)
		return
	}
	faq := p.FAQ
	if faq == nil {
		faq = []rental.FAQItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"faq": faq})
}

type faqRequest struct {
	Question string             `json:"question"`
	Answer   string             `json:"answer"`
	Category rental.FAQCategory `json:"category"`
	Active   *bool              `json:"isActive"`
}

func (h *AdminHandler) AddFAQ(w http.ResponseWriter, r *http.Request) {
	var req faqRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, "add faq", err)
		return
	}
	item, err := h.properties.AddFAQ(r.Context(), chi.URLParam(r, "propertyID"), rental.FAQItem{
		Question: req.Question,
		Answer:   req.Answer,
		Category: req.Category,
		Active:   req.Active == nil || *req.Active,
	})
	if err != nil {
		h.fail(w, "add faq", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *AdminHandler) UpdateFAQ(w http.ResponseWriter, r *http.Request) {
	var u property.FAQUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		h.fail(w, "update faq", err)
		return
	}
	item, err := h.properties.UpdateFAQ(r.Context(), chi.URLParam(r, "propertyID"), chi.URLParam(r, "faqID"), u)
	if err != nil {
		h.fail(w, "update faq", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// RecordFAQUse bumps the entry's use count when the host answers a guest with it.
func (h *AdminHandler) RecordFAQUse(w http.ResponseWriter, r *http.Request) {
	item, err := h.properties.RecordFAQUse(r.Context(), chi.URLParam(r, "propertyID"), chi.URLParam(r, "faqID"))
	if err != nil {
		h.fail(w, "record faq use", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *AdminHandler) DeleteFAQ(w http.ResponseWriter, r *http.Request) {
	err := h.properties.DeleteFAQ(r.Context(), chi.URLParam(r, "propertyID"), chi.URLParam(r, "faqID"))
	if err != nil {
		h.fail(w, "delete faq", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sandboxResponse struct {
	Reply  string `json:"reply"`
	Prompt string `json:"prompt"`
}

// Sandbox runs the reply generator for a test message. Nothing is persisted
// and auto-pilot is ignored.
func (h *AdminHandler) Sandbox(w http.ResponseWriter, r *http.Request) {
	if h.previewer == nil {
		jsonError(w, "Reply generation is not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, "sandbox", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		jsonError(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}
	p, err := h.properties.Get(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		h.fail(w, "sandbox", err)
		return
	}

	res := h.previewer.Preview(r.Context(), p, rental.Message{
		ID:        uuid.NewString(),
		Text:      req.Message,
		Timestamp: time.Now().UTC(),
		Sender:    "Sandbox Guest",
	})
	if res.Err != nil {
		h.logger.Warn("sandbox reply failed", "property_id", p.ID, "error", res.Err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Reply generation failed", "prompt": res.Prompt})
		return
	}
	writeJSON(w, http.StatusOK, sandboxResponse{Reply: res.Text, Prompt: res.Prompt})
}

func (h *AdminHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.conversations.ListConversations(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		h.fail(w, "list conversations", err)
		return
	}
	if convs == nil {
		convs = []rental.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *AdminHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.fail(w, "get conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *AdminHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.DeleteConversation(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		h.fail(w, "delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMessage appends a host message and forwards it to the guest where the
// channel supports it. A delivery failure still returns the stored thread.
func (h *AdminHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string `json:"text"`
		Sender string `json:"sender"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, "add message", err)
		return
	}
	sender := req.Sender
	if sender == "" {
		sender = middleware.AdminSubject(r.Context())
	}
	conv, err := h.conversations.AddHostMessage(r.Context(), chi.URLParam(r, "conversationID"), req.Text, sender)
	if err != nil && conv.ID == "" {
		h.fail(w, "add message", err)
		return
	}
	resp := map[string]any{"conversation": conv, "delivered": err == nil}
	if err != nil {
		h.logger.Warn("host message not delivered", "conversation_id", conv.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) fail(w http.ResponseWriter, op string, err error) {
	status, msg := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("admin request failed", "op", op, "status", status, "error", err)
	}
	jsonError(w, msg, status)
}
