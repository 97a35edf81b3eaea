package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/guestpilot/internal/channels/whatsapp"
	"github.com/wolfman30/guestpilot/internal/conversation"
	"github.com/wolfman30/guestpilot/internal/events"
	"github.com/wolfman30/guestpilot/internal/intake"
	"github.com/wolfman30/guestpilot/internal/lock"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/reply"
	"github.com/wolfman30/guestpilot/internal/store/memory"
)

type stubGenerator struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (g *stubGenerator) Generate(_ context.Context, _ rental.Property, _ rental.Conversation, _ rental.Message) reply.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return reply.Result{Err: g.err}
	}
	return reply.Result{Text: g.text}
}

type stubSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *stubSender) SendText(_ context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+":"+text)
	return nil
}

type fixture struct {
	store *memory.Store
	gen   *stubGenerator
	svc   *conversation.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	_, err := st.SaveProperty(context.Background(), rental.Property{ID: "prop-1", Name: "Seaside Loft", WiFiName: "loft"})
	require.NoError(t, err)

	gen := &stubGenerator{text: "Welcome!"}
	trigger := reply.NewTrigger(gen, reply.TriggerConfig{Timeout: time.Second}, nil, nil)
	resolver := conversation.NewResolver(st, lock.NewKeyedMutex(), conversation.ResolverConfig{RetryBaseDelay: time.Millisecond}, nil, nil)
	return &fixture{store: st, gen: gen, svc: conversation.NewService(st, resolver, trigger, nil)}
}

func (f *fixture) setAutoPilot(t *testing.T, on bool) {
	t.Helper()
	p, err := f.store.GetProperty(context.Background(), "prop-1")
	require.NoError(t, err)
	p.AutoPilot = on
	_, err = f.store.SaveProperty(context.Background(), p)
	require.NoError(t, err)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const validIntake = `{"propertyId":"prop-1","guestName":"Ana","guestEmail":"ana@example.com",
	"checkInDate":"2026-01-01","checkOutDate":"2099-01-05","message":"Is parking free?"}`

func postIntake(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIntakeHandler_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	h := NewIntakeHandler(f.svc, nil, IntakeConfig{RequireStayDates: true}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/messages", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decodeBody(t, rec)["error"])
}

func TestIntakeHandler_CreatesConversation(t *testing.T) {
	f := newFixture(t)
	h := NewIntakeHandler(f.svc, nil, IntakeConfig{RequireStayDates: true}, nil, nil)

	rec := postIntake(h, validIntake)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	id, _ := body["conversationId"].(string)
	require.NotEmpty(t, id)
	_, hasReply := body["aiResponse"]
	assert.False(t, hasReply, "auto-pilot is off")

	conv, err := f.store.GetConversation(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "Is parking free?", conv.Messages[0].Text)
	assert.False(t, conv.Messages[0].IsUser)
	assert.Equal(t, 0, f.gen.calls)
}

func TestIntakeHandler_ReturnsAIResponseWhenAutoPilot(t *testing.T) {
	f := newFixture(t)
	f.setAutoPilot(t, true)
	h := NewIntakeHandler(f.svc, nil, IntakeConfig{RequireStayDates: true}, nil, nil)

	rec := postIntake(h, validIntake)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome!", decodeBody(t, rec)["aiResponse"])
	assert.Equal(t, 1, f.gen.calls)
}

func TestIntakeHandler_GenerationFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.setAutoPilot(t, true)
	f.gen.err = errors.New("model down")
	h := NewIntakeHandler(f.svc, nil, IntakeConfig{RequireStayDates: true}, nil, nil)

	rec := postIntake(h, validIntake)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reply.DefaultFallbackText, decodeBody(t, rec)["aiResponse"])
}

func TestIntakeHandler_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{
			name:    "malformed json",
			body:    `{"propertyId":`,
			status:  http.StatusBadRequest,
			message: "Invalid JSON body",
		},
		{
			name:    "missing guest name",
			body:    `{"propertyId":"prop-1","guestEmail":"ana@example.com","message":"hi"}`,
			status:  http.StatusBadRequest,
			message: "Guest Name is required",
		},
		{
			name:    "unknown property",
			body:    strings.Replace(validIntake, "prop-1", "prop-404", 1),
			status:  http.StatusNotFound,
			message: "Property not found",
		},
		{
			name:    "missing stay dates",
			body:    `{"propertyId":"prop-1","guestName":"Ana","guestEmail":"ana@example.com","message":"hi"}`,
			status:  http.StatusBadRequest,
			message: rental.ErrMissingDates.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			h := NewIntakeHandler(f.svc, nil, IntakeConfig{RequireStayDates: true}, nil, nil)

			rec := postIntake(h, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeBody(t, rec)["error"])

			convs, err := f.store.ListConversations(context.Background(), "prop-1")
			require.NoError(t, err)
			assert.Empty(t, convs, "rejected requests write nothing")
		})
	}
}

func TestIntakeHandler_LenientDatesCreates(t *testing.T) {
	f := newFixture(t)
	h := NewIntakeHandler(f.svc, intake.NewNormalizer(), IntakeConfig{RequireStayDates: false}, nil, nil)

	rec := postIntake(h, `{"propertyId":"prop-1","guestName":"Ana","guestEmail":"ana@example.com","message":"hi"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{rental.NewValidationError("message", "Message cannot be empty"), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", rental.ErrMissingDates), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", rental.ErrPropertyNotFound), http.StatusNotFound},
		{rental.ErrConversationNotFound, http.StatusNotFound},
		{fmt.Errorf("faq x: %w", rental.ErrNotFound), http.StatusNotFound},
		{&rental.StoreError{Op: "get", Unavailable: true, Err: errors.New("dial")}, http.StatusServiceUnavailable},
		{&rental.StoreError{Op: "get", Err: errors.New("422")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, msg := statusForError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.NotEmpty(t, msg)
	}
}

func whatsappEnvelope(phoneNumberID, wamid, text string) string {
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp",
		"metadata":{"display_phone_number":"15550000000","phone_number_id":%q},
		"contacts":[{"profile":{"name":"Ana"},"wa_id":"15551234567"}],
		"messages":[{"from":"15551234567","id":%q,"timestamp":"1767261600","type":"text","text":{"body":%q}}]
	}}]}]}`, phoneNumberID, wamid, text)
}

func newWhatsAppHandler(t *testing.T, f *fixture, cfg WhatsAppConfig, sender whatsapp.TextSender) *WhatsAppHandler {
	t.Helper()
	router := whatsapp.NewPropertyRouter(map[string]string{"pn-1": "prop-1"}, "")
	adapter := whatsapp.NewAdapter(f.svc, router, sender, events.NewMemoryProcessedStore(time.Hour), whatsapp.AdapterConfig{AllowUndated: true}, nil, nil)
	return NewWhatsAppHandler(adapter, cfg, nil, nil)
}

func TestWhatsAppHandler_Verification(t *testing.T) {
	f := newFixture(t)
	h := newWhatsAppHandler(t, f, WhatsAppConfig{VerifyToken: "secret-token"}, nil)

	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{"accepted", "hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=secret-token&hub.challenge=42", http.StatusForbidden, ""},
		{"missing challenge", "hub.mode=subscribe&hub.verify_token=secret-token", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestWhatsAppHandler_InboundStoresAndReplies(t *testing.T) {
	f := newFixture(t)
	f.setAutoPilot(t, true)
	sender := &stubSender{}
	h := newWhatsAppHandler(t, f, WhatsAppConfig{}, sender)

	body := whatsappEnvelope("pn-1", "wamid.1", "Where are the towels?")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["success"])
	assert.Equal(t, []string{"15551234567:Welcome!"}, sender.sent)

	convs, err := f.store.ListConversations(context.Background(), "prop-1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 2)
	assert.Equal(t, "Where are the towels?", convs[0].Messages[0].Text)
	assert.Equal(t, conversation.AISender, convs[0].Messages[1].Sender)

	// Meta redelivers the same wamid.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.gen.calls)
	assert.Len(t, sender.sent, 1)
}

func TestWhatsAppHandler_InboundErrors(t *testing.T) {
	f := newFixture(t)
	h := newWhatsAppHandler(t, f, WhatsAppConfig{}, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"status callback", `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.x","status":"read"}]}}]}]}`, http.StatusBadRequest},
		{"not json", `hello`, http.StatusBadRequest},
		{"unroutable", whatsappEnvelope("pn-unknown", "wamid.2", "hi"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/webhooks/whatsapp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWhatsAppHandler_Signature(t *testing.T) {
	f := newFixture(t)
	h := newWhatsAppHandler(t, f, WhatsAppConfig{AppSecret: "app-secret"}, nil)
	body := whatsappEnvelope("pn-1", "wamid.3", "hi")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write([]byte(body))
	req = httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
