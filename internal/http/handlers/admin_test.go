package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/guestpilot/internal/lock"
	"github.com/wolfman30/guestpilot/internal/property"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/reply"
)

type stubPreviewer struct {
	got rental.Message
	res reply.Result
}

func (p *stubPreviewer) Preview(_ context.Context, _ rental.Property, msg rental.Message) reply.Result {
	p.got = msg
	return p.res
}

func newAdmin(t *testing.T) (*fixture, http.Handler, *stubPreviewer) {
	t.Helper()
	f := newFixture(t)
	preview := &stubPreviewer{res: reply.Result{Text: "Parking is free.", Prompt: "You are a helpful property manager"}}
	h := NewAdminHandler(property.NewService(f.store, lock.NewKeyedMutex(), nil), f.svc, preview, nil)
	return f, h.Routes(), preview
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdmin_Properties(t *testing.T) {
	f, h, _ := newAdmin(t)

	rec := do(h, http.MethodGet, "/properties", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["properties"], 1)

	rec = do(h, http.MethodGet, "/properties/prop-404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Property not found", decodeBody(t, rec)["error"])

	rec = do(h, http.MethodPut, "/properties/prop-1", `{"doorCode":"4821","houseRules":["No parties"," ","Quiet after 10pm"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p, err := f.store.GetProperty(context.Background(), "prop-1")
	require.NoError(t, err)
	assert.Equal(t, "4821", p.DoorCode)
	assert.Equal(t, "Seaside Loft", p.Name, "untouched fields keep their values")
	assert.Equal(t, []string{"No parties", "Quiet after 10pm"}, p.HouseRules)

	rec = do(h, http.MethodPut, "/properties/prop-1", `{"maxGuests":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPut, "/properties/prop-1", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_AutoPilot(t *testing.T) {
	f, h, _ := newAdmin(t)

	rec := do(h, http.MethodPut, "/properties/prop-1/autopilot", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	p, err := f.store.GetProperty(context.Background(), "prop-1")
	require.NoError(t, err)
	assert.True(t, p.AutoPilot)

	rec = do(h, http.MethodPut, "/properties/prop-1/autopilot", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_Instructions(t *testing.T) {
	_, h, _ := newAdmin(t)

	rec := do(h, http.MethodPost, "/properties/prop-1/instructions", `{"type":"tone","content":"Be warm","priority":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, true, created["isActive"], "instructions default to active")

	rec = do(h, http.MethodPost, "/properties/prop-1/instructions", `{"type":"mood","content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/properties/prop-1/instructions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["instructions"], 1)

	rec = do(h, http.MethodDelete, "/properties/prop-1/instructions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(h, http.MethodDelete, "/properties/prop-1/instructions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_FAQ(t *testing.T) {
	_, h, _ := newAdmin(t)

	rec := do(h, http.MethodPost, "/properties/prop-1/faq", `{"question":"Pets?","answer":"Small dogs only"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "general", created["category"])
	id, _ := created["id"].(string)

	rec = do(h, http.MethodGet, "/properties/prop-1/faq", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["faq"], 1)

	rec = do(h, http.MethodPost, "/properties/prop-1/faq", `{"question":"Pets?"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodDelete, "/properties/prop-1/faq/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdmin_UpdateInstruction(t *testing.T) {
	f, h, _ := newAdmin(t)

	rec := do(h, http.MethodPost, "/properties/prop-1/instructions", `{"type":"tone","content":"Be warm","priority":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := decodeBody(t, rec)["id"].(string)

	rec = do(h, http.MethodPut, "/properties/prop-1/instructions/"+id, `{"content":"Be brief","isActive":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Be brief", body["content"])
	assert.Equal(t, false, body["isActive"])
	assert.Equal(t, "tone", body["type"], "omitted fields keep their values")

	p, err := f.store.GetProperty(context.Background(), "prop-1")
	require.NoError(t, err)
	require.Len(t, p.Instructions, 1)
	assert.Equal(t, "Be brief", p.Instructions[0].Content)

	rec = do(h, http.MethodPut, "/properties/prop-1/instructions/"+id, `{"content":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPut, "/properties/prop-1/instructions/missing", `{"content":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodPut, "/properties/prop-404/instructions/"+id, `{"content":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_UpdateFAQ(t *testing.T) {
	f, h, _ := newAdmin(t)

	rec := do(h, http.MethodPost, "/properties/prop-1/faq", `{"question":"Pets?","answer":"No"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := decodeBody(t, rec)["id"].(string)

	rec = do(h, http.MethodPut, "/properties/prop-1/faq/"+id, `{"answer":"Small dogs only","category":"house-rules"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Small dogs only", body["answer"])
	assert.Equal(t, "Pets?", body["question"])

	rec = do(h, http.MethodPut, "/properties/prop-1/faq/"+id, `{"useCount":-2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPut, "/properties/prop-1/faq/"+id, `{"category":"pool"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPut, "/properties/prop-1/faq/missing", `{"answer":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i := 0; i < 2; i++ {
		rec = do(h, http.MethodPost, "/properties/prop-1/faq/"+id+"/use", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.EqualValues(t, 2, decodeBody(t, rec)["useCount"])

	p, err := f.store.GetProperty(context.Background(), "prop-1")
	require.NoError(t, err)
	require.Len(t, p.FAQ, 1)
	assert.Equal(t, 2, p.FAQ[0].UseCount)

	rec = do(h, http.MethodPost, "/properties/prop-1/faq/missing/use", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_Sandbox(t *testing.T) {
	f, h, preview := newAdmin(t)

	rec := do(h, http.MethodPost, "/properties/prop-1/sandbox", `{"message":"Is parking free?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Parking is free.", body["reply"])
	assert.Equal(t, "You are a helpful property manager", body["prompt"])
	assert.Equal(t, "Is parking free?", preview.got.Text)

	convs, err := f.store.ListConversations(context.Background(), "prop-1")
	require.NoError(t, err)
	assert.Empty(t, convs, "sandbox persists nothing")

	rec = do(h, http.MethodPost, "/properties/prop-1/sandbox", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	preview.res = reply.Result{Err: rental.ErrReplyGeneration}
	rec = do(h, http.MethodPost, "/properties/prop-1/sandbox", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAdmin_Conversations(t *testing.T) {
	f, h, _ := newAdmin(t)
	intakeHandler := NewIntakeHandler(f.svc, nil, IntakeConfig{RequireStayDates: true}, nil, nil)
	created := decodeBody(t, postIntake(intakeHandler, validIntake))
	id := created["conversationId"].(string)

	rec := do(h, http.MethodGet, "/properties/prop-1/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["conversations"], 1)

	rec = do(h, http.MethodGet, "/properties/prop-404/conversations", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodPost, "/conversations/"+id+"/messages", `{"text":"Yes, parking is free."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["delivered"])

	conv, err := f.store.GetConversation(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.True(t, conv.Messages[1].IsUser)
	assert.Equal(t, "Host", conv.Messages[1].Sender)

	rec = do(h, http.MethodPost, "/conversations/"+id+"/messages", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/conversations/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodDelete, "/conversations/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(h, http.MethodGet, "/conversations/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Conversation not found", decodeBody(t, rec)["error"])
}
