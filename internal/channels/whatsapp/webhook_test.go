package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/guestpilot/internal/rental"
)

const textEnvelope = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA_1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "PHONE_1"},
        "contacts": [{"profile": {"name": "Ada Lovelace"}, "wa_id": "15557654321"}],
        "messages": [{
          "from": "15557654321",
          "id": "wamid.HBgLMTU1NTc2NTQzMjEVAgASGBQzQUI=",
          "timestamp": "1782907200",
          "type": "text",
          "text": {"body": "Hi! What's the WiFi password? 🙏"}
        }]
      }
    }]
  }]
}`

func TestParseWebhookEvent_TextMessage(t *testing.T) {
	msg := ParseWebhookEvent([]byte(textEnvelope))
	require.NotNil(t, msg)
	assert.Equal(t, "wamid.HBgLMTU1NTc2NTQzMjEVAgASGBQzQUI=", msg.MessageID)
	assert.Equal(t, "15557654321", msg.From)
	assert.Equal(t, "Ada Lovelace", msg.GuestName)
	assert.Equal(t, "PHONE_1", msg.PhoneNumberID)
	assert.Equal(t, "Hi! What's the WiFi password? 🙏", msg.Text)
	assert.Equal(t, time.Unix(1782907200, 0).UTC(), msg.Timestamp)
}

func TestParseWebhookEvent_CanonicalMessageSurvivesJSON(t *testing.T) {
	parsed := ParseWebhookEvent([]byte(textEnvelope))
	require.NotNil(t, parsed)

	encoded, err := json.Marshal([]rental.Message{parsed.Message()})
	require.NoError(t, err)
	var decoded []rental.Message
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Len(t, decoded, 1)

	got := decoded[0]
	assert.Equal(t, parsed.Text, got.Text)
	assert.Equal(t, "15557654321", got.Sender)
	assert.False(t, got.IsUser)
	assert.True(t, got.Timestamp.Equal(time.Unix(1782907200, 0)))
}

func TestParseWebhookEvent_Ignored(t *testing.T) {
	tests := map[string]string{
		"malformed":       `{"entry": [`,
		"empty envelope":  `{}`,
		"no changes":      `{"entry":[{"id":"1"}]}`,
		"status callback": `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1","status":"delivered"}]}}]}]}`,
		"image message":   `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"wamid.2","timestamp":"1","type":"image"}]}}]}]}`,
		"text without id": `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","timestamp":"1","type":"text","text":{"body":"hi"}}]}}]}]}`,
		"wrong shape":     `{"entry":"nope"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, ParseWebhookEvent([]byte(body)))
		})
	}
}

func TestParseWebhookEvent_NameFallsBackToSender(t *testing.T) {
	body := `{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"P"},"messages":[{"from":"4917600000","id":"wamid.3","timestamp":"1700000000","type":"text","text":{"body":"Hallo"}}]}}]}]}`
	msg := ParseWebhookEvent([]byte(body))
	require.NotNil(t, msg)
	assert.Equal(t, "4917600000", msg.GuestName)
}

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(textEnvelope)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	validSig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySignature(tt.secret, tt.body, tt.signature))
		})
	}
}

func TestVerifyChallenge(t *testing.T) {
	challenge, ok := VerifyChallenge("subscribe", "tok", "CHALLENGE_123", "tok")
	assert.True(t, ok)
	assert.Equal(t, "CHALLENGE_123", challenge)

	_, ok = VerifyChallenge("subscribe", "wrong", "X", "tok")
	assert.False(t, ok)
	_, ok = VerifyChallenge("unsubscribe", "tok", "X", "tok")
	assert.False(t, ok)
	_, ok = VerifyChallenge("subscribe", "", "X", "")
	assert.False(t, ok)
}
