// Package whatsapp adapts the WhatsApp Business Cloud API: webhook parsing
// and verification, outbound sends and routing inbound messages into the
// conversation service.
package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/guestpilot/internal/rental"
)

// ParseWebhookEvent extracts the first text message from a webhook body.
// It returns nil for status callbacks, non-text messages, empty envelopes
// and malformed bodies.
func ParseWebhookEvent(body []byte) *ParsedMessage {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil
	}
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text == nil || m.From == "" || m.ID == "" {
					continue
				}
				parsed := &ParsedMessage{
					MessageID:     m.ID,
					From:          m.From,
					GuestName:     m.From,
					Text:          m.Text.Body,
					Timestamp:     parseUnix(m.Timestamp),
					PhoneNumberID: change.Value.Metadata.PhoneNumberID,
				}
				for _, c := range change.Value.Contacts {
					if (c.WaID == "" || c.WaID == m.From) && strings.TrimSpace(c.Profile.Name) != "" {
						parsed.GuestName = strings.TrimSpace(c.Profile.Name)
						break
					}
				}
				return parsed
			}
		}
	}
	return nil
}

func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}

// Message converts the parsed message into a thread entry.
func (p ParsedMessage) Message() rental.Message {
	return rental.Message{
		ID:        p.MessageID,
		Text:      p.Text,
		IsUser:    false,
		Timestamp: p.Timestamp,
		Sender:    p.From,
	}
}

// VerifyChallenge answers Meta's subscription handshake. It returns the
// challenge to echo and true when the mode and token are accepted.
func VerifyChallenge(mode, token, challenge, verifyToken string) (string, bool) {
	if mode != "subscribe" || verifyToken == "" {
		return "", false
	}
	if !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", false
	}
	return challenge, true
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sigHex)))
}
