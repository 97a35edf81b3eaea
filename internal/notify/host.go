package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// HostNotifier emails a property's host when a guest opens a new
// conversation.
type HostNotifier struct {
	email  EmailSender
	logger *logging.Logger
}

func NewHostNotifier(email EmailSender, logger *logging.Logger) *HostNotifier {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HostNotifier{email: email, logger: logger}
}

// NewConversation sends the host a summary of the first guest message.
// Properties without a host email are skipped.
func (n *HostNotifier) NewConversation(ctx context.Context, p rental.Property, conv rental.Conversation) error {
	if strings.TrimSpace(p.HostEmail) == "" {
		n.logger.Debug("notify: no host email, skipping", "property_id", p.ID)
		return nil
	}

	guest := conv.GuestName
	if guest == "" {
		guest = conv.GuestEmail
	}
	first, _ := conv.LastMessage()

	var body strings.Builder
	fmt.Fprintf(&body, "%s started a conversation about %s.\n\n", guest, p.Name)
	fmt.Fprintf(&body, "Platform: %s\n", conv.Platform)
	if conv.CheckIn != "" || conv.CheckOut != "" {
		fmt.Fprintf(&body, "Stay: %s to %s\n", conv.CheckIn, conv.CheckOut)
	}
	fmt.Fprintf(&body, "Contact: %s\n\n", conv.GuestEmail)
	fmt.Fprintf(&body, "Message:\n%s\n", first.Text)
	if p.AutoPilot {
		body.WriteString("\nAuto-pilot is on; the assistant has replied.\n")
	}

	err := n.email.Send(ctx, EmailMessage{
		To:      p.HostEmail,
		Subject: fmt.Sprintf("New guest conversation: %s", p.Name),
		Body:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("notify: new conversation %s: %w", conv.ID, err)
	}
	return nil
}
