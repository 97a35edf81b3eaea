package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/guestpilot/internal/intake"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/store"
	"github.com/wolfman30/guestpilot/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// AISender is the sender name recorded on AI-authored messages.
const AISender = "AI Assistant"

// Replier produces the auto-pilot reply for an inbound guest message.
type Replier interface {
	Reply(ctx context.Context, p rental.Property, conv rental.Conversation, msg rental.Message) (string, bool)
}

// Notifier tells the host about a conversation that was just opened.
type Notifier interface {
	NewConversation(ctx context.Context, p rental.Property, conv rental.Conversation) error
}

// GuestSender delivers host messages to a guest over a channel.
type GuestSender interface {
	SendText(ctx context.Context, to, text string) error
}

// IntakeResult is the outcome of one inbound guest message.
type IntakeResult struct {
	Conversation rental.Conversation
	Created      bool
	Duplicate    bool
	Reply        string
	Replied      bool
}

// Service ties the resolver, the record store and the reply trigger
// together for inbound webhooks and the admin console.
type Service struct {
	store    store.Store
	resolver *Resolver
	replier  Replier
	notifier Notifier
	senders  map[rental.Platform]GuestSender
	logger   *logging.Logger
	now      func() time.Time
	newID    func() string
}

// NewService builds a Service. A nil replier disables auto-pilot replies.
func NewService(st store.Store, resolver *Resolver, replier Replier, logger *logging.Logger) *Service {
	if st == nil {
		panic("conversation: store cannot be nil")
	}
	if resolver == nil {
		panic("conversation: resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:    st,
		resolver: resolver,
		replier:  replier,
		senders:  make(map[rental.Platform]GuestSender),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID: func() string {
			if id, err := uuid.NewV7(); err == nil {
				return id.String()
			}
			return uuid.NewString()
		},
	}
}

// WithNotifier sets the new-conversation notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithGuestSender registers the outbound sender for a platform.
func (s *Service) WithGuestSender(platform rental.Platform, sender GuestSender) *Service {
	if sender != nil {
		s.senders[platform] = sender
	}
	return s
}

// Intake places an inbound guest message in its conversation and runs the
// reply trigger. Reply failures never fail intake.
func (s *Service) Intake(ctx context.Context, in intake.Inbound, allowUndated bool) (IntakeResult, error) {
	var (
		property   rental.Property
		candidates []rental.Conversation
		propErr    error
		queryErr   error
	)
	var g errgroup.Group
	g.Go(func() error {
		property, propErr = s.store.GetProperty(ctx, in.PropertyID)
		return nil
	})
	g.Go(func() error {
		candidates, queryErr = s.store.QueryConversations(ctx, in.PropertyID, in.Identity)
		return nil
	})
	_ = g.Wait()

	// An unknown property wins over any query failure.
	if propErr != nil {
		if errors.Is(propErr, rental.ErrNotFound) {
			return IntakeResult{}, rental.ErrPropertyNotFound
		}
		return IntakeResult{}, fmt.Errorf("conversation: load property: %w", propErr)
	}
	if queryErr != nil {
		return IntakeResult{}, fmt.Errorf("conversation: query conversations: %w", queryErr)
	}
	if candidates == nil {
		candidates = []rental.Conversation{}
	}

	res, err := s.resolver.Resolve(ctx, ResolveRequest{
		PropertyID:   in.PropertyID,
		Identity:     in.Identity,
		GuestName:    in.GuestName,
		CheckIn:      in.CheckIn,
		CheckOut:     in.CheckOut,
		Platform:     in.Platform,
		Message:      in.Message,
		AllowUndated: allowUndated,
		Candidates:   candidates,
	})
	if err != nil {
		return IntakeResult{}, err
	}

	out := IntakeResult{Conversation: res.Conversation, Created: res.Created, Duplicate: res.Duplicate}
	s.logger.Info("guest message stored",
		"property_id", in.PropertyID,
		"conversation_id", res.Conversation.ID,
		"message_id", in.Message.ID,
		"created", res.Created,
		"duplicate", res.Duplicate,
	)

	if res.Created && s.notifier != nil {
		if err := s.notifier.NewConversation(ctx, property, res.Conversation); err != nil {
			s.logger.Warn("new conversation notification failed", "conversation_id", res.Conversation.ID, "error", err)
		}
	}

	// Redeliveries already had their turn at a reply.
	if res.Duplicate || s.replier == nil {
		return out, nil
	}
	out.Reply, out.Replied = s.replier.Reply(ctx, property, res.Conversation, in.Message)
	return out, nil
}

// RecordReply appends an AI-authored message to a conversation.
func (s *Service) RecordReply(ctx context.Context, conversationID, text string) (rental.Conversation, error) {
	conv, _, err := s.resolver.Append(ctx, conversationID, s.hostMessage(text, AISender))
	return conv, err
}

// ListConversations returns every conversation of a property.
func (s *Service) ListConversations(ctx context.Context, propertyID string) ([]rental.Conversation, error) {
	if _, err := s.store.GetProperty(ctx, propertyID); err != nil {
		return nil, err
	}
	return s.store.ListConversations(ctx, propertyID)
}

func (s *Service) GetConversation(ctx context.Context, id string) (rental.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	return s.store.DeleteConversation(ctx, id)
}

// AddHostMessage appends a host-authored message and, when the thread's
// platform has a registered sender, delivers it to the guest. The message
// stays recorded even when delivery fails; the delivery error is returned
// alongside the updated thread.
func (s *Service) AddHostMessage(ctx context.Context, conversationID, text, sender string) (rental.Conversation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return rental.Conversation{}, rental.NewValidationError("text", "Message cannot be empty")
	}
	if strings.TrimSpace(sender) == "" {
		sender = "Host"
	}
	conv, _, err := s.resolver.Append(ctx, conversationID, s.hostMessage(text, sender))
	if err != nil {
		return rental.Conversation{}, err
	}

	out, ok := s.senders[conv.Platform]
	if !ok {
		return conv, nil
	}
	if err := out.SendText(ctx, conv.GuestEmail, text); err != nil {
		s.logger.Error("host message delivery failed",
			"conversation_id", conv.ID,
			"platform", string(conv.Platform),
			"error", err,
		)
		return conv, fmt.Errorf("conversation: deliver host message: %w", err)
	}
	return conv, nil
}

func (s *Service) hostMessage(text, sender string) rental.Message {
	return rental.Message{
		ID:        s.newID(),
		Text:      text,
		IsUser:    true,
		Timestamp: s.now(),
		Sender:    sender,
	}
}
