package store

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/guestpilot/internal/rental"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Options configures Instrument.
type Options struct {
	// Timeout bounds every store call. Zero disables it.
	Timeout time.Duration
	Tracer  trace.Tracer
}

type instrumented struct {
	next    Store
	timeout time.Duration
	tracer  trace.Tracer
}

// Instrument wraps a backend so that every call runs under a timeout and a
// trace span, and every unexpected failure surfaces as *rental.StoreError.
func Instrument(next Store, opts Options) Store {
	if next == nil {
		panic("store: backend cannot be nil")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("guestpilot.internal.store")
	}
	return &instrumented{next: next, timeout: opts.Timeout, tracer: tracer}
}

func (s *instrumented) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error) error) {
	ctx, span := s.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
	cancel := func() {}
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func(err error) error {
		defer span.End()
		defer cancel()
		if err == nil {
			return nil
		}
		span.RecordError(err)
		if errors.Is(err, ErrRevisionConflict) || errors.Is(err, ErrAlreadyExists) {
			return err
		}
		return rental.NewStoreError(op, err)
	}
}

func (s *instrumented) QueryConversations(ctx context.Context, propertyID, identity string) ([]rental.Conversation, error) {
	ctx, done := s.start(ctx, "query_conversations", attribute.String("property_id", propertyID))
	out, err := s.next.QueryConversations(ctx, propertyID, identity)
	return out, done(err)
}

func (s *instrumented) ListConversations(ctx context.Context, propertyID string) ([]rental.Conversation, error) {
	ctx, done := s.start(ctx, "list_conversations", attribute.String("property_id", propertyID))
	out, err := s.next.ListConversations(ctx, propertyID)
	return out, done(err)
}

func (s *instrumented) GetConversation(ctx context.Context, id string) (rental.Conversation, error) {
	ctx, done := s.start(ctx, "get_conversation", attribute.String("conversation_id", id))
	out, err := s.next.GetConversation(ctx, id)
	return out, done(err)
}

func (s *instrumented) CreateConversation(ctx context.Context, conv rental.Conversation) (rental.Conversation, error) {
	ctx, done := s.start(ctx, "create_conversation", attribute.String("property_id", conv.PropertyID))
	out, err := s.next.CreateConversation(ctx, conv)
	return out, done(err)
}

func (s *instrumented) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (rental.Conversation, error) {
	ctx, done := s.start(ctx, "update_conversation",
		attribute.String("conversation_id", id),
		attribute.String("expected_revision", patch.ExpectedRevisionString()),
	)
	out, err := s.next.UpdateConversation(ctx, id, patch)
	return out, done(err)
}

func (s *instrumented) DeleteConversation(ctx context.Context, id string) error {
	ctx, done := s.start(ctx, "delete_conversation", attribute.String("conversation_id", id))
	return done(s.next.DeleteConversation(ctx, id))
}

func (s *instrumented) ListProperties(ctx context.Context) ([]rental.Property, error) {
	ctx, done := s.start(ctx, "list_properties")
	out, err := s.next.ListProperties(ctx)
	return out, done(err)
}

func (s *instrumented) GetProperty(ctx context.Context, id string) (rental.Property, error) {
	ctx, done := s.start(ctx, "get_property", attribute.String("property_id", id))
	out, err := s.next.GetProperty(ctx, id)
	return out, done(err)
}

func (s *instrumented) SaveProperty(ctx context.Context, p rental.Property) (rental.Property, error) {
	ctx, done := s.start(ctx, "save_property", attribute.String("property_id", p.ID))
	out, err := s.next.SaveProperty(ctx, p)
	return out, done(err)
}
