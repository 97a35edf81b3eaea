// Package conversation resolves inbound guest messages to conversation records,
// creating one when no existing conversation matches, and hands them to the
// reply trigger.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/guestpilot/internal/lock"
	"github.com/wolfman30/guestpilot/internal/observability/metrics"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/store"
	"github.com/wolfman30/guestpilot/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 100 * time.Millisecond
)

// ResolverConfig tunes matching and write retries.
type ResolverConfig struct {
	Policy         MatchPolicy
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// ResolveRequest identifies the guest, stay and message to place.
type ResolveRequest struct {
	PropertyID string
	Identity   string
	GuestName  string
	CheckIn    string
	CheckOut   string
	Platform   rental.Platform
	Message    rental.Message
	// AllowUndated permits creating a conversation without stay dates.
	AllowUndated bool
	// Candidates, when non-nil, is a prefetched result of QueryConversations.
	// It only selects which thread to join; the thread itself is re-read under
	// its lock before writing, and creation always re-queries.
	Candidates []rental.Conversation
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Conversation rental.Conversation
	Created      bool
	// Duplicate is set when the message ID was already in the thread.
	Duplicate bool
}

// Resolver finds or creates the conversation an inbound message belongs to
// and appends it. Every read-modify-write of a thread goes through here.
type Resolver struct {
	store       store.ConversationStore
	locker      lock.Locker
	policy      MatchPolicy
	maxAttempts int
	baseDelay   time.Duration
	metrics     *metrics.IntakeMetrics
	logger      *logging.Logger
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
}

// NewResolver builds a Resolver. A nil locker uses an in-process KeyedMutex.
func NewResolver(st store.ConversationStore, locker lock.Locker, cfg ResolverConfig, m *metrics.IntakeMetrics, logger *logging.Logger) *Resolver {
	if st == nil {
		panic("conversation: store cannot be nil")
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyTiered
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	return &Resolver{
		store:       st,
		locker:      locker,
		policy:      cfg.Policy,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		metrics:     m,
		logger:      logger,
		tracer:      otel.Tracer("guestpilot.internal.conversation"),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// Policy returns the configured match policy.
func (r *Resolver) Policy() MatchPolicy {
	return r.policy
}

// Resolve places req.Message in the guest's eligible conversation, creating
// one when none matches.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "conversation.resolve", trace.WithAttributes(
		attribute.String("property_id", req.PropertyID),
		attribute.String("match_policy", string(r.policy)),
	))
	defer span.End()

	if strings.TrimSpace(req.Identity) == "" {
		return Resolution{}, rental.NewValidationError("identity", "guest identity is required")
	}

	// Serializes find-or-create per guest so two first messages cannot both create.
	release, err := r.locker.Lock(ctx, guestLockKey(req.PropertyID, req.Identity))
	if err != nil {
		span.RecordError(err)
		return Resolution{}, fmt.Errorf("conversation: lock guest: %w", err)
	}
	defer release()

	now := r.now()
	if req.Candidates != nil {
		if match, ok := SelectMatch(r.policy, req.Candidates, req.Identity, now); ok {
			return r.appendMatched(ctx, match, req.Message)
		}
	}

	candidates, err := r.store.QueryConversations(ctx, req.PropertyID, req.Identity)
	if err != nil {
		span.RecordError(err)
		return Resolution{}, fmt.Errorf("conversation: query candidates: %w", err)
	}
	if match, ok := SelectMatch(r.policy, candidates, req.Identity, now); ok {
		return r.appendMatched(ctx, match, req.Message)
	}

	conv, err := r.create(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Resolution{}, err
	}
	span.SetAttributes(attribute.Bool("created", true))
	r.metrics.ObserveResolved("created")
	return Resolution{Conversation: conv, Created: true}, nil
}

func (r *Resolver) appendMatched(ctx context.Context, match rental.Conversation, msg rental.Message) (Resolution, error) {
	conv, appended, err := r.appendWithRetry(ctx, match.ID, msg)
	if err != nil {
		return Resolution{}, err
	}
	outcome := "appended"
	if !appended {
		outcome = "duplicate"
	}
	r.metrics.ObserveResolved(outcome)
	return Resolution{Conversation: conv, Duplicate: !appended}, nil
}

// Append adds msg to an existing conversation. It reports false when the
// message ID was already present.
func (r *Resolver) Append(ctx context.Context, conversationID string, msg rental.Message) (rental.Conversation, bool, error) {
	ctx, span := r.tracer.Start(ctx, "conversation.append", trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
	))
	defer span.End()

	conv, appended, err := r.appendWithRetry(ctx, conversationID, msg)
	if err != nil {
		span.RecordError(err)
	}
	return conv, appended, err
}

// appendWithRetry holds the conversation lock for the whole read-modify-write,
// so every writer (guest intake, AI reply, host message) sees the latest thread.
func (r *Resolver) appendWithRetry(ctx context.Context, id string, msg rental.Message) (rental.Conversation, bool, error) {
	release, err := r.locker.Lock(ctx, conversationLockKey(id))
	if err != nil {
		return rental.Conversation{}, false, fmt.Errorf("conversation: lock conversation: %w", err)
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			r.metrics.ObserveRetry("append")
			if err := r.backoff(ctx, attempt); err != nil {
				return rental.Conversation{}, false, err
			}
		}

		current, err := r.store.GetConversation(ctx, id)
		if err != nil {
			if rental.IsRetryable(err) {
				lastErr = err
				continue
			}
			return rental.Conversation{}, false, err
		}
		if current.HasMessage(msg.ID) {
			return current, false, nil
		}

		updated, err := r.store.UpdateConversation(ctx, id, store.ConversationPatch{
			Messages:         current.WithMessage(msg),
			ExpectedRevision: store.AtRevision(current.Revision),
		})
		if err == nil {
			return updated, true, nil
		}
		if !errors.Is(err, store.ErrRevisionConflict) && !rental.IsRetryable(err) {
			return rental.Conversation{}, false, err
		}
		r.logger.Warn("conversation append retrying", "conversation_id", id, "attempt", attempt, "error", err)
		lastErr = err
	}
	return rental.Conversation{}, false, exhausted("append", lastErr)
}

func (r *Resolver) create(ctx context.Context, req ResolveRequest) (rental.Conversation, error) {
	if !req.AllowUndated && (strings.TrimSpace(req.CheckIn) == "" || strings.TrimSpace(req.CheckOut) == "") {
		return rental.Conversation{}, rental.ErrMissingDates
	}
	platform := req.Platform
	if platform == "" {
		platform = rental.PlatformWhatsApp
	}
	// The ID is fixed before the first attempt so retries are idempotent.
	conv := rental.Conversation{
		ID:         r.newID(),
		PropertyID: req.PropertyID,
		GuestName:  req.GuestName,
		GuestEmail: strings.TrimSpace(req.Identity),
		CheckIn:    strings.TrimSpace(req.CheckIn),
		CheckOut:   strings.TrimSpace(req.CheckOut),
		Status:     rental.StatusActive,
		Platform:   platform,
		Messages:   []rental.Message{req.Message},
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			r.metrics.ObserveRetry("create")
			if err := r.backoff(ctx, attempt); err != nil {
				return rental.Conversation{}, err
			}
		}
		created, err := r.store.CreateConversation(ctx, conv)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, store.ErrAlreadyExists) {
			// An earlier attempt landed before its response was lost.
			return r.store.GetConversation(ctx, conv.ID)
		}
		if !rental.IsRetryable(err) {
			return rental.Conversation{}, err
		}
		r.logger.Warn("conversation create retrying", "property_id", req.PropertyID, "attempt", attempt, "error", err)
		lastErr = err
	}
	return rental.Conversation{}, exhausted("create", lastErr)
}

func (r *Resolver) backoff(ctx context.Context, attempt int) error {
	delay := r.baseDelay << (attempt - 2)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// exhausted reports a write that kept failing. Persistent revision conflicts
// are reported as unavailability since the caller may simply retry later.
func exhausted(op string, err error) error {
	var se *rental.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &rental.StoreError{Op: op, Unavailable: true, Err: err}
}

func guestLockKey(propertyID, identity string) string {
	return "guest:" + propertyID + ":" + rental.NormalizeIdentity(identity)
}

func conversationLockKey(id string) string {
	return "conversation:" + id
}
