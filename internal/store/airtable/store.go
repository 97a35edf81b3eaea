// Package airtable stores conversations and properties in an Airtable base,
// the record store the console was originally built on.
package airtable

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/store"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

const (
	ConversationsTable = "Conversations"
	PropertiesTable    = "Properties"
)

type recordAPI interface {
	List(ctx context.Context, table, formula string) ([]rental.Record, error)
	Get(ctx context.Context, table, id string) (rental.Record, error)
	Create(ctx context.Context, table string, fields map[string]any) (rental.Record, error)
	Update(ctx context.Context, table, id string, fields map[string]any) (rental.Record, error)
	Delete(ctx context.Context, table, id string) error
}

// Store implements store.Store on Airtable. Airtable has no conditional
// writes, so the revision check is a read-then-patch that only closes the
// lost-update window when callers also hold the conversation lock.
type Store struct {
	api    recordAPI
	logger *logging.Logger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns a store backed by client.
func New(client *Client, logger *logging.Logger) *Store {
	if client == nil {
		panic("airtable: client cannot be nil")
	}
	return newWithAPI(client, logger)
}

func newWithAPI(api recordAPI, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{api: api, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) QueryConversations(ctx context.Context, propertyID, identity string) ([]rental.Conversation, error) {
	formula := fmt.Sprintf("LOWER(TRIM({%s})) = %s", rental.FieldGuestEmail, quote(rental.NormalizeIdentity(identity)))
	recs, err := s.api.List(ctx, ConversationsTable, formula)
	if err != nil {
		return nil, fmt.Errorf("airtable: query conversations: %w", err)
	}
	// Linked-record formulas expose primary field values, not record IDs,
	// so the property filter runs here.
	out := []rental.Conversation{}
	for _, rec := range recs {
		conv := s.decodeConversation(rec)
		if conv.PropertyID == propertyID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (s *Store) ListConversations(ctx context.Context, propertyID string) ([]rental.Conversation, error) {
	recs, err := s.api.List(ctx, ConversationsTable, "")
	if err != nil {
		return nil, fmt.Errorf("airtable: list conversations: %w", err)
	}
	out := []rental.Conversation{}
	for _, rec := range recs {
		conv := s.decodeConversation(rec)
		if propertyID == "" || conv.PropertyID == propertyID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (rental.Conversation, error) {
	rec, err := s.api.Get(ctx, ConversationsTable, id)
	if err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return rental.Conversation{}, rental.ErrConversationNotFound
		}
		return rental.Conversation{}, fmt.Errorf("airtable: get conversation %s: %w", id, err)
	}
	return s.decodeConversation(rec), nil
}

// CreateConversation ignores conv.ID; Airtable assigns record IDs.
func (s *Store) CreateConversation(ctx context.Context, conv rental.Conversation) (rental.Conversation, error) {
	conv.Revision = 1
	conv.UpdatedAt = s.now()
	fields, err := rental.ConversationFields(conv)
	if err != nil {
		return rental.Conversation{}, err
	}
	fields[rental.FieldRevision] = conv.Revision
	fields[rental.FieldUpdatedAt] = conv.UpdatedAt.Format(time.RFC3339Nano)

	rec, err := s.api.Create(ctx, ConversationsTable, fields)
	if err != nil {
		return rental.Conversation{}, fmt.Errorf("airtable: create conversation: %w", err)
	}
	created := s.decodeConversation(rec)
	if created.PropertyID == "" {
		created.PropertyID = conv.PropertyID
	}
	return created, nil
}

func (s *Store) UpdateConversation(ctx context.Context, id string, patch store.ConversationPatch) (rental.Conversation, error) {
	current, err := s.GetConversation(ctx, id)
	if err != nil {
		return rental.Conversation{}, err
	}
	if patch.RevisionMismatch(current.Revision) {
		return rental.Conversation{}, fmt.Errorf("airtable: update %s at revision %s: %w", id, patch.ExpectedRevisionString(), store.ErrRevisionConflict)
	}

	fields := map[string]any{
		rental.FieldRevision:  current.Revision + 1,
		rental.FieldUpdatedAt: s.now().Format(time.RFC3339Nano),
	}
	if patch.Messages != nil {
		encoded, err := rental.EncodeMessages(patch.Messages)
		if err != nil {
			return rental.Conversation{}, err
		}
		fields[rental.FieldMessages] = encoded
	}
	if patch.Status != nil {
		fields[rental.FieldStatus] = *patch.Status
	}

	rec, err := s.api.Update(ctx, ConversationsTable, id, fields)
	if err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return rental.Conversation{}, rental.ErrConversationNotFound
		}
		return rental.Conversation{}, fmt.Errorf("airtable: update conversation %s: %w", id, err)
	}
	return s.decodeConversation(rec), nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.api.Delete(ctx, ConversationsTable, id); err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return rental.ErrConversationNotFound
		}
		return fmt.Errorf("airtable: delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListProperties(ctx context.Context) ([]rental.Property, error) {
	recs, err := s.api.List(ctx, PropertiesTable, "")
	if err != nil {
		return nil, fmt.Errorf("airtable: list properties: %w", err)
	}
	out := make([]rental.Property, 0, len(recs))
	for _, rec := range recs {
		p, err := rental.PropertyFromRecord(rec)
		if err != nil {
			s.logger.Warn("skipping unreadable property", "property_id", rec.ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (s *Store) GetProperty(ctx context.Context, id string) (rental.Property, error) {
	rec, err := s.api.Get(ctx, PropertiesTable, id)
	if err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return rental.Property{}, rental.ErrPropertyNotFound
		}
		return rental.Property{}, fmt.Errorf("airtable: get property %s: %w", id, err)
	}
	return rental.PropertyFromRecord(rec)
}

func (s *Store) SaveProperty(ctx context.Context, p rental.Property) (rental.Property, error) {
	fields, err := rental.PropertyFields(p)
	if err != nil {
		return rental.Property{}, err
	}
	var rec rental.Record
	if p.ID == "" {
		rec, err = s.api.Create(ctx, PropertiesTable, fields)
	} else {
		rec, err = s.api.Update(ctx, PropertiesTable, p.ID, fields)
	}
	if err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return rental.Property{}, rental.ErrPropertyNotFound
		}
		return rental.Property{}, fmt.Errorf("airtable: save property: %w", err)
	}
	p.ID = rec.ID
	return p, nil
}

func (s *Store) decodeConversation(rec rental.Record) rental.Conversation {
	conv, err := rental.ConversationFromRecord(rec)
	if err != nil {
		s.logger.Warn("conversation has unreadable messages", "conversation_id", rec.ID, "error", err)
	}
	return conv
}
