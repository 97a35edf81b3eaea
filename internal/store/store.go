// Package store defines the record-store contract shared by every backend
// (memory, DynamoDB, Postgres, Airtable) and the instrumentation decorator
// that classifies backend failures.
package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/wolfman30/guestpilot/internal/rental"
)

var (
	// ErrRevisionConflict is returned by UpdateConversation when the stored
	// revision no longer matches ConversationPatch.ExpectedRevision.
	ErrRevisionConflict = errors.New("store: revision conflict")

	// ErrAlreadyExists is returned by CreateConversation when a record with
	// the caller-supplied ID is already present.
	ErrAlreadyExists = errors.New("store: conversation already exists")
)

// ConversationPatch describes a partial conversation update. Nil fields are
// left untouched. A nil ExpectedRevision skips the revision check; a pointer
// to zero matches records written before revisions were tracked.
type ConversationPatch struct {
	Messages         []rental.Message
	Status           *string
	ExpectedRevision *int64
}

// AtRevision returns an ExpectedRevision value for rev.
func AtRevision(rev int64) *int64 {
	return &rev
}

// RevisionMismatch reports whether a record at current fails the patch's
// revision check.
func (p ConversationPatch) RevisionMismatch(current int64) bool {
	return p.ExpectedRevision != nil && *p.ExpectedRevision != current
}

// ExpectedRevisionString renders ExpectedRevision for error messages.
func (p ConversationPatch) ExpectedRevisionString() string {
	if p.ExpectedRevision == nil {
		return "any"
	}
	return strconv.FormatInt(*p.ExpectedRevision, 10)
}

// ConversationStore persists conversation threads.
type ConversationStore interface {
	// QueryConversations returns the conversations of a property whose guest
	// identity equals identity, compared case-insensitively.
	QueryConversations(ctx context.Context, propertyID, identity string) ([]rental.Conversation, error)
	ListConversations(ctx context.Context, propertyID string) ([]rental.Conversation, error)
	GetConversation(ctx context.Context, id string) (rental.Conversation, error)
	CreateConversation(ctx context.Context, conv rental.Conversation) (rental.Conversation, error)
	UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (rental.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// PropertyStore persists property profiles.
type PropertyStore interface {
	ListProperties(ctx context.Context) ([]rental.Property, error)
	GetProperty(ctx context.Context, id string) (rental.Property, error)
	SaveProperty(ctx context.Context, p rental.Property) (rental.Property, error)
}

// Store is the full record store.
type Store interface {
	ConversationStore
	PropertyStore
}
