// Package memory is an in-process record store used for local development
// and tests. It honors revision checks like the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/store"
)

// Store keeps properties and conversations in maps guarded by a mutex.
type Store struct {
	mu            sync.RWMutex
	properties    map[string]rental.Property
	conversations map[string]rental.Conversation
	now           func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		properties:    make(map[string]rental.Property),
		conversations: make(map[string]rental.Conversation),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for UpdatedAt stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) QueryConversations(ctx context.Context, propertyID, identity string) ([]rental.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := rental.NormalizeIdentity(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rental.Conversation
	for _, c := range s.conversations {
		if c.PropertyID == propertyID && rental.NormalizeIdentity(c.GuestEmail) == want {
			out = append(out, clone(c))
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) ListConversations(ctx context.Context, propertyID string) ([]rental.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []rental.Conversation{}
	for _, c := range s.conversations {
		if propertyID == "" || c.PropertyID == propertyID {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (rental.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return rental.Conversation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return rental.Conversation{}, rental.ErrConversationNotFound
	}
	return clone(c), nil
}

func (s *Store) CreateConversation(ctx context.Context, conv rental.Conversation) (rental.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return rental.Conversation{}, err
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[conv.ID]; exists {
		return rental.Conversation{}, fmt.Errorf("memory: create %s: %w", conv.ID, store.ErrAlreadyExists)
	}
	conv.Revision = 1
	conv.UpdatedAt = s.now()
	if conv.Messages == nil {
		conv.Messages = []rental.Message{}
	}
	conv = clone(conv)
	s.conversations[conv.ID] = conv
	return clone(conv), nil
}

func (s *Store) UpdateConversation(ctx context.Context, id string, patch store.ConversationPatch) (rental.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return rental.Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return rental.Conversation{}, rental.ErrConversationNotFound
	}
	if patch.RevisionMismatch(c.Revision) {
		return rental.Conversation{}, fmt.Errorf("memory: update %s at revision %s: %w", id, patch.ExpectedRevisionString(), store.ErrRevisionConflict)
	}
	if patch.Messages != nil {
		c.Messages = append([]rental.Message(nil), patch.Messages...)
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	c.Revision++
	c.UpdatedAt = s.now()
	s.conversations[id] = c
	return clone(c), nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return rental.ErrConversationNotFound
	}
	delete(s.conversations, id)
	return nil
}

func (s *Store) ListProperties(ctx context.Context) ([]rental.Property, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rental.Property, 0, len(s.properties))
	for _, p := range s.properties {
		out = append(out, cloneProperty(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProperty(ctx context.Context, id string) (rental.Property, error) {
	if err := ctx.Err(); err != nil {
		return rental.Property{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return rental.Property{}, rental.ErrPropertyNotFound
	}
	return cloneProperty(p), nil
}

// SaveProperty upserts p, assigning an ID when it has none.
func (s *Store) SaveProperty(ctx context.Context, p rental.Property) (rental.Property, error) {
	if err := ctx.Err(); err != nil {
		return rental.Property{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID] = cloneProperty(p)
	return p, nil
}

func clone(c rental.Conversation) rental.Conversation {
	c.Messages = append([]rental.Message{}, c.Messages...)
	return c
}

func cloneProperty(p rental.Property) rental.Property {
	p.HouseRules = cloneStrings(p.HouseRules)
	p.Amenities = cloneStrings(p.Amenities)
	p.Restaurants = cloneStrings(p.Restaurants)
	p.FastFood = cloneStrings(p.FastFood)
	p.EmergencyContacts = cloneStrings(p.EmergencyContacts)
	if p.Instructions != nil {
		p.Instructions = append([]rental.AIInstruction{}, p.Instructions...)
	}
	if p.FAQ != nil {
		p.FAQ = append([]rental.FAQItem{}, p.FAQ...)
	}
	return p
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

func sortByID(convs []rental.Conversation) {
	sort.Slice(convs, func(i, j int) bool { return convs[i].ID < convs[j].ID })
}
