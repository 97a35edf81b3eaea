// Package postgres stores conversations and properties in Postgres via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/store"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const conversationColumns = `id, property_id, guest_name, guest_email, COALESCE(check_in, ''), COALESCE(check_out, ''),
	status, platform, messages, revision, updated_at`

// Store implements store.Store on the schema in migrations/.
type Store struct {
	db     rowQuerier
	logger *logging.Logger
}

var _ store.Store = (*Store)(nil)

// New returns a store on the given pool.
func New(pool *pgxpool.Pool, logger *logging.Logger) *Store {
	if pool == nil {
		panic("postgres: pgx pool required")
	}
	return newWithQuerier(pool, logger)
}

func newWithQuerier(db rowQuerier, logger *logging.Logger) *Store {
	if db == nil {
		panic("postgres: querier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) QueryConversations(ctx context.Context, propertyID, identity string) ([]rental.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE property_id = $1 AND lower(guest_email) = $2
		ORDER BY id`
	return s.listConversations(ctx, query, propertyID, rental.NormalizeIdentity(identity))
}

func (s *Store) ListConversations(ctx context.Context, propertyID string) ([]rental.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE property_id = $1
		ORDER BY updated_at DESC`
	return s.listConversations(ctx, query, propertyID)
}

func (s *Store) listConversations(ctx context.Context, query string, args ...any) ([]rental.Conversation, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query conversations: %w", err)
	}
	defer rows.Close()

	out := []rental.Conversation{}
	for rows.Next() {
		conv, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate conversations: %w", err)
	}
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (rental.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := s.scanConversation(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return rental.Conversation{}, rental.ErrConversationNotFound
	}
	return conv, err
}

func (s *Store) CreateConversation(ctx context.Context, conv rental.Conversation) (rental.Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Messages == nil {
		conv.Messages = []rental.Message{}
	}
	messages, err := rental.EncodeMessages(conv.Messages)
	if err != nil {
		return rental.Conversation{}, err
	}

	query := `
		INSERT INTO conversations (id, property_id, guest_name, guest_email, check_in, check_out, status, platform, messages, revision)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9::jsonb, 1)
		ON CONFLICT (id) DO NOTHING
		RETURNING revision, updated_at
	`
	err = s.db.QueryRow(ctx, query,
		conv.ID, conv.PropertyID, conv.GuestName, conv.GuestEmail,
		conv.CheckIn, conv.CheckOut, conv.Status, string(conv.Platform), messages,
	).Scan(&conv.Revision, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rental.Conversation{}, fmt.Errorf("postgres: create %s: %w", conv.ID, store.ErrAlreadyExists)
	}
	if err != nil {
		return rental.Conversation{}, fmt.Errorf("postgres: create conversation: %w", err)
	}
	return conv, nil
}

// UpdateConversation applies the patch only when the stored revision still
// matches; a missed row is then classified as conflict or not found.
func (s *Store) UpdateConversation(ctx context.Context, id string, patch store.ConversationPatch) (rental.Conversation, error) {
	var messages any
	if patch.Messages != nil {
		encoded, err := rental.EncodeMessages(patch.Messages)
		if err != nil {
			return rental.Conversation{}, err
		}
		messages = encoded
	}
	var status any
	if patch.Status != nil {
		status = *patch.Status
	}

	query := `
		UPDATE conversations
		SET messages = COALESCE($2::jsonb, messages),
			status = COALESCE($3::text, status),
			revision = revision + 1,
			updated_at = now()
		WHERE id = $1 AND ($4::bigint IS NULL OR revision = $4::bigint)
		RETURNING ` + conversationColumns
	var expected any
	if patch.ExpectedRevision != nil {
		expected = *patch.ExpectedRevision
	}
	conv, err := s.scanConversation(s.db.QueryRow(ctx, query, id, messages, status, expected))
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return rental.Conversation{}, err
	}

	var exists int
	if err := s.db.QueryRow(ctx, `SELECT 1 FROM conversations WHERE id = $1`, id).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rental.Conversation{}, rental.ErrConversationNotFound
		}
		return rental.Conversation{}, fmt.Errorf("postgres: check conversation %s: %w", id, err)
	}
	return rental.Conversation{}, fmt.Errorf("postgres: update %s at revision %s: %w", id, patch.ExpectedRevisionString(), store.ErrRevisionConflict)
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete conversation %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return rental.ErrConversationNotFound
	}
	return nil
}

func (s *Store) ListProperties(ctx context.Context) ([]rental.Property, error) {
	rows, err := s.db.Query(ctx, `SELECT id, data FROM properties ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list properties: %w", err)
	}
	defer rows.Close()

	out := []rental.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate properties: %w", err)
	}
	return out, nil
}

func (s *Store) GetProperty(ctx context.Context, id string) (rental.Property, error) {
	p, err := scanProperty(s.db.QueryRow(ctx, `SELECT id, data FROM properties WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return rental.Property{}, rental.ErrPropertyNotFound
	}
	return p, err
}

func (s *Store) SaveProperty(ctx context.Context, p rental.Property) (rental.Property, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return rental.Property{}, fmt.Errorf("postgres: encode property: %w", err)
	}
	query := `
		INSERT INTO properties (id, name, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, data = EXCLUDED.data, updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, p.ID, p.Name, string(data)); err != nil {
		return rental.Property{}, fmt.Errorf("postgres: save property %s: %w", p.ID, err)
	}
	return p, nil
}

func (s *Store) scanConversation(row pgx.Row) (rental.Conversation, error) {
	var (
		conv      rental.Conversation
		platform  string
		messages  []byte
		updatedAt time.Time
	)
	err := row.Scan(
		&conv.ID, &conv.PropertyID, &conv.GuestName, &conv.GuestEmail, &conv.CheckIn, &conv.CheckOut,
		&conv.Status, &platform, &messages, &conv.Revision, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rental.Conversation{}, err
		}
		return rental.Conversation{}, fmt.Errorf("postgres: scan conversation: %w", err)
	}
	conv.Platform = rental.Platform(platform)
	conv.UpdatedAt = updatedAt.UTC()
	conv.Messages, err = rental.DecodeMessages(string(messages))
	if err != nil {
		s.logger.Warn("conversation has unreadable messages", "conversation_id", conv.ID, "error", err)
	}
	return conv, nil
}

func scanProperty(row pgx.Row) (rental.Property, error) {
	var (
		id   string
		data []byte
	)
	if err := row.Scan(&id, &data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rental.Property{}, err
		}
		return rental.Property{}, fmt.Errorf("postgres: scan property: %w", err)
	}
	var p rental.Property
	if err := json.Unmarshal(data, &p); err != nil {
		return rental.Property{}, fmt.Errorf("postgres: decode property %s: %w", id, err)
	}
	p.ID = id
	return p, nil
}
