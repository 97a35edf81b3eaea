package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/store"
)

var conversationCols = []string{
	"id", "property_id", "guest_name", "guest_email", "check_in", "check_out",
	"status", "platform", "messages", "revision", "updated_at",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, newWithQuerier(mock, nil)
}

func TestQueryConversationsNormalizesIdentity(t *testing.T) {
	mock, s := newMock(t)
	updated := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM conversations").
		WithArgs("prop-1", "guest@example.com").
		WillReturnRows(pgxmock.NewRows(conversationCols).AddRow(
			"conv-1", "prop-1", "Guest", "Guest@Example.com", "2024-03-10", "2024-03-15",
			"Active", "email", []byte(`[{"id":"m1","text":"hi","isUser":false,"timestamp":"2024-03-10T08:00:00Z","sender":"Guest"}]`),
			int64(2), updated,
		))

	convs, err := s.QueryConversations(context.Background(), "prop-1", " GUEST@example.com ")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, rental.PlatformEmail, convs[0].Platform)
	assert.EqualValues(t, 2, convs[0].Revision)
	assert.Equal(t, updated, convs[0].UpdatedAt)
	require.Len(t, convs[0].Messages, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConversationDuplicateID(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs("conv-1", "prop-1", "Guest", "g@example.com", "", "", "Active", "whatsapp", "[]").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.CreateConversation(context.Background(), rental.Conversation{
		ID: "conv-1", PropertyID: "prop-1", GuestName: "Guest", GuestEmail: "g@example.com",
		Status: rental.StatusActive, Platform: rental.PlatformWhatsApp,
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConversationConflict(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectQuery("UPDATE conversations").
		WithArgs("conv-1", `[]`, nil, int64(3)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM conversations").
		WithArgs("conv-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))

	_, err := s.UpdateConversation(context.Background(), "conv-1", store.ConversationPatch{
		Messages:         []rental.Message{},
		ExpectedRevision: store.AtRevision(3),
	})
	assert.ErrorIs(t, err, store.ErrRevisionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConversationNotFound(t *testing.T) {
	mock, s := newMock(t)
	status := "Archived"

	mock.ExpectQuery("UPDATE conversations").
		WithArgs("conv-9", nil, "Archived", nil).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM conversations").
		WithArgs("conv-9").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.UpdateConversation(context.Background(), "conv-9", store.ConversationPatch{Status: &status})
	assert.ErrorIs(t, err, rental.ErrConversationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPropertyDecodesJSON(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectQuery("SELECT id, data FROM properties").
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).
			AddRow("prop-1", []byte(`{"name":"Dune Cottage","autoPilot":true,"houseRules":["No pets"]}`)))

	p, err := s.GetProperty(context.Background(), "prop-1")
	require.NoError(t, err)
	assert.Equal(t, "prop-1", p.ID)
	assert.Equal(t, "Dune Cottage", p.Name)
	assert.True(t, p.AutoPilot)
	assert.Equal(t, []string{"No pets"}, p.HouseRules)
}

func TestGetPropertyNotFound(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery("SELECT id, data FROM properties").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProperty(context.Background(), "nope")
	assert.ErrorIs(t, err, rental.ErrPropertyNotFound)
}

func TestDeleteConversation(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectExec("DELETE FROM conversations").WithArgs("conv-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM conversations").WithArgs("conv-2").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.DeleteConversation(context.Background(), "conv-1"))
	assert.ErrorIs(t, s.DeleteConversation(context.Background(), "conv-2"), rental.ErrNotFound)
}

func TestStoreErrorsWrapped(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery("FROM conversations").WillReturnError(errors.New("connection reset"))

	_, err := s.ListConversations(context.Background(), "prop-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
