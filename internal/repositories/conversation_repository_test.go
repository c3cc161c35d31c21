package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversationRepoWithMock(t *testing.T) (*ConversationRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewConversationRepo(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func conversationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user1_id", "user2_id", "listing_id",
		"last_message_text", "last_message_at",
		"user1_unread", "user2_unread", "created_at",
	})
}

func TestCreateOrGetConversationCreates(t *testing.T) {
	repo, mock := newConversationRepoWithMock(t)

	// Initiated by the higher id; the stored pair is normalized.
	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs(1, 2, nil).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(1, 2, nil).
		WillReturnRows(conversationRows().AddRow(10, 1, 2, nil, "", nil, 0, 0, time.Now()))

	conv, created, err := repo.CreateOrGetConversation(context.Background(), 2, 1, nil)

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 10, conv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetConversationReturnsExisting(t *testing.T) {
	repo, mock := newConversationRepoWithMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs(1, 2, nil).
		WillReturnRows(conversationRows().AddRow(10, 1, 2, nil, "hi", nil, 1, 0, time.Now()))

	conv, created, err := repo.CreateOrGetConversation(context.Background(), 1, 2, nil)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 10, conv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetConversationLosesInsertRace(t *testing.T) {
	repo, mock := newConversationRepoWithMock(t)

	// Both first contacts miss the select; the loser's insert hits the unique
	// index and must settle on the winner's row, not surface the error.
	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs(1, 2, nil).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(1, 2, nil).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs(1, 2, nil).
		WillReturnRows(conversationRows().AddRow(10, 1, 2, nil, "", nil, 0, 0, time.Now()))

	conv, created, err := repo.CreateOrGetConversation(context.Background(), 1, 2, nil)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 10, conv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetConversationOtherInsertErrorPropagates(t *testing.T) {
	repo, mock := newConversationRepoWithMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs(1, 2, nil).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(1, 2, nil).
		WillReturnError(&pq.Error{Code: "53300"})

	_, _, err := repo.CreateOrGetConversation(context.Background(), 1, 2, nil)

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
