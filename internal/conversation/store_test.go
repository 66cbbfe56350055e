package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func conversationRows(id string, status string, count int, created time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "business_id", "caller_phone", "caller_name", "status",
		"intent", "service_requested", "summary",
		"message_count", "created_at", "last_message_at",
	}).AddRow(id, "biz-1", "+15550199", "", status, "", "", "", count, created, created)
}

func TestGetOrCreateActiveReturnsExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE conversations SET status = 'no_response'").
		WithArgs("biz-1", "+15550199", now.Add(-72*time.Hour)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), "biz-1", "+15550199", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT(.|\n)*FROM conversations").
		WithArgs("biz-1", "+15550199").
		WillReturnRows(conversationRows("conv-1", "active", 3, now.Add(-time.Hour)))

	conv, created, err := store.GetOrCreateActive(context.Background(), "biz-1", "+15550199", now, 72*time.Hour)
	require.NoError(t, err)
	require.False(t, created, "existing active row must be reused")
	require.Equal(t, "conv-1", conv.ID)
	require.Equal(t, StatusActive, conv.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertInboundIfNewDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Now()

	// The guarded CTE updates nothing for a retransmission, so the RETURNING
	// row is absent.
	mock.ExpectQuery("WITH ins AS").
		WithArgs(pgxmock.AnyArg(), "conv-1", "is 2pm open?", "m2", now, now.Add(-30*time.Second)).
		WillReturnRows(pgxmock.NewRows([]string{"message_count"}))

	inserted, count, err := store.InsertInboundIfNew(context.Background(), "conv-1", "is 2pm open?", "m2", now, 30*time.Second)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Zero(t, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertInboundIfNewReturnsCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Now()

	mock.ExpectQuery("WITH ins AS").
		WithArgs(pgxmock.AnyArg(), "conv-1", "hello", "m1", now, now.Add(-30*time.Second)).
		WillReturnRows(pgxmock.NewRows([]string{"message_count"}).AddRow(4))

	inserted, count, err := store.InsertInboundIfNew(context.Background(), "conv-1", "hello", "m1", now, 30*time.Second)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusIfActiveGuards(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectExec("UPDATE conversations SET status").
		WithArgs("completed", "conv-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE conversations SET status").
		WithArgs("appointment_booked", "conv-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.UpdateStatusIfActive(context.Background(), "conv-1", StatusCompleted)
	require.NoError(t, err)
	require.True(t, ok)

	// Second transition loses: the row already left active.
	ok, err = store.UpdateStatusIfActive(context.Background(), "conv-1", StatusAppointmentBooked)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRecentNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	since := time.Now().Add(-72 * time.Hour)

	mock.ExpectQuery("SELECT(.|\n)*FROM conversations").
		WithArgs("biz-1", "+15550199", since).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = store.FindRecent(context.Background(), "biz-1", "+15550199", since)
	require.ErrorIs(t, err, ErrConversationNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
