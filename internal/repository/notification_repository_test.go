package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serrius/Educore-sub002/internal/models"
)

func newNotificationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNotificationRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(50), int64(9), "Document approved", "Your vmgo was approved", "document_review", nil, models.NotificationUnread, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(11, 1))

	n := &models.Notification{
		RecipientID: 50,
		ActorID:     9,
		Title:       "Document approved",
		Message:     "Your vmgo was approved",
		NotifType:   "document_review",
	}
	require.NoError(t, repo.Insert(context.Background(), n))
	assert.Equal(t, int64(11), n.ID)
	assert.Equal(t, models.NotificationUnread, n.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCountUnread(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND status = 'unread'")).
		WithArgs(int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.CountUnread(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET status = 'read' WHERE id = \\?").
		WithArgs(int64(11), int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkRead(context.Background(), 11, 50)
	require.NoError(t, err)
	assert.True(t, ok)

	// Someone else's notification affects zero rows.
	mock.ExpectExec("UPDATE notifications SET status = 'read' WHERE id = \\?").
		WithArgs(int64(11), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.MarkRead(context.Background(), 11, 99)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkAllRead(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET status = 'read' WHERE recipient_id = \\?").
		WithArgs(int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.MarkAllRead(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryInsertBatch(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications (.+) VALUES \\(\\?, \\?, \\?, \\?, \\?, \\?, \\?, \\?\\), \\(\\?, \\?, \\?, \\?, \\?, \\?, \\?, \\?\\)").
		WithArgs(
			int64(50), int64(9), "Campus fair", "Booths open Monday", "announcement", nil, models.NotificationUnread, sqlmock.AnyArg(),
			int64(51), int64(9), "Campus fair", "Booths open Monday", "announcement", nil, models.NotificationUnread, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	template := models.Notification{
		ActorID:   9,
		Title:     "Campus fair",
		Message:   "Booths open Monday",
		NotifType: "announcement",
	}
	require.NoError(t, repo.InsertBatch(context.Background(), []int64{50, 51}, template))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryInsertBatchNoRecipients(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	require.NoError(t, repo.InsertBatch(context.Background(), nil, models.Notification{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
