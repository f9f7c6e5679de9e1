package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/doguto/nari-note-sub000/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionTestNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var sessionColumns = []string{"id", "user_id", "session_key", "expires_at", "created_at"}

func setupSessionRepositoryMocks(mock sqlmock.Sqlmock) {
	for _, q := range []string{
		createSessionQuery,
		getSessionByKeyQuery,
		listSessionsForUserQuery,
		deleteSessionQuery,
		deleteSessionsForUserQuery,
		deleteExpiredSessionsQuery,
	} {
		mock.ExpectPrepare(regexp.QuoteMeta(q))
	}
}

func newSessionRepo(t *testing.T) (*SessionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	setupSessionRepositoryMocks(mock)
	repo, err := NewSessionRepository(db)
	require.NoError(t, err)
	repo.now = func() time.Time { return sessionTestNow }
	return repo, mock
}

func TestNewSessionRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		assert.NotNil(t, repo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(createSessionQuery))
		mock.ExpectPrepare(regexp.QuoteMeta(getSessionByKeyQuery)).WillReturnError(errors.New("prepare failed"))

		repo, err := NewSessionRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare getByKey statement")
	})
}

func TestSessionRepository_Create(t *testing.T) {
	expiresAt := sessionTestNow.Add(24 * time.Hour)

	t.Run("successful_creation", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(createSessionQuery)).
			WithArgs(int64(7), "key-1", expiresAt).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(99), sessionTestNow))

		session := &domain.Session{UserID: 7, SessionKey: "key-1", ExpiresAt: expiresAt}
		err := repo.Create(context.Background(), session)

		require.NoError(t, err)
		assert.Equal(t, int64(99), session.ID)
		assert.Equal(t, sessionTestNow, session.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("key_conflict", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(createSessionQuery)).
			WillReturnError(&pq.Error{Code: "23505", Constraint: sessionKeyConstraint})

		err := repo.Create(context.Background(), &domain.Session{UserID: 7, SessionKey: "dup", ExpiresAt: expiresAt})

		assert.ErrorIs(t, err, domain.ErrSessionKeyConflict)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("unknown_user", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(createSessionQuery)).
			WillReturnError(&pq.Error{Code: "23503", Constraint: sessionUserConstraint})

		err := repo.Create(context.Background(), &domain.Session{UserID: 404, SessionKey: "k", ExpiresAt: expiresAt})

		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(createSessionQuery)).
			WillReturnError(errors.New("connection reset"))

		err := repo.Create(context.Background(), &domain.Session{UserID: 7, SessionKey: "k", ExpiresAt: expiresAt})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create session")
		assert.NotErrorIs(t, err, domain.ErrConflict)
	})
}

func TestSessionRepository_GetByKey(t *testing.T) {
	t.Run("live_session", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		expiresAt := sessionTestNow.Add(time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta(getSessionByKeyQuery)).
			WithArgs("key-1", sessionTestNow).
			WillReturnRows(sqlmock.NewRows(sessionColumns).
				AddRow(int64(1), int64(7), "key-1", expiresAt, sessionTestNow))

		session, err := repo.GetByKey(context.Background(), "key-1")

		require.NoError(t, err)
		assert.Equal(t, int64(7), session.UserID)
		assert.Equal(t, "key-1", session.SessionKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent_or_expired_in_sql", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(getSessionByKeyQuery)).
			WithArgs("gone", sessionTestNow).
			WillReturnError(sql.ErrNoRows)

		session, err := repo.GetByKey(context.Background(), "gone")

		assert.Nil(t, session)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("expired_row_rechecked", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(getSessionByKeyQuery)).
			WillReturnRows(sqlmock.NewRows(sessionColumns).
				AddRow(int64(1), int64(7), "key-1", sessionTestNow, sessionTestNow.Add(-time.Hour)))

		_, err := repo.GetByKey(context.Background(), "key-1")

		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("database_error_is_not_absence", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(getSessionByKeyQuery)).
			WillReturnError(context.DeadlineExceeded)

		_, err := repo.GetByKey(context.Background(), "key-1")

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestSessionRepository_ListForUser(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(listSessionsForUserQuery)).
		WithArgs(int64(7), sessionTestNow).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow(int64(2), int64(7), "key-b", sessionTestNow.Add(2*time.Hour), sessionTestNow).
			AddRow(int64(1), int64(7), "key-a", sessionTestNow.Add(time.Hour), sessionTestNow.Add(-time.Hour)))

	sessions, err := repo.ListForUser(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "key-b", sessions[0].SessionKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Delete(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteSessionQuery)).
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "key-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DeleteAllForUser(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteSessionsForUserQuery)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeleteAllForUser(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	t.Run("counts_rows", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(deleteExpiredSessionsQuery)).
			WithArgs(sessionTestNow).
			WillReturnResult(sqlmock.NewResult(0, 5))

		count, err := repo.DeleteExpired(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(deleteExpiredSessionsQuery)).
			WillReturnError(errors.New("disk full"))

		_, err := repo.DeleteExpired(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete expired sessions")
	})
}
