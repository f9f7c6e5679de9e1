package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

const (
	sessionKeyConstraint  = "sessions_session_key_key"
	sessionUserConstraint = "sessions_user_id_fkey"
)

const (
	createSessionQuery = `
		INSERT INTO sessions (user_id, session_key, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	getSessionByKeyQuery = `
		SELECT id, user_id, session_key, expires_at, created_at
		FROM sessions
		WHERE session_key = $1 AND expires_at > $2`

	listSessionsForUserQuery = `
		SELECT id, user_id, session_key, expires_at, created_at
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC`

	deleteSessionQuery         = `DELETE FROM sessions WHERE session_key = $1`
	deleteSessionsForUserQuery = `DELETE FROM sessions WHERE user_id = $1`
	deleteExpiredSessionsQuery = `DELETE FROM sessions WHERE expires_at <= $1`
)

// SessionRepository implements domain.SessionRepository for PostgreSQL.
// Expiry is filtered in SQL and checked again on the scanned row.
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time

	createStmt           *sql.Stmt
	getByKeyStmt         *sql.Stmt
	listForUserStmt      *sql.Stmt
	deleteStmt           *sql.Stmt
	deleteAllForUserStmt *sql.Stmt
	deleteExpiredStmt    *sql.Stmt
}

// NewSessionRepository creates a new SessionRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewSessionRepository(db *sql.DB) (*SessionRepository, error) {
	repo := &SessionRepository{db: db, now: time.Now}

	stmts := []struct {
		name  string
		query string
		dst   **sql.Stmt
	}{
		{"create", createSessionQuery, &repo.createStmt},
		{"getByKey", getSessionByKeyQuery, &repo.getByKeyStmt},
		{"listForUser", listSessionsForUserQuery, &repo.listForUserStmt},
		{"delete", deleteSessionQuery, &repo.deleteStmt},
		{"deleteAllForUser", deleteSessionsForUserQuery, &repo.deleteAllForUserStmt},
		{"deleteExpired", deleteExpiredSessionsQuery, &repo.deleteExpiredStmt},
	}
	for _, s := range stmts {
		stmt, err := db.Prepare(s.query)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to prepare %s statement: %w", s.name, err)
		}
		*s.dst = stmt
	}

	return repo, nil
}

// Close releases the prepared statements.
func (r *SessionRepository) Close() {
	for _, stmt := range []*sql.Stmt{
		r.createStmt, r.getByKeyStmt, r.listForUserStmt,
		r.deleteStmt, r.deleteAllForUserStmt, r.deleteExpiredStmt,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	err := r.createStmt.QueryRowContext(ctx,
		session.UserID,
		session.SessionKey,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt)

	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err, sessionKeyConstraint):
		return domain.ErrSessionKeyConflict
	case IsForeignKeyViolation(err, sessionUserConstraint):
		return domain.ErrUserNotFound
	default:
		return fmt.Errorf("failed to create session: %w", err)
	}
}

// GetByKey returns ErrSessionNotFound for unknown and expired keys alike.
func (r *SessionRepository) GetByKey(ctx context.Context, key string) (*domain.Session, error) {
	now := r.now()
	session := &domain.Session{}
	err := r.getByKeyStmt.QueryRowContext(ctx, key, now).Scan(
		&session.ID,
		&session.UserID,
		&session.SessionKey,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by key: %w", err)
	}
	if session.IsExpired(now) {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *SessionRepository) ListForUser(ctx context.Context, userID int64) ([]*domain.Session, error) {
	rows, err := r.listForUserStmt.QueryContext(ctx, userID, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*domain.Session, 0)
	for rows.Next() {
		s := &domain.Session{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.SessionKey, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) Delete(ctx context.Context, key string) error {
	_, err := r.deleteStmt.ExecContext(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	return r.execCount(ctx, r.deleteAllForUserStmt, "delete user sessions", userID)
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	return r.execCount(ctx, r.deleteExpiredStmt, "delete expired sessions", r.now())
}

func (r *SessionRepository) execCount(ctx context.Context, stmt *sql.Stmt, op string, args ...interface{}) (int64, error) {
	result, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}
