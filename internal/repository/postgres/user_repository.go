package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

const (
	userEmailConstraint = "users_email_key"
	userNameConstraint  = "users_name_key"
)

const (
	createUserQuery = `
		INSERT INTO users (name, email, password_hash, bio)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	getUserByIDQuery = `
		SELECT id, name, email, password_hash, bio, created_at
		FROM users
		WHERE id = $1`

	getUserByEmailQuery = `
		SELECT id, name, email, password_hash, bio, created_at
		FROM users
		WHERE email = $1`

	// Email matches win over name matches when both exist.
	getUserByEmailOrNameQuery = `
		SELECT id, name, email, password_hash, bio, created_at
		FROM users
		WHERE email = $1 OR name = $1
		ORDER BY (email = $1) DESC
		LIMIT 1`
)

// UserRepository implements domain.UserRepository for PostgreSQL
type UserRepository struct {
	db *sql.DB

	createStmt           *sql.Stmt
	getByIDStmt          *sql.Stmt
	getByEmailStmt       *sql.Stmt
	getByEmailOrNameStmt *sql.Stmt
}

// NewUserRepository creates a new UserRepository with prepared statements.
func NewUserRepository(db *sql.DB) (*UserRepository, error) {
	repo := &UserRepository{db: db}

	stmts := []struct {
		name  string
		query string
		dst   **sql.Stmt
	}{
		{"create", createUserQuery, &repo.createStmt},
		{"getByID", getUserByIDQuery, &repo.getByIDStmt},
		{"getByEmail", getUserByEmailQuery, &repo.getByEmailStmt},
		{"getByEmailOrName", getUserByEmailOrNameQuery, &repo.getByEmailOrNameStmt},
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
func (r *UserRepository) Close() {
	for _, stmt := range []*sql.Stmt{r.createStmt, r.getByIDStmt, r.getByEmailStmt, r.getByEmailOrNameStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// Create inserts a new user into the database
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.createStmt.QueryRowContext(ctx,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Bio,
	).Scan(&user.ID, &user.CreatedAt)

	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err, userEmailConstraint):
		return domain.ErrEmailExists
	case IsUniqueViolation(err, userNameConstraint):
		return domain.ErrNameExists
	default:
		return fmt.Errorf("failed to create user: %w", err)
	}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(r.getByIDStmt.QueryRowContext(ctx, id))
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.getByEmailStmt.QueryRowContext(ctx, email))
}

// GetByEmailOrName looks the identifier up as an email first, then as a name.
func (r *UserRepository) GetByEmailOrName(ctx context.Context, emailOrName string) (*domain.User, error) {
	return scanUser(r.getByEmailOrNameStmt.QueryRowContext(ctx, emailOrName))
}

func scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Bio,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
