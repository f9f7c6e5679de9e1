package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/observability"
	"github.com/doguto/nari-note-sub000/internal/security"
)

const (
	DefaultSessionTTL  = 24 * time.Hour
	sessionKeyAttempts = 3
	minPasswordLength  = 8
	maxNameLength      = 50
	maxEmailLength     = 255
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// PasswordHasher hashes and checks user secrets.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

// TokenIssuer signs tokens that point at a session.
type TokenIssuer interface {
	Issue(userID int64, name, sessionKey string) (string, time.Time, error)
}

// KeyGenerator produces fresh session keys.
type KeyGenerator interface {
	Generate() (string, error)
}

// AuthResult is what sign-in and sign-up hand back to the transport.
type AuthResult struct {
	User           *domain.User
	Session        *domain.Session
	Token          string
	TokenExpiresAt time.Time
}

type AuthConfig struct {
	SessionTTL time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	keys     KeyGenerator

	sessionTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewAuthService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	keys KeyGenerator,
	cfg AuthConfig,
) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuthService{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		keys:       keys,
		sessionTTL: cfg.SessionTTL,
		log:        cfg.Logger,
		now:        cfg.Now,
	}
}

// SignUp registers a user and opens their first session.
func (s *AuthService) SignUp(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", domain.ErrValidation, maxNameLength)
	}
	if strings.Contains(name, "@") {
		return nil, fmt.Errorf("%w: name must not contain @", domain.ErrValidation)
	}
	if len(email) > maxEmailLength || !emailRegex.MatchString(email) {
		return nil, fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{Name: name, Email: email, PasswordHash: digest}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user signed up", zap.Int64("user_id", user.ID))
	return s.startSession(ctx, user)
}

// SignIn accepts either the email address or the display name.
func (s *AuthService) SignIn(ctx context.Context, usernameOrEmail, password string) (*AuthResult, error) {
	identifier := strings.TrimSpace(usernameOrEmail)
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.Contains(identifier, "@") {
		identifier = strings.ToLower(identifier)
	}

	user, err := s.users.GetByEmailOrName(ctx, identifier)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	return s.startSession(ctx, user)
}

// startSession creates a session under a fresh key, retrying on the rare
// key collision, and issues a token pointing at it.
func (s *AuthService) startSession(ctx context.Context, user *domain.User) (*AuthResult, error) {
	var session *domain.Session
	for attempt := 1; ; attempt++ {
		key, err := s.keys.Generate()
		if err != nil {
			return nil, err
		}
		session = &domain.Session{
			UserID:     user.ID,
			SessionKey: key,
			ExpiresAt:  s.now().Add(s.sessionTTL),
		}

		err = s.sessions.Create(ctx, session)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrSessionKeyConflict) || attempt == sessionKeyAttempts {
			return nil, err
		}
		observability.SessionKeyCollisionsTotal.Inc()
		s.log.Warn("session key collision, regenerating",
			zap.Int("attempt", attempt),
			zap.String("key_fp", security.Fingerprint(key)))
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Name, session.SessionKey)
	if err != nil {
		return nil, err
	}

	observability.FromContext(ctx, s.log).Info("session started",
		zap.Int64("user_id", user.ID),
		zap.String("key_fp", security.Fingerprint(session.SessionKey)))

	return &AuthResult{
		User:           user,
		Session:        session,
		Token:          token,
		TokenExpiresAt: expiresAt,
	}, nil
}

// Logout deletes the caller's own session.
func (s *AuthService) Logout(ctx context.Context, sessionKey string) error {
	if sessionKey == "" {
		return domain.ErrSessionNotFound
	}
	return s.sessions.Delete(ctx, sessionKey)
}

// LogoutAll deletes every session of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	observability.FromContext(ctx, s.log).Info("logged out everywhere",
		zap.Int64("user_id", userID), zap.Int64("sessions", n))
	return n, nil
}

func (s *AuthService) Sessions(ctx context.Context, userID int64) ([]*domain.Session, error) {
	return s.sessions.ListForUser(ctx, userID)
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}
