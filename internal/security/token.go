package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/doguto/nari-note-sub000/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretBytes is the shortest HMAC secret accepted (256 bits).
const MinSecretBytes = 32

// DefaultTokenTTL applies when TokenConfig.TTL is zero.
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrTokenMissing = fmt.Errorf("%w: token missing", domain.ErrUnauthorized)
	ErrTokenExpired = fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	ErrTokenInvalid = fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)

	ErrSecretTooShort = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretBytes)
)

// Claims carried by an access token. SessionKey points at the server-side
// session that must still exist for the token to be honoured.
type Claims struct {
	Name       string `json:"name"`
	SessionKey string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}

// TokenConfig configures a TokenIssuer. Now defaults to time.Now.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      func() time.Time
}

// TokenIssuer signs and validates HS256 access tokens. It never touches
// session storage.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// NewTokenIssuer validates cfg and returns an issuer. A short secret or a
// missing issuer/audience is a configuration error.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("jwt issuer and audience are required")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	t := &TokenIssuer{
		secret:   secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.Now),
	)
	return t, nil
}

// TTL returns the token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for userID bound to sessionKey and returns it with its
// expiry.
func (t *TokenIssuer) Issue(userID int64, name, sessionKey string) (string, time.Time, error) {
	if userID <= 0 || sessionKey == "" {
		return "", time.Time{}, domain.ErrInvalidInput
	}

	now := t.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		Name:       name,
		SessionKey: sessionKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks signature, structure, issuer, audience and expiry and
// returns the claims. Expired tokens yield ErrTokenExpired, everything else
// ErrTokenInvalid.
func (t *TokenIssuer) Validate(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	claims := &Claims{}
	parsed, err := t.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
