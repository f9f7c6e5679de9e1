package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/doguto/nari-note-sub000/internal/access"
	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/observability"
	"github.com/doguto/nari-note-sub000/internal/response"
	"github.com/doguto/nari-note-sub000/internal/security"

	"go.uber.org/zap"
)

type contextKey string

const identityKey contextKey = "identity"

// DefaultCookieName carries the access token for browser clients.
const DefaultCookieName = "authToken"

// Identity is what the gateway attaches to an authenticated request.
type Identity struct {
	UserID     int64
	Name       string
	SessionKey string
}

// Classifier decides how much authentication an endpoint needs.
type Classifier interface {
	Classify(method, path string) access.Visibility
}

// TokenValidator verifies access tokens without consulting storage.
type TokenValidator interface {
	Validate(token string) (*security.Claims, error)
}

// GatewayConfig holds the optional knobs of a Gateway.
type GatewayConfig struct {
	CookieName string
	Logger     *zap.Logger
	Now        func() time.Time
}

// Gateway authenticates requests. For every request it classifies the
// endpoint, extracts a credential (cookie first, then Bearer header),
// validates the token and confirms the referenced session is still live.
// Failures reject protected endpoints with 401 and let optional ones
// through anonymously. Storage failures are never treated as anonymous.
type Gateway struct {
	classifier Classifier
	tokens     TokenValidator
	sessions   domain.SessionRepository
	cookieName string
	log        *zap.Logger
	now        func() time.Time
}

// NewGateway creates the authorization gateway
func NewGateway(classifier Classifier, tokens TokenValidator, sessions domain.SessionRepository, cfg GatewayConfig) *Gateway {
	g := &Gateway{
		classifier: classifier,
		tokens:     tokens,
		sessions:   sessions,
		cookieName: cfg.CookieName,
		log:        cfg.Logger,
		now:        cfg.Now,
	}
	if g.cookieName == "" {
		g.cookieName = DefaultCookieName
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// rejection is a failed authentication step.
type rejection struct {
	reason  string // metric label
	message string // client-visible
}

var (
	rejectMissing = &rejection{"missing_credential", "authentication required"}
	rejectToken   = &rejection{"invalid_token", "invalid token"}
	rejectExpired = &rejection{"expired_token", "invalid token"}
	rejectSession = &rejection{"session_invalid", "session invalid or expired"}
)

// Handler returns the chi-compatible middleware
func (g *Gateway) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			record(access.Public, "passthrough", "preflight")
			next.ServeHTTP(w, r)
			return
		}

		visibility := g.classifier.Classify(r.Method, r.URL.Path)
		if visibility == access.Public {
			record(visibility, "passthrough", "public")
			next.ServeHTTP(w, r)
			return
		}

		identity, rej, err := g.authenticate(r)
		if err != nil {
			record(visibility, "error", "store_error")
			response.Error(w, r, observability.FromContext(r.Context(), g.log), err)
			return
		}

		if rej != nil {
			if visibility == access.Optional {
				record(visibility, "anonymous", rej.reason)
				next.ServeHTTP(w, r)
				return
			}
			record(visibility, "rejected", rej.reason)
			observability.FromContext(r.Context(), g.log).Debug("request rejected",
				zap.String("path", r.URL.Path),
				zap.String("reason", rej.reason),
			)
			response.Unauthorized(w, r, rej.message)
			return
		}

		if err := r.Context().Err(); err != nil {
			record(visibility, "error", "canceled")
			response.Error(w, r, observability.FromContext(r.Context(), g.log), err)
			return
		}

		record(visibility, "authenticated", "")
		ctx := WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate walks the credential, token and session steps. A non-nil
// error means storage failed and no decision could be made.
func (g *Gateway) authenticate(r *http.Request) (*Identity, *rejection, error) {
	raw := g.credential(r)
	if raw == "" {
		return nil, rejectMissing, nil
	}

	claims, err := g.tokens.Validate(raw)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, rejectExpired, nil
		}
		return nil, rejectToken, nil
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, rejectToken, nil
	}
	if claims.SessionKey == "" {
		return nil, rejectSession, nil
	}

	session, err := g.sessions.GetByKey(r.Context(), claims.SessionKey)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			g.log.Debug("session not found", zap.String("session", security.Fingerprint(claims.SessionKey)))
			return nil, rejectSession, nil
		}
		return nil, nil, err
	}
	if session.UserID != userID || session.IsExpired(g.now()) {
		return nil, rejectSession, nil
	}

	return &Identity{UserID: userID, Name: claims.Name, SessionKey: session.SessionKey}, nil, nil
}

func (g *Gateway) credential(r *http.Request) string {
	if c, err := r.Cookie(g.cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func record(v access.Visibility, outcome, reason string) {
	observability.AuthDecisionsTotal.WithLabelValues(v.String(), outcome, reason).Inc()
}

// IdentityFromContext returns the identity attached by the gateway
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// UserIDFromContext returns the authenticated user id
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return 0, false
	}
	return id.UserID, true
}

// WithIdentity attaches id to ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = observability.WithUserID(ctx, id.UserID)
	return context.WithValue(ctx, identityKey, id)
}
