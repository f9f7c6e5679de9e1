package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/middleware"
	"github.com/doguto/nari-note-sub000/internal/response"
	"github.com/doguto/nari-note-sub000/internal/security"
	"github.com/doguto/nari-note-sub000/internal/service"
	"github.com/doguto/nari-note-sub000/internal/testutil"
)

var handlerNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type authHarness struct {
	handler  *AuthHandler
	users    *testutil.MockUserRepository
	sessions *testutil.MockSessionRepository
	tokens   *security.TokenIssuer
	hasher   *security.PasswordHasher
}

func newAuthHarness(t *testing.T, secure bool) *authHarness {
	t.Helper()
	tokens, err := security.NewTokenIssuer(security.TokenConfig{
		Secret:   []byte(strings.Repeat("x", security.MinSecretBytes)),
		Issuer:   "nari-note",
		Audience: "web",
		Now:      func() time.Time { return handlerNow },
	})
	require.NoError(t, err)

	h := &authHarness{
		users:    testutil.NewMockUserRepository(),
		sessions: testutil.NewMockSessionRepository(),
		tokens:   tokens,
		hasher:   security.NewPasswordHasher(4),
	}
	h.sessions.Now = func() time.Time { return handlerNow }
	svc := service.NewAuthService(h.users, h.sessions, h.hasher, tokens, security.NewKeyGenerator(), service.AuthConfig{
		Now: func() time.Time { return handlerNow },
	})
	h.handler = NewAuthHandler(svc, CookieConfig{Secure: secure}, nil)
	h.handler.now = func() time.Time { return handlerNow }
	return h
}

func (h *authHarness) addUser(t *testing.T, name, password string) *domain.User {
	t.Helper()
	digest, err := h.hasher.Hash(password)
	require.NoError(t, err)
	u := testutil.NewTestUser(testutil.WithName(name), testutil.WithPasswordHash(digest))
	h.users.Add(u)
	return u
}

func withIdentity(r *http.Request, id *middleware.Identity) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), id))
}

func TestAuthHandler_SignUp(t *testing.T) {
	h := newAuthHarness(t, true)
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/signup", SignUpRequest{
		Name: "habu", Email: "habu@example.com", Password: "yoshiharu",
	})
	w := httptest.NewRecorder()

	h.handler.SignUp(w, req)

	testutil.AssertStatusCode(t, w, http.StatusCreated)
	cookie := testutil.AssertCookie(t, w, "authToken")
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, int((24 * time.Hour).Seconds()), cookie.MaxAge)

	body := testutil.DecodeJSON[AuthResponse](t, w)
	assert.Equal(t, cookie.Value, body.Token)
	assert.Equal(t, "habu", body.User.Name)

	claims, err := h.tokens.Validate(body.Token)
	require.NoError(t, err)
	_, err = h.sessions.GetByKey(context.Background(), claims.SessionKey)
	assert.NoError(t, err)
}

func TestAuthHandler_SignUp_Errors(t *testing.T) {
	t.Run("malformed_body", func(t *testing.T) {
		h := newAuthHarness(t, false)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader("{"))
		w := httptest.NewRecorder()

		h.handler.SignUp(w, req)

		testutil.AssertErrorEnvelope(t, w, http.StatusBadRequest, response.CodeValidation)
	})

	t.Run("duplicate_name", func(t *testing.T) {
		h := newAuthHarness(t, false)
		h.addUser(t, "habu", "yoshiharu")
		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/signup", SignUpRequest{
			Name: "habu", Email: "new@example.com", Password: "yoshiharu",
		})
		w := httptest.NewRecorder()

		h.handler.SignUp(w, req)

		env := testutil.AssertErrorEnvelope(t, w, http.StatusConflict, response.CodeConflict)
		assert.Equal(t, "/api/auth/signup", env.Error.Path)
	})
}

func TestAuthHandler_SignIn(t *testing.T) {
	t.Run("success_in_development", func(t *testing.T) {
		h := newAuthHarness(t, false)
		h.addUser(t, "fujii", "sotaSota")
		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/signin", SignInRequest{
			UsernameOrEmail: "fujii", Password: "sotaSota",
		})
		w := httptest.NewRecorder()

		h.handler.SignIn(w, req)

		testutil.AssertStatusCode(t, w, http.StatusOK)
		cookie := testutil.AssertCookie(t, w, "authToken")
		assert.False(t, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Equal(t, 1, h.sessions.Len())
	})

	t.Run("bad_credentials", func(t *testing.T) {
		h := newAuthHarness(t, false)
		h.addUser(t, "fujii", "sotaSota")
		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/signin", SignInRequest{
			UsernameOrEmail: "fujii", Password: "nope-nope",
		})
		w := httptest.NewRecorder()

		h.handler.SignIn(w, req)

		testutil.AssertErrorEnvelope(t, w, http.StatusUnauthorized, response.CodeUnauthorized)
		assert.Empty(t, w.Result().Cookies())
	})
}

func TestAuthHandler_Me(t *testing.T) {
	h := newAuthHarness(t, false)
	u := h.addUser(t, "fujii", "sotaSota")

	w := httptest.NewRecorder()
	h.handler.Me(w, withIdentity(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil),
		&middleware.Identity{UserID: u.ID, Name: u.Name, SessionKey: "k"}))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, u.Name, testutil.DecodeJSON[UserResponse](t, w).Name)

	w = httptest.NewRecorder()
	h.handler.Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	testutil.AssertErrorEnvelope(t, w, http.StatusUnauthorized, response.CodeUnauthorized)
}

func TestAuthHandler_LogoutAndSessions(t *testing.T) {
	h := newAuthHarness(t, false)
	u := h.addUser(t, "fujii", "sotaSota")
	current := testutil.NewTestSession(testutil.WithSessionUserID(u.ID), testutil.WithSessionKey("current"),
		testutil.WithExpiresAt(handlerNow.Add(time.Hour)))
	other := testutil.NewTestSession(testutil.WithSessionUserID(u.ID), testutil.WithSessionKey("other"),
		testutil.WithExpiresAt(handlerNow.Add(time.Hour)))
	h.sessions.Add(current, other)
	id := &middleware.Identity{UserID: u.ID, SessionKey: "current"}

	w := httptest.NewRecorder()
	h.handler.Sessions(w, withIdentity(httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil), id))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	list := testutil.DecodeJSON[[]SessionResponse](t, w)
	require.Len(t, list, 2)
	currentCount := 0
	for _, s := range list {
		if s.Current {
			currentCount++
			assert.Equal(t, current.ID, s.ID)
		}
	}
	assert.Equal(t, 1, currentCount)

	w = httptest.NewRecorder()
	h.handler.Logout(w, withIdentity(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), id))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, -1, testutil.AssertCookie(t, w, "authToken").MaxAge)
	assert.Equal(t, 1, h.sessions.Len())

	w = httptest.NewRecorder()
	h.handler.LogoutAll(w, withIdentity(httptest.NewRequest(http.MethodPost, "/api/auth/logout-all", nil), id))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, int64(1), testutil.DecodeJSON[map[string]int64](t, w)["revoked"])
	assert.Zero(t, h.sessions.Len())
}

func TestAuthHandler_StoreFailure(t *testing.T) {
	h := newAuthHarness(t, false)
	h.sessions.ListForUserFunc = func(context.Context, int64) ([]*domain.Session, error) {
		return nil, testutil.ErrMockStorage
	}

	w := httptest.NewRecorder()
	h.handler.Sessions(w, withIdentity(httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil),
		&middleware.Identity{UserID: 1, SessionKey: "k"}))

	env := testutil.AssertErrorEnvelope(t, w, http.StatusInternalServerError, response.CodeInternal)
	assert.NotContains(t, env.Error.Message, "mock")
}
