package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/access"
	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/handler"
	"github.com/doguto/nari-note-sub000/internal/middleware"
	"github.com/doguto/nari-note-sub000/internal/response"
	"github.com/doguto/nari-note-sub000/internal/security"
	"github.com/doguto/nari-note-sub000/internal/service"
	"github.com/doguto/nari-note-sub000/internal/testutil"
)

type testApp struct {
	router   http.Handler
	users    *testutil.MockUserRepository
	sessions *testutil.MockSessionRepository
	likes    *testutil.MockRelationRepository
	articles *testutil.MockArticleRepository
	mock     sqlmock.Sqlmock
}

func newTestApp(t *testing.T, limiter *middleware.RateLimiter, opts ...func(*routes)) *testApp {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	table, err := access.DefaultTable()
	require.NoError(t, err)
	classifier, err := access.NewClassifier(table)
	require.NoError(t, err)

	tokens, err := security.NewTokenIssuer(security.TokenConfig{
		Secret:   []byte(strings.Repeat("s", security.MinSecretBytes)),
		Issuer:   "nari-note",
		Audience: "nari-note-web",
	})
	require.NoError(t, err)

	app := &testApp{
		users:    testutil.NewMockUserRepository(),
		sessions: testutil.NewMockSessionRepository(),
		likes:    testutil.NewMockRelationRepository(),
		mock:     mock,
	}
	follows := testutil.NewMockRelationRepository()
	courseLikes := testutil.NewMockRelationRepository()
	app.articles = testutil.NewMockArticleRepository(
		testutil.NewTestArticle(testutil.WithArticleID(1), testutil.WithAuthorID(500)),
	)
	articles := app.articles
	courses := testutil.NewMockCourseRepository(7)
	locker := testutil.NewMockPairLocker()

	authService := service.NewAuthService(app.users, app.sessions, security.NewPasswordHasher(4),
		tokens, security.NewKeyGenerator(), service.AuthConfig{})
	userService := service.NewUserService(app.users, follows)
	articleService := service.NewArticleService(articles, app.likes)

	toggle := func(rel domain.RelationRepository, kind domain.RelationKind, exists service.ExistsFunc, notFound error) *handler.ToggleHandler {
		return handler.NewToggleHandler(service.NewToggleService(rel, locker, service.ToggleConfig{
			Kind:         kind,
			TargetExists: exists,
			NotFound:     notFound,
			AllowSelf:    kind != domain.RelationFollow,
		}), nil)
	}

	rt := routes{
		gateway:     middleware.NewGateway(classifier, tokens, app.sessions, middleware.GatewayConfig{}),
		auth:        handler.NewAuthHandler(authService, handler.CookieConfig{}, nil),
		articles:    handler.NewArticleHandler(articleService, nil),
		users:       handler.NewUserHandler(userService, articleService, nil),
		articleLike: toggle(app.likes, domain.RelationLike, articles.Exists, domain.ErrArticleNotFound),
		follow:      toggle(follows, domain.RelationFollow, userService.Exists, domain.ErrUserNotFound),
		courseLike:  toggle(courseLikes, domain.RelationCourseLike, courses.Exists, domain.ErrCourseNotFound),
		health:      handler.Health(db, nil),
		authLimiter: limiter,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&rt)
	}
	app.router = newRouter(rt)
	return app
}

func (a *testApp) signUp(t *testing.T, name string) handler.AuthResponse {
	t.Helper()
	w := a.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/signup", handler.SignUpRequest{
		Name: name, Email: name + "@example.com", Password: "yoshiharu",
	}))
	testutil.AssertStatusCode(t, w, http.StatusCreated)
	return testutil.DecodeJSON[handler.AuthResponse](t, w)
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func withCookie(req *http.Request, c *http.Cookie) *http.Request {
	req.AddCookie(c)
	return req
}

func TestRouter_AnonymousAccess(t *testing.T) {
	app := newTestApp(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"optional_article_anonymous", http.MethodGet, "/api/articles/1", http.StatusOK},
		{"public_list", http.MethodGet, "/api/articles", http.StatusOK},
		{"drafts_exception", http.MethodGet, "/api/articles/drafts", http.StatusUnauthorized},
		{"toggle_protected", http.MethodPost, "/api/articles/1/like", http.StatusUnauthorized},
		{"follow_protected", http.MethodPost, "/api/users/2/follow", http.StatusUnauthorized},
		{"me_protected", http.MethodGet, "/api/auth/me", http.StatusUnauthorized},
		{"unlisted_route", http.MethodGet, "/api/nowhere", http.StatusUnauthorized},
		{"signin_passes", http.MethodPost, "/api/auth/signin", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(httptest.NewRequest(tt.method, tt.path, nil))
			testutil.AssertStatusCode(t, w, tt.status)
		})
	}
	assert.Zero(t, app.likes.Len())
}

func TestRouter_SessionLifecycle(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/signup", handler.SignUpRequest{
		Name: "habu", Email: "habu@example.com", Password: "yoshiharu",
	}))
	testutil.AssertStatusCode(t, w, http.StatusCreated)
	cookie := testutil.AssertCookie(t, w, middleware.DefaultCookieName)
	auth := testutil.DecodeJSON[handler.AuthResponse](t, w)
	require.NotEmpty(t, auth.Token)

	// cookie credential
	w = app.do(withCookie(httptest.NewRequest(http.MethodPost, "/api/articles/1/like", nil), cookie))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.JSONEq(t, `{"active":true,"currentCount":1}`, w.Body.String())

	// bearer credential, same session
	w = app.do(testutil.NewBearerRequest(http.MethodPost, "/api/articles/1/like", auth.Token))
	assert.JSONEq(t, `{"active":false,"currentCount":0}`, w.Body.String())

	self := "/api/users/" + strconv.FormatInt(auth.User.ID, 10) + "/follow"
	w = app.do(testutil.NewBearerRequest(http.MethodPost, self, auth.Token))
	testutil.AssertErrorEnvelope(t, w, http.StatusBadRequest, response.CodeValidation)

	w = app.do(testutil.NewBearerRequest(http.MethodPost, "/api/courses/8/like", auth.Token))
	testutil.AssertErrorEnvelope(t, w, http.StatusNotFound, response.CodeNotFound)

	w = app.do(testutil.NewBearerRequest(http.MethodGet, "/api/nowhere", auth.Token))
	testutil.AssertErrorEnvelope(t, w, http.StatusNotFound, response.CodeNotFound)

	w = app.do(withCookie(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), cookie))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Zero(t, app.sessions.Len())

	// The token is still well-formed and unexpired, but its session is gone.
	w = app.do(testutil.NewBearerRequest(http.MethodGet, "/api/auth/me", auth.Token))
	testutil.AssertErrorEnvelope(t, w, http.StatusUnauthorized, response.CodeUnauthorized)

	// Optional endpoints degrade to anonymous.
	profile := "/api/users/" + strconv.FormatInt(auth.User.ID, 10)
	w = app.do(testutil.NewBearerRequest(http.MethodGet, profile, auth.Token))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.NotContains(t, w.Body.String(), "isFollowing")
}

func TestRouter_AuthRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(context.Background(), 0.001, 1)
	t.Cleanup(limiter.Stop)
	app := newTestApp(t, limiter)

	body := handler.SignInRequest{UsernameOrEmail: "nobody", Password: "whatever1"}

	w := app.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/signin", body))
	testutil.AssertErrorEnvelope(t, w, http.StatusUnauthorized, response.CodeUnauthorized)

	w = app.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/signin", body))
	testutil.AssertErrorEnvelope(t, w, http.StatusTooManyRequests, response.CodeRateLimited)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	app := newTestApp(t, nil)
	app.mock.ExpectPing()

	w := app.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.NoError(t, app.mock.ExpectationsWereMet())

	w = app.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestRouter_SessionLookupHonoursRequestTimeout(t *testing.T) {
	app := newTestApp(t, nil, func(rt *routes) { rt.requestTimeout = 50 * time.Millisecond })
	auth := app.signUp(t, "habu")

	var sawDeadline atomic.Bool
	app.sessions.GetByKeyFunc = func(ctx context.Context, key string) (*domain.Session, error) {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return nil, domain.ErrSessionNotFound
		}
	}

	start := time.Now()
	w := app.do(testutil.NewBearerRequest(http.MethodGet, "/api/auth/me", auth.Token))

	testutil.AssertErrorEnvelope(t, w, http.StatusGatewayTimeout, response.CodeTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, sawDeadline.Load())
}

func TestRouter_ArticlePersonalisation(t *testing.T) {
	app := newTestApp(t, nil)
	auth := app.signUp(t, "habu")
	app.articles.Articles[2] = testutil.NewTestArticle(
		testutil.WithArticleID(2), testutil.WithAuthorID(auth.User.ID), testutil.WithDraft(),
	)

	w := app.do(testutil.NewBearerRequest(http.MethodPost, "/api/articles/1/like", auth.Token))
	testutil.AssertStatusCode(t, w, http.StatusOK)

	w = app.do(testutil.NewBearerRequest(http.MethodGet, "/api/articles/1", auth.Token))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	view := testutil.DecodeJSON[service.ArticleView](t, w)
	require.NotNil(t, view.Liked)
	assert.True(t, *view.Liked)
	assert.Equal(t, 1, view.LikeCount)

	w = app.do(testutil.NewBearerRequest(http.MethodGet, "/api/articles/2", auth.Token))
	testutil.AssertStatusCode(t, w, http.StatusOK)

	w = app.do(httptest.NewRequest(http.MethodGet, "/api/articles/2", nil))
	testutil.AssertErrorEnvelope(t, w, http.StatusNotFound, response.CodeNotFound)

	w = app.do(httptest.NewRequest(http.MethodGet, "/api/articles/1", nil))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.NotContains(t, w.Body.String(), `"liked"`)
}

func TestRouter_RelationLists(t *testing.T) {
	app := newTestApp(t, nil)
	habu := app.signUp(t, "habu")
	fujii := app.signUp(t, "fujii")

	follow := "/api/users/" + strconv.FormatInt(habu.User.ID, 10) + "/follow"
	testutil.AssertStatusCode(t, app.do(testutil.NewBearerRequest(http.MethodPost, follow, fujii.Token)), http.StatusOK)
	testutil.AssertStatusCode(t, app.do(testutil.NewBearerRequest(http.MethodPost, "/api/articles/1/like", fujii.Token)), http.StatusOK)

	base := func(id int64) string { return "/api/users/" + strconv.FormatInt(id, 10) }

	w := app.do(httptest.NewRequest(http.MethodGet, base(habu.User.ID)+"/followers", nil))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	followers := testutil.DecodeJSON[[]service.UserSummary](t, w)
	require.Len(t, followers, 1)
	assert.Equal(t, "fujii", followers[0].Name)

	w = app.do(httptest.NewRequest(http.MethodGet, base(fujii.User.ID)+"/followings", nil))
	followings := testutil.DecodeJSON[[]service.UserSummary](t, w)
	require.Len(t, followings, 1)
	assert.Equal(t, "habu", followings[0].Name)

	w = app.do(httptest.NewRequest(http.MethodGet, base(fujii.User.ID)+"/liked-articles", nil))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	liked := testutil.DecodeJSON[[]service.ArticleView](t, w)
	require.Len(t, liked, 1)
	assert.Equal(t, int64(1), liked[0].ID)

	w = app.do(httptest.NewRequest(http.MethodGet, "/api/users/999/liked-articles", nil))
	testutil.AssertErrorEnvelope(t, w, http.StatusNotFound, response.CodeNotFound)
}
