package main

import (
	"context"
	"database/sql"
	"net/http"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/access"
	"github.com/doguto/nari-note-sub000/internal/config"
	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/handler"
	"github.com/doguto/nari-note-sub000/internal/middleware"
	"github.com/doguto/nari-note-sub000/internal/repository/postgres"
	redisrepo "github.com/doguto/nari-note-sub000/internal/repository/redis"
	"github.com/doguto/nari-note-sub000/internal/security"
	"github.com/doguto/nari-note-sub000/internal/service"
)

// app is the wired server: the HTTP handler plus the background sweeper.
type app struct {
	handler http.Handler
	sweeper *service.SessionSweeper
	closers []func()
}

// Close releases prepared statements, the Redis client and the limiter,
// in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, db *sql.DB, log *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	userRepo, err := postgres.NewUserRepository(db)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, userRepo.Close)

	sessions, rdb, err := a.openSessionStore(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	log.Info("session store ready", zap.String("backend", cfg.Session.Backend))

	likes, err := postgres.NewRelationRepository(db, domain.RelationLike)
	if err != nil {
		return nil, err
	}
	follows, err := postgres.NewRelationRepository(db, domain.RelationFollow)
	if err != nil {
		return nil, err
	}
	courseLikes, err := postgres.NewRelationRepository(db, domain.RelationCourseLike)
	if err != nil {
		return nil, err
	}
	articleRepo := postgres.NewArticleRepository(db)
	courseRepo := postgres.NewCourseRepository(db)
	txm := postgres.NewTxManager(db)

	tokens, err := security.NewTokenIssuer(security.TokenConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL(),
	})
	if err != nil {
		return nil, err
	}

	table, err := loadRules(cfg.Auth.RulesFile)
	if err != nil {
		return nil, err
	}
	classifier, err := access.NewClassifier(table)
	if err != nil {
		return nil, err
	}

	authService := service.NewAuthService(
		userRepo,
		sessions,
		security.NewPasswordHasher(security.DefaultCost),
		tokens,
		security.NewKeyGenerator(),
		service.AuthConfig{SessionTTL: cfg.Session.TTL(), Logger: log},
	)
	articleService := service.NewArticleService(articleRepo, likes)
	userService := service.NewUserService(userRepo, follows)

	articleLike := service.NewToggleService(likes, txm, service.ToggleConfig{
		Kind:         domain.RelationLike,
		TargetExists: articleRepo.Exists,
		NotFound:     domain.ErrArticleNotFound,
		AllowSelf:    true,
		Logger:       log,
	})
	follow := service.NewToggleService(follows, txm, service.ToggleConfig{
		Kind:         domain.RelationFollow,
		TargetExists: userService.Exists,
		NotFound:     domain.ErrUserNotFound,
		Logger:       log,
	})
	courseLike := service.NewToggleService(courseLikes, txm, service.ToggleConfig{
		Kind:         domain.RelationCourseLike,
		TargetExists: courseRepo.Exists,
		NotFound:     domain.ErrCourseNotFound,
		AllowSelf:    true,
		Logger:       log,
	})

	authLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst)
	a.closers = append(a.closers, authLimiter.Stop)

	a.sweeper = service.NewSessionSweeper(sessions, cfg.Session.SweepInterval, log)
	a.handler = newRouter(routes{
		gateway: middleware.NewGateway(classifier, tokens, sessions, middleware.GatewayConfig{
			CookieName: cfg.Auth.CookieName,
			Logger:     log,
		}),
		auth: handler.NewAuthHandler(authService, handler.CookieConfig{
			Name:   cfg.Auth.CookieName,
			Secure: !cfg.IsDevelopment(),
		}, log),
		articles:       handler.NewArticleHandler(articleService, log),
		users:          handler.NewUserHandler(userService, articleService, log),
		articleLike:    handler.NewToggleHandler(articleLike, log),
		follow:         handler.NewToggleHandler(follow, log),
		courseLike:     handler.NewToggleHandler(courseLike, log),
		health:         handler.Health(db, rdb),
		authLimiter:    authLimiter,
		origins:        middleware.ParseOrigins(cfg.CORS.AllowedOrigins),
		requestTimeout: cfg.Server.RequestTimeout,
		log:            log,
	})
	return a, nil
}

// openSessionStore returns the configured session store. The Redis client
// is nil unless the Redis backend is selected.
func (a *app) openSessionStore(ctx context.Context, cfg *config.Config, db *sql.DB) (domain.SessionRepository, *goredis.Client, error) {
	if cfg.Session.Backend == config.BackendRedis {
		rdb, err := redisrepo.Open(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		return redisrepo.NewSessionRepository(rdb), rdb, nil
	}

	repo, err := postgres.NewSessionRepository(db)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, repo.Close)
	return repo, nil, nil
}

func loadRules(path string) (access.Table, error) {
	if path == "" {
		return access.DefaultTable()
	}
	return access.LoadTable(path)
}
