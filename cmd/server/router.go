package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/handler"
	"github.com/doguto/nari-note-sub000/internal/middleware"
	"github.com/doguto/nari-note-sub000/internal/response"
)

// routes holds everything the router mounts.
type routes struct {
	gateway     *middleware.Gateway
	auth        *handler.AuthHandler
	articles    *handler.ArticleHandler
	users       *handler.UserHandler
	articleLike *handler.ToggleHandler
	follow      *handler.ToggleHandler
	courseLike  *handler.ToggleHandler
	health      http.HandlerFunc
	authLimiter *middleware.RateLimiter

	origins        []string
	requestTimeout time.Duration
	log            *zap.Logger
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(rt.log))
	r.Use(middleware.Recoverer(rt.log))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(rt.origins))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// The deadline covers the gateway's session lookup too.
		if rt.requestTimeout > 0 {
			r.Use(chimiddleware.Timeout(rt.requestTimeout))
		}
		// Every /api request passes the gateway, matched route or not.
		r.Use(rt.gateway.Handler)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			response.WriteError(w, r, http.StatusNotFound, response.CodeNotFound, "not found")
		})

		r.Get("/health", rt.health)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if rt.authLimiter != nil {
					r.Use(rt.authLimiter.Middleware())
				}
				r.Post("/signup", rt.auth.SignUp)
				r.Post("/signin", rt.auth.SignIn)
			})
			r.Get("/me", rt.auth.Me)
			r.Get("/sessions", rt.auth.Sessions)
			r.Post("/logout", rt.auth.Logout)
			r.Post("/logout-all", rt.auth.LogoutAll)
		})

		r.Route("/articles", func(r chi.Router) {
			r.Get("/", rt.articles.List)
			r.Get("/drafts", rt.articles.Drafts)
			r.Get("/{id}", rt.articles.Get)
			r.Post("/{id}/like", rt.articleLike.Toggle)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}", rt.users.Get)
			r.Get("/{id}/followers", rt.users.Followers)
			r.Get("/{id}/followings", rt.users.Followings)
			r.Get("/{id}/liked-articles", rt.users.LikedArticles)
			r.Post("/{id}/follow", rt.follow.Toggle)
		})

		r.Post("/courses/{id}/like", rt.courseLike.Toggle)
	})

	return r
}
