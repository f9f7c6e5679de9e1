package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/response"
	"github.com/doguto/nari-note-sub000/internal/service"
)

type UserHandler struct {
	users    *service.UserService
	articles *service.ArticleService
	log      *zap.Logger
}

func NewUserHandler(users *service.UserService, articles *service.ArticleService, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{users: users, articles: articles, log: log}
}

// Get handles GET /users/{id} (optional auth)
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	profile, err := h.users.Profile(r.Context(), id, viewerID(r))
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, profile)
}

// Followers handles GET /users/{id}/followers?limit=&offset=
func (h *UserHandler) Followers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.users.Followers)
}

// Followings handles GET /users/{id}/followings?limit=&offset=
func (h *UserHandler) Followings(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.users.Followings)
}

func (h *UserHandler) list(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, id int64, limit, offset int) ([]*service.UserSummary, error)) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	users, err := fetch(r.Context(), id, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, users)
}

// LikedArticles handles GET /users/{id}/liked-articles?limit=&offset=
func (h *UserHandler) LikedArticles(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	ok, err := h.users.Exists(r.Context(), id)
	if err == nil && !ok {
		err = domain.ErrUserNotFound
	}
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	list, err := h.articles.LikedBy(r.Context(), id, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}
