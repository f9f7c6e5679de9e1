package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/response"
	"github.com/doguto/nari-note-sub000/internal/service"
)

type ArticleHandler struct {
	articles *service.ArticleService
	log      *zap.Logger
}

func NewArticleHandler(articles *service.ArticleService, log *zap.Logger) *ArticleHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ArticleHandler{articles: articles, log: log}
}

// List handles GET /articles?limit=&offset=
func (h *ArticleHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.articles.ListPublished(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

// Get handles GET /articles/{id} (optional auth). Liked and the author's
// own drafts need an authenticated caller.
func (h *ArticleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	view, err := h.articles.Get(r.Context(), id, viewerID(r))
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, view)
}

// Drafts handles GET /articles/drafts
func (h *ArticleHandler) Drafts(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	list, err := h.articles.Drafts(r.Context(), id.UserID)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}
