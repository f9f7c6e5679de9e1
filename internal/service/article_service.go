package service

import (
	"context"
	"errors"
	"time"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ArticleView is an article as shown to one viewer.
type ArticleView struct {
	ID          int64     `json:"id"`
	AuthorID    int64     `json:"authorId"`
	Title       string    `json:"title"`
	IsPublished bool      `json:"isPublished"`
	LikeCount   int       `json:"likeCount"`
	Liked       *bool     `json:"liked,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ArticleService struct {
	articles domain.ArticleRepository
	likes    domain.RelationRepository
}

func NewArticleService(articles domain.ArticleRepository, likes domain.RelationRepository) *ArticleService {
	return &ArticleService{articles: articles, likes: likes}
}

// Get returns the article with its like count. viewerID 0 means anonymous.
// Drafts are only visible to their author.
func (s *ArticleService) Get(ctx context.Context, id, viewerID int64) (*ArticleView, error) {
	if id <= 0 {
		return nil, domain.ErrArticleNotFound
	}
	a, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsPublished && a.AuthorID != viewerID {
		return nil, domain.ErrArticleNotFound
	}

	view := newArticleView(a)
	if view.LikeCount, err = s.likes.CountByTarget(ctx, id); err != nil {
		return nil, err
	}
	if viewerID > 0 {
		_, err := s.likes.Find(ctx, viewerID, id)
		switch {
		case err == nil:
			view.Liked = boolPtr(true)
		case errors.Is(err, domain.ErrRelationNotFound):
			view.Liked = boolPtr(false)
		default:
			return nil, err
		}
	}
	return view, nil
}

// ListPublished pages through published articles, newest first.
func (s *ArticleService) ListPublished(ctx context.Context, limit, offset int) ([]*ArticleView, error) {
	limit, offset = page(limit, offset)
	articles, err := s.articles.ListPublished(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.withCounts(ctx, articles)
}

// Drafts lists the unpublished articles of authorID.
func (s *ArticleService) Drafts(ctx context.Context, authorID int64) ([]*ArticleView, error) {
	articles, err := s.articles.ListDrafts(ctx, authorID)
	if err != nil {
		return nil, err
	}
	return s.withCounts(ctx, articles)
}

// LikedBy pages the published articles userID has liked, most recent
// like first. Likes on drafts or deleted articles are skipped, so a page
// may come back shorter than limit.
func (s *ArticleService) LikedBy(ctx context.Context, userID int64, limit, offset int) ([]*ArticleView, error) {
	limit, offset = page(limit, offset)
	rels, err := s.likes.ListByActor(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	articles := make([]*domain.Article, 0, len(rels))
	for _, rel := range rels {
		a, err := s.articles.GetByID(ctx, rel.TargetID)
		if errors.Is(err, domain.ErrArticleNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if a.IsPublished {
			articles = append(articles, a)
		}
	}
	return s.withCounts(ctx, articles)
}

func (s *ArticleService) withCounts(ctx context.Context, articles []*domain.Article) ([]*ArticleView, error) {
	views := make([]*ArticleView, 0, len(articles))
	for _, a := range articles {
		v := newArticleView(a)
		n, err := s.likes.CountByTarget(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		v.LikeCount = n
		views = append(views, v)
	}
	return views, nil
}

func newArticleView(a *domain.Article) *ArticleView {
	return &ArticleView{
		ID:          a.ID,
		AuthorID:    a.AuthorID,
		Title:       a.Title,
		IsPublished: a.IsPublished,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func boolPtr(b bool) *bool { return &b }

// page applies the default and maximum page size.
func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
