package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

const (
	articleColumns = `id, author_id, title, is_published, created_at, updated_at`

	getArticleByIDQuery = `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`

	articleExistsQuery = `SELECT EXISTS(SELECT 1 FROM articles WHERE id = $1)`

	listPublishedArticlesQuery = `SELECT ` + articleColumns + `
		FROM articles
		WHERE is_published
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	listDraftArticlesQuery = `SELECT ` + articleColumns + `
		FROM articles
		WHERE author_id = $1 AND NOT is_published
		ORDER BY updated_at DESC, id DESC`
)

// ArticleRepository reads articles. Authoring happens in another service.
type ArticleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

func (r *ArticleRepository) GetByID(ctx context.Context, id int64) (*domain.Article, error) {
	a := &domain.Article{}
	err := conn(ctx, r.db).QueryRowContext(ctx, getArticleByIDQuery, id).Scan(
		&a.ID, &a.AuthorID, &a.Title, &a.IsPublished, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return a, nil
}

func (r *ArticleRepository) Exists(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, conn(ctx, r.db), articleExistsQuery, id, "article")
}

func (r *ArticleRepository) ListPublished(ctx context.Context, limit, offset int) ([]*domain.Article, error) {
	return r.list(ctx, listPublishedArticlesQuery, limit, offset)
}

func (r *ArticleRepository) ListDrafts(ctx context.Context, authorID int64) ([]*domain.Article, error) {
	return r.list(ctx, listDraftArticlesQuery, authorID)
}

func (r *ArticleRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Article, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	articles := []*domain.Article{}
	for rows.Next() {
		a := &domain.Article{}
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.Title, &a.IsPublished, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}
	return articles, nil
}

func exists(ctx context.Context, q queryer, query string, id int64, what string) (bool, error) {
	var ok bool
	if err := q.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", what, err)
	}
	return ok, nil
}
