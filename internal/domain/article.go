package domain

import (
	"context"
	"fmt"
	"time"
)

var ErrArticleNotFound = fmt.Errorf("%w: article not found", ErrNotFound)

// Article is the read model this service needs; authoring lives elsewhere.
type Article struct {
	ID          int64     `json:"id"`
	AuthorID    int64     `json:"authorId"`
	Title       string    `json:"title"`
	IsPublished bool      `json:"isPublished"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ArticleRepository defines the interface for article reads
type ArticleRepository interface {
	GetByID(ctx context.Context, id int64) (*Article, error)
	Exists(ctx context.Context, id int64) (bool, error)
	ListPublished(ctx context.Context, limit, offset int) ([]*Article, error)
	ListDrafts(ctx context.Context, authorID int64) ([]*Article, error)
}
