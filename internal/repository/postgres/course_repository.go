package postgres

import (
	"context"
	"database/sql"
)

const courseExistsQuery = `SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1)`

// CourseRepository only answers whether a course exists.
type CourseRepository struct {
	db *sql.DB
}

func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) Exists(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, conn(ctx, r.db), courseExistsQuery, id, "course")
}
