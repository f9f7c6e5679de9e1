package domain

import (
	"context"
	"fmt"
)

var ErrCourseNotFound = fmt.Errorf("%w: course not found", ErrNotFound)

// CourseRepository only answers existence; courses are managed elsewhere.
type CourseRepository interface {
	Exists(ctx context.Context, id int64) (bool, error)
}
