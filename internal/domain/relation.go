package domain

import (
	"context"
	"fmt"
	"time"
)

var ErrRelationNotFound = fmt.Errorf("%w: relation not found", ErrNotFound)

// RelationKind names a binary actor->target relation.
type RelationKind string

const (
	RelationLike       RelationKind = "like"        // user -> article
	RelationFollow     RelationKind = "follow"      // user -> user
	RelationCourseLike RelationKind = "course_like" // user -> course
)

// Relation is a single (actor, target) row. At most one exists per pair.
type Relation struct {
	ID        int64
	ActorID   int64
	TargetID  int64
	CreatedAt time.Time
}

// CreateResult tells the caller whether Create inserted a new row or found
// the pair already present.
type CreateResult int

const (
	Created CreateResult = iota
	AlreadyExists
)

func (r CreateResult) String() string {
	if r == AlreadyExists {
		return "already_exists"
	}
	return "created"
}

// RelationRepository is the storage collaborator of the toggle engine.
// Find returns ErrRelationNotFound when the pair does not exist. Delete of
// a missing id is not an error. The List methods page newest first.
type RelationRepository interface {
	Find(ctx context.Context, actorID, targetID int64) (*Relation, error)
	Create(ctx context.Context, rel *Relation) (CreateResult, error)
	Delete(ctx context.Context, id int64) error
	CountByTarget(ctx context.Context, targetID int64) (int, error)
	CountByActor(ctx context.Context, actorID int64) (int, error)
	ListByTarget(ctx context.Context, targetID int64, limit, offset int) ([]*Relation, error)
	ListByActor(ctx context.Context, actorID int64, limit, offset int) ([]*Relation, error)
}

// PairLocker runs fn while holding an exclusive lock on one (actor, target)
// pair. Implementations backed by a database run fn inside a transaction
// and make it available to repositories through ctx.
type PairLocker interface {
	WithPairLock(ctx context.Context, kind RelationKind, actorID, targetID int64, fn func(ctx context.Context) error) error
}
