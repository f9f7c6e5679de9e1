package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

type relationTable struct {
	name      string
	actorCol  string
	targetCol string
	// missingTarget is returned when the target foreign key is violated.
	missingTarget error
}

var relationTables = map[domain.RelationKind]relationTable{
	domain.RelationLike:       {"likes", "user_id", "article_id", domain.ErrArticleNotFound},
	domain.RelationFollow:     {"follows", "follower_id", "following_id", domain.ErrUserNotFound},
	domain.RelationCourseLike: {"course_likes", "user_id", "course_id", domain.ErrCourseNotFound},
}

type relationQueries struct {
	find          string
	create        string
	delete        string
	countByTarget string
	countByActor  string
	listByTarget  string
	listByActor   string
}

func buildRelationQueries(t relationTable) relationQueries {
	return relationQueries{
		find: fmt.Sprintf(`
		SELECT id, %[2]s, %[3]s, created_at
		FROM %[1]s
		WHERE %[2]s = $1 AND %[3]s = $2`, t.name, t.actorCol, t.targetCol),
		create: fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s)
		VALUES ($1, $2)
		ON CONFLICT (%[2]s, %[3]s) DO NOTHING
		RETURNING id, created_at`, t.name, t.actorCol, t.targetCol),
		delete:        fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.name),
		countByTarget: fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, t.name, t.targetCol),
		countByActor:  fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, t.name, t.actorCol),
		listByTarget: fmt.Sprintf(`
		SELECT id, %[2]s, %[3]s, created_at
		FROM %[1]s
		WHERE %[3]s = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, t.name, t.actorCol, t.targetCol),
		listByActor: fmt.Sprintf(`
		SELECT id, %[2]s, %[3]s, created_at
		FROM %[1]s
		WHERE %[2]s = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, t.name, t.actorCol, t.targetCol),
	}
}

// RelationRepository implements domain.RelationRepository over one of the
// likes, follows or course_likes tables. Queries run inside the
// transaction carried by ctx when there is one.
type RelationRepository struct {
	db      *sql.DB
	kind    domain.RelationKind
	table   relationTable
	queries relationQueries
}

// NewRelationRepository creates the repository for kind.
func NewRelationRepository(db *sql.DB, kind domain.RelationKind) (*RelationRepository, error) {
	table, ok := relationTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown relation kind %q", kind)
	}
	return &RelationRepository{
		db:      db,
		kind:    kind,
		table:   table,
		queries: buildRelationQueries(table),
	}, nil
}

func (r *RelationRepository) Find(ctx context.Context, actorID, targetID int64) (*domain.Relation, error) {
	rel := &domain.Relation{}
	err := conn(ctx, r.db).QueryRowContext(ctx, r.queries.find, actorID, targetID).Scan(
		&rel.ID,
		&rel.ActorID,
		&rel.TargetID,
		&rel.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRelationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", r.kind, err)
	}
	return rel, nil
}

// Create inserts the pair. An existing pair is reported as AlreadyExists
// without aborting the surrounding transaction.
func (r *RelationRepository) Create(ctx context.Context, rel *domain.Relation) (domain.CreateResult, error) {
	err := conn(ctx, r.db).QueryRowContext(ctx, r.queries.create, rel.ActorID, rel.TargetID).
		Scan(&rel.ID, &rel.CreatedAt)

	switch {
	case err == nil:
		return domain.Created, nil
	case errors.Is(err, sql.ErrNoRows), IsUniqueViolation(err, ""):
		return domain.AlreadyExists, nil
	case IsCheckViolation(err, ""):
		return domain.Created, domain.ErrSelfFollow
	case IsForeignKeyViolation(err, ""):
		return domain.Created, r.table.missingTarget
	default:
		return domain.Created, fmt.Errorf("failed to create %s: %w", r.kind, err)
	}
}

// Delete removes the relation by id. A missing row is not an error.
func (r *RelationRepository) Delete(ctx context.Context, id int64) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, r.queries.delete, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", r.kind, err)
	}
	return nil
}

func (r *RelationRepository) CountByTarget(ctx context.Context, targetID int64) (int, error) {
	return r.count(ctx, r.queries.countByTarget, targetID)
}

func (r *RelationRepository) CountByActor(ctx context.Context, actorID int64) (int, error) {
	return r.count(ctx, r.queries.countByActor, actorID)
}

func (r *RelationRepository) count(ctx context.Context, query string, id int64) (int, error) {
	var n int
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.kind, err)
	}
	return n, nil
}

func (r *RelationRepository) ListByTarget(ctx context.Context, targetID int64, limit, offset int) ([]*domain.Relation, error) {
	return r.list(ctx, r.queries.listByTarget, targetID, limit, offset)
}

func (r *RelationRepository) ListByActor(ctx context.Context, actorID int64, limit, offset int) ([]*domain.Relation, error) {
	return r.list(ctx, r.queries.listByActor, actorID, limit, offset)
}

func (r *RelationRepository) list(ctx context.Context, query string, id int64, limit, offset int) ([]*domain.Relation, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.kind, err)
	}
	defer rows.Close()

	rels := make([]*domain.Relation, 0)
	for rows.Next() {
		rel := &domain.Relation{}
		if err := rows.Scan(&rel.ID, &rel.ActorID, &rel.TargetID, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.kind, err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.kind, err)
	}
	return rels, nil
}
