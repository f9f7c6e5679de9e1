package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/observability"
)

// ToggleResult is the wire body of every toggle endpoint.
type ToggleResult struct {
	Active       bool `json:"active"`
	CurrentCount int  `json:"currentCount"`
}

// ExistsFunc reports whether a toggle target exists.
type ExistsFunc func(ctx context.Context, id int64) (bool, error)

type ToggleConfig struct {
	Kind domain.RelationKind
	// TargetExists is consulted before any relation is touched.
	TargetExists ExistsFunc
	// NotFound is returned when TargetExists reports false.
	NotFound error
	// AllowSelf permits actor == target. Follow forbids it.
	AllowSelf bool
	Logger    *zap.Logger
}

// ToggleService flips one kind of actor->target relation.
type ToggleService struct {
	kind      domain.RelationKind
	relations domain.RelationRepository
	locker    domain.PairLocker
	exists    ExistsFunc
	notFound  error
	allowSelf bool
	log       *zap.Logger
}

func NewToggleService(relations domain.RelationRepository, locker domain.PairLocker, cfg ToggleConfig) *ToggleService {
	if cfg.NotFound == nil {
		cfg.NotFound = domain.ErrNotFound
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ToggleService{
		kind:      cfg.Kind,
		relations: relations,
		locker:    locker,
		exists:    cfg.TargetExists,
		notFound:  cfg.NotFound,
		allowSelf: cfg.AllowSelf,
		log:       cfg.Logger,
	}
}

func (s *ToggleService) Kind() domain.RelationKind { return s.kind }

// Toggle deletes the relation if it exists and creates it otherwise, then
// reports the resulting state and the number of relations on targetID.
func (s *ToggleService) Toggle(ctx context.Context, actorID, targetID int64) (*ToggleResult, error) {
	if actorID <= 0 || targetID <= 0 {
		s.record("invalid")
		return nil, domain.ErrInvalidInput
	}
	if !s.allowSelf && actorID == targetID {
		s.record("self_target")
		return nil, domain.ErrSelfFollow
	}

	if s.exists != nil {
		ok, err := s.exists(ctx, targetID)
		if err != nil {
			s.record("error")
			return nil, err
		}
		if !ok {
			s.record("not_found")
			return nil, s.notFound
		}
	}

	var active bool
	err := s.locker.WithPairLock(ctx, s.kind, actorID, targetID, func(ctx context.Context) error {
		var err error
		active, err = s.flip(ctx, actorID, targetID)
		return err
	})
	if err != nil {
		s.record("error")
		return nil, err
	}

	count, err := s.relations.CountByTarget(ctx, targetID)
	if err != nil {
		s.record("error")
		return nil, err
	}

	if active {
		s.record("activated")
	} else {
		s.record("deactivated")
	}
	observability.FromContext(ctx, s.log).Debug("toggled",
		zap.String("kind", string(s.kind)),
		zap.Int64("target_id", targetID),
		zap.Bool("active", active))

	return &ToggleResult{Active: active, CurrentCount: count}, nil
}

func (s *ToggleService) flip(ctx context.Context, actorID, targetID int64) (bool, error) {
	rel, err := s.relations.Find(ctx, actorID, targetID)
	switch {
	case err == nil:
		if err := s.relations.Delete(ctx, rel.ID); err != nil {
			return false, err
		}
		return false, nil
	case !errors.Is(err, domain.ErrRelationNotFound):
		return false, err
	}

	res, err := s.relations.Create(ctx, &domain.Relation{ActorID: actorID, TargetID: targetID})
	if err != nil {
		return false, err
	}
	if res == domain.AlreadyExists {
		s.log.Debug("concurrent create converged", zap.String("kind", string(s.kind)))
	}
	return true, nil
}

// IsActive reports whether actorID currently holds the relation to targetID.
func (s *ToggleService) IsActive(ctx context.Context, actorID, targetID int64) (bool, error) {
	_, err := s.relations.Find(ctx, actorID, targetID)
	if errors.Is(err, domain.ErrRelationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s: %w", s.kind, err)
	}
	return true, nil
}

func (s *ToggleService) record(result string) {
	observability.ToggleOperationsTotal.WithLabelValues(string(s.kind), result).Inc()
}
