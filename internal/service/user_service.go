package service

import (
	"context"
	"errors"
	"time"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

// UserProfile is the public view of a user.
type UserProfile struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Bio            string    `json:"bio"`
	FollowerCount  int       `json:"followerCount"`
	FollowingCount int       `json:"followingCount"`
	IsFollowing    *bool     `json:"isFollowing,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UserSummary is one entry of a follower or following list.
type UserSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

type UserService struct {
	users   domain.UserRepository
	follows domain.RelationRepository
}

func NewUserService(users domain.UserRepository, follows domain.RelationRepository) *UserService {
	return &UserService{users: users, follows: follows}
}

// Profile returns the profile of id. When viewerID is positive and not id
// itself, IsFollowing tells whether the viewer follows the user.
func (s *UserService) Profile(ctx context.Context, id, viewerID int64) (*UserProfile, error) {
	if id <= 0 {
		return nil, domain.ErrUserNotFound
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p := &UserProfile{ID: u.ID, Name: u.Name, Bio: u.Bio, CreatedAt: u.CreatedAt}
	if p.FollowerCount, err = s.follows.CountByTarget(ctx, id); err != nil {
		return nil, err
	}
	if p.FollowingCount, err = s.follows.CountByActor(ctx, id); err != nil {
		return nil, err
	}

	if viewerID > 0 && viewerID != id {
		_, err := s.follows.Find(ctx, viewerID, id)
		switch {
		case err == nil:
			p.IsFollowing = boolPtr(true)
		case errors.Is(err, domain.ErrRelationNotFound):
			p.IsFollowing = boolPtr(false)
		default:
			return nil, err
		}
	}
	return p, nil
}

// Exists adapts the repository to ExistsFunc for follow toggles.
func (s *UserService) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Followers pages the users following id, most recent first.
func (s *UserService) Followers(ctx context.Context, id int64, limit, offset int) ([]*UserSummary, error) {
	if err := s.requireUser(ctx, id); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	rels, err := s.follows.ListByTarget(ctx, id, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, rels, func(r *domain.Relation) int64 { return r.ActorID })
}

// Followings pages the users id follows, most recent first.
func (s *UserService) Followings(ctx context.Context, id int64, limit, offset int) ([]*UserSummary, error) {
	if err := s.requireUser(ctx, id); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	rels, err := s.follows.ListByActor(ctx, id, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, rels, func(r *domain.Relation) int64 { return r.TargetID })
}

func (s *UserService) requireUser(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.ErrUserNotFound
	}
	_, err := s.users.GetByID(ctx, id)
	return err
}

// summaries resolves the user on one side of each relation. Users deleted
// since the page was read are skipped.
func (s *UserService) summaries(ctx context.Context, rels []*domain.Relation, side func(*domain.Relation) int64) ([]*UserSummary, error) {
	out := make([]*UserSummary, 0, len(rels))
	for _, rel := range rels {
		u, err := s.users.GetByID(ctx, side(rel))
		if errors.Is(err, domain.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, &UserSummary{ID: u.ID, Name: u.Name, Bio: u.Bio})
	}
	return out, nil
}
