// Package redis stores sessions in Redis. Each session is a JSON value
// that expires on its own; a per-user set indexes the keys for listing and
// log-out-everywhere.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

const (
	sessionPrefix     = "session:"
	userSessionPrefix = "user_sessions:"
	sessionSeqKey     = "session_seq"
	scanBatch         = 100
)

type sessionRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (rec sessionRecord) session() *domain.Session {
	return &domain.Session{
		ID:         rec.ID,
		UserID:     rec.UserID,
		SessionKey: rec.Key,
		ExpiresAt:  rec.ExpiresAt,
		CreatedAt:  rec.CreatedAt,
	}
}

// SessionRepository implements domain.SessionRepository on Redis.
type SessionRepository struct {
	client *redis.Client
	now    func() time.Time
}

// Open parses redisURL, connects and pings the server.
func Open(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client, now: time.Now}
}

func sessionKey(key string) string { return sessionPrefix + key }

func userSetKey(userID int64) string { return userSessionPrefix + strconv.FormatInt(userID, 10) }

// Create stores the session with a TTL running until its expiry. The write
// is SETNX so an existing key reports ErrSessionKeyConflict.
func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	now := r.now()
	ttl := session.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("%w: session already expired", domain.ErrValidation)
	}

	id, err := r.client.Incr(ctx, sessionSeqKey).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate session id: %w", err)
	}

	rec := sessionRecord{
		ID:        id,
		UserID:    session.UserID,
		Key:       session.SessionKey,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: now,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, sessionKey(rec.Key), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return domain.ErrSessionKeyConflict
	}

	if err := r.client.SAdd(ctx, userSetKey(rec.UserID), rec.Key).Err(); err != nil {
		r.client.Del(ctx, sessionKey(rec.Key))
		return fmt.Errorf("failed to index session: %w", err)
	}

	session.ID = rec.ID
	session.CreatedAt = rec.CreatedAt
	return nil
}

func (r *SessionRepository) GetByKey(ctx context.Context, key string) (*domain.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	s := rec.session()
	if s.IsExpired(r.now()) {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// ListForUser returns live sessions, newest first.
func (r *SessionRepository) ListForUser(ctx context.Context, userID int64) ([]*domain.Session, error) {
	keys, err := r.client.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := []*domain.Session{}
	if len(keys) == 0 {
		return sessions, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = sessionKey(k)
	}
	values, err := r.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	now := r.now()
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec sessionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		if s := rec.session(); !s.IsExpired(now) {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (r *SessionRepository) Delete(ctx context.Context, key string) error {
	s, err := r.GetByKey(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(key))
		if s != nil {
			pipe.SRem(ctx, userSetKey(s.UserID), key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every session of userID and returns how many
// were still live.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	setKey := userSetKey(userID)
	keys, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	redisKeys := make([]string, len(keys))
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		redisKeys[i] = sessionKey(k)
		members[i] = k
	}

	// Only the members read above are removed; a session created in the
	// meantime keeps its index entry.
	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, redisKeys...)
		pipe.SRem(ctx, setKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return del.Val(), nil
}

// DeleteExpired prunes index entries whose session value Redis has
// already expired and returns how many it removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		pruned int64
	)
	for {
		sets, next, err := r.client.Scan(ctx, cursor, userSessionPrefix+"*", scanBatch).Result()
		if err != nil {
			return pruned, fmt.Errorf("failed to scan session index: %w", err)
		}
		for _, setKey := range sets {
			n, err := r.pruneSet(ctx, setKey)
			pruned += n
			if err != nil {
				return pruned, err
			}
		}
		if next == 0 {
			return pruned, nil
		}
		cursor = next
	}
}

func (r *SessionRepository) pruneSet(ctx context.Context, setKey string) (int64, error) {
	keys, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", setKey, err)
	}

	var dangling []interface{}
	for _, k := range keys {
		n, err := r.client.Exists(ctx, sessionKey(k)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to check session: %w", err)
		}
		if n == 0 {
			dangling = append(dangling, k)
		}
	}
	if len(dangling) == 0 {
		return 0, nil
	}

	removed, err := r.client.SRem(ctx, setKey, dangling...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", setKey, err)
	}
	return removed, nil
}
