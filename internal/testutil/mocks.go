// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the nari-note services.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockStorage        = errors.New("mock: storage unavailable")
)

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu     sync.RWMutex
	nextID int64

	// Function overrides - set these to customize behavior
	CreateFunc           func(ctx context.Context, user *domain.User) error
	GetByIDFunc          func(ctx context.Context, id int64) (*domain.User, error)
	GetByEmailFunc       func(ctx context.Context, email string) (*domain.User, error)
	GetByEmailOrNameFunc func(ctx context.Context, s string) (*domain.User, error)

	// In-memory storage for simple tests
	Users map[int64]*domain.User
}

// NewMockUserRepository creates a new MockUserRepository with initialized maps
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[int64]*domain.User),
	}
}

// Add stores users directly, bypassing uniqueness checks.
func (m *MockUserRepository) Add(users ...*domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range users {
		m.Users[u.ID] = u
		if u.ID > m.nextID {
			m.nextID = u.ID
		}
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.Users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrEmailExists
		}
		if u.Name == user.Name {
			return domain.ErrNameExists
		}
	}

	m.nextID++
	user.ID = m.nextID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmailOrName(ctx context.Context, s string) (*domain.User, error) {
	if m.GetByEmailOrNameFunc != nil {
		return m.GetByEmailOrNameFunc(ctx, s)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Name == s || strings.EqualFold(user.Email, s) {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// MockSessionRepository implements domain.SessionRepository for testing.
// Lookups treat sessions expired at Now() as absent.
type MockSessionRepository struct {
	mu     sync.RWMutex
	nextID int64

	// Function overrides
	CreateFunc           func(ctx context.Context, session *domain.Session) error
	GetByKeyFunc         func(ctx context.Context, key string) (*domain.Session, error)
	ListForUserFunc      func(ctx context.Context, userID int64) ([]*domain.Session, error)
	DeleteFunc           func(ctx context.Context, key string) error
	DeleteAllForUserFunc func(ctx context.Context, userID int64) (int64, error)
	DeleteExpiredFunc    func(ctx context.Context) (int64, error)

	// Now defaults to time.Now
	Now func() time.Time

	// In-memory storage keyed by session key
	Sessions map[string]*domain.Session
}

// NewMockSessionRepository creates a new MockSessionRepository with initialized maps
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		Sessions: make(map[string]*domain.Session),
	}
}

func (m *MockSessionRepository) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Add stores sessions directly.
func (m *MockSessionRepository) Add(sessions ...*domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		m.Sessions[s.SessionKey] = s
	}
}

// Len returns the number of stored sessions, expired or not.
func (m *MockSessionRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Sessions)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.Sessions[session.SessionKey]; exists {
		return domain.ErrSessionKeyConflict
	}
	m.nextID++
	session.ID = m.nextID
	if session.CreatedAt.IsZero() {
		session.CreatedAt = m.now()
	}
	m.Sessions[session.SessionKey] = session
	return nil
}

func (m *MockSessionRepository) GetByKey(ctx context.Context, key string) (*domain.Session, error) {
	if m.GetByKeyFunc != nil {
		return m.GetByKeyFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.Sessions[key]
	if !ok || session.IsExpired(m.now()) {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (m *MockSessionRepository) ListForUser(ctx context.Context, userID int64) ([]*domain.Session, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	result := make([]*domain.Session, 0)
	for _, s := range m.Sessions {
		if s.UserID == userID && !s.IsExpired(now) {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Sessions, key)
	return nil
}

func (m *MockSessionRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	if m.DeleteAllForUserFunc != nil {
		return m.DeleteAllForUserFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, s := range m.Sessions {
		if s.UserID == userID {
			delete(m.Sessions, key)
			count++
		}
	}
	return count, nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := m.now()
	for key, s := range m.Sessions {
		if s.IsExpired(now) {
			delete(m.Sessions, key)
			count++
		}
	}
	return count, nil
}

type pairKey struct {
	actor  int64
	target int64
}

// MockRelationRepository implements domain.RelationRepository in memory.
// Calls counts every method invocation so tests can assert that storage
// was never touched.
type MockRelationRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[pairKey]*domain.Relation

	Calls atomic.Int64

	FindFunc   func(ctx context.Context, actorID, targetID int64) (*domain.Relation, error)
	CreateFunc func(ctx context.Context, rel *domain.Relation) (domain.CreateResult, error)
	DeleteFunc func(ctx context.Context, id int64) error
	CountFunc  func(ctx context.Context, targetID int64) (int, error)
}

// NewMockRelationRepository creates an empty relation store
func NewMockRelationRepository() *MockRelationRepository {
	return &MockRelationRepository{rows: make(map[pairKey]*domain.Relation)}
}

// Has reports whether the pair exists.
func (m *MockRelationRepository) Has(actorID, targetID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rows[pairKey{actorID, targetID}]
	return ok
}

// Len returns the number of stored relations.
func (m *MockRelationRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Seed stores a relation directly.
func (m *MockRelationRepository) Seed(actorID, targetID int64) {
	_, _ = m.insert(&domain.Relation{ActorID: actorID, TargetID: targetID})
}

func (m *MockRelationRepository) Find(ctx context.Context, actorID, targetID int64) (*domain.Relation, error) {
	m.Calls.Add(1)
	if m.FindFunc != nil {
		return m.FindFunc(ctx, actorID, targetID)
	}
	return m.FindStored(actorID, targetID)
}

// FindStored is the default Find, callable from overrides.
func (m *MockRelationRepository) FindStored(actorID, targetID int64) (*domain.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rel, ok := m.rows[pairKey{actorID, targetID}]
	if !ok {
		return nil, domain.ErrRelationNotFound
	}
	copied := *rel
	return &copied, nil
}

func (m *MockRelationRepository) Create(ctx context.Context, rel *domain.Relation) (domain.CreateResult, error) {
	m.Calls.Add(1)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rel)
	}
	return m.insert(rel)
}

func (m *MockRelationRepository) insert(rel *domain.Relation) (domain.CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{rel.ActorID, rel.TargetID}
	if _, exists := m.rows[key]; exists {
		return domain.AlreadyExists, nil
	}
	m.nextID++
	rel.ID = m.nextID
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}
	stored := *rel
	m.rows[key] = &stored
	return domain.Created, nil
}

func (m *MockRelationRepository) Delete(ctx context.Context, id int64) error {
	m.Calls.Add(1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, rel := range m.rows {
		if rel.ID == id {
			delete(m.rows, key)
		}
	}
	return nil
}

func (m *MockRelationRepository) CountByTarget(ctx context.Context, targetID int64) (int, error) {
	m.Calls.Add(1)
	if m.CountFunc != nil {
		return m.CountFunc(ctx, targetID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for key := range m.rows {
		if key.target == targetID {
			count++
		}
	}
	return count, nil
}

func (m *MockRelationRepository) CountByActor(ctx context.Context, actorID int64) (int, error) {
	m.Calls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for key := range m.rows {
		if key.actor == actorID {
			count++
		}
	}
	return count, nil
}

func (m *MockRelationRepository) ListByTarget(ctx context.Context, targetID int64, limit, offset int) ([]*domain.Relation, error) {
	m.Calls.Add(1)
	return m.list(func(k pairKey) bool { return k.target == targetID }, limit, offset), nil
}

func (m *MockRelationRepository) ListByActor(ctx context.Context, actorID int64, limit, offset int) ([]*domain.Relation, error) {
	m.Calls.Add(1)
	return m.list(func(k pairKey) bool { return k.actor == actorID }, limit, offset), nil
}

// list pages matching relations by id descending, newest first.
func (m *MockRelationRepository) list(match func(pairKey) bool, limit, offset int) []*domain.Relation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Relation, 0)
	for key, rel := range m.rows {
		if match(key) {
			copied := *rel
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if offset >= len(result) {
		return []*domain.Relation{}
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// MockPairLocker implements domain.PairLocker with one mutex per pair.
type MockPairLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	Calls atomic.Int64
}

// NewMockPairLocker creates a locker with no held locks
func NewMockPairLocker() *MockPairLocker {
	return &MockPairLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MockPairLocker) WithPairLock(ctx context.Context, kind domain.RelationKind, actorID, targetID int64, fn func(ctx context.Context) error) error {
	l.Calls.Add(1)
	key := fmt.Sprintf("%s:%d:%d", kind, actorID, targetID)

	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// MockArticleRepository implements domain.ArticleRepository for testing
type MockArticleRepository struct {
	mu sync.RWMutex

	GetByIDFunc       func(ctx context.Context, id int64) (*domain.Article, error)
	ExistsFunc        func(ctx context.Context, id int64) (bool, error)
	ListPublishedFunc func(ctx context.Context, limit, offset int) ([]*domain.Article, error)

	Articles map[int64]*domain.Article
}

// NewMockArticleRepository creates a new MockArticleRepository with initialized maps
func NewMockArticleRepository(articles ...*domain.Article) *MockArticleRepository {
	m := &MockArticleRepository{Articles: make(map[int64]*domain.Article)}
	for _, a := range articles {
		m.Articles[a.ID] = a
	}
	return m
}

func (m *MockArticleRepository) GetByID(ctx context.Context, id int64) (*domain.Article, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if a, ok := m.Articles[id]; ok {
		return a, nil
	}
	return nil, domain.ErrArticleNotFound
}

func (m *MockArticleRepository) Exists(ctx context.Context, id int64) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.Articles[id]
	return ok, nil
}

func (m *MockArticleRepository) ListPublished(ctx context.Context, limit, offset int) ([]*domain.Article, error) {
	if m.ListPublishedFunc != nil {
		return m.ListPublishedFunc(ctx, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Article, 0)
	for _, a := range m.Articles {
		if a.IsPublished {
			result = append(result, a)
		}
	}
	sortArticles(result)
	if offset >= len(result) {
		return []*domain.Article{}, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockArticleRepository) ListDrafts(ctx context.Context, authorID int64) ([]*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Article, 0)
	for _, a := range m.Articles {
		if a.AuthorID == authorID && !a.IsPublished {
			result = append(result, a)
		}
	}
	sortArticles(result)
	return result, nil
}

// sortArticles orders by id descending, newest first.
func sortArticles(articles []*domain.Article) {
	sort.Slice(articles, func(i, j int) bool { return articles[i].ID > articles[j].ID })
}

// MockCourseRepository implements domain.CourseRepository for testing
type MockCourseRepository struct {
	ExistsFunc func(ctx context.Context, id int64) (bool, error)

	IDs map[int64]bool
}

// NewMockCourseRepository knows the given course ids
func NewMockCourseRepository(ids ...int64) *MockCourseRepository {
	m := &MockCourseRepository{IDs: make(map[int64]bool)}
	for _, id := range ids {
		m.IDs[id] = true
	}
	return m
}

func (m *MockCourseRepository) Exists(ctx context.Context, id int64) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, id)
	}
	return m.IDs[id], nil
}
