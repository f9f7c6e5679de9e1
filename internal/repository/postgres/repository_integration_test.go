//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/doguto/nari-note-sub000/internal/database"
	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/repository/postgres"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a PostgreSQL container, applies the migrations and
// returns a connection to it.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db), "failed to run migrations")
	return db
}

func createUser(t *testing.T, repo *postgres.UserRepository, name string) *domain.User {
	t.Helper()
	u := &domain.User{Name: name, Email: name + "@example.com", PasswordHash: "digest"}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestRepositories_Integration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	users, err := postgres.NewUserRepository(db)
	require.NoError(t, err)
	defer users.Close()
	sessions, err := postgres.NewSessionRepository(db)
	require.NoError(t, err)
	defer sessions.Close()

	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	t.Run("user_uniqueness", func(t *testing.T) {
		err := users.Create(ctx, &domain.User{Name: "alice", Email: "other@example.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, domain.ErrNameExists)

		err = users.Create(ctx, &domain.User{Name: "other", Email: "alice@example.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, domain.ErrEmailExists)

		found, err := users.GetByEmailOrName(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, found.ID)
	})

	t.Run("session_lifecycle", func(t *testing.T) {
		live := &domain.Session{UserID: alice.ID, SessionKey: "live-key", ExpiresAt: time.Now().Add(time.Hour)}
		require.NoError(t, sessions.Create(ctx, live))

		dup := &domain.Session{UserID: bob.ID, SessionKey: "live-key", ExpiresAt: time.Now().Add(time.Hour)}
		assert.ErrorIs(t, sessions.Create(ctx, dup), domain.ErrSessionKeyConflict)

		stale := &domain.Session{UserID: alice.ID, SessionKey: "stale-key", ExpiresAt: time.Now().Add(-time.Minute)}
		require.NoError(t, sessions.Create(ctx, stale))

		_, err := sessions.GetByKey(ctx, "stale-key")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		got, err := sessions.GetByKey(ctx, "live-key")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.UserID)

		swept, err := sessions.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), swept)

		n, err := sessions.DeleteAllForUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("self_follow_rejected_by_schema", func(t *testing.T) {
		follows, err := postgres.NewRelationRepository(db, domain.RelationFollow)
		require.NoError(t, err)

		_, err = follows.Create(ctx, &domain.Relation{ActorID: alice.ID, TargetID: alice.ID})
		assert.ErrorIs(t, err, domain.ErrSelfFollow)
	})

	t.Run("concurrent_flips_converge", func(t *testing.T) {
		follows, err := postgres.NewRelationRepository(db, domain.RelationFollow)
		require.NoError(t, err)
		tm := postgres.NewTxManager(db)

		flip := func() error {
			return tm.WithPairLock(ctx, domain.RelationFollow, alice.ID, bob.ID, func(ctx context.Context) error {
				rel, err := follows.Find(ctx, alice.ID, bob.ID)
				switch {
				case err == nil:
					return follows.Delete(ctx, rel.ID)
				case errors.Is(err, domain.ErrRelationNotFound):
					_, err := follows.Create(ctx, &domain.Relation{ActorID: alice.ID, TargetID: bob.ID})
					return err
				default:
					return err
				}
			})
		}

		const n = 9
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- flip()
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		count, err := follows.CountByTarget(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("create_converges_without_lock", func(t *testing.T) {
		follows, err := postgres.NewRelationRepository(db, domain.RelationFollow)
		require.NoError(t, err)

		first, err := follows.Create(ctx, &domain.Relation{ActorID: bob.ID, TargetID: alice.ID})
		require.NoError(t, err)
		second, err := follows.Create(ctx, &domain.Relation{ActorID: bob.ID, TargetID: alice.ID})
		require.NoError(t, err)

		assert.Equal(t, domain.Created, first)
		assert.Equal(t, domain.AlreadyExists, second)
	})
}
