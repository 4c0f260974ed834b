package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/gofrs/uuid/v5"
)

// Shared test connections for the store package. Either may be nil when the
// matching env var is unset; tests that need it skip.
var testStore *PostgresStore
var testCache *RedisUserCache

// TestMain connects to Postgres (TEST_DATABASE_URL) and Redis (TEST_REDIS_URL),
// runs migrations, runs all store tests, then tears down.
func TestMain(m *testing.M) {
	ctx := context.Background()

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		ps, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to test database: %v\n", err)
			os.Exit(1)
		}
		if _, err := ps.Migrate(ctx, os.DirFS("../../migrations")); err != nil {
			fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
			ps.Close()
			os.Exit(1)
		}
		testStore = ps
	}

	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		rdb, err := NewRedisClient(ctx, url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to test redis: %v\n", err)
			os.Exit(1)
		}
		testCache = NewRedisUserCache(rdb)
	}

	code := m.Run()
	if testCache != nil {
		testCache.rdb.Close()
	}
	if testStore != nil {
		testStore.Close()
	}
	os.Exit(code)
}

// --- Helpers ---

func requirePostgres(t *testing.T) {
	t.Helper()
	if testStore == nil {
		t.Skip("TEST_DATABASE_URL not set")
	}
}

func requireRedis(t *testing.T) {
	t.Helper()
	if testCache == nil {
		t.Skip("TEST_REDIS_URL not set")
	}
}

// newTestUser builds an unsaved user with a unique subject.
func newTestUser(t *testing.T, roles ...domain.Role) *domain.User {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("failed to generate UUID: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:                      id,
		AuthenticationServiceID: "sub-" + id.String(),
		AuthProvider:            domain.ProviderGoogle,
		FullName:                "Test User",
		FirstName:               "Test",
		LastName:                "User",
		Email:                   id.String() + "@example.com",
		FirstLogon:              now,
		LastLogon:               now,
		Roles:                   domain.NewRoleSet(roles...),
	}
}

// mustCreateUser saves a new user and deletes it when the test ends.
func mustCreateUser(t *testing.T, ctx context.Context, roles ...domain.Role) *domain.User {
	t.Helper()
	u := newTestUser(t, roles...)
	if err := testStore.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	t.Cleanup(func() {
		testStore.pool.Exec(context.Background(), "DELETE FROM users WHERE id = $1", u.ID)
	})
	return u
}
