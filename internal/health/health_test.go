package health

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/usersvc/usersvc/internal/users"
)

type fakeChecker struct {
	name     string
	critical bool
	err      error
	calls    int
}

func (f *fakeChecker) HealthCheck(context.Context) error {
	f.calls++
	return f.err
}

func (f *fakeChecker) IsCritical() bool { return f.critical }

func (f *fakeChecker) Name() string { return f.name }

func TestManagerStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("NoCheckers", func(t *testing.T) {
		results, err := NewManager(zap.NewNop()).Status(ctx)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("NonCriticalFailureIsTolerated", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		db := &fakeChecker{name: "database", critical: true}
		cache := &fakeChecker{name: "redis", err: errors.New("connection refused")}
		m.AddChecker(db)
		m.AddChecker(cache)

		results, err := m.Status(ctx)
		require.NoError(t, err)
		assert.NoError(t, results["database"])
		assert.Error(t, results["redis"])
		assert.Equal(t, 1, db.calls)
		assert.Equal(t, 1, cache.calls)
	})

	t.Run("CriticalFailure", func(t *testing.T) {
		m := NewManager(zap.NewNop())
		m.AddChecker(&fakeChecker{name: "database", critical: true, err: errors.New("timeout")})

		results, err := m.Status(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database")
		assert.Len(t, results, 1)
	})
}

func TestStartupHealthCheck(t *testing.T) {
	ctx := context.Background()

	m := NewManager(zap.NewNop())
	m.AddChecker(&fakeChecker{name: "redis", err: errors.New("down")})
	assert.NoError(t, m.StartupHealthCheck(ctx))

	m.AddChecker(&fakeChecker{name: "user_store", critical: true, err: errors.New("down")})
	assert.Error(t, m.StartupHealthCheck(ctx))
}

func TestStoreChecker(t *testing.T) {
	ctx := context.Background()

	checker := NewStoreChecker(users.NewInMemoryStore())
	assert.True(t, checker.IsCritical())
	assert.Equal(t, "user_store", checker.Name())
	assert.NoError(t, checker.HealthCheck(ctx))

	assert.Error(t, NewStoreChecker(nil).HealthCheck(ctx))

	store := users.NewInMemoryStore()
	require.NoError(t, store.CreateUser(ctx, &users.User{ID: uuid.New(), Name: "n", Login: "l"}))
	assert.NoError(t, NewStoreChecker(store).HealthCheck(ctx))
}
