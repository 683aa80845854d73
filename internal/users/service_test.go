package users

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(store UserStore) *UserServiceImpl {
	return NewUserService(store, zap.NewNop(), WithHashCost(bcrypt.MinCost))
}

// failingStore fails every operation with err
type failingStore struct {
	err error
}

func (f *failingStore) ListUsers(context.Context) ([]*User, error) { return nil, f.err }

func (f *failingStore) GetUser(context.Context, uuid.UUID) (*User, error) { return nil, f.err }

func (f *failingStore) CreateUser(context.Context, *User) error { return f.err }

func (f *failingStore) DeleteUser(context.Context, uuid.UUID) error { return f.err }

func (f *failingStore) UpdateUser(context.Context, uuid.UUID, *UserPatch) (*User, error) {
	return nil, f.err
}

func TestUserServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		svc := newTestService(NewInMemoryStore())

		user, err := svc.CreateUser(ctx, &CreateUserRequest{Name: "Robert", Login: "roro", Password: "robpass"})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.Equal(t, "Robert", user.Name)
		assert.Equal(t, "roro", user.Login)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("robpass")))

		got, err := svc.GetUser(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, user, got)
	})

	t.Run("IDsAreUnique", func(t *testing.T) {
		svc := newTestService(NewInMemoryStore())
		seen := make(map[uuid.UUID]bool)

		for _, login := range []string{"a", "b", "c", "d"} {
			user, err := svc.CreateUser(ctx, &CreateUserRequest{Name: login, Login: login, Password: "pw"})
			require.NoError(t, err)
			assert.False(t, seen[user.ID])
			seen[user.ID] = true
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		svc := newTestService(NewInMemoryStore())

		tests := []struct {
			name  string
			req   *CreateUserRequest
			field string
		}{
			{"nil request", nil, "body"},
			{"no name", &CreateUserRequest{Login: "l", Password: "p"}, "name"},
			{"blank name", &CreateUserRequest{Name: "  ", Login: "l", Password: "p"}, "name"},
			{"no login", &CreateUserRequest{Name: "n", Password: "p"}, "login"},
			{"no password", &CreateUserRequest{Name: "n", Login: "l"}, "password"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.CreateUser(ctx, tt.req)
				require.True(t, IsValidation(err))

				var ue *UserError
				require.True(t, errors.As(err, &ue))
				assert.Equal(t, tt.field, ue.Field)
			})
		}
	})

	t.Run("DuplicateLogin", func(t *testing.T) {
		svc := newTestService(NewInMemoryStore())

		_, err := svc.CreateUser(ctx, &CreateUserRequest{Name: "A", Login: "same", Password: "pw"})
		require.NoError(t, err)

		_, err = svc.CreateUser(ctx, &CreateUserRequest{Name: "B", Login: "same", Password: "pw"})
		assert.True(t, IsAlreadyExists(err))
	})

	t.Run("RegeneratesCollidingID", func(t *testing.T) {
		store := NewInMemoryStore()
		svc := newTestService(store)

		taken := uuid.New()
		require.NoError(t, store.CreateUser(ctx, &User{ID: taken, Name: "x", Login: "x"}))

		fresh := uuid.New()
		ids := []uuid.UUID{taken, fresh}
		svc.newID = func() uuid.UUID {
			id := ids[0]
			ids = ids[1:]
			return id
		}

		user, err := svc.CreateUser(ctx, &CreateUserRequest{Name: "y", Login: "y", Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, fresh, user.ID)
	})

	t.Run("GivesUpAfterRepeatedCollisions", func(t *testing.T) {
		store := NewInMemoryStore()
		svc := newTestService(store)

		taken := uuid.New()
		require.NoError(t, store.CreateUser(ctx, &User{ID: taken, Name: "x", Login: "x"}))
		svc.newID = func() uuid.UUID { return taken }

		_, err := svc.CreateUser(ctx, &CreateUserRequest{Name: "y", Login: "y", Password: "pw"})
		assert.True(t, IsAlreadyExists(err))
	})

	t.Run("StoreFailure", func(t *testing.T) {
		boom := errors.New("connection refused")
		svc := newTestService(&failingStore{err: boom})

		_, err := svc.CreateUser(ctx, &CreateUserRequest{Name: "y", Login: "y", Password: "pw"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestUserServiceUpdate(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, svc *UserServiceImpl) *User {
		user, err := svc.CreateUser(ctx, &CreateUserRequest{Name: "Pedro", Login: "pedro", Password: "pedropass"})
		require.NoError(t, err)
		return user
	}

	t.Run("OnlySuppliedFieldsChange", func(t *testing.T) {
		svc := newTestService(NewInMemoryStore())
		user := seed(t, svc)

		updated, err := svc.UpdateUser(ctx, user.ID.String(), &UpdateUserRequest{
			Name:     strPtr("Robertinio"),
			Password: strPtr("newpassword"),
		})
		require.NoError(t, err)
		assert.Equal(t, user.ID, updated.ID)
		assert.Equal(t, "Robertinio", updated.Name)
		assert.Equal(t, "pedro", updated.Login)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("newpassword")))
	})

	t.Run("LoginCanChange", func(t *testing.T) {
		svc := newTestService(NewInMemoryStore())
		user := seed(t, svc)

		updated, err := svc.UpdateUser(ctx, user.ID.String(), &UpdateUserRequest{Login: strPtr("pete")})
		require.NoError(t, err)
		assert.Equal(t, "pete", updated.Login)
		assert.Equal(t, "Pedro", updated.Name)
	})

	t.Run("EmptyRequestReturnsRecordUnchanged", func(t *testing.T) {
		svc := newTestService(NewInMemoryStore())
		user := seed(t, svc)

		updated, err := svc.UpdateUser(ctx, user.ID.String(), &UpdateUserRequest{})
		require.NoError(t, err)
		assert.Equal(t, user, updated)
	})

	t.Run("BlankFieldRejected", func(t *testing.T) {
		svc := newTestService(NewInMemoryStore())
		user := seed(t, svc)

		_, err := svc.UpdateUser(ctx, user.ID.String(), &UpdateUserRequest{Name: strPtr("")})
		assert.True(t, IsValidation(err))
	})

	t.Run("UnknownID", func(t *testing.T) {
		svc := newTestService(NewInMemoryStore())

		_, err := svc.UpdateUser(ctx, uuid.NewString(), &UpdateUserRequest{Name: strPtr("x")})
		assert.True(t, IsNotFound(err))

		_, err = svc.UpdateUser(ctx, "not-a-uuid", &UpdateUserRequest{Name: strPtr("x")})
		assert.True(t, IsNotFound(err))
	})
}

func TestUserServiceDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewInMemoryStore())

	user, err := svc.CreateUser(ctx, &CreateUserRequest{Name: "Del", Login: "del", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, user.ID.String()))

	_, err = svc.GetUser(ctx, user.ID.String())
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(svc.DeleteUser(ctx, user.ID.String())))
	assert.True(t, IsNotFound(svc.DeleteUser(ctx, "garbage")))

	list, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUserJSONOmitsPassword(t *testing.T) {
	svc := newTestService(NewInMemoryStore())

	user, err := svc.CreateUser(context.Background(), &CreateUserRequest{Name: "Robert", Login: "roro", Password: "robpass"})
	require.NoError(t, err)

	b, err := json.Marshal(user)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body))
	assert.Equal(t, user.ID.String(), body["id"])
	assert.Equal(t, "Robert", body["name"])
	assert.Equal(t, "roro", body["login"])
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "password_hash")
	assert.NotContains(t, string(b), user.PasswordHash)
}
