package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore implements UserStore interface with in-memory storage
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]*User
	logins  map[string]uuid.UUID
	retired map[uuid.UUID]struct{}
	now     func() time.Time
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[uuid.UUID]*User),
		logins:  make(map[string]uuid.UUID),
		retired: make(map[uuid.UUID]struct{}),
		now:     time.Now,
	}
}

// ListUsers returns copies of all live users ordered by creation time
func (s *InMemoryStore) ListUsers(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*User, 0, len(s.users))
	for _, user := range s.users {
		result = append(result, user.clone())
	}
	sortUsers(result)

	return result, nil
}

// GetUser retrieves a user by ID
func (s *InMemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, NewUserNotFoundError(id.String())
	}

	return user.clone(), nil
}

// CreateUser stores a new user. Ids of deleted users are never accepted again.
func (s *InMemoryStore) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return NewUserAlreadyExistsError("id", user.ID.String(), nil)
	}
	if _, retired := s.retired[user.ID]; retired {
		return NewUserAlreadyExistsError("id", user.ID.String(), nil)
	}
	if _, taken := s.logins[user.Login]; taken {
		return NewUserAlreadyExistsError("login", user.Login, nil)
	}

	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	s.users[user.ID] = user.clone()
	s.logins[user.Login] = user.ID
	return nil
}

// UpdateUser applies patch to an existing user and returns the result
func (s *InMemoryStore) UpdateUser(ctx context.Context, id uuid.UUID, patch *UserPatch) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[id]
	if !exists {
		return nil, NewUserNotFoundError(id.String())
	}

	if patch.Login != nil && *patch.Login != user.Login {
		if _, taken := s.logins[*patch.Login]; taken {
			return nil, NewUserAlreadyExistsError("login", *patch.Login, nil)
		}
		delete(s.logins, user.Login)
		s.logins[*patch.Login] = id
	}

	patch.apply(user, s.now())
	return user.clone(), nil
}

// DeleteUser removes a user
func (s *InMemoryStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[id]
	if !exists {
		return NewUserNotFoundError(id.String())
	}

	delete(s.logins, user.Login)
	delete(s.users, id)
	s.retired[id] = struct{}{}
	return nil
}

func sortUsers(list []*User) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}
