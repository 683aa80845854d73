package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// maxIDAttempts bounds id regeneration when a freshly generated id collides
const maxIDAttempts = 3

// UserServiceImpl implements the UserService interface
type UserServiceImpl struct {
	store    UserStore
	logger   *zap.Logger
	hashCost int
	newID    func() uuid.UUID
}

// ServiceOption configures a UserServiceImpl
type ServiceOption func(*UserServiceImpl)

// WithHashCost sets the bcrypt cost used for password hashes
func WithHashCost(cost int) ServiceOption {
	return func(s *UserServiceImpl) {
		s.hashCost = cost
	}
}

// NewUserService creates a new user service instance
func NewUserService(store UserStore, logger *zap.Logger, opts ...ServiceOption) *UserServiceImpl {
	s := &UserServiceImpl{
		store:    store,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListUsers returns every live user
func (s *UserServiceImpl) ListUsers(ctx context.Context) ([]*User, error) {
	list, err := s.store.ListUsers(ctx)
	if err != nil {
		s.logger.Error("Failed to list users", zap.Error(err))
		return nil, err
	}
	return list, nil
}

// GetUser returns the user with the given id. Ids that do not parse as a
// UUID cannot exist and are reported as not found.
func (s *UserServiceImpl) GetUser(ctx context.Context, id string) (*User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, NewUserNotFoundError(id)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.logFailure("Failed to get user", id, err)
		return nil, err
	}
	return user, nil
}

// CreateUser validates the request, allocates an id and stores the user
func (s *UserServiceImpl) CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Name:         req.Name,
		Login:        req.Login,
		PasswordHash: hash,
	}

	for attempt := 1; ; attempt++ {
		user.ID = s.newID()
		err = s.store.CreateUser(ctx, user)
		if err == nil {
			break
		}
		if conflictField(err) == "id" && attempt < maxIDAttempts {
			s.logger.Warn("Generated user id collided, regenerating",
				zap.String("user_id", user.ID.String()),
				zap.Int("attempt", attempt))
			continue
		}
		s.logFailure("Failed to create user", user.ID.String(), err)
		return nil, err
	}

	s.logger.Debug("User created",
		zap.String("user_id", user.ID.String()),
		zap.String("login", user.Login))
	return user, nil
}

// UpdateUser applies the fields present in req to the user
func (s *UserServiceImpl) UpdateUser(ctx context.Context, id string, req *UpdateUserRequest) (*User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, NewUserNotFoundError(id)
	}

	if req.IsEmpty() {
		return s.GetUser(ctx, id)
	}

	patch, err := s.buildPatch(req)
	if err != nil {
		return nil, err
	}

	user, err := s.store.UpdateUser(ctx, userID, patch)
	if err != nil {
		s.logFailure("Failed to update user", id, err)
		return nil, err
	}

	s.logger.Debug("User updated", zap.String("user_id", id))
	return user, nil
}

// DeleteUser deletes a user
func (s *UserServiceImpl) DeleteUser(ctx context.Context, id string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return NewUserNotFoundError(id)
	}

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		s.logFailure("Failed to delete user", id, err)
		return err
	}

	s.logger.Debug("User deleted", zap.String("user_id", id))
	return nil
}

func (s *UserServiceImpl) buildPatch(req *UpdateUserRequest) (*UserPatch, error) {
	patch := &UserPatch{}

	if req.Name != nil {
		if isBlank(*req.Name) {
			return nil, NewUserValidationError("name", "name cannot be empty")
		}
		patch.Name = req.Name
	}
	if req.Login != nil {
		if isBlank(*req.Login) {
			return nil, NewUserValidationError("login", "login cannot be empty")
		}
		patch.Login = req.Login
	}
	if req.Password != nil {
		if isBlank(*req.Password) {
			return nil, NewUserValidationError("password", "password cannot be empty")
		}
		hash, err := s.hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
	}

	return patch, nil
}

func (s *UserServiceImpl) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// logFailure logs client errors at warn level and everything else at error level
func (s *UserServiceImpl) logFailure(msg, id string, err error) {
	if IsNotFound(err) || IsValidation(err) || IsAlreadyExists(err) {
		s.logger.Warn(msg, zap.String("user_id", id), zap.Error(err))
		return
	}
	s.logger.Error(msg, zap.String("user_id", id), zap.Error(err))
}

func validateCreate(req *CreateUserRequest) error {
	if req == nil {
		return NewUserValidationError("body", "request body is required")
	}
	if isBlank(req.Name) {
		return NewUserValidationError("name", "name is required")
	}
	if isBlank(req.Login) {
		return NewUserValidationError("login", "login is required")
	}
	if isBlank(req.Password) {
		return NewUserValidationError("password", "password is required")
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
