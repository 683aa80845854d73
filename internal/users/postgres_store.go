package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// usersPrimaryKey is the primary key constraint name created by the users migration
const usersPrimaryKey = "users_pkey"

// UserSchema represents the users table schema in PostgreSQL
type UserSchema struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name         string     `bun:"name,notnull" json:"name"`
	Login        string     `bun:"login,notnull" json:"login"`
	PasswordHash string     `bun:"password_hash,notnull" json:"-"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt    *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// PostgresStore implements UserStore interface with PostgreSQL storage.
// Deletes are soft so that ids stay reserved.
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

// ListUsers returns all live users ordered by creation time
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	var schemas []UserSchema
	err := s.db.NewSelect().
		Model(&schemas).
		Where("deleted_at IS NULL").
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	result := make([]*User, 0, len(schemas))
	for _, schema := range schemas {
		result = append(result, UserSchemaToUser(schema))
	}
	return result, nil
}

// GetUser retrieves a live user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	schema, err := getLiveUser(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	return UserSchemaToUser(*schema), nil
}

// CreateUser inserts a new user
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	schema := UserToUserSchema(user)
	_, err := s.db.NewInsert().
		Model(&schema).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if conflict := translateUniqueViolation(err, user.ID.String(), user.Login); conflict != nil {
			return conflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	*user = *UserSchemaToUser(schema)
	return nil
}

// UpdateUser applies patch to a live user inside a transaction
func (s *PostgresStore) UpdateUser(ctx context.Context, id uuid.UUID, patch *UserPatch) (*User, error) {
	var updated *User

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		schema, err := getLiveUser(ctx, tx, id, true)
		if err != nil {
			return err
		}

		user := UserSchemaToUser(*schema)
		patch.apply(user, time.Now())
		next := UserToUserSchema(user)

		_, err = tx.NewUpdate().
			Model(&next).
			Column("name", "login", "password_hash", "updated_at").
			WherePK().
			Where("deleted_at IS NULL").
			Exec(ctx)
		if err != nil {
			login := ""
			if patch.Login != nil {
				login = *patch.Login
			}
			if conflict := translateUniqueViolation(err, id.String(), login); conflict != nil {
				return conflict
			}
			return fmt.Errorf("failed to update user: %w", err)
		}

		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteUser soft-deletes a user by setting deleted_at timestamp
func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	now := time.Now()

	result, err := s.db.NewUpdate().
		Model((*UserSchema)(nil)).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Set("deleted_at = ?", now).
		Set("updated_at = ?", now).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return NewUserNotFoundError(id.String())
	}

	return nil
}

func getLiveUser(ctx context.Context, db bun.IDB, id uuid.UUID, forUpdate bool) (*UserSchema, error) {
	var schema UserSchema
	q := db.NewSelect().
		Model(&schema).
		Where("id = ?", id).
		Where("deleted_at IS NULL")
	if forUpdate {
		q = q.For("UPDATE")
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewUserNotFoundError(id.String())
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &schema, nil
}

// translateUniqueViolation maps a PostgreSQL unique violation to an
// already-exists error, or returns nil for any other error
func translateUniqueViolation(err error, id, login string) error {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) || pgErr.Field('C') != "23505" {
		return nil
	}

	if pgErr.Field('n') == usersPrimaryKey {
		return NewUserAlreadyExistsError("id", id, err)
	}
	// users_login_live_idx is the only other unique constraint on the table
	return NewUserAlreadyExistsError("login", login, err)
}

// Helper conversion functions
func UserSchemaToUser(schema UserSchema) *User {
	return &User{
		ID:           schema.ID,
		Name:         schema.Name,
		Login:        schema.Login,
		PasswordHash: schema.PasswordHash,
		CreatedAt:    schema.CreatedAt,
		UpdatedAt:    schema.UpdatedAt,
	}
}

func UserToUserSchema(user *User) UserSchema {
	return UserSchema{
		ID:           user.ID,
		Name:         user.Name,
		Login:        user.Login,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}
