package users

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account stored by the service
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateUserRequest represents the request to create a user
type CreateUserRequest struct {
	Name     string `json:"name"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

// UpdateUserRequest represents a partial update. Nil fields are left unchanged.
type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Login    *string `json:"login,omitempty"`
	Password *string `json:"password,omitempty"`
}

// IsEmpty reports whether the request carries no field to change
func (r *UpdateUserRequest) IsEmpty() bool {
	return r == nil || (r.Name == nil && r.Login == nil && r.Password == nil)
}

// UserPatch is the store-level form of UpdateUserRequest, carrying an already
// hashed password
type UserPatch struct {
	Name         *string
	Login        *string
	PasswordHash *string
}

// apply copies the set fields of the patch onto user
func (p *UserPatch) apply(user *User, now time.Time) {
	if p.Name != nil {
		user.Name = *p.Name
	}
	if p.Login != nil {
		user.Login = *p.Login
	}
	if p.PasswordHash != nil {
		user.PasswordHash = *p.PasswordHash
	}
	user.UpdatedAt = now
}

// clone returns a copy of the user that shares no state with the original
func (u *User) clone() *User {
	c := *u
	return &c
}
