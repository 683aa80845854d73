package users

import (
	"errors"
	"fmt"
)

// UserError represents errors related to user operations
type UserError struct {
	Type    string
	UserID  string
	Field   string
	Message string
	Cause   error
}

func (e *UserError) Error() string {
	subject := e.UserID
	if subject == "" {
		subject = e.Field
	}
	if e.Cause != nil {
		return fmt.Sprintf("user error [%s] for %s: %s (caused by: %v)", e.Type, subject, e.Message, e.Cause)
	}
	return fmt.Sprintf("user error [%s] for %s: %s", e.Type, subject, e.Message)
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// User error types
const (
	UserErrorTypeNotFound         = "not_found"
	UserErrorTypeValidationFailed = "validation_failed"
	UserErrorTypeAlreadyExists    = "already_exists"
)

// NewUserNotFoundError creates an error for when a user is not found
func NewUserNotFoundError(userID string) *UserError {
	return &UserError{
		Type:    UserErrorTypeNotFound,
		UserID:  userID,
		Message: "user not found",
	}
}

// NewUserValidationError creates an error for a missing or invalid field
func NewUserValidationError(field, message string) *UserError {
	return &UserError{
		Type:    UserErrorTypeValidationFailed,
		Field:   field,
		Message: message,
	}
}

// NewUserAlreadyExistsError creates an error for a uniqueness violation on field
func NewUserAlreadyExistsError(field, value string, cause error) *UserError {
	return &UserError{
		Type:    UserErrorTypeAlreadyExists,
		Field:   field,
		Message: fmt.Sprintf("user with %s %q already exists", field, value),
		Cause:   cause,
	}
}

func hasType(err error, typ string) bool {
	var ue *UserError
	return errors.As(err, &ue) && ue.Type == typ
}

// IsNotFound reports whether err is a not-found user error
func IsNotFound(err error) bool {
	return hasType(err, UserErrorTypeNotFound)
}

// IsValidation reports whether err is a validation user error
func IsValidation(err error) bool {
	return hasType(err, UserErrorTypeValidationFailed)
}

// IsAlreadyExists reports whether err is a uniqueness user error
func IsAlreadyExists(err error) bool {
	return hasType(err, UserErrorTypeAlreadyExists)
}

// conflictField returns the field an already-exists error refers to
func conflictField(err error) string {
	var ue *UserError
	if errors.As(err, &ue) && ue.Type == UserErrorTypeAlreadyExists {
		return ue.Field
	}
	return ""
}
