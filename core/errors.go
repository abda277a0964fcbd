package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Client-facing taxonomy. The HTTP layer maps these, and only these, to
// status codes.
var (
	ErrValidation         = errors.New("validation failed")                  // 400
	ErrDuplicateUser      = errors.New("username or email is already taken") // 409
	ErrInvalidCredentials = errors.New("invalid username or password")       // 401
	ErrUnauthorized       = errors.New("authentication required")            // 401
	ErrInternal           = errors.New("internal error")                     // 500
)

// Storage errors. Adapters return these; services translate them.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrCacheNotFound   = errors.New("session not found in cache")

	ErrSettingsNotFound = errors.New("settings not found")
)

// ErrMissingToken is returned when a request carries no session token
var ErrMissingToken = errors.New("missing session token")

// Config errors (server-side configuration)
var (
	ErrDBAdapterRequired   = errors.New("database adapter is required")
	ErrHTTPAdapterRequired = errors.New("http adapter is required")
	ErrSecretRequired      = errors.New("secret is required")
	ErrSecretTooShort      = errors.New("secret too short")
)

// ValidationError carries per-field messages for user-correctable input.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConstraintError is returned by storage adapters when a uniqueness
// constraint rejects a write. Constraint names the index or column that
// fired and must not reach clients.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("unique constraint %q violated", e.Constraint)
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrUniqueViolation
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}
