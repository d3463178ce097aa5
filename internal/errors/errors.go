package errors

import (
	"errors"
	"fmt"
)

// Common error types for the portal backend
var (
	// Configuration errors
	ErrConfigurationMissing = errors.New("required configuration missing")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Identity provider errors
	ErrUpstreamAuthFailure = errors.New("identity provider rejected the grant")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrGroupNotFound       = errors.New("group not found")

	// Workflow errors
	ErrDuplicatePending = errors.New("pending request already exists")
	ErrNotFound         = errors.New("not found or already processed")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")

	// Datastore errors
	ErrPoolUnavailable = errors.New("database not configured or unreachable")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
