package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrLockNotAcquired    = errors.New("lock not acquired")

	// Queue errors
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrMaxAttempts       = errors.New("task exceeded max attempts")

	// Provider dispatch taxonomy. Callers pick retry-with-backoff vs
	// fail-fast with errors.Is against these.
	ErrUnknownProvider     = errors.New("unknown inference provider")
	ErrProviderAuth        = errors.New("provider authentication failed")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrProviderUnavailable = errors.New("provider connection failed")

	// Intake errors
	ErrAlreadyCreated = errors.New("entity already created for this decision")
)
