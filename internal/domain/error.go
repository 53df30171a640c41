package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// Executor plan engine
	ErrUnknownMutation    = errors.New("unknown mutation type")
	ErrBacklogUnavailable = errors.New("mutation backlog is not configured")
	ErrLockNotAcquired    = errors.New("lock is held by another worker")
)
