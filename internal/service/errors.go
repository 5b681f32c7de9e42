package service

import (
	"errors"

	"lifemap/internal/repository"
)

var (
	// ErrNotFound covers tasks, details, subtasks, milestones and snapshots.
	ErrNotFound = repository.ErrNotFound
	// ErrValidation rejects input before anything is written.
	ErrValidation = errors.New("validation failed")
	// ErrConfirmationRequired guards destructive operations such as restore.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrNotInitialized is returned when no user session is active.
	ErrNotInitialized = errors.New("planner not initialized")
	// ErrUnknownUser rejects logins outside the allow-list.
	ErrUnknownUser = errors.New("unknown user")
)
