package vcs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrNoFilesToPush means the project has no BPMN/DMN files at all.
	// A project with files but no changes is a successful no-op, not this error.
	ErrNoFilesToPush = errors.New("no files to push")

	// ErrNotLinked means the project has no git repository record.
	ErrNotLinked = errors.New("project is not linked to a git repository")

	// ErrLocked means another sync holds the project lock.
	ErrLocked = errors.New("project sync lock is held by another operation")

	// ErrLeaseLost means a lease expired and another holder took it over.
	ErrLeaseLost = errors.New("lock lease lost")
)

// NotFoundError reports a missing branch, commit, project or file.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// ValidationError represents invalid caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
