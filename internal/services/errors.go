package services

import (
	"errors"
	"fmt"
)

// Core error taxonomy. Handlers map these 1:1 to HTTP statuses; nothing
// in the services layer swallows or retries them.
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrContainerNotFound = errors.New("container not found")
	ErrParentNotFound    = errors.New("parent file not found")
	ErrFileNotFound      = errors.New("file not found")
	ErrRevisionNotFound  = errors.New("revision not found")

	// ErrInvalidNesting rejects a child whose parent is itself a child.
	ErrInvalidNesting = errors.New("parent file already has a parent")

	// ErrContainerMismatch rejects a child placed outside its parent's
	// container.
	ErrContainerMismatch = errors.New("child file must reside in its parent's container")

	ErrConflict = errors.New("duplicate sequence number")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("blob store %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
