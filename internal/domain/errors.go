package domain

import (
	"errors"
	"fmt"
)

// Adapter errors
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a file but got a directory
	ErrNotFile = errors.New("not a file")

	// ErrNotEmpty indicates a directory still has children
	ErrNotEmpty = errors.New("directory not empty")

	// ErrNotSupported indicates the backend cannot perform the operation
	ErrNotSupported = errors.New("operation not supported")

	// ErrNetworkError indicates a network-related failure
	ErrNetworkError = errors.New("network error")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")

	// ErrEndpointNotFound indicates referenced endpoint doesn't exist
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrTransportNotFound indicates referenced transport doesn't exist
	ErrTransportNotFound = errors.New("transport not found")
)

// ListError reports a failed directory listing
type ListError struct {
	Path string
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("could not list %s: %v", e.Path, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// Cleaner operations
const (
	OpList   = "list"
	OpUnlink = "unlink"
	OpRmdir  = "rmdir"
	OpChmod  = "chmod"
)

// DeleteError reports a failed removal of a file or directory
// Absence is never reported as a DeleteError
type DeleteError struct {
	Op   string
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("could not %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// PermissionRepairError reports a failed attempt to make a directory writable
// It is never fatal
type PermissionRepairError struct {
	Path string
	Err  error
}

func (e *PermissionRepairError) Error() string {
	return fmt.Sprintf("failed chmod for %s: %v", e.Path, e.Err)
}

func (e *PermissionRepairError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the target is already absent
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
