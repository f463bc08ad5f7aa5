//go:build !windows

package lock

import (
	"errors"
	"os"
	"syscall"
)

// processExists reports whether pid names a live process on this host
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 performs the existence and permission checks only
	switch err := p.Signal(syscall.Signal(0)); {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// Owned by another user, but alive
		return true
	default:
		return false
	}
}
