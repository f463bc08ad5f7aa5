package adapter

import (
	"context"
	"io"
	"io/fs"

	"github.com/Ning0612/treeclean/internal/core/checksum"
	"github.com/Ning0612/treeclean/internal/domain"
)

// Adapter defines the storage capability consumed by the cleaner
// All implementations must handle path normalization internally
// and return domain-level errors for consistent error handling
type Adapter interface {
	// OpenListing starts a lazy listing of the directory at path
	// Returns domain.ErrNotFound if path doesn't exist
	// Returns domain.ErrNotDirectory if path is a file
	OpenListing(ctx context.Context, path string) (Listing, error)

	// Unlink removes a file
	// Returns domain.ErrNotFound if path doesn't exist
	Unlink(ctx context.Context, path string) error

	// RemoveDirectory removes an empty directory
	// Returns domain.ErrNotFound if path doesn't exist
	// Returns domain.ErrNotEmpty if the directory still has children
	RemoveDirectory(ctx context.Context, path string) error

	// SetPermissions changes the mode bits of path
	// Returns domain.ErrNotSupported if the backend has no mode bits
	SetPermissions(ctx context.Context, path string, mode fs.FileMode) error

	// Close releases any resources held by the adapter
	Close() error
}

// Listing is a forward-only, non-restartable sequence of directory entries
type Listing interface {
	// Next returns the next entry, or io.EOF once the listing is exhausted
	Next() (domain.Entry, error)

	// Close releases the listing handle
	Close() error
}

// Writer is implemented by adapters that can create files
type Writer interface {
	// Write creates or overwrites a file
	// Parent directories should be created automatically
	Write(ctx context.Context, path string, r io.Reader) error
}

// Checksummer is implemented by adapters that can report file checksums
type Checksummer interface {
	// Checksum returns the hex-encoded checksum of the file at path
	// Returns domain.ErrNotSupported if the algorithm is unavailable
	Checksum(ctx context.Context, path string, algo checksum.Algorithm) (string, error)
}

// SliceListing adapts a pre-fetched slice of entries to the Listing interface
type SliceListing struct {
	entries []domain.Entry
	pos     int
}

// NewSliceListing creates a listing over entries
func NewSliceListing(entries []domain.Entry) *SliceListing {
	return &SliceListing{entries: entries}
}

// Next implements Listing
func (l *SliceListing) Next() (domain.Entry, error) {
	if l.pos >= len(l.entries) {
		return domain.Entry{}, io.EOF
	}
	e := l.entries[l.pos]
	l.pos++
	return e, nil
}

// Close implements Listing
func (l *SliceListing) Close() error {
	return nil
}

// ReadAll drains a listing into a slice
func ReadAll(l Listing) ([]domain.Entry, error) {
	var result []domain.Entry
	for {
		e, err := l.Next()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result = append(result, e)
	}
}
