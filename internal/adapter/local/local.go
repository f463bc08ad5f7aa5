package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Ning0612/treeclean/internal/adapter"
	"github.com/Ning0612/treeclean/internal/core/checksum"
	"github.com/Ning0612/treeclean/internal/domain"
)

// listBatchSize is the number of directory entries read per ReadDir call
const listBatchSize = 256

// Adapter implements the adapter.Adapter interface for local filesystem
type Adapter struct {
	root string
	calc checksum.Calculator
}

// New creates a new local filesystem adapter
// root must be an existing directory
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	return &Adapter{root: absRoot, calc: checksum.NewDefaultCalculator()}, nil
}

// resolvePath safely resolves a relative path to absolute path within root
// Returns error if path attempts to escape root directory
func (a *Adapter) resolvePath(relPath string) (string, error) {
	if relPath == "" || relPath == "." || relPath == "/" {
		return a.root, nil
	}

	relPath = filepath.Clean(filepath.FromSlash(strings.TrimPrefix(relPath, "/")))
	fullPath := filepath.Join(a.root, relPath)

	// filepath.Rel handles root="C:\root" and fullPath="C:\root2"
	rel, err := filepath.Rel(a.root, fullPath)
	if err != nil {
		return "", domain.ErrPermissionDenied
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.ErrPermissionDenied
	}

	return fullPath, nil
}

// OpenListing opens the directory at path for lazy iteration
func (a *Adapter) OpenListing(ctx context.Context, relPath string) (adapter.Listing, error) {
	fullPath, err := a.resolvePath(relPath)
	if err != nil {
		return nil, err
	}

	dir, err := os.Open(fullPath)
	if err != nil {
		return nil, a.mapError(err)
	}
	info, err := dir.Stat()
	if err != nil {
		dir.Close()
		return nil, a.mapError(err)
	}
	if !info.IsDir() {
		dir.Close()
		return nil, domain.ErrNotDirectory
	}

	return &listing{ctx: ctx, dir: dir, parent: cleanRel(relPath)}, nil
}

// listing reads directory entries in batches
type listing struct {
	ctx     context.Context
	dir     *os.File
	parent  string
	pending []os.DirEntry
	done    bool
}

// Next implements adapter.Listing
func (l *listing) Next() (domain.Entry, error) {
	for {
		if err := l.ctx.Err(); err != nil {
			return domain.Entry{}, err
		}

		if len(l.pending) > 0 {
			de := l.pending[0]
			l.pending = l.pending[1:]

			// Info uses lstat semantics, so symlinks stay classified as other
			info, err := de.Info()
			if err != nil {
				if os.IsNotExist(err) {
					continue // removed since the batch was read
				}
				return domain.Entry{}, err
			}
			return entryFromOS(path.Join(l.parent, de.Name()), info), nil
		}

		if l.done {
			return domain.Entry{}, io.EOF
		}

		batch, err := l.dir.ReadDir(listBatchSize)
		if err == io.EOF || (err == nil && len(batch) == 0) {
			l.done = true
			continue
		}
		if err != nil {
			return domain.Entry{}, err
		}
		l.pending = batch
	}
}

// Close implements adapter.Listing
func (l *listing) Close() error {
	return l.dir.Close()
}

// Unlink removes a file
func (a *Adapter) Unlink(ctx context.Context, relPath string) error {
	fullPath, err := a.resolvePath(relPath)
	if err != nil {
		return err
	}

	info, err := os.Lstat(fullPath)
	if err != nil {
		return a.mapError(err)
	}
	if info.IsDir() {
		return domain.ErrNotFile
	}

	return a.mapError(os.Remove(fullPath))
}

// RemoveDirectory removes an empty directory
func (a *Adapter) RemoveDirectory(ctx context.Context, relPath string) error {
	fullPath, err := a.resolvePath(relPath)
	if err != nil {
		return err
	}
	if fullPath == a.root {
		return domain.ErrPermissionDenied
	}

	info, err := os.Lstat(fullPath)
	if err != nil {
		return a.mapError(err)
	}
	if !info.IsDir() {
		return domain.ErrNotDirectory
	}

	return a.mapError(os.Remove(fullPath))
}

// SetPermissions changes the mode bits of path
func (a *Adapter) SetPermissions(ctx context.Context, relPath string, mode fs.FileMode) error {
	fullPath, err := a.resolvePath(relPath)
	if err != nil {
		return err
	}
	return a.mapError(os.Chmod(fullPath, mode.Perm()))
}

// Write creates or overwrites a file
func (a *Adapter) Write(ctx context.Context, relPath string, r io.Reader) error {
	fullPath, err := a.resolvePath(relPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return a.mapError(err)
	}

	// Write to temp file first for atomic operation
	tempPath := fullPath + ".treeclean.tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return a.mapError(err)
	}

	_, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tempPath)
		return errors.Join(copyErr, closeErr)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return a.mapError(err)
	}
	return nil
}

// Checksum computes the checksum of a file by streaming its content
func (a *Adapter) Checksum(ctx context.Context, relPath string, algo checksum.Algorithm) (string, error) {
	if !checksum.IsSupported(algo) {
		return "", domain.ErrNotSupported
	}

	fullPath, err := a.resolvePath(relPath)
	if err != nil {
		return "", err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return "", a.mapError(err)
	}
	defer file.Close()

	return a.calc.Calculate(ctx, file, algo)
}

// Close releases any resources (no-op for local adapter)
func (a *Adapter) Close() error {
	return nil
}

// Root returns the root path of this adapter
func (a *Adapter) Root() string {
	return a.root
}

// cleanRel normalizes a namespace path to slash form without leading slash
func cleanRel(relPath string) string {
	p := path.Clean("/" + filepath.ToSlash(relPath))
	return strings.TrimPrefix(p, "/")
}

// entryFromOS converts os.FileInfo to domain.Entry
func entryFromOS(p string, info os.FileInfo) domain.Entry {
	mode := info.Mode()
	return domain.Entry{
		Path:    p,
		Kind:    domain.KindFromMode(mode),
		Mode:    mode.Perm(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// mapError converts OS errors to domain errors
func (a *Adapter) mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case os.IsNotExist(err):
		return domain.ErrNotFound
	case os.IsPermission(err):
		return domain.ErrPermissionDenied
	case os.IsExist(err):
		// rmdir on a non-empty directory reports EEXIST on some platforms
		return domain.ErrNotEmpty
	}

	// Check for directory not empty (platform specific)
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if strings.Contains(pathErr.Err.Error(), "not empty") {
			return domain.ErrNotEmpty
		}
	}

	return err
}

var (
	_ adapter.Adapter     = (*Adapter)(nil)
	_ adapter.Writer      = (*Adapter)(nil)
	_ adapter.Checksummer = (*Adapter)(nil)
)
