package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Ning0612/treeclean/internal/adapter"
	"github.com/Ning0612/treeclean/internal/core/checksum"
	"github.com/Ning0612/treeclean/internal/domain"
)

const (
	// MimeTypeFolder is the MIME type for Google Drive folders
	MimeTypeFolder = "application/vnd.google-apps.folder"
	// MimeTypeShortcut is the MIME type for Google Drive shortcuts
	MimeTypeShortcut = "application/vnd.google-apps.shortcut"
	// PageSize is the number of files to fetch per request
	PageSize = 100
)

const listFields = "nextPageToken, files(id, name, mimeType, size, modifiedTime, capabilities(canAddChildren, canDelete))"

// Adapter implements the adapter.Adapter interface for Google Drive
type Adapter struct {
	service *drive.Service
	root    string   // Root folder path in Drive (e.g., "/Scratch")
	cache   *idCache // Cache for path -> ID mapping
}

// idCache caches file ID lookups with thread-safe access
type idCache struct {
	mu    sync.RWMutex
	paths map[string]string // path -> file ID
}

func newIDCache() *idCache {
	return &idCache{
		paths: make(map[string]string),
	}
}

func (c *idCache) get(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.paths[path]
	return id, ok
}

func (c *idCache) set(path, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[path] = id
}

// delete drops path and everything cached below it
func (c *idCache) delete(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.paths, p)
	prefix := p + "/"
	for k := range c.paths {
		if strings.HasPrefix(k, prefix) {
			delete(c.paths, k)
		}
	}
}

// New creates a new Google Drive adapter from a stored token
func New(ctx context.Context, clientID, clientSecret, tokenPath, root string) (*Adapter, error) {
	ts, err := NewAuthenticator(clientID, clientSecret, tokenPath).TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return NewWithService(service, root), nil
}

// NewWithService wraps an already configured Drive service.
// The root folder is resolved lazily; it is never created.
func NewWithService(service *drive.Service, root string) *Adapter {
	return &Adapter{
		service: service,
		root:    normalizeRoot(root),
		cache:   newIDCache(),
	}
}

// normalizeRoot normalizes the root path
func normalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" || root == "/" {
		return ""
	}
	// Ensure leading slash, no trailing slash
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return strings.TrimSuffix(root, "/")
}

// OpenListing starts a paged listing of the folder at relPath
func (a *Adapter) OpenListing(ctx context.Context, relPath string) (adapter.Listing, error) {
	fullPath, err := a.joinPath(relPath)
	if err != nil {
		return nil, err
	}
	folder, err := a.lookup(ctx, fullPath)
	if err != nil {
		return nil, err
	}
	if folder.MimeType != MimeTypeFolder {
		return nil, domain.ErrNotDirectory
	}

	return &listing{
		ctx:      ctx,
		adapter:  a,
		folderID: folder.Id,
		parent:   a.relative(fullPath),
		fullPath: fullPath,
	}, nil
}

// listing fetches one page of children at a time
type listing struct {
	ctx       context.Context
	adapter   *Adapter
	folderID  string
	parent    string // path relative to the adapter root
	fullPath  string
	pageToken string
	pending   []*drive.File
	done      bool
}

// Next implements adapter.Listing
func (l *listing) Next() (domain.Entry, error) {
	for {
		if len(l.pending) > 0 {
			f := l.pending[0]
			l.pending = l.pending[1:]
			l.adapter.cache.set(path.Join("/", l.fullPath, f.Name), f.Id)
			return entryFromDrive(l.parent, f), nil
		}
		if l.done {
			return domain.Entry{}, io.EOF
		}
		if err := l.fetch(); err != nil {
			return domain.Entry{}, err
		}
	}
}

func (l *listing) fetch() error {
	query := fmt.Sprintf("'%s' in parents and trashed = false", l.folderID)
	call := l.adapter.service.Files.List().
		Q(query).
		PageSize(PageSize).
		Fields(listFields)
	if l.pageToken != "" {
		call = call.PageToken(l.pageToken)
	}

	fileList, err := call.Context(l.ctx).Do()
	if err != nil {
		return l.adapter.mapError(err)
	}

	l.pending = fileList.Files
	l.pageToken = fileList.NextPageToken
	l.done = l.pageToken == ""
	return nil
}

// Close implements adapter.Listing
func (l *listing) Close() error {
	l.pending = nil
	l.done = true
	return nil
}

// Unlink deletes a file permanently
func (a *Adapter) Unlink(ctx context.Context, relPath string) error {
	fullPath, err := a.joinPath(relPath)
	if err != nil {
		return err
	}
	file, err := a.lookup(ctx, fullPath)
	if err != nil {
		return err
	}
	if file.MimeType == MimeTypeFolder {
		return domain.ErrNotFile
	}
	return a.delete(ctx, fullPath, file.Id)
}

// RemoveDirectory deletes an empty folder permanently.
// Drive would delete a populated folder recursively, so emptiness is checked first.
func (a *Adapter) RemoveDirectory(ctx context.Context, relPath string) error {
	fullPath, err := a.joinPath(relPath)
	if err != nil {
		return err
	}
	if fullPath == a.root {
		return domain.ErrPermissionDenied
	}
	folder, err := a.lookup(ctx, fullPath)
	if err != nil {
		return err
	}
	if folder.MimeType != MimeTypeFolder {
		return domain.ErrNotDirectory
	}

	query := fmt.Sprintf("'%s' in parents and trashed = false", folder.Id)
	children, err := a.service.Files.List().
		Q(query).
		PageSize(1).
		Fields("files(id)").
		Context(ctx).Do()
	if err != nil {
		return a.mapError(err)
	}
	if len(children.Files) > 0 {
		return domain.ErrNotEmpty
	}

	return a.delete(ctx, fullPath, folder.Id)
}

func (a *Adapter) delete(ctx context.Context, fullPath, id string) error {
	err := a.service.Files.Delete(id).Context(ctx).Do()
	// Gone either way
	a.cache.delete(fullPath)
	return a.mapError(err)
}

// SetPermissions is not available: Drive has sharing roles, not mode bits
func (a *Adapter) SetPermissions(ctx context.Context, relPath string, mode fs.FileMode) error {
	return domain.ErrNotSupported
}

// Write creates or overwrites a file
func (a *Adapter) Write(ctx context.Context, relPath string, r io.Reader) error {
	fullPath, err := a.joinPath(relPath)
	if err != nil {
		return err
	}
	dirPath := path.Dir(fullPath)
	fileName := path.Base(fullPath)

	existing, err := a.lookup(ctx, fullPath)
	if err == nil {
		if existing.MimeType == MimeTypeFolder {
			return domain.ErrNotFile
		}
		_, updateErr := a.service.Files.Update(existing.Id, &drive.File{Name: fileName}).
			Context(ctx).
			Media(r).
			Do()
		return a.mapError(updateErr)
	}

	// Other errors (permission, network, etc.) should be propagated
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	parentID, err := a.getOrCreateFolderID(ctx, dirPath)
	if err != nil {
		return err
	}

	file := &drive.File{
		Name:    fileName,
		Parents: []string{parentID},
	}
	created, err := a.service.Files.Create(file).
		Fields("id").
		Context(ctx).
		Media(r).
		Do()
	if err != nil {
		return a.mapError(err)
	}
	a.cache.set(fullPath, created.Id)
	return nil
}

// Checksum returns a checksum Drive computed server side.
// Drive reports MD5, SHA1 and SHA256 for binary content only.
func (a *Adapter) Checksum(ctx context.Context, relPath string, algo checksum.Algorithm) (string, error) {
	fullPath, err := a.joinPath(relPath)
	if err != nil {
		return "", err
	}
	id, err := a.getFileID(ctx, fullPath)
	if err != nil {
		return "", err
	}

	file, err := a.service.Files.Get(id).
		Fields("id, mimeType, md5Checksum, sha1Checksum, sha256Checksum").
		Context(ctx).Do()
	if err != nil {
		return "", a.mapError(err)
	}

	var sum string
	switch algo {
	case checksum.MD5:
		sum = file.Md5Checksum
	case checksum.SHA1:
		sum = file.Sha1Checksum
	case checksum.SHA256:
		sum = file.Sha256Checksum
	}
	if sum == "" {
		return "", fmt.Errorf("%s: %w", algo, domain.ErrNotSupported)
	}
	return sum, nil
}

// Close releases any resources
func (a *Adapter) Close() error {
	return nil
}

// Root returns the root path of this adapter
func (a *Adapter) Root() string {
	return a.root
}

// joinPath joins relative path with root and validates against path traversal
// A leading slash addresses the adapter root, not the Drive root
func (a *Adapter) joinPath(relPath string) (string, error) {
	relPath = strings.TrimLeft(relPath, "/")
	if relPath == "" || relPath == "." {
		return a.root, nil
	}

	cleanPath := path.Clean(relPath)

	// Check for path traversal attempt
	if cleanPath == ".." || strings.HasPrefix(cleanPath, "../") || strings.Contains(cleanPath, "\\") {
		return "", domain.ErrPermissionDenied
	}

	fullPath := path.Join("/", a.root, cleanPath)

	// Verify the result is still under root (handles edge cases)
	if a.root != "" && fullPath != a.root && !strings.HasPrefix(fullPath, a.root+"/") {
		return "", domain.ErrPermissionDenied
	}

	return fullPath, nil
}

// relative strips the adapter root from a full Drive path
func (a *Adapter) relative(fullPath string) string {
	rel := strings.TrimPrefix(fullPath, a.root)
	return strings.TrimPrefix(rel, "/")
}

// escapeQueryString escapes special characters in Drive query strings
func escapeQueryString(s string) string {
	// Escape backslash first, then single quote
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	return s
}

// getFileID returns the ID of a file or folder at the given path
func (a *Adapter) getFileID(ctx context.Context, fullPath string) (string, error) {
	// Check cache first
	if id, ok := a.cache.get(fullPath); ok {
		return id, nil
	}

	// Empty path means root of Drive
	if fullPath == "" {
		return "root", nil
	}

	// Walk the path from root
	parts := strings.Split(strings.TrimPrefix(fullPath, "/"), "/")
	currentID := "root"

	for i, part := range parts {
		if part == "" {
			continue
		}

		partialPath := "/" + strings.Join(parts[:i+1], "/")
		if id, ok := a.cache.get(partialPath); ok {
			currentID = id
			continue
		}

		// Escape single quotes to prevent query injection
		escapedPart := escapeQueryString(part)
		query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapedPart, currentID)
		fileList, err := a.service.Files.List().
			Q(query).
			PageSize(1).
			Fields("files(id, mimeType)").
			Context(ctx).Do()
		if err != nil {
			return "", a.mapError(err)
		}

		if len(fileList.Files) == 0 {
			return "", domain.ErrNotFound
		}

		currentID = fileList.Files[0].Id
		a.cache.set(partialPath, currentID)
	}

	return currentID, nil
}

// lookup resolves fullPath and fetches the metadata needed to classify it
func (a *Adapter) lookup(ctx context.Context, fullPath string) (*drive.File, error) {
	id, err := a.getFileID(ctx, fullPath)
	if err != nil {
		return nil, err
	}

	file, err := a.service.Files.Get(id).
		Fields("id, name, mimeType").
		Context(ctx).Do()
	if err != nil {
		err = a.mapError(err)
		if errors.Is(err, domain.ErrNotFound) {
			a.cache.delete(fullPath)
		}
		return nil, err
	}
	return file, nil
}

// getOrCreateFolderID returns the ID of a folder, creating it if necessary
func (a *Adapter) getOrCreateFolderID(ctx context.Context, fullPath string) (string, error) {
	if fullPath == "" || fullPath == "/" {
		return "root", nil
	}

	if id, ok := a.cache.get(fullPath); ok {
		return id, nil
	}

	parts := strings.Split(strings.TrimPrefix(fullPath, "/"), "/")
	currentID := "root"

	for i, part := range parts {
		if part == "" {
			continue
		}

		partialPath := "/" + strings.Join(parts[:i+1], "/")

		if id, ok := a.cache.get(partialPath); ok {
			currentID = id
			continue
		}

		escapedPart := escapeQueryString(part)
		query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
			escapedPart, currentID, MimeTypeFolder)
		fileList, err := a.service.Files.List().
			Q(query).
			PageSize(1).
			Fields("files(id)").
			Context(ctx).Do()
		if err != nil {
			return "", a.mapError(err)
		}

		if len(fileList.Files) > 0 {
			currentID = fileList.Files[0].Id
		} else {
			folder := &drive.File{
				Name:     part,
				MimeType: MimeTypeFolder,
				Parents:  []string{currentID},
			}
			created, err := a.service.Files.Create(folder).
				Fields("id").
				Context(ctx).Do()
			if err != nil {
				return "", a.mapError(err)
			}
			currentID = created.Id
		}

		a.cache.set(partialPath, currentID)
	}

	return currentID, nil
}

// entryFromDrive converts a Drive file to a domain.Entry.
// Drive has no mode bits; capabilities are mapped onto the write bits so
// folders the caller cannot modify look like candidates for repair.
func entryFromDrive(parent string, file *drive.File) domain.Entry {
	entry := domain.Entry{
		Path: path.Join(parent, file.Name),
		Size: file.Size,
	}

	switch file.MimeType {
	case MimeTypeFolder:
		entry.Kind = domain.KindDirectory
		entry.Mode = 0o555
		if file.Capabilities != nil && file.Capabilities.CanAddChildren {
			entry.Mode = 0o775
		}
	case MimeTypeShortcut:
		entry.Kind = domain.KindOther
		entry.Mode = 0o777
	default:
		entry.Kind = domain.KindFile
		entry.Mode = 0o444
		if file.Capabilities != nil && file.Capabilities.CanDelete {
			entry.Mode = 0o664
		}
	}

	if file.ModifiedTime != "" {
		entry.ModTime, _ = time.Parse(time.RFC3339, file.ModifiedTime)
	}

	return entry
}

// mapError converts Google API errors to domain errors
func (a *Adapter) mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if ok := errors.As(err, &apiErr); ok {
		switch apiErr.Code {
		case 404:
			return domain.ErrNotFound
		case 403:
			return domain.ErrPermissionDenied
		case 409:
			return domain.ErrAlreadyExists
		case 429:
			// Rate limit - return original error with context
			return fmt.Errorf("rate limit exceeded: %w", err)
		}
		if apiErr.Code >= 500 {
			return fmt.Errorf("%w: %w", domain.ErrNetworkError, err)
		}
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// Fallback to string matching for non-googleapi errors
	if strings.Contains(err.Error(), "notFound") {
		return domain.ErrNotFound
	}

	return err
}

var (
	_ adapter.Adapter     = (*Adapter)(nil)
	_ adapter.Writer      = (*Adapter)(nil)
	_ adapter.Checksummer = (*Adapter)(nil)
)
