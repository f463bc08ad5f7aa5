// Package memfs provides an in-memory storage adapter with failure injection.
// It keeps listing order stable (insertion order) and records every mutating
// call, which makes it the backend of choice for cleaner and harness tests.
package memfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/Ning0612/treeclean/internal/adapter"
	"github.com/Ning0612/treeclean/internal/core/checksum"
	"github.com/Ning0612/treeclean/internal/domain"
)

// Operation names used for failure injection and call recording
const (
	OpList     = "list"
	OpUnlink   = "unlink"
	OpRmdir    = "rmdir"
	OpChmod    = "chmod"
	OpWrite    = "write"
	OpChecksum = "checksum"
)

type node struct {
	kind     domain.EntryKind
	mode     fs.FileMode
	data     []byte
	children []string // child names in insertion order
}

// FS is an in-memory namespace
type FS struct {
	mu        sync.Mutex
	nodes     map[string]*node
	failures  map[string]error
	calls     []string
	checksums map[checksum.Algorithm]bool
	calc      checksum.Calculator
}

// New creates an empty namespace containing only the root directory
func New() *FS {
	algos := make(map[checksum.Algorithm]bool)
	for _, a := range checksum.All() {
		algos[a] = true
	}
	return &FS{
		nodes:     map[string]*node{"": {kind: domain.KindDirectory, mode: 0o755}},
		failures:  make(map[string]error),
		checksums: algos,
		calc:      checksum.NewDefaultCalculator(),
	}
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func failureKey(op, p string) string {
	return op + ":" + clean(p)
}

// Mkdir creates a directory (and missing parents) with the given mode
func (m *FS) Mkdir(p string, mode fs.FileMode) *FS {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDir(clean(p), mode)
	return m
}

// AddFile creates a file with content, creating parents as needed
func (m *FS) AddFile(p string, content string) *FS {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(clean(p), &node{kind: domain.KindFile, mode: 0o644, data: []byte(content)})
	return m
}

// AddOther creates an entry that is neither file nor directory (a symlink)
func (m *FS) AddOther(p string) *FS {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(clean(p), &node{kind: domain.KindOther, mode: fs.ModeSymlink | 0o777})
	return m
}

// FailOn makes every subsequent op on p return err
func (m *FS) FailOn(op, p string, err error) *FS {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[failureKey(op, p)] = err
	return m
}

// SetChecksumSupport restricts which algorithms Checksum accepts
func (m *FS) SetChecksumSupport(algos ...checksum.Algorithm) *FS {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checksums = make(map[checksum.Algorithm]bool)
	for _, a := range algos {
		m.checksums[a] = true
	}
	return m
}

// Calls returns the recorded mutating calls as "op:path"
func (m *FS) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Exists reports whether p is present
func (m *FS) Exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[clean(p)]
	return ok
}

// Mode returns the permission bits of p
func (m *FS) Mode(p string) fs.FileMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[clean(p)]; ok {
		return n.mode
	}
	return 0
}

func (m *FS) ensureDir(p string, mode fs.FileMode) {
	if n, ok := m.nodes[p]; ok {
		n.mode = mode
		return
	}
	m.put(p, &node{kind: domain.KindDirectory, mode: mode})
}

func (m *FS) put(p string, n *node) {
	parent := path.Dir(p)
	if parent == "." {
		parent = ""
	}
	if _, ok := m.nodes[parent]; !ok {
		m.ensureDir(parent, 0o755)
	}
	if _, exists := m.nodes[p]; !exists {
		pn := m.nodes[parent]
		pn.children = append(pn.children, path.Base(p))
	}
	m.nodes[p] = n
}

func (m *FS) remove(p string) {
	delete(m.nodes, p)
	parent := path.Dir(p)
	if parent == "." {
		parent = ""
	}
	if pn, ok := m.nodes[parent]; ok {
		name := path.Base(p)
		for i, c := range pn.children {
			if c == name {
				pn.children = append(pn.children[:i], pn.children[i+1:]...)
				break
			}
		}
	}
}

func (m *FS) record(op, p string) error {
	m.calls = append(m.calls, failureKey(op, p))
	return m.failures[failureKey(op, p)]
}

// OpenListing implements adapter.Adapter
func (m *FS) OpenListing(ctx context.Context, p string) (adapter.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	if err := m.failures[failureKey(OpList, p)]; err != nil {
		return nil, err
	}
	n, ok := m.nodes[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if n.kind != domain.KindDirectory {
		return nil, domain.ErrNotDirectory
	}

	entries := make([]domain.Entry, 0, len(n.children))
	for _, name := range n.children {
		childPath := path.Join(p, name)
		c := m.nodes[childPath]
		entries = append(entries, domain.Entry{
			Path: childPath,
			Kind: c.kind,
			Mode: c.mode.Perm(),
			Size: int64(len(c.data)),
		})
	}
	return adapter.NewSliceListing(entries), nil
}

// Unlink implements adapter.Adapter
func (m *FS) Unlink(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	if err := m.record(OpUnlink, p); err != nil {
		return err
	}
	n, ok := m.nodes[p]
	if !ok {
		return domain.ErrNotFound
	}
	if n.kind == domain.KindDirectory {
		return domain.ErrNotFile
	}
	m.remove(p)
	return nil
}

// RemoveDirectory implements adapter.Adapter
func (m *FS) RemoveDirectory(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	if err := m.record(OpRmdir, p); err != nil {
		return err
	}
	n, ok := m.nodes[p]
	if !ok {
		return domain.ErrNotFound
	}
	if n.kind != domain.KindDirectory {
		return domain.ErrNotDirectory
	}
	if len(n.children) > 0 {
		return domain.ErrNotEmpty
	}
	if p == "" {
		return domain.ErrPermissionDenied
	}
	m.remove(p)
	return nil
}

// SetPermissions implements adapter.Adapter
func (m *FS) SetPermissions(ctx context.Context, p string, mode fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	if err := m.record(OpChmod, p); err != nil {
		return err
	}
	n, ok := m.nodes[p]
	if !ok {
		return domain.ErrNotFound
	}
	n.mode = mode.Perm()
	return nil
}

// Write implements adapter.Writer
func (m *FS) Write(ctx context.Context, p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	if err := m.record(OpWrite, p); err != nil {
		return err
	}
	if n, ok := m.nodes[p]; ok && n.kind == domain.KindDirectory {
		return domain.ErrNotFile
	}
	m.put(p, &node{kind: domain.KindFile, mode: 0o644, data: data})
	return nil
}

// Checksum implements adapter.Checksummer
func (m *FS) Checksum(ctx context.Context, p string, algo checksum.Algorithm) (string, error) {
	m.mu.Lock()
	p = clean(p)
	if err := m.record(OpChecksum, p); err != nil {
		m.mu.Unlock()
		return "", err
	}
	supported := m.checksums[algo]
	n, ok := m.nodes[p]
	m.mu.Unlock()

	if !ok {
		return "", domain.ErrNotFound
	}
	if !supported {
		return "", fmt.Errorf("%s: %w", algo, domain.ErrNotSupported)
	}
	return m.calc.Calculate(ctx, bytes.NewReader(n.data), algo)
}

// Close implements adapter.Adapter
func (m *FS) Close() error {
	return nil
}

var (
	_ adapter.Adapter     = (*FS)(nil)
	_ adapter.Writer      = (*FS)(nil)
	_ adapter.Checksummer = (*FS)(nil)
)
