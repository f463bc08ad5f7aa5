package domain

import (
	"io/fs"
	"time"
)

// EntryKind classifies a namespace member
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
	KindOther
)

// String returns the string representation of the kind
func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "other"
	}
}

// KindFromMode classifies an entry by its file mode bits
func KindFromMode(mode fs.FileMode) EntryKind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDirectory
	default:
		return KindOther
	}
}

// Entry represents one member of a directory listing
// Entries are produced by a listing call and never mutated
type Entry struct {
	// Path is fully qualified within the storage namespace
	Path string

	// Kind indicates file, directory, or anything else (symlinks, devices)
	Kind EntryKind

	// Mode holds the permission bits reported by the backend
	Mode fs.FileMode

	// Size in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time, zero if unknown
	ModTime time.Time
}

// IsDir returns true if this is a directory
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// IsFile returns true if this is a regular file
func (e Entry) IsFile() bool {
	return e.Kind == KindFile
}

// GroupOrOtherWritable reports whether group or other may write the entry
func (e Entry) GroupOrOtherWritable() bool {
	return e.Mode.Perm()&0o022 != 0
}
