package gdrive

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/Ning0612/treeclean/internal/adapter"
	"github.com/Ning0612/treeclean/internal/core/checksum"
	"github.com/Ning0612/treeclean/internal/core/cleaner"
	"github.com/Ning0612/treeclean/internal/domain"
	"github.com/Ning0612/treeclean/internal/logger"
)

// seedTree builds /Scratch with a.txt, b.txt, c.txt, sub/ (d.txt) and locked/
func seedTree(fake *fakeDrive) (scratch, sub, locked string) {
	scratch = fake.add("root", "Scratch", true)
	fake.add(scratch, "a.txt", false)
	fake.add(scratch, "b.txt", false)
	fake.add(scratch, "c.txt", false)
	sub = fake.add(scratch, "sub", true)
	fake.add(sub, "d.txt", false)
	locked = fake.add(scratch, "locked", true)
	fake.files[locked].readOnly = true
	return scratch, sub, locked
}

// TestOpenListing_Paged tests that listings span several pages in order
func TestOpenListing_Paged(t *testing.T) {
	fake := newFakeDrive()
	seedTree(fake)
	a := newFakeAdapter(t, fake, "/Scratch")

	l, err := a.OpenListing(context.Background(), "")
	if err != nil {
		t.Fatalf("OpenListing failed: %v", err)
	}
	defer l.Close()

	entries, err := adapter.ReadAll(l)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	want := []struct {
		path string
		kind domain.EntryKind
		mode fs.FileMode
	}{
		{"a.txt", domain.KindFile, 0o664},
		{"b.txt", domain.KindFile, 0o664},
		{"c.txt", domain.KindFile, 0o664},
		{"sub", domain.KindDirectory, 0o775},
		{"locked", domain.KindDirectory, 0o555},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(entries), entries)
	}
	for i, w := range want {
		e := entries[i]
		if e.Path != w.path || e.Kind != w.kind || e.Mode != w.mode {
			t.Errorf("entry %d = {%s %s %v}, want {%s %s %v}", i, e.Path, e.Kind, e.Mode, w.path, w.kind, w.mode)
		}
	}
	if entries[0].Size != 3 {
		t.Errorf("expected size 3, got %d", entries[0].Size)
	}
	if entries[0].ModTime.IsZero() {
		t.Error("expected modification time to be parsed")
	}
}

// TestOpenListing_Errors tests missing paths and files
func TestOpenListing_Errors(t *testing.T) {
	fake := newFakeDrive()
	seedTree(fake)
	a := newFakeAdapter(t, fake, "/Scratch")
	ctx := context.Background()

	if _, err := a.OpenListing(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := a.OpenListing(ctx, "a.txt"); !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("expected ErrNotDirectory, got %v", err)
	}
}

// TestUnlink tests file deletion
func TestUnlink(t *testing.T) {
	fake := newFakeDrive()
	seedTree(fake)
	a := newFakeAdapter(t, fake, "/Scratch")
	ctx := context.Background()

	if err := a.Unlink(ctx, "a.txt"); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if err := a.Unlink(ctx, "a.txt"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Unlink: expected ErrNotFound, got %v", err)
	}
	if err := a.Unlink(ctx, "sub"); !errors.Is(err, domain.ErrNotFile) {
		t.Errorf("Unlink on folder: expected ErrNotFile, got %v", err)
	}
}

// TestRemoveDirectory tests that only empty folders are deleted
func TestRemoveDirectory(t *testing.T) {
	fake := newFakeDrive()
	_, sub, _ := seedTree(fake)
	a := newFakeAdapter(t, fake, "/Scratch")
	ctx := context.Background()

	if err := a.RemoveDirectory(ctx, "sub"); !errors.Is(err, domain.ErrNotEmpty) {
		t.Fatalf("expected ErrNotEmpty, got %v", err)
	}
	if !fake.exists(sub) {
		t.Fatal("populated folder must survive")
	}

	if err := a.Unlink(ctx, "sub/d.txt"); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if err := a.RemoveDirectory(ctx, "sub"); err != nil {
		t.Fatalf("RemoveDirectory failed: %v", err)
	}
	if fake.exists(sub) {
		t.Error("expected folder to be deleted")
	}
	if err := a.RemoveDirectory(ctx, "a.txt"); !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("expected ErrNotDirectory, got %v", err)
	}
	if err := a.RemoveDirectory(ctx, ""); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("removing the root: expected ErrPermissionDenied, got %v", err)
	}
}

// TestSetPermissions tests that mode changes are unsupported
func TestSetPermissions(t *testing.T) {
	a := NewWithService(nil, "/Scratch")
	err := a.SetPermissions(context.Background(), "locked", 0o775)
	if !errors.Is(err, domain.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

// TestChecksum tests server-side checksums
func TestChecksum(t *testing.T) {
	fake := newFakeDrive()
	seedTree(fake)
	a := newFakeAdapter(t, fake, "/Scratch")
	ctx := context.Background()

	sum, err := a.Checksum(ctx, "a.txt", checksum.MD5)
	if err != nil {
		t.Fatalf("Checksum failed: %v", err)
	}
	if sum != "900150983cd24fb0d6963f7d28e17f72" {
		t.Errorf("unexpected md5 %s", sum)
	}

	if _, err := a.Checksum(ctx, "a.txt", checksum.CRC32); !errors.Is(err, domain.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported for crc32, got %v", err)
	}
}

// TestCleanTree tests a full clean run against Drive
func TestCleanTree(t *testing.T) {
	fake := newFakeDrive()
	scratch, _, _ := seedTree(fake)
	a := newFakeAdapter(t, fake, "/Scratch")

	c := cleaner.New(a, domain.Policy{RepairPermissions: true}, cleaner.WithLogger(&logger.NullLogger{}))
	result, err := c.Clean(context.Background(), "")
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}

	want := domain.CleanResult{FilesRemoved: 4, DirectoriesRemoved: 2}
	if result != want {
		t.Errorf("Clean() = %+v, want %+v", result, want)
	}
	if !fake.exists(scratch) {
		t.Error("the cleaned root must be kept")
	}
	if len(fake.files) != 1 {
		t.Errorf("expected only the root folder to remain, got %d files", len(fake.files))
	}
}
