package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/treeclean/internal/testutil"
)

func TestNewFileLock(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	lock, err := NewFileLock(dir, "scratch:/tmp")
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	expectedPath := filepath.Join(dir, FileName("scratch:/tmp"))
	if lock.Path() != expectedPath {
		t.Errorf("expected lock path %s, got %s", expectedPath, lock.Path())
	}
	if lock.staleTimeout != DefaultStaleTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultStaleTimeout, lock.staleTimeout)
	}
}

func TestFileName(t *testing.T) {
	a := FileName("scratch:/a")
	b := FileName("scratch:/b")

	if a == b {
		t.Error("different targets must map to different lock files")
	}
	if a != FileName("scratch:/a") {
		t.Error("lock file name must be stable")
	}
	if !strings.HasPrefix(a, LockFilePrefix) || !strings.HasSuffix(a, ".lock") {
		t.Errorf("unexpected lock file name %q", a)
	}
	if strings.ContainsAny(a, "/:\\") {
		t.Errorf("lock file name %q contains separators", a)
	}
}

func TestAcquireRelease(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	lock, err := NewFileLock(dir, "/data")
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	if err := lock.Acquire("run-1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); os.IsNotExist(err) {
		t.Error("lock file does not exist after acquire")
	}
	if !lock.IsLocked() {
		t.Error("lock should be held")
	}

	holder, err := lock.GetHolder()
	if err != nil {
		t.Fatalf("GetHolder failed: %v", err)
	}
	if holder.Target != "/data" || holder.RunID != "run-1" || holder.PID != os.Getpid() {
		t.Errorf("unexpected holder %+v", holder)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Error("lock file still exists after release")
	}
	if lock.IsLocked() {
		t.Error("lock should not be held after release")
	}

	// Releasing twice is a no-op
	if err := lock.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

// TestAcquireTwice_ThenRelease re-acquires with a new run ID and makes sure
// Release does not mistake the updated file for a stolen lock
func TestAcquireTwice_ThenRelease(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	lock, err := NewFileLock(dir, "/data")
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	if err := lock.Acquire("run-a"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := lock.Acquire("run-b"); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	info, err := lock.readLockInfo()
	if err != nil {
		t.Fatalf("failed to read lock info: %v", err)
	}
	if info.RunID != "run-b" {
		t.Errorf("expected run ID 'run-b', got %q", info.RunID)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release after re-acquire failed: %v", err)
	}
}

func TestSecondInstanceBlocked(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	first, _ := NewFileLock(dir, "/data")
	second, _ := NewFileLock(dir, "/data")
	other, _ := NewFileLock(dir, "/other")

	if err := first.Acquire("run-1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer first.Release()

	err := second.Acquire("run-2")
	if !IsLockError(err) {
		t.Fatalf("expected LockError, got %v", err)
	}
	if !strings.Contains(err.Error(), "/data") {
		t.Errorf("expected target in error message, got %q", err.Error())
	}

	// Locks are per target
	if err := other.Acquire("run-3"); err != nil {
		t.Errorf("lock on a different target failed: %v", err)
	}
	other.Release()
}

func TestConcurrentAcquire(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	const attempts = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := NewFileLock(dir, "/shared")
			if err != nil {
				return
			}
			if err := l.Acquire("run"); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("expected exactly one successful acquire, got %d", success)
	}
}

func writeForeignLock(t *testing.T, l *FileLock, info LockInfo) {
	t.Helper()
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(l.Path(), data, 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
}

func TestStaleDetection_ProcessDead(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	l, _ := NewFileLock(dir, "/data")
	hostname, _ := os.Hostname()
	writeForeignLock(t, l, LockInfo{
		PID:       999999999,
		Hostname:  hostname,
		StartTime: time.Now(),
		Target:    "/data",
	})

	if l.IsLocked() {
		t.Error("lock held by a dead process should be stale")
	}
	if err := l.Acquire("run"); err != nil {
		t.Fatalf("Acquire over stale lock failed: %v", err)
	}
	l.Release()
}

func TestStaleDetection_DifferentHost(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	l, _ := NewFileLock(dir, "/data")
	l.SetStaleTimeout(time.Minute)

	writeForeignLock(t, l, LockInfo{
		PID:       1,
		Hostname:  "elsewhere.invalid",
		StartTime: time.Now(),
		Target:    "/data",
	})
	if !l.IsLocked() {
		t.Error("fresh foreign-host lock should be respected")
	}

	writeForeignLock(t, l, LockInfo{
		PID:       1,
		Hostname:  "elsewhere.invalid",
		StartTime: time.Now().Add(-2 * time.Minute),
		Target:    "/data",
	})
	if l.IsLocked() {
		t.Error("expired foreign-host lock should be stale")
	}
}

func TestForceRelease(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	l, _ := NewFileLock(dir, "/data")
	if err := l.Acquire("run"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := l.ForceRelease(); err != nil {
		t.Fatalf("ForceRelease failed: %v", err)
	}
	if l.IsLocked() {
		t.Error("lock should be gone after ForceRelease")
	}
}

func TestLockError(t *testing.T) {
	err := &LockError{Reason: "busy"}
	if err.Error() != "cannot acquire lock: busy" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if IsLockError(os.ErrExist) {
		t.Error("os.ErrExist is not a LockError")
	}
}
