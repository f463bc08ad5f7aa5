package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/Ning0612/treeclean/internal/domain"
)

func TestMapError(t *testing.T) {
	a := &Adapter{}
	rateLimited := &googleapi.Error{Code: 429, Message: "slow down"}
	badRequest := &googleapi.Error{Code: 400, Message: "bad query"}
	generic := errors.New("connection reset")

	tests := []struct {
		name  string
		input error
		check func(t *testing.T, got error)
	}{
		{"nil", nil, func(t *testing.T, got error) {
			if got != nil {
				t.Errorf("got %v, want nil", got)
			}
		}},
		{"404", &googleapi.Error{Code: 404}, isErr(domain.ErrNotFound)},
		{"404 wrapped", fmt.Errorf("get: %w", &googleapi.Error{Code: 404}), isErr(domain.ErrNotFound)},
		{"403", &googleapi.Error{Code: 403}, isErr(domain.ErrPermissionDenied)},
		{"409", &googleapi.Error{Code: 409}, isErr(domain.ErrAlreadyExists)},
		{"500", &googleapi.Error{Code: 500}, isErr(domain.ErrNetworkError)},
		{"503", &googleapi.Error{Code: 503}, isErr(domain.ErrNetworkError)},
		{"429 keeps cause", rateLimited, func(t *testing.T, got error) {
			if !errors.Is(got, rateLimited) || !strings.Contains(got.Error(), "rate limit exceeded") {
				t.Errorf("got %v", got)
			}
		}},
		{"400 passthrough", badRequest, same(badRequest)},
		{"canceled", fmt.Errorf("list: %w", context.Canceled), isErr(context.Canceled)},
		{"notFound text", errors.New("file notFound in drive"), isErr(domain.ErrNotFound)},
		{"generic passthrough", generic, same(generic)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, a.mapError(tt.input))
		})
	}
}

func isErr(want error) func(*testing.T, error) {
	return func(t *testing.T, got error) {
		t.Helper()
		if !errors.Is(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func same(want error) func(*testing.T, error) {
	return func(t *testing.T, got error) {
		t.Helper()
		if got != want {
			t.Errorf("got %v, want the original %v", got, want)
		}
	}
}

func TestNormalizeRoot(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"/":              "",
		"  ":             "",
		"scratch":        "/scratch",
		"/scratch":       "/scratch",
		"/scratch/":      "/scratch",
		"team/scratch/ ": "/team/scratch",
		"/team/scratch":  "/team/scratch",
	}
	for input, want := range tests {
		if got := normalizeRoot(input); got != want {
			t.Errorf("normalizeRoot(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEscapeQueryString(t *testing.T) {
	tests := map[string]string{
		"runs":             "runs",
		"it's":             `it\'s`,
		"a''b":             `a\'\'b`,
		`back\slash`:       `back\\slash`,
		`quote"stays`:      `quote"stays`,
		"x' or name != '1": `x\' or name != \'1`,
	}
	for input, want := range tests {
		got := escapeQueryString(input)
		if got != want {
			t.Errorf("escapeQueryString(%q) = %q, want %q", input, got, want)
		}
		if strings.Contains(strings.ReplaceAll(got, `\'`, ""), "'") {
			t.Errorf("escapeQueryString(%q) left an unescaped quote: %q", input, got)
		}
	}
}

func TestJoinPath(t *testing.T) {
	a := &Adapter{root: "/scratch"}

	valid := map[string]string{
		"":             "/scratch",
		"/":            "/scratch",
		"runs":         "/scratch/runs",
		"/runs/42":     "/scratch/runs/42",
		"runs/42/logs": "/scratch/runs/42/logs",
	}
	for input, want := range valid {
		got, err := a.joinPath(input)
		if err != nil {
			t.Errorf("joinPath(%q) unexpected error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("joinPath(%q) = %q, want %q", input, got, want)
		}
	}

	for _, input := range []string{
		"..",
		"../outside",
		"runs/../../outside",
		`..\..\windows`,
	} {
		if got, err := a.joinPath(input); !errors.Is(err, domain.ErrPermissionDenied) {
			t.Errorf("joinPath(%q) = %q, %v; want ErrPermissionDenied", input, got, err)
		}
	}
}

func TestRelative(t *testing.T) {
	a := &Adapter{root: "/scratch"}
	if got := a.relative("/scratch/runs/a"); got != "runs/a" {
		t.Errorf("relative() = %q", got)
	}
	if got := a.relative("/scratch"); got != "" {
		t.Errorf("relative(root) = %q", got)
	}

	top := &Adapter{}
	if got := top.relative("/runs"); got != "runs" {
		t.Errorf("relative() at drive root = %q", got)
	}
}

func TestEntryFromDrive(t *testing.T) {
	tests := []struct {
		name     string
		file     *drive.File
		wantKind domain.EntryKind
		wantMode fs.FileMode
	}{
		{"writable folder", &drive.File{Name: "d", MimeType: MimeTypeFolder,
			Capabilities: &drive.FileCapabilities{CanAddChildren: true}}, domain.KindDirectory, 0o775},
		{"read-only folder", &drive.File{Name: "d", MimeType: MimeTypeFolder}, domain.KindDirectory, 0o555},
		{"deletable file", &drive.File{Name: "f", MimeType: "text/plain",
			Capabilities: &drive.FileCapabilities{CanDelete: true}}, domain.KindFile, 0o664},
		{"locked file", &drive.File{Name: "f", MimeType: "text/plain"}, domain.KindFile, 0o444},
		{"shortcut", &drive.File{Name: "s", MimeType: MimeTypeShortcut}, domain.KindOther, 0o777},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := entryFromDrive("runs", tt.file)
			if entry.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", entry.Kind, tt.wantKind)
			}
			if entry.Mode != tt.wantMode {
				t.Errorf("Mode = %v, want %v", entry.Mode, tt.wantMode)
			}
			if entry.Path != "runs/"+tt.file.Name {
				t.Errorf("Path = %q", entry.Path)
			}
		})
	}

	entry := entryFromDrive("", &drive.File{Name: "x", MimeType: "text/plain", ModifiedTime: "2024-05-01T12:00:00Z"})
	if entry.Path != "x" || entry.ModTime.IsZero() {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestIDCache(t *testing.T) {
	cache := newIDCache()

	if _, ok := cache.get("/runs"); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.set("/runs", "id-1")
	cache.set("/runs/a", "id-2")
	cache.set("/runs/a/b", "id-3")
	cache.set("/runsx", "id-4")
	cache.set("/runs", "id-1b")

	if id, _ := cache.get("/runs"); id != "id-1b" {
		t.Errorf("overwrite failed, got %q", id)
	}

	cache.delete("/runs/a")
	for _, p := range []string{"/runs/a", "/runs/a/b"} {
		if _, ok := cache.get(p); ok {
			t.Errorf("%s should be dropped with its ancestor", p)
		}
	}
	for _, p := range []string{"/runs", "/runsx"} {
		if _, ok := cache.get(p); !ok {
			t.Errorf("%s should survive", p)
		}
	}
}

func TestIDCache_Concurrent(t *testing.T) {
	cache := newIDCache()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := fmt.Sprintf("/runs/%d", i%10)
			cache.set(p, "id")
			cache.get(p)
			if i%3 == 0 {
				cache.delete("/runs")
			}
		}(i)
	}
	wg.Wait()
}

func BenchmarkEscapeQueryString(b *testing.B) {
	name := "report 'final' v2's copy"
	for i := 0; i < b.N; i++ {
		_ = escapeQueryString(name)
	}
}
