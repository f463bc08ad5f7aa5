package gdrive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// fakePageLimit forces paging on small trees
const fakePageLimit = 2

var (
	parentRe = regexp.MustCompile(`'([^']+)' in parents`)
	nameRe   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
)

type fakeFile struct {
	id       string
	name     string
	parent   string
	folder   bool
	readOnly bool
	data     string
}

// fakeDrive serves the subset of the Drive v3 REST API the adapter uses
type fakeDrive struct {
	mu      sync.Mutex
	files   map[string]*fakeFile
	order   []string
	nextID  int
	deletes []string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{files: make(map[string]*fakeFile)}
}

func (f *fakeDrive) add(parent, name string, folder bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "id" + strconv.Itoa(f.nextID)
	f.files[id] = &fakeFile{id: id, name: name, parent: parent, folder: folder, data: "abc"}
	f.order = append(f.order, id)
	return id
}

func (f *fakeDrive) exists(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[id]
	return ok
}

func (f *fakeDrive) toJSON(file *fakeFile) map[string]any {
	mime := "text/plain"
	if file.folder {
		mime = MimeTypeFolder
	}
	return map[string]any{
		"id":           file.id,
		"name":         file.name,
		"mimeType":     mime,
		"size":         strconv.Itoa(len(file.data)),
		"modifiedTime": "2024-01-02T03:04:05Z",
		"md5Checksum":  "900150983cd24fb0d6963f7d28e17f72",
		"capabilities": map[string]any{
			"canAddChildren": file.folder && !file.readOnly,
			"canDelete":      !file.readOnly,
		},
	}
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found","errors":[{"reason":"notFound"}]}}`))
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/files")
	id = strings.TrimPrefix(id, "/")

	switch {
	case r.Method == http.MethodGet && id == "":
		f.list(w, r)
	case r.Method == http.MethodGet && id == "root":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "root", "name": "My Drive", "mimeType": MimeTypeFolder})
	case r.Method == http.MethodGet:
		file, ok := f.files[id]
		if !ok {
			writeNotFound(w)
			return
		}
		_ = json.NewEncoder(w).Encode(f.toJSON(file))
	case r.Method == http.MethodDelete:
		if _, ok := f.files[id]; !ok {
			writeNotFound(w)
			return
		}
		delete(f.files, id)
		f.deletes = append(f.deletes, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unsupported", http.StatusBadRequest)
	}
}

func (f *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	parent := ""
	if m := parentRe.FindStringSubmatch(q); m != nil {
		parent = m[1]
	}
	name, byName := "", false
	if m := nameRe.FindStringSubmatch(q); m != nil {
		name = strings.ReplaceAll(strings.ReplaceAll(m[1], "\\'", "'"), "\\\\", "\\")
		byName = true
	}
	foldersOnly := strings.Contains(q, "mimeType = '"+MimeTypeFolder+"'")

	var matches []*fakeFile
	for _, fid := range f.order {
		file, ok := f.files[fid]
		if !ok || file.parent != parent {
			continue
		}
		if byName && file.name != name {
			continue
		}
		if foldersOnly && !file.folder {
			continue
		}
		matches = append(matches, file)
	}

	limit := fakePageLimit
	if ps, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && ps < limit {
		limit = ps
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))

	end := offset + limit
	next := ""
	if end < len(matches) {
		next = strconv.Itoa(end)
	} else {
		end = len(matches)
	}

	page := make([]map[string]any, 0, end-offset)
	for _, file := range matches[offset:end] {
		page = append(page, f.toJSON(file))
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"files": page, "nextPageToken": next})
}

// newFakeAdapter starts a fake Drive server and returns an adapter rooted at root
func newFakeAdapter(t *testing.T, fake *fakeDrive, root string) *Adapter {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	service, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("failed to create Drive service: %v", err)
	}
	return NewWithService(service, root)
}
