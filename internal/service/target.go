package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ning0612/treeclean/internal/config"
	"github.com/Ning0612/treeclean/internal/domain"
)

// Target is a resolved clean target
type Target struct {
	// Endpoint is the configured endpoint, or a synthesized local one
	Endpoint domain.Endpoint
	// Transport backs Endpoint
	Transport domain.Transport
	// Path is the directory to clean, relative to the endpoint root
	Path string
	// Raw is the target as given on the command line
	Raw string
}

// Key identifies the target for locking
func (t Target) Key() string {
	if t.Endpoint.Name == "" {
		return "local:" + filepath.Join(t.Endpoint.Root, t.Path)
	}
	return t.Endpoint.Name + ":" + t.Path
}

// String implements fmt.Stringer
func (t Target) String() string {
	return t.Raw
}

// ParseTarget resolves raw into a Target.
// "<endpoint>:<path>" addresses a configured endpoint; anything else is a
// local filesystem path. A prefix that looks like an endpoint name but is
// not configured is an error, except for single-letter drive names and
// existing local paths such as "backup:2024".
func ParseTarget(cfg *config.Config, raw string) (Target, error) {
	if raw == "" {
		return Target{}, fmt.Errorf("empty target")
	}

	if name, rest, ok := strings.Cut(raw, ":"); ok && isEndpointName(name) {
		endpoint, err := cfg.GetEndpoint(name)
		if err == nil {
			transport, err := cfg.GetTransport(endpoint.Transport)
			if err != nil {
				return Target{}, err
			}
			return Target{
				Endpoint:  *endpoint,
				Transport: *transport,
				Path:      strings.TrimPrefix(rest, "/"),
				Raw:       raw,
			}, nil
		}
		if len(name) > 1 {
			if _, statErr := os.Stat(raw); statErr != nil {
				return Target{}, fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, name)
			}
		}
	}

	return localTarget(raw)
}

// localTarget roots a local adapter at the parent of raw so that a missing
// target is reported by the listing, not by adapter construction
func localTarget(raw string) (Target, error) {
	abs, err := filepath.Abs(config.ExpandPath(raw))
	if err != nil {
		return Target{}, err
	}

	root, base := filepath.Dir(abs), filepath.Base(abs)
	if root == abs {
		// Filesystem root
		base = ""
	}

	return Target{
		Endpoint:  domain.Endpoint{Root: root, Transport: string(domain.TransportLocal)},
		Transport: domain.Transport{Type: domain.TransportLocal},
		Path:      filepath.ToSlash(base),
		Raw:       raw,
	}, nil
}

func isEndpointName(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/\\.~")
}
