package cleaner

import (
	"context"
	"io"
	"path"

	"github.com/IGLOU-EU/go-wildcard"

	"github.com/Ning0612/treeclean/internal/domain"
	"github.com/Ning0612/treeclean/internal/progress"
)

// list issues one listing request and partitions the result into files and
// directories, preserving listing order. Other entries are dropped.
// The whole listing holds one adapter call slot.
func (c *Cleaner) list(ctx context.Context, dirPath string) (files, dirs []domain.Entry, err error) {
	if err := c.acquire(ctx); err != nil {
		return nil, nil, err
	}
	defer c.release()

	listing, err := c.client.OpenListing(ctx, dirPath)
	if err != nil {
		return nil, nil, &domain.ListError{Path: dirPath, Err: err}
	}
	defer listing.Close()

	for {
		entry, err := listing.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, &domain.ListError{Path: dirPath, Err: err}
		}

		if c.excluded(entry.Path) {
			c.log.Debug("excluded", "path", entry.Path)
			c.reporter.Report(progress.Event{
				Type: progress.EventExcluded,
				Kind: entry.Kind,
				Path: entry.Path,
			})
			continue
		}

		switch entry.Kind {
		case domain.KindFile:
			files = append(files, entry)
		case domain.KindDirectory:
			dirs = append(dirs, entry)
		}
	}

	return files, dirs, nil
}

// excluded reports whether p or its base name matches an exclude pattern
func (c *Cleaner) excluded(p string) bool {
	if len(c.policy.Exclude) == 0 {
		return false
	}
	base := path.Base(p)
	for _, pattern := range c.policy.Exclude {
		if wildcard.Match(pattern, p) || wildcard.Match(pattern, base) {
			return true
		}
	}
	return false
}
