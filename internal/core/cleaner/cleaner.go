// Package cleaner walks a storage namespace depth-first and removes its
// content.
//
// For every directory level the cleaner removes the resident files first,
// then handles each subdirectory in listing order: optional permission
// repair, recursion, and (unless only files are requested) removal of the
// drained subdirectory. Each level returns the counts it verified itself;
// parents sum them with their own.
//
// Failures are governed by a single switch, Policy.AbortOnError. With it
// set, the first listing or removal failure unwinds the whole traversal and
// no partial counts are returned. Without it, failures are logged, reported
// and skipped. Permission repair failures are never fatal and an entry that
// is already gone counts as removed.
//
// With Policy.Workers above one, sibling subdirectories are cleaned
// concurrently. At most Workers adapter calls are in flight at any time,
// whatever the depth of the tree.
package cleaner

import (
	"context"
	"io/fs"

	"github.com/sourcegraph/conc/pool"

	"github.com/Ning0612/treeclean/internal/adapter"
	"github.com/Ning0612/treeclean/internal/domain"
	"github.com/Ning0612/treeclean/internal/logger"
	"github.com/Ning0612/treeclean/internal/progress"
)

// RepairMode is applied to directories that are not group/other writable
const RepairMode fs.FileMode = 0o775

// Cleaner removes the content of a storage namespace
type Cleaner struct {
	client   adapter.Adapter
	policy   domain.Policy
	log      logger.Logger
	reporter progress.Reporter
	// slots bounds in-flight adapter calls; nil when sequential
	slots chan struct{}
}

// Option configures a Cleaner
type Option func(*Cleaner)

// WithLogger sets the logger used for per-incident lines
func WithLogger(l logger.Logger) Option {
	return func(c *Cleaner) {
		if l != nil {
			c.log = l
		}
	}
}

// WithReporter sets the reporter receiving one event per incident
func WithReporter(r progress.Reporter) Option {
	return func(c *Cleaner) {
		if r != nil {
			c.reporter = r
		}
	}
}

// New creates a cleaner over client. The policy is copied and never changes.
func New(client adapter.Adapter, policy domain.Policy, opts ...Option) *Cleaner {
	policy.Exclude = append([]string(nil), policy.Exclude...)
	c := &Cleaner{
		client:   client,
		policy:   policy,
		log:      logger.Get(),
		reporter: progress.NullReporter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if policy.Workers > 1 {
		c.slots = make(chan struct{}, policy.Workers)
	}
	return c
}

// Policy returns the policy captured at construction
func (c *Cleaner) Policy() domain.Policy {
	return c.policy
}

// Clean removes everything below dirPath. dirPath itself is left in place;
// removing the root is the caller's responsibility.
//
// In abort mode the first failure is returned as *domain.ListError or
// *domain.DeleteError together with a zero result. Context cancellation is
// always returned as the context error.
func (c *Cleaner) Clean(ctx context.Context, dirPath string) (domain.CleanResult, error) {
	return c.clean(ctx, dirPath)
}

func (c *Cleaner) clean(ctx context.Context, dirPath string) (domain.CleanResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.CleanResult{}, err
	}

	c.log.Info("cleaning", "path", dirPath)

	files, dirs, err := c.list(ctx, dirPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.CleanResult{}, ctxErr
		}
		if domain.IsNotFound(err) {
			// Nothing left to remove: the subtree is already absent
			c.log.Debug("already absent", "path", dirPath)
			return domain.CleanResult{}, nil
		}
		if c.policy.AbortOnError {
			return domain.CleanResult{}, err
		}
		c.log.Error("could not list", "path", dirPath, "error", err)
		c.reporter.Report(progress.Event{
			Type: progress.EventFailed,
			Kind: domain.KindDirectory,
			Op:   domain.OpList,
			Path: dirPath,
			Err:  err,
		})
		return domain.CleanResult{}, nil
	}

	var result domain.CleanResult

	for _, file := range files {
		removed, err := c.remove(ctx, file, domain.OpUnlink)
		if err != nil {
			return domain.CleanResult{}, err
		}
		if removed {
			result.FilesRemoved++
		}
	}

	sub, err := c.cleanDirectories(ctx, dirs)
	if err != nil {
		return domain.CleanResult{}, err
	}
	result.Add(sub)

	return result, nil
}

// cleanDirectories handles the subdirectories of one level, sequentially or
// on a bounded pool when more than one worker is configured
func (c *Cleaner) cleanDirectories(ctx context.Context, dirs []domain.Entry) (domain.CleanResult, error) {
	var result domain.CleanResult

	if c.policy.Workers < 2 || len(dirs) < 2 {
		for _, dir := range dirs {
			sub, err := c.cleanDirectory(ctx, dir)
			if err != nil {
				return domain.CleanResult{}, err
			}
			result.Add(sub)
		}
		return result, nil
	}

	p := pool.NewWithResults[domain.CleanResult]().
		WithContext(ctx).
		WithMaxGoroutines(c.policy.Workers)
	if c.policy.AbortOnError {
		p = p.WithCancelOnError().WithFirstError()
	}

	for _, dir := range dirs {
		p.Go(func(ctx context.Context) (domain.CleanResult, error) {
			return c.cleanDirectory(ctx, dir)
		})
	}

	subs, err := p.Wait()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.CleanResult{}, ctxErr
		}
		return domain.CleanResult{}, err
	}
	for _, sub := range subs {
		result.Add(sub)
	}
	return result, nil
}

// cleanDirectory repairs, drains and then removes one subdirectory
func (c *Cleaner) cleanDirectory(ctx context.Context, dir domain.Entry) (domain.CleanResult, error) {
	if c.policy.RepairPermissions && !dir.GroupOrOtherWritable() {
		c.repair(ctx, dir)
	}

	result, err := c.clean(ctx, dir.Path)
	if err != nil {
		return domain.CleanResult{}, err
	}

	if !c.policy.OnlyFiles {
		removed, err := c.remove(ctx, dir, domain.OpRmdir)
		if err != nil {
			return domain.CleanResult{}, err
		}
		if removed {
			result.DirectoriesRemoved++
		}
	}

	return result, nil
}

// acquire takes an adapter call slot. Slots are never held across
// recursion, so nested levels cannot starve each other.
func (c *Cleaner) acquire(ctx context.Context) error {
	if c.slots == nil {
		return nil
	}
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cleaner) release() {
	if c.slots != nil {
		<-c.slots
	}
}

// repair makes a directory writable; failures only produce a warning
func (c *Cleaner) repair(ctx context.Context, dir domain.Entry) {
	if c.policy.DryRun {
		c.log.Info("would chmod", "path", dir.Path, "mode", RepairMode.String())
		c.reporter.Report(progress.Event{
			Type: progress.EventDryRun,
			Kind: domain.KindDirectory,
			Op:   domain.OpChmod,
			Path: dir.Path,
		})
		return
	}

	if err := c.acquire(ctx); err != nil {
		return
	}
	err := c.client.SetPermissions(ctx, dir.Path, RepairMode)
	c.release()

	if err != nil {
		rerr := &domain.PermissionRepairError{Path: dir.Path, Err: err}
		c.log.Warn("failed chmod", "path", dir.Path, "error", rerr)
		c.reporter.Report(progress.Event{
			Type: progress.EventRepairFailed,
			Kind: domain.KindDirectory,
			Op:   domain.OpChmod,
			Path: dir.Path,
			Err:  rerr,
		})
		return
	}

	c.log.Info("chmod", "path", dir.Path, "mode", RepairMode.String())
	c.reporter.Report(progress.Event{
		Type: progress.EventRepaired,
		Kind: domain.KindDirectory,
		Op:   domain.OpChmod,
		Path: dir.Path,
	})
}

// remove unlinks a file or removes a directory.
// It returns true when the entry is gone afterwards, and a non-nil error only
// when the run has to stop.
func (c *Cleaner) remove(ctx context.Context, entry domain.Entry, op string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if c.policy.DryRun {
		c.log.Info("would "+op, "path", entry.Path)
		c.reporter.Report(progress.Event{
			Type: progress.EventDryRun,
			Kind: entry.Kind,
			Op:   op,
			Path: entry.Path,
		})
		return true, nil
	}

	if err := c.acquire(ctx); err != nil {
		return false, err
	}
	var err error
	if op == domain.OpRmdir {
		err = c.client.RemoveDirectory(ctx, entry.Path)
	} else {
		err = c.client.Unlink(ctx, entry.Path)
	}
	c.release()

	if err == nil || domain.IsNotFound(err) {
		if err != nil {
			c.log.Debug("already absent", "path", entry.Path)
		}
		c.log.Info(op, "path", entry.Path)
		c.reporter.Report(progress.Event{
			Type: progress.EventRemoved,
			Kind: entry.Kind,
			Op:   op,
			Path: entry.Path,
		})
		return true, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	derr := &domain.DeleteError{Op: op, Path: entry.Path, Err: err}
	if c.policy.AbortOnError {
		return false, derr
	}

	c.log.Error("could not "+op, "path", entry.Path, "error", err)
	c.reporter.Report(progress.Event{
		Type: progress.EventFailed,
		Kind: entry.Kind,
		Op:   op,
		Path: entry.Path,
		Err:  derr,
	})
	return false, nil
}
