package progress

import (
	"sync"
	"time"

	"github.com/Ning0612/treeclean/internal/domain"
)

// Reporter receives one Event per incident of a clean run
// Implementations must be safe for concurrent use
type Reporter interface {
	Report(ev Event)
}

// EventType indicates what happened to an entry
type EventType int

const (
	EventRemoved EventType = iota
	EventFailed
	EventRepaired
	EventRepairFailed
	EventExcluded
	EventDryRun
)

// String returns the action name used in logs and the journal
func (t EventType) String() string {
	switch t {
	case EventRemoved:
		return "DELETE"
	case EventFailed:
		return "ERROR"
	case EventRepaired:
		return "CHMOD"
	case EventRepairFailed:
		return "CHMOD_ERROR"
	case EventExcluded:
		return "SKIP"
	case EventDryRun:
		return "DRY_RUN"
	default:
		return "UNKNOWN"
	}
}

// Event describes a single incident
type Event struct {
	Type EventType
	Kind domain.EntryKind
	// Op is list, unlink, rmdir or chmod
	Op   string
	Path string
	Err  error
	Time time.Time
}

// Callback is a function that receives events
type Callback func(ev Event)

// CallbackReporter serializes events into a callback
type CallbackReporter struct {
	mu       sync.Mutex
	callback Callback
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{callback: callback}
}

// Report implements Reporter
func (r *CallbackReporter) Report(ev Event) {
	if r.callback == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback(ev)
}

// Counts is a snapshot of a CountingReporter
type Counts struct {
	FilesRemoved       int
	DirectoriesRemoved int
	Failures           int
	Repairs            int
	RepairFailures     int
	Excluded           int
}

// CountingReporter tallies events by type
type CountingReporter struct {
	mu     sync.Mutex
	counts Counts
}

// NewCountingReporter creates an empty CountingReporter
func NewCountingReporter() *CountingReporter {
	return &CountingReporter{}
}

// Report implements Reporter
func (r *CountingReporter) Report(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case EventRemoved, EventDryRun:
		switch {
		case ev.Op == domain.OpChmod:
			r.counts.Repairs++
		case ev.Kind == domain.KindDirectory:
			r.counts.DirectoriesRemoved++
		default:
			r.counts.FilesRemoved++
		}
	case EventFailed:
		r.counts.Failures++
	case EventRepaired:
		r.counts.Repairs++
	case EventRepairFailed:
		r.counts.RepairFailures++
	case EventExcluded:
		r.counts.Excluded++
	}
}

// Counts returns the current tallies
func (r *CountingReporter) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

// MultiReporter fans events out to several reporters
type MultiReporter []Reporter

// Report implements Reporter
func (m MultiReporter) Report(ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ev)
		}
	}
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Report(ev Event) {}
