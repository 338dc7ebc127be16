package actionmeta

import (
	"sync"
	"time"
)

// TimestampMonitor is notified of every mtime the file-value factory (4.C)
// observes while building a regular-file or directory value, mirroring
// Bazel's TimestampGranularityMonitor: filesystems report mtimes at
// whatever granularity the underlying clock/filesystem supports, and a
// build that writes a file and immediately checks it for up-to-dateness
// needs to know the coarsest granularity it actually saw in order to avoid
// mistaking "wrote and checked within the same tick" for "unchanged".
//
// Notify is never called for a constant-metadata artifact: its mtime is by
// definition not meaningful for up-to-dateness decisions.
type TimestampMonitor interface {
	Notify(path string, mtime time.Time)
}

// TimestampGranularityMonitor is the TimestampMonitor this package
// provides for WithTimestampMonitor (a Handler built without that option
// uses a no-op monitor): it tracks the largest mtime observed so far, which
// is what a build needs to decide how long to wait before trusting a
// subsequent stat's mtime.
type TimestampGranularityMonitor struct {
	mu      sync.Mutex
	largest time.Time
}

// NewTimestampGranularityMonitor returns an empty monitor.
func NewTimestampGranularityMonitor() *TimestampGranularityMonitor {
	return &TimestampGranularityMonitor{}
}

func (m *TimestampGranularityMonitor) Notify(path string, mtime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mtime.After(m.largest) {
		m.largest = mtime
	}
}

// LargestObservedMtime returns the latest mtime Notify has seen.
func (m *TimestampGranularityMonitor) LargestObservedMtime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.largest
}

// noopTimestampMonitor is used when a Handler is constructed without
// WithTimestampMonitor, so call sites never need a nil check.
type noopTimestampMonitor struct{}

func (noopTimestampMonitor) Notify(string, time.Time) {}
