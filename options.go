package actionmeta

import (
	"os"
	"time"
)

// Option configures a Handler at construction, following the functional
// options pattern the teacher uses for its own Cache construction.
type Option func(*Handler)

// WithFilesystem overrides the default OS-backed Filesystem. Tests use
// this to substitute an in-memory double.
func WithFilesystem(fs Filesystem) Option {
	return func(h *Handler) {
		h.fs = fs
	}
}

// WithHashFunc overrides the default BLAKE3 digest function, e.g. with
// actionmeta.XxHashFunc for builds that don't need cryptographic
// collision resistance.
func WithHashFunc(fn HashFunc) Option {
	return func(h *Handler) {
		h.hashFunc = fn
	}
}

// WithTimestampMonitor wires a TimestampMonitor to observe every mtime the
// handler reads off the filesystem. Without this option, mtimes are
// observed but discarded.
func WithTimestampMonitor(tsgm TimestampMonitor) Option {
	return func(h *Handler) {
		h.tsgm = tsgm
	}
}

// WithArchivedTreeArtifacts enables looking for a single-file archive
// representation alongside every tree artifact built from the filesystem,
// in either phase.
func WithArchivedTreeArtifacts(enabled bool) Option {
	return func(h *Handler) {
		h.archivedTreeArtifactsEnabled = enabled
	}
}

// WithOutputPermissions sets the permission bits applied to outputs
// (files and tree members alike) during execution-phase metadata
// construction. The zero value disables chmodding entirely.
func WithOutputPermissions(mode os.FileMode) Option {
	return func(h *Handler) {
		h.outputPermissions = mode
	}
}

// WithExecRoot sets the root every artifact's ExecPath is resolved
// against. Required for any handler that touches the filesystem; a
// handler serving only getInputMetadata/artifactOmitted lookups can omit
// it.
func WithExecRoot(execRoot string) Option {
	return func(h *Handler) {
		h.execRoot = execRoot
	}
}

// WithConcurrency bounds the number of goroutines a single tree walk may
// run concurrently.
func WithConcurrency(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.concurrency = n
		}
	}
}

// WithArchivedRepresentationLogInterval overrides how often the
// "archived representation missing" notice may repeat for the same tree
// artifact. The default is one minute.
func WithArchivedRepresentationLogInterval(interval time.Duration) Option {
	return func(h *Handler) {
		h.rateLimiter = newInfoRateLimiter(interval)
	}
}
