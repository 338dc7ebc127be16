/*
Package actionmeta provides the per-action filesystem metadata handler used
by a build engine to resolve, cache, produce, and validate digests, sizes,
types, and remote-materialization hints for an action's declared inputs and
outputs.

# Overview

A Handler is the authoritative source of metadata during two phases of an
action's lifecycle: a cache-check phase, during which input metadata is
served from pre-populated input data and output metadata is read from disk
without chmodding or injecting anything, and an execution phase, during
which output metadata is either injected
directly by the executor or discovered by statting and digesting freshly
produced files.

# Two-Phase Lifecycle

A Handler starts in cache-check mode. Calling PrepareForActionExecution
clears any output metadata accumulated during cache-check and switches the
handler into execution mode, which it never leaves:

	h := actionmeta.New(inputs, outputs, filesets, actionmeta.WithFilesystem(fs))

	// cache-check phase: read-only, no filesystem mutation permitted
	_, _, err := h.GetOutputMetadata(ctx, out)

	h.PrepareForActionExecution()

	// execution phase: injection and filesystem discovery both allowed
	h.InjectFile(out, value)

# Artifact Shapes

actionmeta models five artifact shapes: plain files, unresolved symlink
outputs, tree artifacts (declared directories whose contents are discovered
after execution), tree children (named files beneath a tree artifact), and
middleman artifacts (opaque aggregation markers). Constant metadata is a
property of a plain file, not a separate shape.

# Filesystem Abstraction

All filesystem access goes through the Filesystem interface, allowing
tests to substitute an in-memory double. The default implementation layers
golang.org/x/sys/unix symlink and xattr operations on top of an afero.Fs
for the portable subset of the work.

# Concurrency

A Handler is shared across the goroutines that execute an action's spawns
and its post-spawn verification. Tree construction parallelizes its own
directory walk with a bounded worker pool. Two concurrent calls that both
miss the output store for the same artifact may both touch the filesystem;
both converge on an equal value, since value construction is a pure
function of filesystem state at the moment of the call.

# Error Handling

actionmeta distinguishes five error shapes: NotFoundError (a lookup
resolved to a missing or omitted sentinel), wrapped filesystem errors
passed through from the Filesystem implementation, SymlinkCycleError,
InvariantViolationError (programmer error — phase guard violations, double
omission, digest conflicts), which is raised as a panic value rather than
returned, and the ErrInterrupted sentinel for cooperative cancellation.
Use errors.As/errors.Is to discriminate the returned errors.
*/
package actionmeta
