package actionmeta

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
)

// Handler is the top-level API, 4.F: one instance per action, holding the
// phase flag, the precomputed input and fileset maps, the declared output
// set, the omitted set, and the output store 4.D defines. An executor
// creates one Handler with inputs/outputs/filesets already resolved, uses
// it through cache-check (read-only) and then through execution (where
// spawns inject or the handler discovers metadata from disk).
type Handler struct {
	executionMode atomic.Bool

	inputArtifactData map[Artifact]FileValue
	filesetMapping    map[string]FileValue
	outputs           map[Artifact]struct{}

	omitted sync.Map // Artifact -> struct{}

	outputStore *OutputStore

	fs                           Filesystem
	hashFunc                     HashFunc
	tsgm                         TimestampMonitor
	execRoot                     string
	concurrency                  int
	archivedTreeArtifactsEnabled bool
	outputPermissions            os.FileMode
	rateLimiter                  *infoRateLimiter
}

// New constructs a Handler for one action. inputs is the full set of
// input artifacts with their already-known metadata (never touched again
// after construction, per invariant 1: input artifacts never have values
// injected through output paths). outputs is the action's declared
// outputs. filesets maps each fileset artifact to its ordered symlink
// list, flattened once via 4.G.
func New(inputs map[Artifact]FileValue, outputs []Artifact, filesets map[Artifact][]FilesetEntry, opts ...Option) *Handler {
	h := &Handler{
		inputArtifactData: inputs,
		outputs:           make(map[Artifact]struct{}, len(outputs)),
		outputStore:       NewOutputStore(),
		fs:                NewOSFilesystem(afero.NewOsFs()),
		hashFunc:          defaultHashFunc,
		tsgm:              noopTimestampMonitor{},
		concurrency:       8,
		rateLimiter:       newInfoRateLimiter(time.Minute),
	}

	for _, o := range outputs {
		h.outputs[o] = struct{}{}
	}

	for _, opt := range opts {
		opt(h)
	}

	h.filesetMapping = buildFilesetMapping(h.execRoot, filesets, func(a Artifact) (FileValue, bool) {
		if v, ok := h.inputArtifactData[a]; ok {
			return v, true
		}
		return h.outputStore.GetFile(a)
	})

	return h
}

func (h *Handler) resolvePath(a Artifact) string {
	return filepath.Join(h.execRoot, a.ExecPath)
}

func (h *Handler) treeBuilderConfig() treeBuilderConfig {
	return treeBuilderConfig{
		Filesystem:                   h.fs,
		HashFunc:                     h.hashFunc,
		Tsgm:                         h.tsgm,
		ExecRoot:                     h.execRoot,
		ChmodEnabled:                 h.executionMode.Load() && h.outputPermissions != 0,
		OutputPermissions:            h.outputPermissions,
		ArchivedTreeArtifactsEnabled: h.archivedTreeArtifactsEnabled,
		Concurrency:                  h.concurrency,
		RateLimiter:                  h.rateLimiter,
	}
}

// isDeclaredOutput reports whether a is itself a declared output, or a
// tree child of one (invariant 2: a tree child's parent is always in the
// output set).
func (h *Handler) isDeclaredOutput(a Artifact) bool {
	if _, ok := h.outputs[a]; ok {
		return true
	}
	if a.IsTreeChild() {
		_, ok := h.outputs[a.Parent.AsTreeArtifact()]
		return ok
	}
	return false
}

// chmodIfNeeded applies mode to path only when the file's current
// permission bits differ from it, the short-circuit setPathPermissionsIfFile
// in Bazel's own handler performs to avoid a syscall on every single
// output of every action whose permissions already match.
func chmodIfNeeded(fs Filesystem, path string, current, desired os.FileMode) error {
	if desired == 0 || current.Perm() == desired.Perm() {
		return nil
	}
	return fs.Chmod(path, desired)
}

// GetInputMetadata implements 4.F.1. It never touches the filesystem.
func (h *Handler) GetInputMetadata(input ActionInput) (FileValue, error) {
	if !input.IsArtifact() {
		key := strings.TrimPrefix(strings.TrimPrefix(input.FilesetExecPath, h.execRoot), "/")
		v, ok := h.filesetMapping[key]
		if !ok {
			return FileValue{}, nil
		}
		return v, nil
	}

	v, ok := h.inputArtifactData[*input.Artifact]
	invariant(ok, "getInputMetadata: %s is not a declared input", *input.Artifact)
	if v.IsMissing() || v.IsOmitted() {
		return FileValue{}, newNotFoundError(*input.Artifact)
	}
	return v, nil
}

// GetOutputMetadata implements 4.F.2. found is false when a is not a
// declared output at all (directly or as a tree child): there is no
// metadata to report and no error, the output simply does not apply to
// this handler.
func (h *Handler) GetOutputMetadata(ctx context.Context, a Artifact) (value FileValue, found bool, err error) {
	if !h.isDeclaredOutput(a) {
		return FileValue{}, false, nil
	}

	switch {
	case a.IsMiddleman():
		if v, ok := h.outputStore.GetFile(a); ok {
			return v, true, nil
		}
		h.outputStore.PutFile(a, DefaultMiddleman)
		return DefaultMiddleman, true, nil

	case a.IsTreeArtifact():
		tv, err := h.GetTreeArtifactValue(ctx, a)
		if err != nil {
			return FileValue{}, true, err
		}
		return tv.Metadata(), true, nil

	case a.IsTreeChild():
		parent := a.Parent.AsTreeArtifact()
		tv, err := h.GetTreeArtifactValue(ctx, parent)
		if err != nil {
			return FileValue{}, true, err
		}
		v, ok := tv.Children[a.TreeChildRelativePath()]
		if !ok {
			return FileValue{}, true, newNotFoundError(a)
		}
		return v, true, nil

	default:
		return h.getPlainOutputMetadata(a)
	}
}

func (h *Handler) getPlainOutputMetadata(a Artifact) (FileValue, bool, error) {
	if v, ok := h.outputStore.GetFile(a); ok {
		if v.IsMissing() || v.IsOmitted() {
			return FileValue{}, true, newNotFoundError(a)
		}
		return v, true, nil
	}

	// Building and caching the value from the filesystem is unconditional:
	// the action cache checker calls getOutputMetadata during cache-check,
	// before prepareForActionExecution, expecting to see an existing
	// output's real metadata. Only the chmod below is phase-gated.
	path := h.resolvePath(a)
	statHint, err := h.fs.Stat(path, false)
	if err != nil {
		return FileValue{}, true, fmt.Errorf("statting output %s: %w", a, err)
	}
	if statHint != nil && statHint.Type == RegularFile && h.executionMode.Load() {
		if err := chmodIfNeeded(h.fs, path, statHint.Mode, h.outputPermissions); err != nil {
			return FileValue{}, true, fmt.Errorf("chmod output %s: %w", a, err)
		}
	}

	result, err := buildFileValue(h.fs, h.hashFunc, h.tsgm, h.execRoot, a, path, statHint, nil)
	if err != nil {
		return FileValue{}, true, err
	}

	h.outputStore.PutFile(a, result.Value)

	if result.Value.IsMissing() || result.Value.IsOmitted() {
		return FileValue{}, true, newNotFoundError(a)
	}
	return result.Value, true, nil
}

// SetDigestForVirtualArtifact implements 4.F.3.
func (h *Handler) SetDigestForVirtualArtifact(a Artifact, digest []byte) {
	invariant(a.IsMiddleman(), "setDigestForVirtualArtifact: %s is not a middleman", a)
	h.outputStore.PutFile(a, FileValue{Type: RegularFile, Digest: digest})
}

// GetTreeArtifactValue implements 4.F.4.
func (h *Handler) GetTreeArtifactValue(ctx context.Context, tree Artifact) (TreeValue, error) {
	invariant(tree.IsTreeArtifact(), "getTreeArtifactValue: %s is not a tree artifact", tree)

	if tv, ok := h.outputStore.GetTree(tree); ok {
		if tv.IsMissing() || tv.IsOmitted() {
			return TreeValue{}, newNotFoundError(tree)
		}
		return tv, nil
	}

	// Unconditional, same as getPlainOutputMetadata above: only the chmod
	// buildTreeValue performs internally is phase-gated, via
	// treeBuilderConfig's ChmodEnabled.
	tv, err := buildTreeValue(ctx, h.treeBuilderConfig(), tree, h.resolvePath(tree))
	if err != nil {
		return TreeValue{}, fmt.Errorf("building tree artifact value for %s: %w", tree, err)
	}

	h.outputStore.PutTree(tree, tv)

	if tv.IsMissing() || tv.IsOmitted() {
		return TreeValue{}, newNotFoundError(tree)
	}
	return tv, nil
}

// GetTreeArtifactChildren implements 4.F.5: a pure lookup that never
// triggers construction. An uncached tree reports no children rather than
// erroring.
func (h *Handler) GetTreeArtifactChildren(tree Artifact) map[string]FileValue {
	tv, ok := h.outputStore.GetTree(tree)
	if !ok || !tv.Exists() {
		return map[string]FileValue{}
	}
	return tv.Children
}

// ConstructMetadataForDigest implements 4.F.6: builds a FileValue from an
// already-known stat and digest without performing a new stat syscall.
// Does not write to the store.
func (h *Handler) ConstructMetadataForDigest(output Artifact, statNoFollow *StatResult, digest []byte) (FileValue, error) {
	invariant(h.executionMode.Load(), "constructMetadataForDigest: %s requires execution phase", output)
	invariant(!output.IsSymlinkOutput(), "constructMetadataForDigest: %s is a symlink output", output)
	invariant(statNoFollow != nil, "constructMetadataForDigest: %s requires a stat", output)
	invariant(digest != nil, "constructMetadataForDigest: %s requires a digest", output)

	result, err := buildFileValue(h.fs, h.hashFunc, h.tsgm, h.execRoot, output, h.resolvePath(output), statNoFollow, digest)
	if err != nil {
		return FileValue{}, err
	}
	return result.Value, nil
}

// InjectFile implements 4.F.7.
func (h *Handler) InjectFile(output Artifact, value FileValue) {
	invariant(h.executionMode.Load(), "injectFile: %s requires execution phase", output)
	invariant(!output.IsTreeArtifact() && !output.IsTreeChild(), "injectFile: %s is a tree artifact or tree child", output)
	invariant(h.isDeclaredOutput(output), "injectFile: %s is not a declared output", output)

	h.outputStore.PutFile(output, value)
}

// InjectTree implements 4.F.8.
func (h *Handler) InjectTree(output Artifact, tree TreeValue) {
	invariant(h.executionMode.Load(), "injectTree: %s requires execution phase", output)
	invariant(output.IsTreeArtifact(), "injectTree: %s is not a tree artifact", output)
	invariant(h.archivedTreeArtifactsEnabled == (tree.ArchivedRepresentation != nil),
		"injectTree: %s archived-representation configuration mismatch", output)

	h.outputStore.PutTree(output, tree)
}

// MarkOmitted implements 4.F.9. Marking a tree artifact omitted twice is
// tolerated (children can each report omission independently and fan in
// to the same parent); marking a plain output omitted twice is a
// programmer error.
func (h *Handler) MarkOmitted(output Artifact) {
	invariant(h.executionMode.Load(), "markOmitted: %s requires execution phase", output)

	_, alreadyOmitted := h.omitted.LoadOrStore(output, struct{}{})

	if output.IsTreeArtifact() {
		h.outputStore.PutTree(output, OmittedTree)
		return
	}

	invariant(!alreadyOmitted, "markOmitted: %s was already marked omitted", output)
	h.outputStore.PutFile(output, Omitted)
}

// ArtifactOmitted implements 4.F.10.
func (h *Handler) ArtifactOmitted(a Artifact) bool {
	_, ok := h.omitted.Load(a)
	return ok
}

// ResetOutputs implements 4.F.11.
func (h *Handler) ResetOutputs(outputs []Artifact) {
	invariant(h.executionMode.Load(), "resetOutputs requires execution phase")
	for _, a := range outputs {
		h.omitted.Delete(a)
		h.outputStore.Remove(a)
	}
}

// PrepareForActionExecution implements 4.F.12: the false→true phase
// transition, permitted exactly once.
func (h *Handler) PrepareForActionExecution() {
	invariant(h.executionMode.CompareAndSwap(false, true), "prepareForActionExecution: already in execution phase")
	h.outputStore.Clear()
}

// GetOutputStore implements 4.F.13.
func (h *Handler) GetOutputStore() *OutputStore {
	return h.outputStore
}

// Dump renders a diagnostic summary of the handler's state, mirroring the
// toString() override on the handler this package's domain was modeled
// on: useful when an action's output metadata doesn't match expectations
// and the investigation needs to see the whole picture at once.
func (h *Handler) Dump() string {
	return fmt.Sprintf(
		"Handler{executionMode: %v, outputs: %d, inputs: %d, filesetEntries: %d, store: %s}",
		h.executionMode.Load(), len(h.outputs), len(h.inputArtifactData), len(h.filesetMapping), h.outputStore.Dump(),
	)
}
