package actionmeta

import (
	"fmt"
	"sort"
	"time"
)

// FileType is the discriminant of a FileValue.
type FileType int

const (
	// Nonexistent marks a value for a declared artifact that was not
	// present on disk at construction time.
	Nonexistent FileType = iota
	RegularFile
	Directory
	Symlink
	Special
)

func (t FileType) String() string {
	switch t {
	case Nonexistent:
		return "nonexistent"
	case RegularFile:
		return "regular-file"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	case Special:
		return "special"
	default:
		return fmt.Sprintf("file-type(%d)", int(t))
	}
}

// sentinelKind distinguishes the reserved FileValue/TreeValue markers from
// an ordinary (possibly zero) value so that equality comparisons never
// mistake a real value for a sentinel.
type sentinelKind int

const (
	notSentinel sentinelKind = iota
	sentinelMissing
	sentinelOmitted
	sentinelDefaultMiddleman
)

// FileValue is an immutable description of one file's metadata, as
// observed either by statting the filesystem or by direct injection from
// an executor.
type FileValue struct {
	Type FileType

	// Size is meaningful for RegularFile.
	Size int64

	// Digest is present for RegularFile and Symlink; absent (nil) for
	// Directory.
	Digest []byte

	// ContentsProxy is a cheap stand-in for Digest, derived from
	// ctime+device+inode, used for fast unchanged checks when a digest
	// was not cheaply available from the filesystem.
	ContentsProxy ContentsProxy

	// Mtime is meaningful for Directory.
	Mtime time.Time

	// IsRemote marks content that lives only in a remote store but was
	// surfaced locally (typically as a symlink).
	IsRemote bool

	// MaterializationExecPath is set when IsRemote is true and the
	// content was surfaced as a symlink: the exec-root-relative path the
	// remote content was materialized at.
	MaterializationExecPath string

	sentinel sentinelKind
}

// ContentsProxy is a cheap identity derived from stat fields, used to
// detect an unchanged file without re-hashing its content.
type ContentsProxy struct {
	Ctime time.Time
	Dev   uint64
	Ino   uint64
}

func (p ContentsProxy) isZero() bool {
	return p.Ctime.IsZero() && p.Dev == 0 && p.Ino == 0
}

var (
	// Missing marks a declared artifact that is not present.
	Missing = FileValue{Type: Nonexistent, sentinel: sentinelMissing}
	// Omitted marks a declared artifact the action chose not to produce.
	Omitted = FileValue{Type: Nonexistent, sentinel: sentinelOmitted}
	// DefaultMiddleman is the value a middleman artifact carries until a
	// real digest is injected via SetDigestForVirtualArtifact.
	DefaultMiddleman = FileValue{sentinel: sentinelDefaultMiddleman}
)

// IsMissing reports whether v is the Missing sentinel.
func (v FileValue) IsMissing() bool { return v.sentinel == sentinelMissing }

// IsOmitted reports whether v is the Omitted sentinel.
func (v FileValue) IsOmitted() bool { return v.sentinel == sentinelOmitted }

// Exists reports whether v denotes a real, present artifact.
func (v FileValue) Exists() bool { return v.sentinel == notSentinel }

func (v FileValue) String() string {
	switch v.sentinel {
	case sentinelMissing:
		return "FileValue(missing)"
	case sentinelOmitted:
		return "FileValue(omitted)"
	case sentinelDefaultMiddleman:
		return "FileValue(default-middleman)"
	}
	return fmt.Sprintf("FileValue(%s size=%d remote=%v)", v.Type, v.Size, v.IsRemote)
}

// ArchivedEntry pairs a single-file archive artifact of a tree with its
// own metadata.
type ArchivedEntry struct {
	Artifact Artifact
	Value    FileValue
}

// TreeValue is the aggregate metadata for a tree artifact: the flattened
// set of regular files it contains, plus an optional archived
// representation.
type TreeValue struct {
	Parent Artifact

	// Children maps each tree-child artifact's relative path to its
	// FileValue. Only regular files are represented; subdirectories are
	// flattened away per spec invariant 4.
	Children map[string]FileValue

	// ArchivedRepresentation is set only when the handler was configured
	// with archived-tree-artifact support and the archive was present on
	// disk when the tree was built.
	ArchivedRepresentation *ArchivedEntry

	// AggregateDigest is a deterministic hash over Children in canonical
	// (sorted-path) order.
	AggregateDigest []byte

	// MaterializationExecPath mirrors FileValue.MaterializationExecPath,
	// populated when the tree directory itself is a symlink into
	// remote-materialized content.
	MaterializationExecPath string

	sentinel sentinelKind
}

var (
	// MissingTree marks a declared tree artifact whose root does not
	// exist, or is not a directory, at construction time.
	MissingTree = TreeValue{sentinel: sentinelMissing}
	// OmittedTree marks a declared tree artifact the action chose not
	// to produce.
	OmittedTree = TreeValue{sentinel: sentinelOmitted}
)

// IsMissing reports whether t is the MissingTree sentinel.
func (t TreeValue) IsMissing() bool { return t.sentinel == sentinelMissing }

// IsOmitted reports whether t is the OmittedTree sentinel.
func (t TreeValue) IsOmitted() bool { return t.sentinel == sentinelOmitted }

// Exists reports whether t denotes a real, present tree.
func (t TreeValue) Exists() bool { return t.sentinel == notSentinel }

// Metadata returns the aggregate FileValue an executor should treat this
// tree artifact's own metadata as: a regular-file-shaped value carrying
// the aggregate digest, so tree artifacts compose uniformly with plain
// outputs wherever a single FileValue is expected.
func (t TreeValue) Metadata() FileValue {
	if !t.Exists() {
		if t.IsOmitted() {
			return Omitted
		}
		return Missing
	}
	return FileValue{
		Type:                    RegularFile,
		Digest:                  t.AggregateDigest,
		IsRemote:                t.MaterializationExecPath != "",
		MaterializationExecPath: t.MaterializationExecPath,
	}
}

// ChildPaths returns the sorted relative paths of every child in t.
func (t TreeValue) ChildPaths() []string {
	paths := make([]string, 0, len(t.Children))
	for p := range t.Children {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (t TreeValue) String() string {
	switch t.sentinel {
	case sentinelMissing:
		return "TreeValue(missing)"
	case sentinelOmitted:
		return "TreeValue(omitted)"
	}
	return fmt.Sprintf("TreeValue(parent=%s children=%d)", t.Parent, len(t.Children))
}
