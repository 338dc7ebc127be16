package actionmeta

import "fmt"

// Shape distinguishes the five ways an Artifact can relate to the
// filesystem. It is the Go stand-in for the source material's predicate
// dispatch (isTreeArtifact, isMiddlemanArtifact, ...): a tagged variant
// matched exhaustively rather than tested with a grab-bag of booleans.
type Shape int

const (
	// PlainFile is an ordinary declared input or output file.
	PlainFile Shape = iota
	// SymlinkOutput is an unresolved symlink output: its value is built
	// from readlink, never from a stat.
	SymlinkOutput
	// Middleman is an opaque aggregation marker with no filesystem
	// representation of its own.
	Middleman
	// TreeArtifactShape is a declared output directory whose file list
	// is discovered after execution.
	TreeArtifactShape
	// TreeChild is a named file beneath a TreeArtifactShape artifact.
	TreeChild
)

func (s Shape) String() string {
	switch s {
	case PlainFile:
		return "plain-file"
	case SymlinkOutput:
		return "symlink-output"
	case Middleman:
		return "middleman"
	case TreeArtifactShape:
		return "tree-artifact"
	case TreeChild:
		return "tree-child"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Artifact is an opaque build-system identity for a file or directory,
// decoupled from any particular on-disk path resolution. Artifacts are
// value-equal by identity and own no filesystem state; two Artifact values
// with the same fields denote the same artifact.
//
// TreeChild carries its parent by value (Parent), not by pointer, per the
// design note against building a shared pointer cycle between a tree
// artifact and its children.
type Artifact struct {
	// ExecPath is the path relative to the build-specific exec root.
	ExecPath string
	// RootRelativePath is the path relative to Root.
	RootRelativePath string
	// Root is the root this artifact is rooted under (a source root or an
	// output tree root); opaque beyond equality comparison.
	Root string
	// Shape is this artifact's kind.
	Shape Shape
	// ConstantMetadata marks a PlainFile whose mtime is intentionally
	// ignored for up-to-dateness checks. Meaningless for other shapes.
	ConstantMetadata bool
	// Parent is meaningful only when Shape == TreeChild: the tree
	// artifact this file lives beneath. It is a value, not a pointer, so
	// Artifact stays comparable and usable as a map key — a shared
	// pointer back-reference would make two artifacts that denote the
	// same tree child compare unequal whenever they were constructed
	// from separately allocated parent records.
	Parent TreeRef
}

// TreeRef identifies a tree artifact without embedding a full Artifact
// value recursively; it carries just enough to look the parent back up in
// a Handler's output set.
type TreeRef struct {
	ExecPath         string
	RootRelativePath string
	Root             string
}

func (t TreeRef) String() string {
	return t.ExecPath
}

// AsTreeArtifact constructs the Artifact value this reference points to.
func (t TreeRef) AsTreeArtifact() Artifact {
	return Artifact{
		ExecPath:         t.ExecPath,
		RootRelativePath: t.RootRelativePath,
		Root:             t.Root,
		Shape:            TreeArtifactShape,
	}
}

func (a Artifact) String() string {
	return a.ExecPath
}

// IsTreeArtifact reports whether a is a declared output directory.
func (a Artifact) IsTreeArtifact() bool { return a.Shape == TreeArtifactShape }

// IsTreeChild reports whether a is a file beneath a declared output
// directory.
func (a Artifact) IsTreeChild() bool { return a.Shape == TreeChild }

// IsMiddleman reports whether a is an opaque aggregation marker.
func (a Artifact) IsMiddleman() bool { return a.Shape == Middleman }

// IsSymlinkOutput reports whether a is an unresolved symlink output.
func (a Artifact) IsSymlinkOutput() bool { return a.Shape == SymlinkOutput }

// TreeChildRelativePath returns the path of a tree child relative to its
// parent tree artifact's root. Only meaningful when a.IsTreeChild().
func (a Artifact) TreeChildRelativePath() string {
	if len(a.ExecPath) > len(a.Parent.ExecPath)+1 {
		return a.ExecPath[len(a.Parent.ExecPath)+1:]
	}
	return ""
}

// NewTreeChild constructs the Artifact for a file at relPath beneath the
// given tree artifact.
func NewTreeChild(parent Artifact, relPath string) Artifact {
	invariant(parent.IsTreeArtifact(), "NewTreeChild: %s is not a tree artifact", parent)
	return Artifact{
		ExecPath:         parent.ExecPath + "/" + relPath,
		RootRelativePath: parent.RootRelativePath + "/" + relPath,
		Root:             parent.Root,
		Shape:            TreeChild,
		Parent: TreeRef{
			ExecPath:         parent.ExecPath,
			RootRelativePath: parent.RootRelativePath,
			Root:             parent.Root,
		},
	}
}
