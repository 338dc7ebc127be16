package actionmeta

// ActionInput is what getInputMetadata accepts: either a declared input
// artifact, or a fileset symlink entry addressed by its exec-root-relative
// path. Only one of the two is ever set.
type ActionInput struct {
	Artifact        *Artifact
	FilesetExecPath string
}

// InputArtifact wraps a declared input artifact as an ActionInput.
func InputArtifact(a Artifact) ActionInput {
	return ActionInput{Artifact: &a}
}

// InputFilesetEntry wraps a fileset-relative exec path as an ActionInput.
func InputFilesetEntry(execPath string) ActionInput {
	return ActionInput{FilesetExecPath: execPath}
}

// IsArtifact reports whether i names a declared artifact rather than a
// fileset entry.
func (i ActionInput) IsArtifact() bool { return i.Artifact != nil }
