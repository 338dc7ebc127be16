package actionmeta

import (
	"path"
	"strings"
)

// FilesetEntry is one symlink an action's fileset output declares: name is
// the path the symlink should appear at within the fileset, relative to
// the fileset artifact's own root, and Target is the underlying artifact
// it resolves to.
type FilesetEntry struct {
	Name   string
	Target Artifact
}

// buildFilesetMapping flattens a fileset artifact → ordered symlink list
// mapping into a single exec-path → FileValue map, per 4.G. Entries whose
// target carries no digest are skipped: a fileset symlink to a directory
// or to a value the handler never managed to digest (e.g. it never made
// it into outputStore) cannot be served as input metadata, since
// getInputMetadata is a pure lookup with no room to fall back to the
// filesystem.
//
// This runs exactly once, at handler construction, against a snapshot of
// the output store current at that time; the result is immutable for the
// handler's lifetime, matching 4.G's "built once... immutable thereafter".
func buildFilesetMapping(execRoot string, filesets map[Artifact][]FilesetEntry, resolve func(Artifact) (FileValue, bool)) map[string]FileValue {
	mapping := make(map[string]FileValue)

	for fileset, entries := range filesets {
		for _, entry := range entries {
			value, ok := resolve(entry.Target)
			if !ok || !value.Exists() || value.Digest == nil {
				continue
			}

			key := filesetEntryExecPathKey(execRoot, fileset, entry.Name)
			mapping[key] = value
		}
	}

	return mapping
}

// filesetEntryExecPathKey computes the exec-root-relative key a fileset
// entry is addressed by: the fileset artifact's own exec path joined with
// the entry's declared name, cleaned so ".." components within a
// relative symlink name are resolved lexically. A name that climbs above
// the fileset's own directory yields a key outside it; it is not rejected.
func filesetEntryExecPathKey(execRoot string, fileset Artifact, name string) string {
	joined := path.Join(fileset.ExecPath, name)
	return strings.TrimPrefix(joined, "/")
}
