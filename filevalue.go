package actionmeta

import (
	"bytes"
	"fmt"
	"strings"
)

// fileValueBuildResult is buildFileValue's full result: the value itself
// plus the path bookkeeping 4.E's tree builder and the digest-cache
// locality optimization both need (digest the real path of a symlink, not
// the symlink path itself, so a shared target hits the same cache entry
// regardless of which symlink pointed at it).
type fileValueBuildResult struct {
	PathNoFollow string
	RealPath     string // non-empty only when the no-follow stat was a symlink
	StatNoFollow *StatResult
	Value        FileValue
}

// buildFileValue is the sole entry point for turning a path on disk into a
// FileValue, grounded on fileArtifactValueFromArtifact/
// fileArtifactValueFromStat in the source this package's domain was
// modeled on. statHint, when non-nil, is used instead of a fresh
// no-follow stat (callers that already statted the path, or were handed a
// stat by the executor, pass it here). injectedDigest, when non-nil, must agree with any
// digest independently observed from the filesystem.
func buildFileValue(fs Filesystem, hashFunc HashFunc, tsgm TimestampMonitor, execRoot string, artifact Artifact, path string, statHint *StatResult, injectedDigest []byte) (fileValueBuildResult, error) {
	result := fileValueBuildResult{PathNoFollow: path}

	if artifact.IsSymlinkOutput() {
		target, err := fs.Readlink(path)
		if err != nil {
			return result, fmt.Errorf("building symlink value for %s: %w", artifact, err)
		}
		h := hashFunc()
		h.Write([]byte(target))
		result.Value = FileValue{Type: Symlink, Digest: h.Sum(nil)}
		return result, nil
	}

	stat := statHint
	if stat == nil {
		s, err := fs.Stat(path, false)
		if err != nil {
			return result, fmt.Errorf("building file value for %s: %w", artifact, err)
		}
		stat = s
	}
	result.StatNoFollow = stat

	if stat == nil {
		result.Value = Missing
		return result, nil
	}

	if stat.Type != Symlink {
		value, err := fileValueFromStat(fs, hashFunc, tsgm, artifact, path, stat, injectedDigest)
		if err != nil {
			return result, err
		}
		result.Value = value
		return result, nil
	}

	realPath, err := fs.ReadlinkAndResolve(path)
	if err != nil {
		return result, fmt.Errorf("resolving %s for %s: %w", path, artifact, err)
	}
	result.RealPath = realPath

	realStat, err := fs.Stat(realPath, false)
	if err != nil {
		return result, fmt.Errorf("statting symlink target %s for %s: %w", realPath, artifact, err)
	}
	if realStat == nil {
		result.Value = Missing
		return result, nil
	}

	value, err := fileValueFromStat(fs, hashFunc, tsgm, artifact, realPath, realStat, injectedDigest)
	if err != nil {
		return result, err
	}
	if value.IsRemote {
		value.MaterializationExecPath = relativeToExecRoot(execRoot, realPath)
	}
	result.Value = value
	return result, nil
}

// fileValueFromStat constructs the terminal-shape FileValue for a
// already-resolved (non-symlink) stat. path is the path the content
// should be digested at if a digest must be computed: the real path when
// the artifact was reached through a symlink, the no-follow path
// otherwise, so the digest cache keys on shared content rather than on
// however many symlinks point at it.
func fileValueFromStat(fs Filesystem, hashFunc HashFunc, tsgm TimestampMonitor, artifact Artifact, path string, stat *StatResult, injectedDigest []byte) (FileValue, error) {
	switch stat.Type {
	case Directory:
		if tsgm != nil && !artifact.ConstantMetadata {
			tsgm.Notify(path, stat.Mtime)
		}
		return FileValue{Type: Directory, Mtime: stat.Mtime}, nil

	case RegularFile:
		digest := stat.EmbeddedDigest
		if digest == nil {
			if hint, err := fs.ReadXattrDigest(path); err == nil && hint != nil {
				digest = hint
			}
		}

		if injectedDigest != nil {
			if digest != nil && !bytes.Equal(digest, injectedDigest) {
				invariant(false, "digest mismatch for %s: filesystem digest %x disagrees with injected digest %x", artifact, digest, injectedDigest)
			}
			digest = injectedDigest
		}

		if digest == nil {
			computed, err := digestOf(fs, hashFunc, path, stat.Size)
			if err != nil {
				return FileValue{}, fmt.Errorf("digesting %s for %s: %w", path, artifact, err)
			}
			digest = computed
		}

		if tsgm != nil && !artifact.ConstantMetadata {
			tsgm.Notify(path, stat.Mtime)
		}

		return FileValue{
			Type:          RegularFile,
			Size:          stat.Size,
			Digest:        digest,
			ContentsProxy: stat.ContentsProxy,
			IsRemote:      stat.Remote,
		}, nil

	default:
		return FileValue{Type: Special, Size: stat.Size}, nil
	}
}

// relativeToExecRoot strips execRoot from path, for recording a
// materialization hint as an exec-root-relative path the way callers
// expect to compare it against other artifact paths.
func relativeToExecRoot(execRoot, path string) string {
	rel := strings.TrimPrefix(path, execRoot)
	return strings.TrimPrefix(rel, "/")
}
