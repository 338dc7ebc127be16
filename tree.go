package actionmeta

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
)

// archivedRepresentationSuffix names the sibling file a tree artifact's
// single-file archive representation is expected to live at, relative to
// the tree artifact's own path: "bazel-out/k8-fastbuild/bin/gen" gets a
// matching "bazel-out/k8-fastbuild/bin/gen.tree-archive".
const archivedRepresentationSuffix = ".tree-archive"

func archivedRepresentationPath(treePath string) string {
	return treePath + archivedRepresentationSuffix
}

// treeBuilderConfig carries everything buildTreeValue needs from the
// handler without the tree builder depending on the Handler type itself —
// the same separation 4.E and 4.F have in the contract: the builder is a
// standalone function the handler orchestrates, not a method entangled
// with handler state.
type treeBuilderConfig struct {
	Filesystem                   Filesystem
	HashFunc                     HashFunc
	Tsgm                         TimestampMonitor
	ExecRoot                     string
	ChmodEnabled                 bool
	OutputPermissions            os.FileMode
	ArchivedTreeArtifactsEnabled bool
	Concurrency                  int
	RateLimiter                  *infoRateLimiter
}

// buildTreeValue implements 4.E: stat the parent, chmod it if execution
// phase calls for it, walk it in parallel, and fold every regular file it
// contains into a TreeValue. A missing or non-directory root is not an
// error: it yields MissingTree, same as a missing plain output yields
// Missing.
func buildTreeValue(ctx context.Context, cfg treeBuilderConfig, parent Artifact, parentPath string) (TreeValue, error) {
	rootStat, err := cfg.Filesystem.Stat(parentPath, true)
	if err != nil {
		return TreeValue{}, fmt.Errorf("statting tree root %s: %w", parent, err)
	}
	if rootStat == nil || rootStat.Type != Directory {
		if rootStat != nil && rootStat.Type == RegularFile && cfg.ChmodEnabled {
			// A spawn that was supposed to produce a directory produced a
			// plain file instead; chmod it defensively so a subsequent
			// stat of the (still wrong) output isn't blocked by
			// permissions, even though the tree itself is reported
			// missing.
			_ = cfg.Filesystem.Chmod(parentPath, cfg.OutputPermissions)
		}
		return MissingTree, nil
	}

	if cfg.ChmodEnabled {
		if err := cfg.Filesystem.Chmod(parentPath, cfg.OutputPermissions); err != nil {
			return TreeValue{}, fmt.Errorf("chmod tree root %s: %w", parent, err)
		}
	}

	var remoteSeen atomic.Bool
	builder := &treeValueBuilder{
		parent:   parent,
		children: make(map[string]FileValue),
	}

	visit := func(relPath string, kind DirentType) error {
		fullPath := filepath.Join(parentPath, relPath)

		if kind != DirentSymlink && cfg.ChmodEnabled {
			if err := cfg.Filesystem.Chmod(fullPath, cfg.OutputPermissions); err != nil {
				return fmt.Errorf("chmod %s: %w", fullPath, err)
			}
		}

		if kind == DirentDirectory {
			return nil
		}

		childArtifact := NewTreeChild(parent, relPath)
		result, err := buildFileValue(cfg.Filesystem, cfg.HashFunc, cfg.Tsgm, cfg.ExecRoot, childArtifact, fullPath, nil, nil)
		if err != nil {
			return fmt.Errorf("building value for %s beneath tree artifact %s: %w", relPath, parent, err)
		}
		if result.Value.IsMissing() {
			return fmt.Errorf("tree artifact %s: child %s disappeared during tree construction", parent, relPath)
		}

		if result.Value.IsRemote {
			remoteSeen.Store(true)
		}

		builder.mu.Lock()
		builder.children[relPath] = result.Value
		builder.mu.Unlock()
		return nil
	}

	if err := cfg.Filesystem.VisitTreeInParallel(ctx, parentPath, cfg.Concurrency, visit); err != nil {
		return TreeValue{}, fmt.Errorf("walking tree artifact %s: %w", parent, err)
	}

	tree := TreeValue{
		Parent:   parent,
		Children: builder.children,
	}

	if cfg.ArchivedTreeArtifactsEnabled {
		archivePath := archivedRepresentationPath(parentPath)
		archiveStat, err := cfg.Filesystem.Stat(archivePath, false)
		if err != nil {
			return TreeValue{}, fmt.Errorf("statting archived representation for %s: %w", parent, err)
		}
		if archiveStat != nil {
			archiveArtifact := Artifact{
				ExecPath:         parent.ExecPath + archivedRepresentationSuffix,
				RootRelativePath: parent.RootRelativePath + archivedRepresentationSuffix,
				Root:             parent.Root,
				Shape:            PlainFile,
			}
			result, err := buildFileValue(cfg.Filesystem, cfg.HashFunc, cfg.Tsgm, cfg.ExecRoot, archiveArtifact, archivePath, archiveStat, nil)
			if err != nil {
				return TreeValue{}, fmt.Errorf("building archived representation value for %s: %w", parent, err)
			}
			tree.ArchivedRepresentation = &ArchivedEntry{Artifact: archiveArtifact, Value: result.Value}
		} else if cfg.RateLimiter != nil {
			cfg.RateLimiter.Info(parent.ExecPath, "actionmeta: no archived representation found for tree artifact %s", parent)
		}
	}

	tree.AggregateDigest = aggregateTreeDigest(cfg.HashFunc, tree.Children)

	if remoteSeen.Load() {
		if noFollowStat, err := cfg.Filesystem.Stat(parentPath, false); err == nil &&
			noFollowStat != nil && noFollowStat.IsSymlink {
			if noFollowStat.MaterializationHint != "" {
				tree.MaterializationExecPath = noFollowStat.MaterializationHint
			} else if realPath, err := cfg.Filesystem.ReadlinkAndResolve(parentPath); err == nil {
				tree.MaterializationExecPath = relativeToExecRoot(cfg.ExecRoot, realPath)
			}
		}
	}

	return tree, nil
}

// treeValueBuilder accumulates children under a single mutex, per 4.E.5's
// "under a builder mutex" instruction — one lock for the whole accumulation
// rather than a per-key lock, because the map write itself is cheap and the
// expensive work (stat, digest) already happened outside the critical
// section.
type treeValueBuilder struct {
	mu       sync.Mutex
	parent   Artifact
	children map[string]FileValue
}

// aggregateTreeDigest folds every child's digest into one digest over the
// tree, in sorted-path order so the result is independent of the
// concurrent walk's arbitrary completion order.
func aggregateTreeDigest(hashFunc HashFunc, children map[string]FileValue) []byte {
	paths := make([]string, 0, len(children))
	for p := range children {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := hashFunc()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write(children[p].Digest)
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}
