package actionmeta

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// fakeFilesystem is an in-memory Filesystem double used across this
// package's tests. afero.MemMapFs, used by the teacher's own tests,
// has no symlink or xattr support, so the symlink-cycle, remote-
// materialization, and fast-digest-hint test paths need a purpose-built
// double instead.
type fakeFilesystem struct {
	mu       sync.Mutex
	dirs     map[string]bool
	files    map[string][]byte
	symlinks map[string]string
	xattrs   map[string][]byte
	modes    map[string]os.FileMode
	mtimes   map[string]time.Time
	remotes  map[string]bool
}

// zeroTime is a convenient shared mtime for tests that don't care about
// timestamp values.
var zeroTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newFakeFilesystem() *fakeFilesystem {
	return &fakeFilesystem{
		dirs:     map[string]bool{},
		files:    map[string][]byte{},
		symlinks: map[string]string{},
		xattrs:   map[string][]byte{},
		modes:    map[string]os.FileMode{},
		mtimes:   map[string]time.Time{},
		remotes:  map[string]bool{},
	}
}

// markRemote flags path so a future Stat that lands on it reports Remote,
// the way a remote-backed action filesystem layer would for content it
// surfaced locally. The fake never reports a MaterializationHint.
func (f *fakeFilesystem) markRemote(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remotes[filepath.Clean(path)] = true
}

func (f *fakeFilesystem) mkdir(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[filepath.Clean(path)] = true
}

func (f *fakeFilesystem) writeFile(path string, content []byte, mode os.FileMode, mtime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = filepath.Clean(path)
	f.files[path] = content
	f.modes[path] = mode
	f.mtimes[path] = mtime
}

func (f *fakeFilesystem) symlink(path, target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symlinks[filepath.Clean(path)] = target
}

func (f *fakeFilesystem) setXattrDigest(path string, digest []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.xattrs[filepath.Clean(path)] = digest
}

func (f *fakeFilesystem) Stat(path string, followSymlinks bool) (*StatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path = filepath.Clean(path)

	if followSymlinks {
		visited := map[string]bool{}
		for {
			if visited[path] {
				return nil, &SymlinkCycleError{Path: path}
			}
			visited[path] = true
			target, isLink := f.symlinks[path]
			if !isLink {
				break
			}
			path = resolveRelative(path, target)
		}
	}

	if target, ok := f.symlinks[path]; ok {
		return &StatResult{Type: Symlink, IsSymlink: true, Mode: os.ModeSymlink | 0o777, Size: int64(len(target))}, nil
	}
	if f.dirs[path] {
		return &StatResult{Type: Directory, Mode: os.ModeDir | 0o755, Mtime: f.mtimes[path]}, nil
	}
	if content, ok := f.files[path]; ok {
		return &StatResult{
			Type:   RegularFile,
			Size:   int64(len(content)),
			Mode:   f.modes[path],
			Mtime:  f.mtimes[path],
			Remote: f.remotes[path],
		}, nil
	}
	return nil, nil
}

func resolveRelative(base, target string) string {
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(base), target))
}

func (f *fakeFilesystem) ReadlinkAndResolve(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	original := filepath.Clean(path)
	current := original
	visited := map[string]bool{}
	for {
		target, isLink := f.symlinks[current]
		if !isLink {
			break
		}
		if visited[current] {
			return "", &SymlinkCycleError{Path: original}
		}
		visited[current] = true
		current = resolveRelative(current, target)
		if current == original {
			return "", &SymlinkCycleError{Path: original}
		}
	}
	return current, nil
}

func (f *fakeFilesystem) Readlink(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.symlinks[filepath.Clean(path)]
	if !ok {
		return "", fmt.Errorf("readlink %s: not a symlink", path)
	}
	return target, nil
}

func (f *fakeFilesystem) Chmod(path string, mode os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = filepath.Clean(path)
	if _, ok := f.files[path]; !ok {
		if !f.dirs[path] {
			return fmt.Errorf("chmod %s: no such file", path)
		}
	}
	f.modes[path] = mode
	return nil
}

func (f *fakeFilesystem) Open(path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (f *fakeFilesystem) ReadXattrDigest(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.xattrs[filepath.Clean(path)], nil
}

func (f *fakeFilesystem) VisitTreeInParallel(ctx context.Context, root string, concurrency int, visit VisitFunc) error {
	root = filepath.Clean(root)

	f.mu.Lock()
	var relPaths []string
	for p := range f.files {
		if rel := relUnder(root, p); rel != "" {
			relPaths = append(relPaths, rel)
		}
	}
	for p := range f.dirs {
		if rel := relUnder(root, p); rel != "" {
			relPaths = append(relPaths, rel)
		}
	}
	for p := range f.symlinks {
		if rel := relUnder(root, p); rel != "" {
			relPaths = append(relPaths, rel)
		}
	}
	f.mu.Unlock()

	sort.Strings(relPaths)

	for _, rel := range relPaths {
		select {
		case <-ctx.Done():
			return ErrInterrupted
		default:
		}

		full := filepath.Join(root, rel)

		f.mu.Lock()
		_, isSymlink := f.symlinks[full]
		_, isDir := f.dirs[full]
		f.mu.Unlock()

		kind := DirentFile
		switch {
		case isSymlink:
			kind = DirentSymlink
		case isDir:
			kind = DirentDirectory
		}

		if err := visit(rel, kind); err != nil {
			return err
		}
	}
	return nil
}

// relUnder returns p's path relative to root if p is a strict descendant
// of root, or "" otherwise.
func relUnder(root, p string) string {
	if p == root {
		return ""
	}
	prefix := root + string(filepath.Separator)
	if !strings.HasPrefix(p, prefix) {
		return ""
	}
	return strings.TrimPrefix(p, prefix)
}
