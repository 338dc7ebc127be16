package actionmeta

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// DirentType classifies an entry encountered by VisitTreeInParallel.
type DirentType int

const (
	DirentFile DirentType = iota
	DirentDirectory
	DirentSymlink
	DirentSpecial
)

// StatResult is the filesystem's view of one path, carrying everything the
// file-value factory (4.C) needs without a second syscall.
type StatResult struct {
	Type          FileType
	Size          int64
	Mtime         time.Time
	Mode          os.FileMode
	IsSymlink     bool
	ContentsProxy ContentsProxy
	// EmbeddedDigest is set only when the filesystem layer itself can
	// supply a digest cheaply as part of the stat (e.g. a remote-backed
	// action filesystem that already knows the content hash). nil
	// otherwise.
	EmbeddedDigest []byte
	// Remote marks content whose EmbeddedDigest came from a remote store
	// rather than being computed locally.
	Remote bool
	// MaterializationHint is the exec-root-relative path a remote-backed
	// filesystem layer reports content was (or would be) materialized at,
	// when it knows one directly. Empty when the filesystem has no such
	// hint, in which case callers fall back to the resolved real path.
	MaterializationHint string
}

// VisitFunc is called once per descendant during a tree walk.
// relPath is relative to the walked root. The visitor may be called
// concurrently from multiple goroutines and must synchronize its own
// state.
type VisitFunc func(relPath string, kind DirentType) error

// Filesystem is the seam between actionmeta's domain logic and the actual
// filesystem, so tests can substitute an in-memory double and so the
// symlink/xattr operations afero.Fs cannot express have exactly one home.
type Filesystem interface {
	// Stat returns nil, nil if path does not exist.
	Stat(path string, followSymlinks bool) (*StatResult, error)
	// ReadlinkAndResolve fully resolves path (which must be a symlink) to
	// its real path, detecting cycles.
	ReadlinkAndResolve(path string) (string, error)
	// Readlink returns the single-level, unresolved target of the symlink
	// at path, for symlink-output artifacts whose value IS the link text
	// rather than anything the link points at.
	Readlink(path string) (string, error)
	// Chmod is best-effort and idempotent.
	Chmod(path string, mode os.FileMode) error
	// Open opens path for reading file content (for digesting).
	Open(path string) (io.ReadCloser, error)
	// VisitTreeInParallel recursively walks root, calling visit for every
	// descendant, with up to concurrency workers in flight.
	VisitTreeInParallel(ctx context.Context, root string, concurrency int, visit VisitFunc) error
	// ReadXattrDigest returns nil, nil when no fast digest hint is
	// available via extended attributes.
	ReadXattrDigest(path string) ([]byte, error)
}

// digestXattrName is the extended attribute a remote-materializing
// filesystem layer may populate with a precomputed content digest, so
// actionmeta can skip re-hashing content it already has a trusted digest
// for.
const digestXattrName = "user.actionmeta.digest"

// osFilesystem is the production Filesystem: afero.Fs for the portable
// subset of stat/open/chmod, golang.org/x/sys/unix for symlinks and
// xattrs, which afero.Fs has no surface for.
type osFilesystem struct {
	underlying afero.Fs
}

// NewOSFilesystem returns the default Filesystem, backed by fs (typically
// afero.NewOsFs()) for portable operations.
func NewOSFilesystem(fs afero.Fs) Filesystem {
	return &osFilesystem{underlying: fs}
}

func (o *osFilesystem) Stat(path string, followSymlinks bool) (*StatResult, error) {
	if followSymlinks {
		info, err := o.underlying.Stat(path)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		return statResultFromInfo(info, false), nil
	}

	var info os.FileInfo
	var err error
	if lstater, ok := o.underlying.(afero.Lstater); ok {
		info, _, err = lstater.LstatIfPossible(path)
	} else {
		info, err = o.underlying.Stat(path)
	}
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lstat %s: %w", path, err)
	}

	result := statResultFromInfo(info, info.Mode()&os.ModeSymlink != 0)

	var stat unix.Stat_t
	if unixErr := unix.Lstat(path, &stat); unixErr == nil {
		result.ContentsProxy = ContentsProxy{
			Ctime: time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec),
			Dev:   uint64(stat.Dev),
			Ino:   stat.Ino,
		}
	}

	return result, nil
}

func statResultFromInfo(info os.FileInfo, isSymlink bool) *StatResult {
	r := &StatResult{
		Size:      info.Size(),
		Mtime:     info.ModTime(),
		Mode:      info.Mode(),
		IsSymlink: isSymlink,
	}
	switch {
	case isSymlink:
		r.Type = Symlink
	case info.IsDir():
		r.Type = Directory
	case info.Mode().IsRegular():
		r.Type = RegularFile
	default:
		r.Type = Special
	}
	return r
}

func (o *osFilesystem) ReadlinkAndResolve(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("resolving symlink %s: %w", path, err)
	}
	if real == filepath.Clean(path) {
		return "", &SymlinkCycleError{Path: path}
	}
	return real, nil
}

func (o *osFilesystem) Readlink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", fmt.Errorf("readlink %s: %w", path, err)
	}
	return target, nil
}

func (o *osFilesystem) Chmod(path string, mode os.FileMode) error {
	if err := o.underlying.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

func (o *osFilesystem) Open(path string) (io.ReadCloser, error) {
	f, err := o.underlying.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func (o *osFilesystem) ReadXattrDigest(path string) ([]byte, error) {
	buf := make([]byte, 256)
	n, err := unix.Lgetxattr(path, digestXattrName, buf)
	if err != nil {
		// ENODATA/ENOTSUP/EOPNOTSUPP all mean "no hint available", not an
		// error actionmeta should surface.
		return nil, nil
	}
	return buf[:n], nil
}

// VisitTreeInParallel implements the bounded-fan-out parallel directory
// walk §4.A and §9 ask for, using golang.org/x/sync/errgroup rather than a
// hand-rolled worker pool: SetLimit gives the concurrency cap, and the
// group's derived context cancels every sibling goroutine the instant one
// returns an error, which is exactly the "propagate cancellation, surface
// an interruption error" contract the tree builder needs.
func (o *osFilesystem) VisitTreeInParallel(ctx context.Context, root string, concurrency int, visit VisitFunc) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := afero.ReadDir(o.underlying, dir)
		if err != nil {
			return fmt.Errorf("reading directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			entryPath := filepath.Join(dir, entry.Name())
			relPath, err := filepath.Rel(root, entryPath)
			if err != nil {
				return fmt.Errorf("computing relative path for %s: %w", entryPath, err)
			}

			kind := DirentFile
			switch {
			case entry.Mode()&os.ModeSymlink != 0:
				kind = DirentSymlink
			case entry.IsDir():
				kind = DirentDirectory
			case !entry.Mode().IsRegular():
				kind = DirentSpecial
			}

			task := func() error {
				select {
				case <-groupCtx.Done():
					return ErrInterrupted
				default:
				}
				if err := visit(relPath, kind); err != nil {
					return err
				}
				if kind == DirentDirectory {
					return walk(entryPath)
				}
				return nil
			}
			// With every worker slot taken, run the entry inline: a walker
			// blocking in group.Go for a slot that only it or its
			// ancestors hold would never be released.
			if !group.TryGo(task) {
				if err := task(); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		_ = group.Wait()
		return err
	}
	return group.Wait()
}
