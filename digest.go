package actionmeta

import (
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// defaultBufferSize mirrors the teacher's own buffer size: large enough to
// amortize syscall overhead, small enough to keep the pool's steady-state
// footprint predictable under concurrent tree digesting.
const defaultBufferSize = 32 * 1024

// bufferPool holds reusable read buffers for digest computation. Tree
// construction digests many files concurrently; pooling keeps that from
// becoming an allocation storm.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, defaultBufferSize)
		return &buf
	},
}

// HashFunc constructs a fresh hash.Hash. actionmeta defaults to BLAKE3 —
// fast and cryptographically collision-resistant, which matters here
// because a digest is the basis for action-cache correctness decisions,
// not just a fast local dedup key. WithHashFunc(XxHashFunc) trades that
// collision resistance for raw speed when a caller's trust model allows it
// (e.g. purely local builds with no shared/remote cache).
type HashFunc func() hash.Hash

func defaultHashFunc() hash.Hash {
	return blake3.New()
}

// XxHashFunc is a ready-to-use HashFunc value for WithHashFunc(actionmeta.XxHashFunc),
// provided because xxhash.New returns *xxhash.Digest rather than hash.Hash
// and so is not itself a HashFunc; callers would otherwise have to write
// the trivial wrapper themselves.
func XxHashFunc() hash.Hash {
	return xxhash.New()
}

// hashReader streams content through h using a pooled buffer. sizeHint, if
// positive, is used only to decide whether pooling is worth it for very
// small files — it is never trusted for correctness; a short or
// inaccurate hint still yields a correct digest because io.CopyBuffer
// reads until EOF regardless.
func hashReader(content io.Reader, h hash.Hash, sizeHint int64) error {
	if sizeHint > 0 && sizeHint < 512 {
		// Tiny file: skip the pool round-trip, a small stack buffer is
		// cheaper than the sync.Pool Get/Put pair.
		var small [512]byte
		_, err := io.CopyBuffer(h, content, small[:])
		if err != nil {
			return fmt.Errorf("digest: reading content: %w", err)
		}
		return nil
	}

	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(h, content, *bufPtr); err != nil {
		return fmt.Errorf("digest: reading content: %w", err)
	}
	return nil
}

// digestOf computes the canonical content digest of the file at path using
// fs to open it and hashFunc to construct the hasher. sizeHint, typically
// the size already observed by a prior stat, is a preallocation hint only.
func digestOf(fs Filesystem, hashFunc HashFunc, path string, sizeHint int64) ([]byte, error) {
	r, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("digest: opening %s: %w", path, err)
	}
	defer r.Close()

	h := hashFunc()
	if err := hashReader(r, h, sizeHint); err != nil {
		return nil, fmt.Errorf("digest: %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
