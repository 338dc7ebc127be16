package actionmeta

import (
	"fmt"
	"sync"

	"github.com/davecgh/go-spew/spew"
)

// OutputStore holds the two concurrent mappings 4.D calls for: artifact to
// FileValue, and tree artifact to TreeValue. The handler that owns it is
// shared by an action's concurrent spawns, so both maps are guarded, each
// independently rather than sharing one lock — a write to the file map
// never blocks a read of the tree map and vice versa. Tree construction
// (4.E) collects children in its own builder and stores the finished
// TreeValue once.
type OutputStore struct {
	fileMu sync.RWMutex
	files  map[Artifact]FileValue

	treeMu sync.RWMutex
	trees  map[Artifact]TreeValue
}

// NewOutputStore returns an empty store.
func NewOutputStore() *OutputStore {
	return &OutputStore{
		files: make(map[Artifact]FileValue),
		trees: make(map[Artifact]TreeValue),
	}
}

// GetFile returns the stored FileValue for a, if any.
func (s *OutputStore) GetFile(a Artifact) (FileValue, bool) {
	s.fileMu.RLock()
	defer s.fileMu.RUnlock()
	v, ok := s.files[a]
	return v, ok
}

// PutFile unconditionally stores v for a. Per 4.D there is no ordering
// guarantee across concurrent writers; the "at most one successful writer
// per key during execution" invariant is enforced by the handler, not the
// store.
func (s *OutputStore) PutFile(a Artifact, v FileValue) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	s.files[a] = v
}

// GetTree returns the stored TreeValue for a, if any.
func (s *OutputStore) GetTree(a Artifact) (TreeValue, bool) {
	s.treeMu.RLock()
	defer s.treeMu.RUnlock()
	v, ok := s.trees[a]
	return v, ok
}

// PutTree unconditionally stores v for a.
func (s *OutputStore) PutTree(a Artifact, v TreeValue) {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	s.trees[a] = v
}

// Remove deletes a from both maps, the counterpart to resetOutputs (4.F.11).
func (s *OutputStore) Remove(a Artifact) {
	s.fileMu.Lock()
	delete(s.files, a)
	s.fileMu.Unlock()

	s.treeMu.Lock()
	delete(s.trees, a)
	s.treeMu.Unlock()
}

// Clear empties both maps, used by prepareForActionExecution (4.F.12).
func (s *OutputStore) Clear() {
	s.fileMu.Lock()
	s.files = make(map[Artifact]FileValue)
	s.fileMu.Unlock()

	s.treeMu.Lock()
	s.trees = make(map[Artifact]TreeValue)
	s.treeMu.Unlock()
}

// Dump renders the store's contents for debugging, grounded on the
// teacher's own reliance on go-spew for diagnostic dumps rather than a
// hand-rolled formatter.
func (s *OutputStore) Dump() string {
	s.fileMu.RLock()
	s.treeMu.RLock()
	defer s.fileMu.RUnlock()
	defer s.treeMu.RUnlock()

	return fmt.Sprintf("OutputStore{files: %s, trees: %s}", spew.Sdump(s.files), spew.Sdump(s.trees))
}
