package actionmeta

import (
	"sync"
	"testing"
)

func TestOutputStorePutGetFile(t *testing.T) {
	s := NewOutputStore()
	a := Artifact{ExecPath: "out/f.txt", Shape: PlainFile}

	if _, ok := s.GetFile(a); ok {
		t.Fatalf("GetFile() on empty store returned ok=true")
	}

	s.PutFile(a, FileValue{Type: RegularFile, Size: 3})
	v, ok := s.GetFile(a)
	if !ok || v.Size != 3 {
		t.Errorf("GetFile() = %v, %v, want a value with Size=3", v, ok)
	}
}

func TestOutputStoreRemoveClearsBothMaps(t *testing.T) {
	s := NewOutputStore()
	file := Artifact{ExecPath: "out/f.txt", Shape: PlainFile}
	tree := Artifact{ExecPath: "out/gen", Shape: TreeArtifactShape}

	s.PutFile(file, FileValue{Type: RegularFile})
	s.PutTree(tree, TreeValue{Parent: tree})

	s.Remove(file)
	s.Remove(tree)

	if _, ok := s.GetFile(file); ok {
		t.Errorf("GetFile() still present after Remove")
	}
	if _, ok := s.GetTree(tree); ok {
		t.Errorf("GetTree() still present after Remove")
	}
}

func TestOutputStoreClearEmptiesBothMaps(t *testing.T) {
	s := NewOutputStore()
	a := Artifact{ExecPath: "out/f.txt", Shape: PlainFile}
	s.PutFile(a, FileValue{Type: RegularFile})

	s.Clear()

	if _, ok := s.GetFile(a); ok {
		t.Errorf("GetFile() still present after Clear")
	}
}

func TestOutputStoreConcurrentAccess(t *testing.T) {
	s := NewOutputStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := Artifact{ExecPath: "out/f.txt", Shape: PlainFile}
			s.PutFile(a, FileValue{Type: RegularFile, Size: int64(i)})
			s.GetFile(a)
		}()
	}
	wg.Wait()
}

func TestOutputStoreDumpDoesNotPanic(t *testing.T) {
	s := NewOutputStore()
	s.PutFile(Artifact{ExecPath: "out/f.txt", Shape: PlainFile}, FileValue{Type: RegularFile})
	if s.Dump() == "" {
		t.Errorf("Dump() returned empty string")
	}
}
