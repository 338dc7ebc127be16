package actionmeta

import "testing"

func TestSentinelsAreDistinctFromZeroValue(t *testing.T) {
	var zero FileValue
	if zero.IsMissing() || zero.IsOmitted() {
		t.Errorf("zero-value FileValue reported as a sentinel")
	}
	if !zero.Exists() {
		t.Errorf("zero-value FileValue should be a (vacuous but real) existing value, not a sentinel")
	}

	if !Missing.IsMissing() || Missing.Exists() {
		t.Errorf("Missing sentinel misbehaved: IsMissing=%v Exists=%v", Missing.IsMissing(), Missing.Exists())
	}
	if !Omitted.IsOmitted() || Omitted.Exists() {
		t.Errorf("Omitted sentinel misbehaved: IsOmitted=%v Exists=%v", Omitted.IsOmitted(), Omitted.Exists())
	}
}

func TestTreeValueMetadataAggregates(t *testing.T) {
	tv := TreeValue{
		Parent:          Artifact{ExecPath: "bin/gen", Shape: TreeArtifactShape},
		Children:        map[string]FileValue{"a": {Type: RegularFile, Digest: []byte{1}}},
		AggregateDigest: []byte{0xAB},
	}

	meta := tv.Metadata()
	if meta.Type != RegularFile {
		t.Errorf("Metadata().Type = %v, want RegularFile", meta.Type)
	}
	if string(meta.Digest) != string([]byte{0xAB}) {
		t.Errorf("Metadata().Digest = %x, want ab", meta.Digest)
	}
}

func TestTreeValueMetadataOnSentinels(t *testing.T) {
	if got := MissingTree.Metadata(); !got.IsMissing() {
		t.Errorf("MissingTree.Metadata() = %v, want Missing", got)
	}
	if got := OmittedTree.Metadata(); !got.IsOmitted() {
		t.Errorf("OmittedTree.Metadata() = %v, want Omitted", got)
	}
}

func TestTreeValueChildPathsSorted(t *testing.T) {
	tv := TreeValue{Children: map[string]FileValue{
		"z.txt": {},
		"a.txt": {},
		"m.txt": {},
	}}

	got := tv.ChildPaths()
	want := []string{"a.txt", "m.txt", "z.txt"}
	if len(got) != len(want) {
		t.Fatalf("ChildPaths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ChildPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
