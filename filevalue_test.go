package actionmeta

import (
	"bytes"
	"testing"
)

func TestBuildFileValueMissing(t *testing.T) {
	fs := newFakeFilesystem()
	artifact := Artifact{ExecPath: "out/missing.txt", Shape: PlainFile}

	result, err := buildFileValue(fs, defaultHashFunc, noopTimestampMonitor{}, "/root", artifact, "/root/out/missing.txt", nil, nil)
	if err != nil {
		t.Fatalf("buildFileValue() error = %v", err)
	}
	if !result.Value.IsMissing() {
		t.Errorf("buildFileValue() = %v, want Missing", result.Value)
	}
}

func TestBuildFileValueRegularFileDigestsContent(t *testing.T) {
	fs := newFakeFilesystem()
	fs.writeFile("/root/out/f.txt", []byte("content"), 0o644, zeroTime)
	artifact := Artifact{ExecPath: "out/f.txt", Shape: PlainFile}

	result, err := buildFileValue(fs, defaultHashFunc, noopTimestampMonitor{}, "/root", artifact, "/root/out/f.txt", nil, nil)
	if err != nil {
		t.Fatalf("buildFileValue() error = %v", err)
	}
	if result.Value.Type != RegularFile {
		t.Fatalf("Type = %v, want RegularFile", result.Value.Type)
	}
	if result.Value.Size != 7 {
		t.Errorf("Size = %d, want 7", result.Value.Size)
	}
	if len(result.Value.Digest) == 0 {
		t.Errorf("Digest is empty, want a computed digest")
	}
}

func TestBuildFileValueUsesXattrDigestHint(t *testing.T) {
	fs := newFakeFilesystem()
	fs.writeFile("/root/out/f.txt", []byte("content"), 0o644, zeroTime)
	fs.setXattrDigest("/root/out/f.txt", []byte("precomputed"))
	artifact := Artifact{ExecPath: "out/f.txt", Shape: PlainFile}

	result, err := buildFileValue(fs, defaultHashFunc, noopTimestampMonitor{}, "/root", artifact, "/root/out/f.txt", nil, nil)
	if err != nil {
		t.Fatalf("buildFileValue() error = %v", err)
	}
	if !bytes.Equal(result.Value.Digest, []byte("precomputed")) {
		t.Errorf("Digest = %q, want the xattr hint to short-circuit content digesting", result.Value.Digest)
	}
}

func TestBuildFileValueDirectory(t *testing.T) {
	fs := newFakeFilesystem()
	fs.mkdir("/root/out/dir")
	artifact := Artifact{ExecPath: "out/dir", Shape: PlainFile}

	result, err := buildFileValue(fs, defaultHashFunc, noopTimestampMonitor{}, "/root", artifact, "/root/out/dir", nil, nil)
	if err != nil {
		t.Fatalf("buildFileValue() error = %v", err)
	}
	if result.Value.Type != Directory {
		t.Fatalf("Type = %v, want Directory", result.Value.Type)
	}
	if result.Value.Digest != nil {
		t.Errorf("Digest = %x, want nil for a directory", result.Value.Digest)
	}
}

func TestBuildFileValueSymlinkArtifactReadsTargetWithoutStatting(t *testing.T) {
	fs := newFakeFilesystem()
	fs.symlink("/root/out/link", "/remote/cas/blob")
	artifact := Artifact{ExecPath: "out/link", Shape: SymlinkOutput}

	result, err := buildFileValue(fs, defaultHashFunc, noopTimestampMonitor{}, "/root", artifact, "/root/out/link", nil, nil)
	if err != nil {
		t.Fatalf("buildFileValue() error = %v", err)
	}
	if result.Value.Type != Symlink {
		t.Fatalf("Type = %v, want Symlink", result.Value.Type)
	}
	if len(result.Value.Digest) == 0 {
		t.Errorf("symlink artifact value has no digest, postcondition violated")
	}
}

func TestBuildFileValueFollowsRegularSymlinkToRealPath(t *testing.T) {
	fs := newFakeFilesystem()
	fs.writeFile("/root/out/real.txt", []byte("payload"), 0o644, zeroTime)
	fs.symlink("/root/out/link.txt", "real.txt")
	artifact := Artifact{ExecPath: "out/link.txt", Shape: PlainFile}

	result, err := buildFileValue(fs, defaultHashFunc, noopTimestampMonitor{}, "/root", artifact, "/root/out/link.txt", nil, nil)
	if err != nil {
		t.Fatalf("buildFileValue() error = %v", err)
	}
	if result.RealPath != "/root/out/real.txt" {
		t.Errorf("RealPath = %q, want /root/out/real.txt", result.RealPath)
	}
	if result.Value.Type != RegularFile {
		t.Fatalf("Type = %v, want RegularFile", result.Value.Type)
	}
}

func TestBuildFileValueSymlinkToRemoteContentPreservesMaterializationPath(t *testing.T) {
	fs := newFakeFilesystem()
	fs.writeFile("/root/out/real.txt", []byte("payload"), 0o644, zeroTime)
	fs.markRemote("/root/out/real.txt")
	fs.symlink("/root/out/link.txt", "real.txt")
	artifact := Artifact{ExecPath: "out/link.txt", Shape: PlainFile}

	result, err := buildFileValue(fs, defaultHashFunc, noopTimestampMonitor{}, "/root", artifact, "/root/out/link.txt", nil, nil)
	if err != nil {
		t.Fatalf("buildFileValue() error = %v", err)
	}
	if !result.Value.IsRemote {
		t.Fatalf("IsRemote = false, want true for a symlink into remote content")
	}
	if result.Value.MaterializationExecPath != "out/real.txt" {
		t.Errorf("MaterializationExecPath = %q, want out/real.txt", result.Value.MaterializationExecPath)
	}
}

func TestBuildFileValueSymlinkCycleFails(t *testing.T) {
	fs := newFakeFilesystem()
	fs.symlink("/root/out/a.txt", "a.txt")
	artifact := Artifact{ExecPath: "out/a.txt", Shape: PlainFile}

	_, err := buildFileValue(fs, defaultHashFunc, noopTimestampMonitor{}, "/root", artifact, "/root/out/a.txt", nil, nil)
	if err == nil {
		t.Fatalf("expected a symlink-cycle error")
	}
}

func TestBuildFileValueInjectedDigestMismatchPanics(t *testing.T) {
	fs := newFakeFilesystem()
	fs.writeFile("/root/out/f.txt", []byte("content"), 0o644, zeroTime)
	fs.setXattrDigest("/root/out/f.txt", []byte("from-disk"))
	artifact := Artifact{ExecPath: "out/f.txt", Shape: PlainFile}

	defer func() {
		if recover() == nil {
			t.Errorf("expected a panic on digest mismatch")
		}
	}()
	_, _ = buildFileValue(fs, defaultHashFunc, noopTimestampMonitor{}, "/root", artifact, "/root/out/f.txt", nil, []byte("injected"))
}
