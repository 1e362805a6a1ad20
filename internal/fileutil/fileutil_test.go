package fileutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "nested", "dst.bin")

	content := make([]byte, 64*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	size, sum, err := CopyAtomic(dst, bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len(content)) {
		t.Fatalf("size = %d, want %d", size, len(content))
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("content mismatch")
	}
	dstSum, dstSize, err := SHA256File(dst)
	if err != nil {
		t.Fatal(err)
	}
	if dstSum != sum || dstSize != size {
		t.Fatalf("digest mismatch: %s/%d vs %s/%d", sum, size, dstSum, dstSize)
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, "nested", ".tmp-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestCopyAtomicKeepsDestinationOnReadError(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(dst, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := CopyAtomic(dst, failingReader{}); err == nil {
		t.Fatal("expected read error")
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Fatalf("destination overwritten: %q", got)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "request.json")
	if err := WriteJSONAtomic(path, map[string]int{"temporal_subsampling_factor": 2}); err != nil {
		t.Fatal(err)
	}
	if Exists(path + ".tmp") {
		t.Fatal("temp file left behind")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]int
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["temporal_subsampling_factor"] != 2 {
		t.Fatalf("unexpected content %s", data)
	}
}

func TestFindFilesAndFirstMatch(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"b/probeB/metrics.csv",
		"a/probeA/metrics.csv",
		"a/probeA/other.csv",
	} {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	found, err := FindFiles(root, "metrics.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 || filepath.Base(filepath.Dir(found[0])) != "probeA" {
		t.Fatalf("unexpected matches %v", found)
	}

	first, err := FirstMatch(filepath.Join(root, "*", "probe*", "*.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if first != filepath.Join(root, "a/probeA/metrics.csv") {
		t.Fatalf("FirstMatch = %q", first)
	}

	none, err := FirstMatch(filepath.Join(root, "*.h5"))
	if err != nil || none != "" {
		t.Fatalf("expected empty match, got %q err=%v", none, err)
	}
	if _, err := FirstMatch("[bad"); err == nil {
		t.Fatal("expected malformed pattern error")
	}
}
