package binary

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalSourceOpenExistsDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := FromLocation("foo.txt", dir, SourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ok, err := src.Exists()
	if err != nil || !ok {
		t.Fatalf("expected exists, got ok=%v err=%v", ok, err)
	}

	r, err := src.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected content: %q", data)
	}

	digest, err := src.Digest()
	if err != nil {
		t.Fatal(err)
	}
	if digest == "" || digest[:5] != "sha1=" {
		t.Fatalf("unexpected digest: %q", digest)
	}
}

func TestLocalSourceNotFound(t *testing.T) {
	dir := t.TempDir()
	src, err := FromLocation("missing.txt", dir, SourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ok, err := src.Exists()
	if err != nil || ok {
		t.Fatalf("expected not-exists, got ok=%v err=%v", ok, err)
	}
	if _, err := src.Open(); err == nil {
		t.Fatal("expected an error opening a missing file")
	}
}

func TestFromLocationDispatchesByPrefix(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")
	writeTestZip(t, zipPath, map[string]string{"page1.jpg": "data"})

	src, err := FromLocation("zip:"+zipPath+"#page1.jpg", dir, SourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ok, err := src.Exists()
	if err != nil || !ok {
		t.Fatalf("expected member to exist, got ok=%v err=%v", ok, err)
	}
}

func writeTestZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := newTestZipWriter(f)
	for name, content := range files {
		zw.addFile(t, name, content)
	}
	zw.close(t)
}
