package binary

import (
	"archive/zip"
	"io"
	"os"
	"testing"
)

type testZipWriter struct {
	zw *zip.Writer
}

func newTestZipWriter(f *os.File) *testZipWriter {
	return &testZipWriter{zw: zip.NewWriter(f)}
}

func (w *testZipWriter) addFile(t *testing.T, name, content string) {
	t.Helper()
	fw, err := w.zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatal(err)
	}
}

func (w *testZipWriter) close(t *testing.T) {
	t.Helper()
	if err := w.zw.Close(); err != nil {
		t.Fatal(err)
	}
}
