package binary

import (
	"io"
	"os"
)

// cacheToTempFile drains r into a new temp file and returns its path. Used
// to give archive/zip the io.ReaderAt it needs when the archive arrived as
// a stream (e.g. over SFTP).
func cacheToTempFile(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "plastron-zip-*.zip")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, r); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
