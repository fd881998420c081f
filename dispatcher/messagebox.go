package dispatcher

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MessageBox is a durable, file-per-message directory: the inbox holds
// commands not yet fully processed, the outbox holds terminal responses
// not yet confirmed sent. The id a message is added under, with '/'
// replaced by '-', names its file.
type MessageBox struct {
	Dir string
}

// NewMessageBox ensures dir exists and returns a MessageBox rooted there.
func NewMessageBox(dir string) (*MessageBox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &MessageBox{Dir: dir}, nil
}

func (b *MessageBox) filename(id string) string {
	return filepath.Join(b.Dir, strings.ReplaceAll(id, "/", "-"))
}

// Add persists msg under id, overwriting any existing file for that id.
func (b *MessageBox) Add(id string, msg Message) error {
	return os.WriteFile(b.filename(id), []byte(msg.String()), 0o644)
}

// Remove deletes the file for id. A missing file is not an error: removal
// is idempotent, since a crash between send and remove can leave it gone
// already on a later retry.
func (b *MessageBox) Remove(id string) error {
	err := os.Remove(b.filename(id))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// IDs lists the ids (file names) currently boxed, in a stable (sorted) order.
func (b *MessageBox) IDs() ([]string, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Each reads every currently-boxed message and calls fn with its filename
// (the sanitized id) and parsed contents, in sorted filename order.
func (b *MessageBox) Each(fn func(filename string, msg Message) error) error {
	ids, err := b.IDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		msg, err := ReadMessageFile(filepath.Join(b.Dir, id))
		if err != nil {
			return err
		}
		if err := fn(id, msg); err != nil {
			return err
		}
	}
	return nil
}
