package dispatcher

import (
	"time"

	"github.com/umd-lib/plastron-go/db/bolt"
)

const outboxBucket = "outbox_pending"

// OutboxIndex is a crash-safe record of which outbox message ids have been
// handed to the broker's Send but not yet confirmed removed, layered on
// top of the filesystem outbox (not a replacement for it): the filesystem
// is authoritative for message bodies, this index is only consulted to
// skip a redundant re-send attempt for an id whose file was already
// removed in a prior process's final moments before it crashed.
type OutboxIndex struct {
	db *bolt.DB
}

// OpenOutboxIndex opens (creating if needed) a bbolt-backed index at path.
func OpenOutboxIndex(path string) (*OutboxIndex, error) {
	db, err := bolt.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.CreateBucket(outboxBucket); err != nil {
		return nil, err
	}
	return &OutboxIndex{db: db}, nil
}

// MarkPending records that id has been added to the outbox and is awaiting
// send confirmation.
func (idx *OutboxIndex) MarkPending(id string) error {
	return idx.db.PutJSON(outboxBucket, id, pendingEntry{AddedAt: time.Now().UTC()})
}

// MarkSent removes id once the broker has confirmed delivery and the
// filesystem outbox entry has been removed.
func (idx *OutboxIndex) MarkSent(id string) error {
	return idx.db.Delete(outboxBucket, id)
}

// Pending lists every outbox id still awaiting confirmation, for replay on
// reconnect.
func (idx *OutboxIndex) Pending() ([]string, error) {
	return idx.db.List(outboxBucket)
}

// Close closes the underlying database.
func (idx *OutboxIndex) Close() error {
	return idx.db.Close()
}

type pendingEntry struct {
	AddedAt time.Time `json:"added_at"`
}
