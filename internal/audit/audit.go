// Package audit keeps a bbolt-backed history of completed transfers on
// the sender side. It is deliberately not protocol state: a Ledger entry
// cannot be used to resume a connection, only to look back at what
// happened, so it does not touch the Non-goal of persisting protocol
// state across crashes.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var transfersBucket = []byte("transfers")

// Entry is one completed (or abandoned, or rejected) transfer record.
type Entry struct {
	Peer       string    `json:"peer"`
	Filename   string    `json:"filename"`
	Outcome    string    `json:"outcome"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Ledger appends Entry records to a bbolt database, one bucket keyed by a
// monotonically increasing transfer ID.
type Ledger struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("audit: open %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transfersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init bucket: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record appends e to the ledger, stamping RecordedAt if unset.
func (l *Ledger) Record(e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(transfersBucket)
		id, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("audit: next sequence: %w", err)
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("audit: marshal entry: %w", err)
		}
		return b.Put(itob(id), data)
	})
}

// All returns every recorded entry, oldest first.
func (l *Ledger) All() ([]Entry, error) {
	var out []Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(transfersBucket)
		return b.ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
