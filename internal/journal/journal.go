// Package journal keeps a local record of every relsync run in a bbolt
// database next to the session logs. The journal is advisory: failures to
// record are logged and never abort an operation.
package journal

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// Entry is one recorded run.
type Entry struct {
	Time      time.Time `json:"time"`
	Operation string    `json:"operation"`
	Version   string    `json:"version"`
	Branch    string    `json:"branch"`
	Outcome   string    `json:"outcome"`
	Archive   string    `json:"archive,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
}

type DB struct{ *bbolt.DB }

// Open opens (or creates) the journal database at path.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0666, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketRuns)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func (db *DB) Close() error { return db.DB.Close() }

// Record appends one run entry, keyed by its timestamp.
func (db *DB) Record(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := []byte(e.Time.UTC().Format(time.RFC3339Nano))
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put(key, data)
	})
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (db *DB) List(limit int) ([]Entry, error) {
	var entries []Entry
	err := db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
