// Package runlog keeps the history of projection runs in an embedded bbolt
// file: one record per batch with its inputs, timings, status and output
// location. Records are keyed by start time so history reads newest first.
package runlog

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Status of a finished run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

var bucketRuns = []byte("runs")

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Record is one run log entry.
type Record struct {
	RunID           string            `json:"run_id"`
	Timestamp       time.Time         `json:"timestamp"`
	User            string            `json:"user"`
	Inputs          map[string]string `json:"inputs"`
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	DurationSeconds float64           `json:"duration_seconds"`
	Status          Status            `json:"status"`
	OutputLocation  string            `json:"output_location,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
}

// Store is a run log backed by bbolt.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a run log at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordKey sorts by start time, then run id.
func recordKey(start time.Time, runID string) []byte {
	k := make([]byte, 8, 8+len(runID))
	binary.BigEndian.PutUint64(k, uint64(start.UnixNano()))
	return append(k, runID...)
}

// Create appends a record. Timestamp defaults to now and DurationSeconds is
// derived from Start and End when not set.
func (s *Store) Create(rec Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Start.IsZero() {
		rec.Start = rec.Timestamp
	}
	if rec.DurationSeconds == 0 && !rec.End.IsZero() {
		rec.DurationSeconds = rec.End.Sub(rec.Start).Seconds()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Put(recordKey(rec.Start, rec.RunID), data)
	})
}

// History returns up to limit records, newest first. A limit of zero or
// less returns all of them.
func (s *Store) History(limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %x: %w", k, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Get returns the record of one run.
func (s *Store) Get(runID string) (Record, error) {
	var rec Record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			if found || !bytes.Equal(k[8:], []byte(runID)) {
				return nil
			}
			found = true
			return json.Unmarshal(v, &rec)
		})
	})
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return rec, nil
}

// Prune deletes the records of runs started before cutoff and returns how
// many were removed.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	limit := make([]byte, 8)
	binary.BigEndian.PutUint64(limit, uint64(cutoff.UnixNano()))

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
