// Package diskstore is a small embedded metadata store sitting alongside
// the cached artifacts: a footer cache (skip the remote tail fetch on
// reopen), a known-remote registry (URL to local artifact path), and
// simulation run history for comparing scheduler configurations across
// invocations.
package diskstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/nosqlbench/nbdatatools-sub010/internal/merklefooter"
)

var (
	bucketFooters = []byte("footers")
	bucketRemotes = []byte("remotes")
	bucketSimRuns = []byte("sim_runs")
)

// ErrNotFound is returned by lookups that find no matching entry.
var ErrNotFound = errors.New("diskstore: not found")

// DB is a thin bbolt wrapper exposing the three buckets this domain needs.
type DB struct{ *bbolt.DB }

// Open opens (creating if absent) the metadata database at path and
// ensures all buckets exist.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0o666, nil)
	if err != nil {
		return nil, fmt.Errorf("diskstore: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketFooters, bucketRemotes, bucketSimRuns} {
			if _, e := tx.CreateBucketIfNotExists(b); e != nil {
				return e
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("diskstore: init buckets: %w", err)
	}
	return &DB{db}, nil
}

func (db *DB) Close() error { return db.DB.Close() }

// PutFooter caches a remote artifact's footer under remoteKey (typically
// the artifact's URL), so reopening it skips the tail-read bootstrap.
func (db *DB) PutFooter(remoteKey string, f merklefooter.Footer) error {
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFooters).Put([]byte(remoteKey), f.Encode())
	})
}

// GetFooter returns the cached footer for remoteKey, or ErrNotFound.
func (db *DB) GetFooter(remoteKey string) (merklefooter.Footer, error) {
	var footer merklefooter.Footer
	err := db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketFooters).Get([]byte(remoteKey))
		if raw == nil {
			return ErrNotFound
		}
		decoded, err := merklefooter.DecodeTail(raw)
		if err != nil {
			return err
		}
		footer = decoded
		return nil
	})
	return footer, err
}

// InvalidateFooter removes a cached footer, forcing the next open to
// re-fetch the remote tail.
func (db *DB) InvalidateFooter(remoteKey string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFooters).Delete([]byte(remoteKey))
	})
}

// RegisterRemote records where a remote artifact's local cache lives.
func (db *DB) RegisterRemote(url, localPath string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRemotes).Put([]byte(url), []byte(localPath))
	})
}

// LookupRemote returns the local path registered for url, or ErrNotFound.
func (db *DB) LookupRemote(url string) (string, error) {
	var localPath string
	err := db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRemotes).Get([]byte(url))
		if v == nil {
			return ErrNotFound
		}
		localPath = string(v)
		return nil
	})
	return localPath, err
}

// ListRemotes returns every registered url -> local path mapping.
func (db *DB) ListRemotes() (map[string]string, error) {
	out := make(map[string]string)
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRemotes).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

// RunRecord is one completed simulation run, kept for cross-invocation
// comparison of scheduler strategies and configurations.
type RunRecord struct {
	RunID        string            `json:"run_id"`
	Strategy     string            `json:"strategy"`
	Seed         uint64            `json:"seed"`
	Config       map[string]string `json:"config,omitempty"`
	Score        float64           `json:"score"`
	CompletionAt int64             `json:"completion_at_unix"`
}

// PutRunRecord persists rec, keyed by its RunID.
func (db *DB) PutRunRecord(rec RunRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("diskstore: marshal run record: %w", err)
	}
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSimRuns).Put([]byte(rec.RunID), raw)
	})
}

// GetRunRecord returns the run record for runID, or ErrNotFound.
func (db *DB) GetRunRecord(runID string) (RunRecord, error) {
	var rec RunRecord
	err := db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketSimRuns).Get([]byte(runID))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	return rec, err
}

// ListRunRecords returns every stored run record, in bucket (lexical
// RunID) order.
func (db *DB) ListRunRecords() ([]RunRecord, error) {
	var out []RunRecord
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSimRuns).ForEach(func(k, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}
