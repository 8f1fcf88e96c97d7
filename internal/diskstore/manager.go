package diskstore

import (
	"fmt"
	"sync"
)

// entry tracks one open database and how many callers currently hold it.
type entry struct {
	db   *DB
	refs int
}

var (
	managerMu sync.Mutex
	open      = make(map[string]*entry)
)

// SharedDB wraps a DB with reference-counted lifetime: the underlying
// bbolt handle is closed only once every caller that opened it has
// called Close.
type SharedDB struct {
	path string
	*DB
}

// GetSharedDB returns a shared handle to the metadata database at path.
// Multiple calls with the same path return handles over the same
// underlying *bbolt.DB, avoiding the file-lock conflicts bbolt otherwise
// raises when a process opens one file twice.
func GetSharedDB(path string) (*SharedDB, error) {
	managerMu.Lock()
	defer managerMu.Unlock()

	e, ok := open[path]
	if !ok {
		db, err := Open(path)
		if err != nil {
			return nil, fmt.Errorf("diskstore: shared open %s: %w", path, err)
		}
		e = &entry{db: db}
		open[path] = e
	}
	e.refs++

	return &SharedDB{path: path, DB: e.db}, nil
}

// Close decrements the reference count and closes the underlying
// database once no callers hold it open.
func (s *SharedDB) Close() error {
	managerMu.Lock()
	defer managerMu.Unlock()

	e, ok := open[s.path]
	if !ok {
		return nil
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	delete(open, s.path)
	return e.db.Close()
}
