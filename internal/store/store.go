// Package store is a small key-value facade over a db.Database. Every call
// runs in its own transaction, so callers that need several reads or writes
// to be atomic should use db.View and db.Update directly.
package store

import (
	"bytes"
	"io"

	"txdb/internal/logging"
	"txdb/pkg/db"
)

var logger = logging.For("store")

// Store wraps a database handle.
type Store struct {
	d db.Database
}

// New returns a Store over d. Close closes d when it implements io.Closer.
func New(d db.Database) *Store {
	return &Store{d: d}
}

// Database returns the underlying handle.
func (s *Store) Database() db.Database { return s.d }

type result[T any] struct {
	v   T
	err error
}

func view[T any](d db.Database, fn func(db.DbTx) (T, error)) (T, error) {
	r, err := db.View(d, func(tx db.DbTx) result[T] {
		v, err := fn(tx)
		return result[T]{v, err}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return r.v, r.err
}

func update(d db.Database, fn func(db.DbTxMut) error) error {
	werr, err := db.Update(d, fn)
	if err != nil {
		return err
	}
	return werr
}

// Get returns a copy of the value stored under key, or nil.
func (s *Store) Get(table db.Table, key []byte) ([]byte, error) {
	return view(s.d, func(tx db.DbTx) ([]byte, error) {
		return tx.Get(table, key)
	})
}

func (s *Store) Set(table db.Table, key, value []byte) error {
	return update(s.d, func(tx db.DbTxMut) error {
		return tx.Put(table, key, value)
	})
}

// Delete removes key. Missing keys and tables are not an error.
func (s *Store) Delete(table db.Table, key []byte) error {
	return update(s.d, func(tx db.DbTxMut) error {
		return tx.Delete(table, key)
	})
}

// ForEach calls fn for every entry of table in key order, starting at the
// first key >= from (nil means the start). A non-nil error from fn stops the
// walk and is returned.
func (s *Store) ForEach(table db.Table, from []byte, fn func(key, value []byte) error) error {
	_, err := view(s.d, func(tx db.DbTx) (struct{}, error) {
		return struct{}{}, walk(tx, table, from, fn)
	})
	return err
}

func walk(tx db.DbTx, table db.Table, from []byte, fn func(k, v []byte) error) error {
	c, err := tx.Cursor(table)
	if err != nil {
		return err
	}
	defer c.Close()

	var k, v []byte
	if from == nil {
		k, v, err = c.First()
	} else {
		k, v, err = c.Seek(from)
	}
	for ; ; k, v, err = c.Next() {
		if err != nil {
			return err
		}
		if k == nil {
			return nil
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
}

// Snapshot copies a whole table into a map.
func (s *Store) Snapshot(table db.Table) (map[string][]byte, error) {
	return view(s.d, func(tx db.DbTx) (map[string][]byte, error) {
		out := make(map[string][]byte)
		err := walk(tx, table, nil, func(k, v []byte) error {
			out[string(k)] = bytes.Clone(v)
			return nil
		})
		return out, err
	})
}

// TableInfo describes one table.
type TableInfo struct {
	Name    db.Table
	Entries int
}

// Tables lists every non-empty table with its entry count, read from a
// single snapshot.
func (s *Store) Tables() ([]TableInfo, error) {
	return view(s.d, func(tx db.DbTx) ([]TableInfo, error) {
		names, err := tx.Tables()
		if err != nil {
			return nil, err
		}
		out := make([]TableInfo, 0, len(names))
		for _, name := range names {
			n, err := tx.Entries(name)
			if err != nil {
				return nil, err
			}
			out = append(out, TableInfo{Name: name, Entries: n})
		}
		return out, nil
	})
}

// Close releases the handle.
func (s *Store) Close() error {
	c, ok := s.d.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "err", err)
		return err
	}
	return nil
}
