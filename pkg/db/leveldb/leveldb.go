// Package leveldb implements db.Database on goleveldb. Tables share one
// keyspace: every key is stored as table + 0x00 + key.
package leveldb

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"txdb/internal/logging"
	"txdb/pkg/db"
	"txdb/pkg/db/internal/seal"
	"txdb/pkg/db/internal/slots"
)

var logger = logging.For("leveldb")

// Options tunes Open.
type Options struct {
	ReadOnly bool
	// MaxReaders caps concurrently open read transactions. Zero is unlimited.
	MaxReaders int
	// CacheSize is the block cache size in bytes. Zero uses the engine default.
	CacheSize int
}

// DB is a goleveldb-backed database.
type DB struct {
	seal.Marker

	path     string
	ldb      *leveldb.DB
	readOnly bool
	readers  *slots.Slots
}

var _ db.Database = (*DB)(nil)

// Open creates or opens a leveldb directory at path. A read-only open
// requires the directory to exist.
func Open(path string, opts Options) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, &opt.Options{
		ReadOnly:           opts.ReadOnly,
		ErrorIfMissing:     opts.ReadOnly,
		BlockCacheCapacity: opts.CacheSize,
	})
	if err != nil {
		return nil, db.NewError(db.KindOpen, "leveldb.Open", fmt.Errorf("opening leveldb %s: %w", path, err))
	}
	logger.Debug("opened", "path", path, "read_only", opts.ReadOnly)
	return &DB{
		path:     path,
		ldb:      ldb,
		readOnly: opts.ReadOnly,
		readers:  slots.New(opts.MaxReaders),
	}, nil
}

// Path returns the database directory.
func (d *DB) Path() string { return d.path }

// Tx opens a read transaction over a snapshot. Commit releases it.
func (d *DB) Tx() (db.DbTx, error) {
	if !d.readers.Acquire() {
		return nil, db.NewError(db.KindInitTx, "leveldb.Tx", db.ErrTxLimit)
	}
	snap, err := d.ldb.GetSnapshot()
	if err != nil {
		d.readers.Release()
		return nil, db.NewError(db.KindInitTx, "leveldb.GetSnapshot", mapErr(err))
	}
	return &Tx{
		r: snap,
		finish: func(bool) error {
			snap.Release()
			d.readers.Release()
			return nil
		},
	}, nil
}

// TxMut opens a leveldb transaction. Only one can be open at a time; a
// second TxMut blocks until the first is finalized.
func (d *DB) TxMut() (db.DbTxMut, error) {
	if d.readOnly {
		return nil, db.NewError(db.KindReadOnly, "leveldb.TxMut", db.ErrReadOnly)
	}
	tr, err := d.ldb.OpenTransaction()
	if err != nil {
		return nil, db.NewError(db.KindInitTx, "leveldb.OpenTransaction", mapErr(err))
	}
	return &Tx{
		r:  tr,
		tr: tr,
		finish: func(commit bool) error {
			if commit {
				// A failed commit leaves the leveldb transaction open.
				if err := tr.Commit(); err != nil {
					tr.Discard()
					return err
				}
				return nil
			}
			tr.Discard()
			return nil
		},
	}, nil
}

func (d *DB) Close() error {
	if err := d.ldb.Close(); err != nil {
		return fmt.Errorf("closing leveldb: %w", err)
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leveldb.ErrClosed):
		return fmt.Errorf("%w: %v", db.ErrClosed, err)
	case errors.Is(err, leveldb.ErrReadOnly):
		return fmt.Errorf("%w: %v", db.ErrReadOnly, err)
	}
	return err
}
