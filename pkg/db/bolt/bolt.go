// Package bolt implements db.Database on bbolt. Each table is a top-level
// bucket, created on first write.
package bolt

import (
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"txdb/internal/logging"
	"txdb/pkg/db"
	"txdb/pkg/db/internal/seal"
	"txdb/pkg/db/internal/slots"
)

var logger = logging.For("bolt")

// Options tunes Open.
type Options struct {
	ReadOnly bool
	// MaxReaders caps concurrently open read transactions. Zero is unlimited.
	MaxReaders int
	// Timeout bounds the wait for the file lock. Zero waits forever.
	Timeout time.Duration
	NoSync  bool
	// MmapSize is the initial mmap size. A large enough value keeps
	// writers from waiting on open readers to remap. Zero uses 16 MiB.
	MmapSize int
}

const defaultMmapSize = 16 << 20

// DB is a bbolt-backed database.
type DB struct {
	seal.Marker

	path     string
	bdb      *bolt.DB
	readOnly bool
	readers  *slots.Slots
}

var _ db.Database = (*DB)(nil)

// Open creates or opens a bbolt database at path. A read-only open requires
// the file to exist.
func Open(path string, opts Options) (*DB, error) {
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, db.NewError(db.KindOpen, "bolt.Open", err)
		}
	}
	if opts.MmapSize <= 0 {
		opts.MmapSize = defaultMmapSize
	}
	bdb, err := bolt.Open(path, 0600, &bolt.Options{
		ReadOnly:        opts.ReadOnly,
		Timeout:         opts.Timeout,
		NoSync:          opts.NoSync,
		InitialMmapSize: opts.MmapSize,
	})
	if err != nil {
		return nil, db.NewError(db.KindOpen, "bolt.Open", fmt.Errorf("opening bolt db %s: %w", path, err))
	}
	logger.Debug("opened", "path", path, "read_only", opts.ReadOnly)
	return &DB{
		path:     path,
		bdb:      bdb,
		readOnly: opts.ReadOnly,
		readers:  slots.New(opts.MaxReaders),
	}, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// ReadOnly reports whether the database was opened read-only.
func (d *DB) ReadOnly() bool { return d.readOnly }

func (d *DB) Tx() (db.DbTx, error) {
	if !d.readers.Acquire() {
		return nil, db.NewError(db.KindInitTx, "bolt.Tx", db.ErrTxLimit)
	}
	btx, err := d.bdb.Begin(false)
	if err != nil {
		d.readers.Release()
		return nil, db.NewError(db.KindInitTx, "bolt.Begin", mapErr(err))
	}
	return &Tx{btx: btx, release: d.readers.Release}, nil
}

func (d *DB) TxMut() (db.DbTxMut, error) {
	if d.readOnly {
		return nil, db.NewError(db.KindReadOnly, "bolt.TxMut", db.ErrReadOnly)
	}
	btx, err := d.bdb.Begin(true)
	if err != nil {
		return nil, db.NewError(db.KindInitTx, "bolt.Begin", mapErr(err))
	}
	return &Tx{btx: btx, release: func() {}}, nil
}

// Close closes the underlying file. It waits for open read transactions.
func (d *DB) Close() error {
	if err := d.bdb.Close(); err != nil {
		return fmt.Errorf("closing bolt db: %w", err)
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return fmt.Errorf("%w: %v", db.ErrClosed, err)
	case errors.Is(err, bolt.ErrDatabaseReadOnly), errors.Is(err, bolt.ErrTxNotWritable):
		return fmt.Errorf("%w: %v", db.ErrReadOnly, err)
	}
	return err
}
