// Package memdb is an in-memory db.Database built on a copy-on-write B-tree.
// Readers see the tree published when they opened; a writer works on a
// clone and publishes it on commit.
package memdb

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"txdb/internal/logging"
	"txdb/pkg/db"
	"txdb/pkg/db/internal/seal"
	"txdb/pkg/db/internal/slots"
)

var logger = logging.For("memdb")

const degree = 32

type item struct {
	table db.Table
	key   []byte
	value []byte
}

func less(a, b item) bool {
	if a.table != b.table {
		return a.table < b.table
	}
	return bytes.Compare(a.key, b.key) < 0
}

type tree = btree.BTreeG[item]

// Options tunes New.
type Options struct {
	// ReadOnly makes TxMut fail. Use Freeze to seal a populated database.
	ReadOnly bool
	// MaxReaders caps concurrently open read transactions. Zero is unlimited.
	MaxReaders int
}

// DB is an in-memory database.
type DB struct {
	seal.Marker

	published atomic.Pointer[tree]
	writer    sync.Mutex
	readOnly  atomic.Bool
	closed    atomic.Bool
	readers   *slots.Slots
}

var _ db.Database = (*DB)(nil)

// New returns an empty database.
func New(opts Options) *DB {
	d := &DB{readers: slots.New(opts.MaxReaders)}
	d.published.Store(btree.NewG(degree, less))
	d.readOnly.Store(opts.ReadOnly)
	return d
}

// Freeze makes the database read-only from now on. Transactions already
// open are unaffected.
func (d *DB) Freeze() {
	d.readOnly.Store(true)
}

func (d *DB) Tx() (db.DbTx, error) {
	if d.closed.Load() {
		return nil, db.NewError(db.KindInitTx, "memdb.Tx", db.ErrClosed)
	}
	if !d.readers.Acquire() {
		return nil, db.NewError(db.KindInitTx, "memdb.Tx", db.ErrTxLimit)
	}
	return &Tx{t: d.published.Load(), release: d.readers.Release}, nil
}

// TxMut blocks while another write transaction is open.
func (d *DB) TxMut() (db.DbTxMut, error) {
	if d.readOnly.Load() {
		return nil, db.NewError(db.KindReadOnly, "memdb.TxMut", db.ErrReadOnly)
	}
	if d.closed.Load() {
		return nil, db.NewError(db.KindInitTx, "memdb.TxMut", db.ErrClosed)
	}
	d.writer.Lock()
	// Clone under the writer lock; it is the only mutation of a published tree.
	work := d.published.Load().Clone()
	return &Tx{t: work, db: d, release: d.writer.Unlock}, nil
}

// publish installs a committed tree.
func (d *DB) publish(t *tree) error {
	if d.closed.Load() {
		return db.ErrClosed
	}
	d.published.Store(t)
	logger.Debug("published", "items", t.Len())
	return nil
}

// Close drops the data. Open transactions keep their view.
func (d *DB) Close() error {
	d.closed.Store(true)
	return nil
}
