// Package sqlite implements db.Database on SQLite through the pure-Go
// modernc driver. All tables live in one kv relation keyed by (tbl, k).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"txdb/internal/logging"
	"txdb/pkg/db"
	"txdb/pkg/db/internal/seal"
	"txdb/pkg/db/internal/slots"
)

var logger = logging.For("sqlite")

const schema = `CREATE TABLE IF NOT EXISTS kv (
	tbl TEXT NOT NULL,
	k   BLOB NOT NULL,
	v   BLOB NOT NULL,
	PRIMARY KEY (tbl, k)
) WITHOUT ROWID`

// Options tunes Open.
type Options struct {
	ReadOnly bool
	// MaxReaders caps concurrently open read transactions. Zero is unlimited.
	MaxReaders int
	// BusyTimeout is how long SQLite waits on a locked file. Zero uses 5s.
	BusyTimeout time.Duration
}

// DB is a SQLite-backed database.
type DB struct {
	seal.Marker

	path     string
	sdb      *sql.DB
	readOnly bool
	readers  *slots.Slots
	writer   sync.Mutex
	closed   atomic.Bool
}

var _ db.Database = (*DB)(nil)

// dsn builds a file: URI so SQLite honours mode=ro; the driver strips the
// _pragma parameters and applies them to every pooled connection.
func dsn(path string, opts Options) string {
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	q := fmt.Sprintf("_pragma=busy_timeout(%d)", timeout.Milliseconds())
	if opts.ReadOnly {
		q = "mode=ro&" + q
	} else {
		q += "&_pragma=journal_mode(WAL)"
	}
	return "file:" + path + "?" + q
}

// Open creates or opens a SQLite database file at path. A read-only open
// requires the file to exist.
func Open(path string, opts Options) (*DB, error) {
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, db.NewError(db.KindOpen, "sqlite.Open", err)
		}
	}
	sdb, err := sql.Open("sqlite", dsn(path, opts))
	if err != nil {
		return nil, db.NewError(db.KindOpen, "sqlite.Open", fmt.Errorf("open database: %w", err))
	}
	ctx := context.Background()
	if err := sdb.PingContext(ctx); err != nil {
		sdb.Close()
		return nil, db.NewError(db.KindOpen, "sqlite.Ping", fmt.Errorf("ping database: %w", err))
	}
	if !opts.ReadOnly {
		if _, err := sdb.ExecContext(ctx, schema); err != nil {
			sdb.Close()
			return nil, db.NewError(db.KindOpen, "sqlite.Schema", fmt.Errorf("create schema: %w", err))
		}
	}
	logger.Debug("opened", "path", path, "read_only", opts.ReadOnly)
	return &DB{
		path:     path,
		sdb:      sdb,
		readOnly: opts.ReadOnly,
		readers:  slots.New(opts.MaxReaders),
	}, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

func (d *DB) Tx() (db.DbTx, error) {
	if d.closed.Load() {
		return nil, db.NewError(db.KindInitTx, "sqlite.Tx", db.ErrClosed)
	}
	if !d.readers.Acquire() {
		return nil, db.NewError(db.KindInitTx, "sqlite.Tx", db.ErrTxLimit)
	}
	stx, err := d.sdb.BeginTx(context.Background(), nil)
	if err != nil {
		d.readers.Release()
		return nil, db.NewError(db.KindInitTx, "sqlite.Begin", err)
	}
	return &Tx{stx: stx, release: d.readers.Release}, nil
}

// TxMut serializes writers in-process; SQLite allows one writer per file.
func (d *DB) TxMut() (db.DbTxMut, error) {
	if d.readOnly {
		return nil, db.NewError(db.KindReadOnly, "sqlite.TxMut", db.ErrReadOnly)
	}
	if d.closed.Load() {
		return nil, db.NewError(db.KindInitTx, "sqlite.TxMut", db.ErrClosed)
	}
	d.writer.Lock()
	stx, err := d.sdb.BeginTx(context.Background(), nil)
	if err != nil {
		d.writer.Unlock()
		return nil, db.NewError(db.KindInitTx, "sqlite.Begin", err)
	}
	return &Tx{stx: stx, writable: true, release: d.writer.Unlock}, nil
}

func (d *DB) Close() error {
	d.closed.Store(true)
	if err := d.sdb.Close(); err != nil {
		return fmt.Errorf("closing sqlite: %w", err)
	}
	return nil
}
