package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"txdb/pkg/db"
)

// Tx wraps a database/sql transaction. Read transactions are plain
// deferred transactions; SQLite takes the read snapshot on first query.
type Tx struct {
	stx      *sql.Tx
	writable bool
	release  func()
	done     bool
}

var _ db.DbTxMut = (*Tx)(nil)

var background = context.Background()

// nonNil keeps NOT NULL blob columns from binding nil slices as NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func (t *Tx) check(op string) error {
	if t.done {
		return db.NewError(db.KindTxClosed, op, db.ErrTxClosed)
	}
	return nil
}

func (t *Tx) checkTable(kind db.Kind, op string, table db.Table) error {
	if err := t.check(op); err != nil {
		return err
	}
	return db.NewError(kind, op, table.Validate())
}

func (t *Tx) mutable(kind db.Kind, op string, table db.Table) error {
	if err := t.checkTable(kind, op, table); err != nil {
		return err
	}
	if !t.writable {
		return db.NewError(kind, op, db.ErrReadOnly)
	}
	return nil
}

func (t *Tx) Get(table db.Table, key []byte) ([]byte, error) {
	if err := t.checkTable(db.KindRead, "sqlite.Get", table); err != nil {
		return nil, err
	}
	var v []byte
	err := t.stx.QueryRowContext(background,
		`SELECT v FROM kv WHERE tbl = ? AND k = ?`, string(table), nonNil(key),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.NewError(db.KindRead, "sqlite.Get", err)
	}
	return nonNil(v), nil
}

func (t *Tx) Cursor(table db.Table) (db.Cursor, error) {
	if err := t.checkTable(db.KindCursor, "sqlite.Cursor", table); err != nil {
		return nil, err
	}
	return &cursor{tx: t, table: string(table)}, nil
}

func (t *Tx) Entries(table db.Table) (int, error) {
	if err := t.checkTable(db.KindRead, "sqlite.Entries", table); err != nil {
		return 0, err
	}
	var n int
	err := t.stx.QueryRowContext(background, `SELECT COUNT(*) FROM kv WHERE tbl = ?`, string(table)).Scan(&n)
	return n, db.NewError(db.KindRead, "sqlite.Entries", err)
}

func (t *Tx) Tables() ([]db.Table, error) {
	if err := t.check("sqlite.Tables"); err != nil {
		return nil, err
	}
	rows, err := t.stx.QueryContext(background, `SELECT DISTINCT tbl FROM kv ORDER BY tbl`)
	if err != nil {
		return nil, db.NewError(db.KindRead, "sqlite.Tables", err)
	}
	defer rows.Close()

	var out []db.Table
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, db.NewError(db.KindRead, "sqlite.Tables", err)
		}
		out = append(out, db.Table(name))
	}
	return out, db.NewError(db.KindRead, "sqlite.Tables", rows.Err())
}

func (t *Tx) Put(table db.Table, key, value []byte) error {
	if err := t.mutable(db.KindWrite, "sqlite.Put", table); err != nil {
		return err
	}
	if err := db.ValidateKey(key); err != nil {
		return db.NewError(db.KindWrite, "sqlite.Put", err)
	}
	_, err := t.stx.ExecContext(background,
		`INSERT OR REPLACE INTO kv (tbl, k, v) VALUES (?, ?, ?)`,
		string(table), nonNil(key), nonNil(value),
	)
	return db.NewError(db.KindWrite, "sqlite.Put", err)
}

func (t *Tx) Delete(table db.Table, key []byte) error {
	if err := t.mutable(db.KindDelete, "sqlite.Delete", table); err != nil {
		return err
	}
	_, err := t.stx.ExecContext(background, `DELETE FROM kv WHERE tbl = ? AND k = ?`, string(table), nonNil(key))
	return db.NewError(db.KindDelete, "sqlite.Delete", err)
}

func (t *Tx) ClearTable(table db.Table) error {
	if err := t.mutable(db.KindDelete, "sqlite.ClearTable", table); err != nil {
		return err
	}
	_, err := t.stx.ExecContext(background, `DELETE FROM kv WHERE tbl = ?`, string(table))
	return db.NewError(db.KindDelete, "sqlite.ClearTable", err)
}

func (t *Tx) ImportTable(table db.Table, src db.DbTx) error {
	if err := t.mutable(db.KindImport, "sqlite.ImportTable", table); err != nil {
		return err
	}
	n, err := db.CopyTable(t, table, src)
	logger.Debug("imported table", "table", table, "entries", n)
	return err
}

func (t *Tx) Commit() error {
	if t.done {
		return db.NewError(db.KindTxClosed, "sqlite.Commit", db.ErrTxClosed)
	}
	t.done = true
	defer t.release()
	return db.NewError(db.KindCommit, "sqlite.Commit", t.stx.Commit())
}

func (t *Tx) Abort() {
	if t.done {
		return
	}
	t.done = true
	defer t.release()
	if err := t.stx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warn("rollback failed", "err", err)
	}
}
