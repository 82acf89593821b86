package memdb

import (
	"bytes"

	"github.com/google/btree"

	"txdb/pkg/db"
)

// Tx reads from t. Write transactions also own t and carry db, which they
// publish to on commit.
type Tx struct {
	t       *tree
	db      *DB
	release func()
	done    bool
}

var _ db.DbTxMut = (*Tx)(nil)

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

func (t *Tx) writable(kind db.Kind, op string, table db.Table) error {
	if err := t.checkTable(kind, op, table); err != nil {
		return err
	}
	if t.db == nil {
		return db.NewError(kind, op, db.ErrReadOnly)
	}
	return nil
}

func (t *Tx) Get(table db.Table, key []byte) ([]byte, error) {
	if err := t.checkTable(db.KindRead, "memdb.Get", table); err != nil {
		return nil, err
	}
	it, ok := t.t.Get(item{table: table, key: key})
	if !ok {
		return nil, nil
	}
	return bytes.Clone(it.value), nil
}

func (t *Tx) Cursor(table db.Table) (db.Cursor, error) {
	if err := t.checkTable(db.KindCursor, "memdb.Cursor", table); err != nil {
		return nil, err
	}
	return &cursor{tx: t, table: table}, nil
}

func (t *Tx) Entries(table db.Table) (int, error) {
	if err := t.checkTable(db.KindRead, "memdb.Entries", table); err != nil {
		return 0, err
	}
	n := 0
	t.ascendTable(table, nil, func(item) bool {
		n++
		return true
	})
	return n, nil
}

func (t *Tx) Tables() ([]db.Table, error) {
	if err := t.check("memdb.Tables"); err != nil {
		return nil, err
	}
	var out []db.Table
	t.t.Ascend(func(it item) bool {
		if len(out) == 0 || out[len(out)-1] != it.table {
			out = append(out, it.table)
		}
		return true
	})
	return out, nil
}

func (t *Tx) Put(table db.Table, key, value []byte) error {
	if err := t.writable(db.KindWrite, "memdb.Put", table); err != nil {
		return err
	}
	if err := db.ValidateKey(key); err != nil {
		return db.NewError(db.KindWrite, "memdb.Put", err)
	}
	t.t.ReplaceOrInsert(item{table: table, key: bytes.Clone(key), value: bytes.Clone(value)})
	return nil
}

func (t *Tx) Delete(table db.Table, key []byte) error {
	if err := t.writable(db.KindDelete, "memdb.Delete", table); err != nil {
		return err
	}
	t.t.Delete(item{table: table, key: key})
	return nil
}

func (t *Tx) ClearTable(table db.Table) error {
	if err := t.writable(db.KindDelete, "memdb.ClearTable", table); err != nil {
		return err
	}
	var doomed []item
	t.ascendTable(table, nil, func(it item) bool {
		doomed = append(doomed, it)
		return true
	})
	for _, it := range doomed {
		t.t.Delete(it)
	}
	return nil
}

func (t *Tx) ImportTable(table db.Table, src db.DbTx) error {
	if err := t.writable(db.KindImport, "memdb.ImportTable", table); err != nil {
		return err
	}
	n, err := db.CopyTable(t, table, src)
	logger.Debug("imported table", "table", table, "entries", n)
	return err
}

func (t *Tx) Commit() error {
	if t.done {
		return db.NewError(db.KindTxClosed, "memdb.Commit", db.ErrTxClosed)
	}
	t.done = true
	defer t.release()
	if t.db == nil {
		return nil
	}
	return db.NewError(db.KindCommit, "memdb.Commit", t.db.publish(t.t))
}

func (t *Tx) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.release()
}

// ascendTable visits table's items with key >= from (all when from is nil).
func (t *Tx) ascendTable(table db.Table, from []byte, fn btree.ItemIteratorG[item]) {
	t.t.AscendGreaterOrEqual(item{table: table, key: from}, func(it item) bool {
		if it.table != table {
			return false
		}
		return fn(it)
	})
}
