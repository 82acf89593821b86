package leveldb

import (
	"bytes"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"txdb/pkg/db"
)

// reader is satisfied by both *leveldb.Snapshot and *leveldb.Transaction.
type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

// Tx is a snapshot (read) or a leveldb transaction (write).
type Tx struct {
	r       reader
	tr      *leveldb.Transaction // nil for read transactions
	finish  func(commit bool) error
	cursors []*cursor
	done    bool
}

var _ db.DbTxMut = (*Tx)(nil)

func prefix(table db.Table) []byte {
	p := make([]byte, 0, len(table)+1)
	p = append(p, table...)
	return append(p, 0)
}

func encode(table db.Table, key []byte) []byte {
	return append(prefix(table), key...)
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

func (t *Tx) writable(kind db.Kind, op string, table db.Table) error {
	if err := t.checkTable(kind, op, table); err != nil {
		return err
	}
	if t.tr == nil {
		return db.NewError(kind, op, db.ErrReadOnly)
	}
	return nil
}

func (t *Tx) Get(table db.Table, key []byte) ([]byte, error) {
	if err := t.checkTable(db.KindRead, "leveldb.Get", table); err != nil {
		return nil, err
	}
	v, err := t.r.Get(encode(table, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, db.NewError(db.KindRead, "leveldb.Get", mapErr(err))
	}
	return v, nil
}

func (t *Tx) Cursor(table db.Table) (db.Cursor, error) {
	if err := t.checkTable(db.KindCursor, "leveldb.Cursor", table); err != nil {
		return nil, err
	}
	p := prefix(table)
	c := &cursor{tx: t, prefix: p, it: t.r.NewIterator(util.BytesPrefix(p), nil)}
	t.cursors = append(t.cursors, c)
	return c, nil
}

func (t *Tx) Entries(table db.Table) (int, error) {
	if err := t.checkTable(db.KindRead, "leveldb.Entries", table); err != nil {
		return 0, err
	}
	it := t.r.NewIterator(util.BytesPrefix(prefix(table)), nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n, db.NewError(db.KindRead, "leveldb.Entries", it.Error())
}

// Tables walks the distinct key prefixes, seeking past each table.
func (t *Tx) Tables() ([]db.Table, error) {
	if err := t.check("leveldb.Tables"); err != nil {
		return nil, err
	}
	it := t.r.NewIterator(nil, nil)
	defer it.Release()

	var out []db.Table
	for ok := it.First(); ok; {
		k := it.Key()
		i := bytes.IndexByte(k, 0)
		if i < 0 {
			ok = it.Next()
			continue
		}
		name := string(k[:i])
		out = append(out, db.Table(name))
		ok = it.Seek(append([]byte(name), 1))
	}
	return out, db.NewError(db.KindRead, "leveldb.Tables", it.Error())
}

func (t *Tx) Put(table db.Table, key, value []byte) error {
	if err := t.writable(db.KindWrite, "leveldb.Put", table); err != nil {
		return err
	}
	if err := db.ValidateKey(key); err != nil {
		return db.NewError(db.KindWrite, "leveldb.Put", err)
	}
	return db.NewError(db.KindWrite, "leveldb.Put", mapErr(t.tr.Put(encode(table, key), value, nil)))
}

func (t *Tx) Delete(table db.Table, key []byte) error {
	if err := t.writable(db.KindDelete, "leveldb.Delete", table); err != nil {
		return err
	}
	return db.NewError(db.KindDelete, "leveldb.Delete", mapErr(t.tr.Delete(encode(table, key), nil)))
}

// ClearTable collects the table's keys first; the transaction iterator must
// not observe its own deletes mid-walk.
func (t *Tx) ClearTable(table db.Table) error {
	if err := t.writable(db.KindDelete, "leveldb.ClearTable", table); err != nil {
		return err
	}
	it := t.tr.NewIterator(util.BytesPrefix(prefix(table)), nil)
	var keys [][]byte
	for it.Next() {
		keys = append(keys, bytes.Clone(it.Key()))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return db.NewError(db.KindDelete, "leveldb.ClearTable", err)
	}
	for _, k := range keys {
		if err := t.tr.Delete(k, nil); err != nil {
			return db.NewError(db.KindDelete, "leveldb.ClearTable", mapErr(err))
		}
	}
	return nil
}

func (t *Tx) ImportTable(table db.Table, src db.DbTx) error {
	if err := t.writable(db.KindImport, "leveldb.ImportTable", table); err != nil {
		return err
	}
	n, err := db.CopyTable(t, table, src)
	logger.Debug("imported table", "table", table, "entries", n)
	return err
}

func (t *Tx) Commit() error {
	if t.done {
		return db.NewError(db.KindTxClosed, "leveldb.Commit", db.ErrTxClosed)
	}
	t.close()
	return db.NewError(db.KindCommit, "leveldb.Commit", mapErr(t.finish(true)))
}

func (t *Tx) Abort() {
	if t.done {
		return
	}
	t.close()
	_ = t.finish(false)
}

// close marks the transaction finalized and releases cursors left open.
func (t *Tx) close() {
	t.done = true
	for _, c := range t.cursors {
		c.release()
	}
	t.cursors = nil
}
