package bolt

import (
	bolt "go.etcd.io/bbolt"

	"txdb/pkg/db"
)

// Tx wraps a bolt transaction. Read transactions are finalized by rolling
// back the bolt tx, which is how bolt releases a reader.
type Tx struct {
	btx     *bolt.Tx
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

func (t *Tx) Get(table db.Table, key []byte) ([]byte, error) {
	if err := t.checkTable(db.KindRead, "bolt.Get", table); err != nil {
		return nil, err
	}
	b := t.btx.Bucket([]byte(table))
	if b == nil {
		return nil, nil
	}
	return clone(b.Get(key)), nil
}

func (t *Tx) Cursor(table db.Table) (db.Cursor, error) {
	if err := t.checkTable(db.KindCursor, "bolt.Cursor", table); err != nil {
		return nil, err
	}
	c := &cursor{tx: t}
	if b := t.btx.Bucket([]byte(table)); b != nil {
		c.bc = b.Cursor()
	}
	return c, nil
}

func (t *Tx) Entries(table db.Table) (int, error) {
	if err := t.checkTable(db.KindRead, "bolt.Entries", table); err != nil {
		return 0, err
	}
	b := t.btx.Bucket([]byte(table))
	if b == nil {
		return 0, nil
	}
	n := 0
	err := b.ForEach(func(_, _ []byte) error {
		n++
		return nil
	})
	return n, db.NewError(db.KindRead, "bolt.Entries", err)
}

func (t *Tx) Tables() ([]db.Table, error) {
	if err := t.check("bolt.Tables"); err != nil {
		return nil, err
	}
	var out []db.Table
	err := t.btx.ForEach(func(name []byte, b *bolt.Bucket) error {
		if k, _ := b.Cursor().First(); k != nil {
			out = append(out, db.Table(name))
		}
		return nil
	})
	if err != nil {
		return nil, db.NewError(db.KindRead, "bolt.Tables", err)
	}
	return out, nil
}

func (t *Tx) Put(table db.Table, key, value []byte) error {
	if err := t.checkTable(db.KindWrite, "bolt.Put", table); err != nil {
		return err
	}
	if err := db.ValidateKey(key); err != nil {
		return db.NewError(db.KindWrite, "bolt.Put", err)
	}
	b, err := t.btx.CreateBucketIfNotExists([]byte(table))
	if err != nil {
		return db.NewError(db.KindWrite, "bolt.CreateBucket", mapErr(err))
	}
	// bolt keeps the slices until commit.
	return db.NewError(db.KindWrite, "bolt.Put", mapErr(b.Put(clone(key), clone(value))))
}

func (t *Tx) Delete(table db.Table, key []byte) error {
	if err := t.checkTable(db.KindDelete, "bolt.Delete", table); err != nil {
		return err
	}
	if !t.btx.Writable() {
		return db.NewError(db.KindDelete, "bolt.Delete", db.ErrReadOnly)
	}
	b := t.btx.Bucket([]byte(table))
	if b == nil {
		return nil
	}
	return db.NewError(db.KindDelete, "bolt.Delete", mapErr(b.Delete(key)))
}

func (t *Tx) ClearTable(table db.Table) error {
	if err := t.checkTable(db.KindDelete, "bolt.ClearTable", table); err != nil {
		return err
	}
	if !t.btx.Writable() {
		return db.NewError(db.KindDelete, "bolt.ClearTable", db.ErrReadOnly)
	}
	if t.btx.Bucket([]byte(table)) == nil {
		return nil
	}
	return db.NewError(db.KindDelete, "bolt.DeleteBucket", mapErr(t.btx.DeleteBucket([]byte(table))))
}

func (t *Tx) ImportTable(table db.Table, src db.DbTx) error {
	if err := t.checkTable(db.KindImport, "bolt.ImportTable", table); err != nil {
		return err
	}
	n, err := db.CopyTable(t, table, src)
	logger.Debug("imported table", "table", table, "entries", n)
	return err
}

func (t *Tx) Commit() error {
	if t.done {
		return db.NewError(db.KindTxClosed, "bolt.Commit", db.ErrTxClosed)
	}
	t.done = true
	defer t.release()
	if !t.btx.Writable() {
		return db.NewError(db.KindCommit, "bolt.Rollback", t.btx.Rollback())
	}
	return db.NewError(db.KindCommit, "bolt.Commit", mapErr(t.btx.Commit()))
}

func (t *Tx) Abort() {
	if t.done {
		return
	}
	t.done = true
	defer t.release()
	if err := t.btx.Rollback(); err != nil {
		logger.Warn("rollback failed", "err", err)
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
