package bolt

import (
	bolt "go.etcd.io/bbolt"

	"txdb/pkg/db"
)

// cursor adapts a bolt cursor. bc is nil when the bucket does not exist.
type cursor struct {
	tx     *Tx
	bc     *bolt.Cursor
	closed bool
}

func (c *cursor) step(move func() ([]byte, []byte)) ([]byte, []byte, error) {
	if c.closed || c.tx.done {
		return nil, nil, db.NewError(db.KindCursor, "bolt.Cursor", db.ErrTxClosed)
	}
	if c.bc == nil {
		return nil, nil, nil
	}
	k, v := move()
	if k == nil {
		return nil, nil, nil
	}
	return clone(k), clone(v), nil
}

func (c *cursor) First() ([]byte, []byte, error) {
	return c.step(func() ([]byte, []byte) { return c.bc.First() })
}

func (c *cursor) Last() ([]byte, []byte, error) {
	return c.step(func() ([]byte, []byte) { return c.bc.Last() })
}

func (c *cursor) Seek(key []byte) ([]byte, []byte, error) {
	return c.step(func() ([]byte, []byte) { return c.bc.Seek(key) })
}

func (c *cursor) Next() ([]byte, []byte, error) {
	return c.step(func() ([]byte, []byte) { return c.bc.Next() })
}

func (c *cursor) Prev() ([]byte, []byte, error) {
	return c.step(func() ([]byte, []byte) { return c.bc.Prev() })
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}
