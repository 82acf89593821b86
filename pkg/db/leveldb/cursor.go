package leveldb

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb/iterator"

	"txdb/pkg/db"
)

type cursor struct {
	tx       *Tx
	prefix   []byte
	it       iterator.Iterator
	released bool
}

func (c *cursor) step(ok bool) ([]byte, []byte, error) {
	if !ok {
		return nil, nil, db.NewError(db.KindCursor, "leveldb.Cursor", c.it.Error())
	}
	return bytes.Clone(c.it.Key()[len(c.prefix):]), bytes.Clone(c.it.Value()), nil
}

func (c *cursor) live() error {
	if c.released || c.tx.done {
		return db.NewError(db.KindCursor, "leveldb.Cursor", db.ErrTxClosed)
	}
	return nil
}

func (c *cursor) First() ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	return c.step(c.it.First())
}

func (c *cursor) Last() ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	return c.step(c.it.Last())
}

func (c *cursor) Seek(key []byte) ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	return c.step(c.it.Seek(append(bytes.Clone(c.prefix), key...)))
}

func (c *cursor) Next() ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	return c.step(c.it.Next())
}

func (c *cursor) Prev() ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	return c.step(c.it.Prev())
}

func (c *cursor) Close() error {
	c.release()
	return nil
}

func (c *cursor) release() {
	if c.released {
		return
	}
	c.released = true
	c.it.Release()
}
