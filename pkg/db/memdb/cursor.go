package memdb

import (
	"bytes"

	"txdb/pkg/db"
)

// cursor keeps only its current key; each step is a fresh tree lookup, so
// writes through the same transaction never invalidate it.
type cursor struct {
	tx     *Tx
	table  db.Table
	cur    []byte
	closed bool
}

func (c *cursor) live() error {
	if c.closed || c.tx.done {
		return db.NewError(db.KindCursor, "memdb.Cursor", db.ErrTxClosed)
	}
	return nil
}

func (c *cursor) land(it item, ok bool) ([]byte, []byte, error) {
	if !ok {
		c.cur = nil
		return nil, nil, nil
	}
	c.cur = it.key
	return bytes.Clone(it.key), bytes.Clone(it.value), nil
}

// ge finds the first item of the table with key >= from; strict skips an
// exact match.
func (c *cursor) ge(from []byte, strict bool) (item, bool) {
	var found item
	ok := false
	c.tx.ascendTable(c.table, from, func(it item) bool {
		if strict && bytes.Equal(it.key, from) {
			return true
		}
		found, ok = it, true
		return false
	})
	return found, ok
}

// lt finds the last item of the table with key < before; nil means the
// table's last item.
func (c *cursor) lt(before []byte) (item, bool) {
	var found item
	ok := false
	visit := func(it item) bool {
		if it.table != c.table {
			return false
		}
		found, ok = it, true
		return false
	}
	if before == nil {
		// The first item past this table sorts after every key of it.
		c.tx.t.DescendLessOrEqual(item{table: c.table + "\x00"}, visit)
	} else {
		c.tx.t.DescendLessOrEqual(item{table: c.table, key: before}, func(it item) bool {
			if it.table == c.table && bytes.Equal(it.key, before) {
				return true
			}
			return visit(it)
		})
	}
	return found, ok
}

func (c *cursor) First() ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	return c.land(c.ge(nil, false))
}

func (c *cursor) Last() ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	return c.land(c.lt(nil))
}

func (c *cursor) Seek(key []byte) ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	return c.land(c.ge(key, false))
}

func (c *cursor) Next() ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	if c.cur == nil {
		return nil, nil, nil
	}
	return c.land(c.ge(c.cur, true))
}

func (c *cursor) Prev() ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	if c.cur == nil {
		return nil, nil, nil
	}
	return c.land(c.lt(c.cur))
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}
