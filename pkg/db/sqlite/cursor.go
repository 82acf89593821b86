package sqlite

import (
	"bytes"
	"database/sql"
	"errors"

	"txdb/pkg/db"
)

// cursor re-queries relative to its current key on every step.
type cursor struct {
	tx     *Tx
	table  string
	cur    []byte
	closed bool
}

const (
	qFirst = `SELECT k, v FROM kv WHERE tbl = ? ORDER BY k ASC LIMIT 1`
	qLast  = `SELECT k, v FROM kv WHERE tbl = ? ORDER BY k DESC LIMIT 1`
	qSeek  = `SELECT k, v FROM kv WHERE tbl = ? AND k >= ? ORDER BY k ASC LIMIT 1`
	qNext  = `SELECT k, v FROM kv WHERE tbl = ? AND k > ? ORDER BY k ASC LIMIT 1`
	qPrev  = `SELECT k, v FROM kv WHERE tbl = ? AND k < ? ORDER BY k DESC LIMIT 1`
)

func (c *cursor) live() error {
	if c.closed || c.tx.done {
		return db.NewError(db.KindCursor, "sqlite.Cursor", db.ErrTxClosed)
	}
	return nil
}

func (c *cursor) query(q string, args ...any) ([]byte, []byte, error) {
	if err := c.live(); err != nil {
		return nil, nil, err
	}
	var k, v []byte
	err := c.tx.stx.QueryRowContext(background, q, append([]any{c.table}, args...)...).Scan(&k, &v)
	if errors.Is(err, sql.ErrNoRows) {
		c.cur = nil
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, db.NewError(db.KindCursor, "sqlite.Cursor", err)
	}
	k, v = nonNil(k), nonNil(v)
	c.cur = bytes.Clone(k)
	return k, v, nil
}

func (c *cursor) First() ([]byte, []byte, error) { return c.query(qFirst) }

func (c *cursor) Last() ([]byte, []byte, error) { return c.query(qLast) }

func (c *cursor) Seek(key []byte) ([]byte, []byte, error) {
	return c.query(qSeek, nonNil(key))
}

func (c *cursor) Next() ([]byte, []byte, error) {
	if err := c.live(); err != nil || c.cur == nil {
		return nil, nil, err
	}
	return c.query(qNext, c.cur)
}

func (c *cursor) Prev() ([]byte, []byte, error) {
	if err := c.live(); err != nil || c.cur == nil {
		return nil, nil, err
	}
	return c.query(qPrev, c.cur)
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}
