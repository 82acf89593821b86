package db

import (
	"fmt"
	"io"
	"sync/atomic"

	"txdb/pkg/db/internal/seal"
)

// Shared is a reference-counted owner of a Database. Every handle returned
// by Share or Clone forwards Tx and TxMut to the same inner database and
// surfaces its transactions unchanged. The inner database is closed, when it
// implements io.Closer, by the Close of the last live handle.
type Shared struct {
	seal.Marker

	inner    Database
	refs     *atomic.Int64
	released atomic.Bool
}

// Share takes ownership of d and returns its first handle.
func Share(d Database) *Shared {
	refs := new(atomic.Int64)
	refs.Store(1)
	return &Shared{inner: d, refs: refs}
}

// Clone returns a new handle to the same database. Cloning a released
// handle panics, as the database may already be closed.
func (s *Shared) Clone() *Shared {
	if s.released.Load() {
		panic("db: Clone of released Shared handle")
	}
	s.refs.Add(1)
	return &Shared{inner: s.inner, refs: s.refs}
}

// Tx opens a read transaction on the inner database. A Close of this same
// handle that races with Tx is reported as ErrHandleReleased, whatever the
// inner database returned.
func (s *Shared) Tx() (DbTx, error) {
	if s.released.Load() {
		return nil, NewError(KindInitTx, "shared.Tx", ErrHandleReleased)
	}
	tx, err := s.inner.Tx()
	if err != nil && s.released.Load() {
		return nil, NewError(KindInitTx, "shared.Tx", ErrHandleReleased)
	}
	return tx, err
}

// TxMut is Tx for write transactions.
func (s *Shared) TxMut() (DbTxMut, error) {
	if s.released.Load() {
		return nil, NewError(KindInitTx, "shared.TxMut", ErrHandleReleased)
	}
	tx, err := s.inner.TxMut()
	if err != nil && s.released.Load() {
		return nil, NewError(KindInitTx, "shared.TxMut", ErrHandleReleased)
	}
	return tx, err
}

// Close releases this handle. Calling it twice on the same handle is a
// no-op. The last release closes the inner database.
func (s *Shared) Close() error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	if s.refs.Add(-1) > 0 {
		return nil
	}
	c, ok := s.inner.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("closing shared database: %w", err)
	}
	logger.Debug("shared database closed")
	return nil
}

// Inner returns the wrapped database.
func (s *Shared) Inner() Database { return s.inner }

// Refs reports the number of live handles.
func (s *Shared) Refs() int64 { return s.refs.Load() }
