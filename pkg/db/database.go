// Package db defines the transactional capability shared by every storage
// backend in this module and the helpers that scope transactions to a call.
//
// Database is sealed: a type outside pkg/db cannot declare the Seal method,
// so new engines cannot be plugged in from other packages. Any package may
// hold a Database and call its methods, View and Update. The seal does not
// survive embedding: a struct that embeds an exported wrapper (Ref, Shared,
// metrics.Database) inherits Seal and may override Tx and TxMut. Such a type
// can only decorate a database this module opened; it cannot add an engine.
package db

import (
	"txdb/internal/logging"
	"txdb/pkg/db/internal/seal"
)

var logger = logging.For("db")

// Database opens read-only and read-write transactions. Implementations are
// safe for concurrent use; the transactions they return are not.
//
// Each successful open holds engine resources (snapshots, locks, reader
// slots) until the transaction is committed or aborted.
type Database interface {
	// Tx opens a read-only transaction.
	Tx() (DbTx, error)
	// TxMut opens a read-write transaction. It fails with ErrReadOnly
	// (KindReadOnly) when the database was opened read-only.
	TxMut() (DbTxMut, error)

	seal.Sealed
}

// View runs fn inside a read-only transaction and commits it before
// returning fn's result.
//
// If the transaction cannot be opened fn is not called. If the commit fails
// the commit error is returned and fn's result is dropped, even when fn
// succeeded. If fn panics the transaction is aborted and the panic resumes.
func View[T any](d Database, fn func(tx DbTx) T) (T, error) {
	tx, err := d.Tx()
	if err != nil {
		var zero T
		return zero, err
	}
	return finalize(tx, "view", func() T { return fn(tx) })
}

// Update is View for read-write transactions. fn's writes are committed
// whatever fn returns; a caller that needs to undo work must not use Update.
func Update[T any](d Database, fn func(tx DbTxMut) T) (T, error) {
	tx, err := d.TxMut()
	if err != nil {
		var zero T
		return zero, err
	}
	return finalize(tx, "update", func() T { return fn(tx) })
}

// finalize runs body then commits tx exactly once. The abort in the
// deferred call only fires when body panicked.
func finalize[T any](tx DbTx, scope string, body func() T) (res T, err error) {
	done := false
	defer func() {
		if !done {
			tx.Abort()
		}
	}()

	res = body()
	done = true

	if err := tx.Commit(); err != nil {
		logger.Debug("commit failed, dropping result", "scope", scope, "err", err)
		var zero T
		return zero, err
	}
	return res, nil
}
