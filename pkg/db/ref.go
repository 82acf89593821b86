package db

import "txdb/pkg/db/internal/seal"

// Ref is a borrowed view of a Database. It forwards Tx and TxMut without
// taking ownership, so it has no Close; the lender keeps the database alive.
type Ref struct {
	seal.Marker
	db Database
}

// Borrow returns a Ref forwarding to d.
func Borrow(d Database) Ref {
	return Ref{db: d}
}

func (r Ref) Tx() (DbTx, error) { return r.db.Tx() }

func (r Ref) TxMut() (DbTxMut, error) { return r.db.TxMut() }

// Target returns the borrowed database.
func (r Ref) Target() Database { return r.db }
