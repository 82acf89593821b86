package db

import (
	"errors"
	"fmt"
)

// Kind tags why a database operation failed.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindOpen: the storage engine itself could not be opened.
	KindOpen
	// KindInitTx: a transaction could not be opened (resource limits,
	// released handle, closed engine).
	KindInitTx
	// KindReadOnly: a write transaction was requested from a database opened
	// read-only. Distinct from KindInitTx.
	KindReadOnly
	KindCommit
	KindRead
	KindWrite
	KindDelete
	KindCursor
	// KindTxClosed: the transaction was already committed or aborted.
	KindTxClosed
	KindImport
	KindDecode
)

var kindNames = [...]string{
	KindUnknown:  "unknown",
	KindOpen:     "open",
	KindInitTx:   "init-tx",
	KindReadOnly: "read-only",
	KindCommit:   "commit",
	KindRead:     "read",
	KindWrite:    "write",
	KindDelete:   "delete",
	KindCursor:   "cursor",
	KindTxClosed: "tx-closed",
	KindImport:   "import",
	KindDecode:   "decode",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsOpenFailure reports whether k means a transaction could not be opened.
func (k Kind) IsOpenFailure() bool {
	return k == KindInitTx || k == KindReadOnly
}

var (
	ErrReadOnly       = errors.New("database is read-only")
	ErrTxLimit        = errors.New("too many open read transactions")
	ErrTxClosed       = errors.New("transaction already finalized")
	ErrHandleReleased = errors.New("database handle released")
	ErrClosed         = errors.New("database closed")
	ErrInvalidTable   = errors.New("invalid table name")
	ErrEmptyKey       = errors.New("key must not be empty")
)

// Error is the failure type returned across the Database boundary.
type Error struct {
	Kind Kind
	Op   string // backend operation, e.g. "bolt.Begin"
	Err  error
}

// NewError builds an *Error. A nil err yields nil.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
