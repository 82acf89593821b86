package db

// DbTx is a read-only transaction. It is owned by the goroutine that opened
// it and must be finalized with Commit, which releases the read view, or
// Abort. After either, every method fails with ErrTxClosed.
type DbTx interface {
	// Get returns a copy of the value stored under key, or nil when absent.
	Get(table Table, key []byte) ([]byte, error)
	// Cursor iterates table in key order. Close it before finalizing.
	Cursor(table Table) (Cursor, error)
	// Entries counts the keys in table.
	Entries(table Table) (int, error)
	// Tables lists the non-empty tables in key order.
	Tables() ([]Table, error)
	Commit() error
	// Abort discards the transaction. It is a no-op once finalized.
	Abort()
}

// DbTxMut is a read-write transaction. Commit makes every write visible
// atomically or fails leaving none visible.
type DbTxMut interface {
	DbTx
	TableImporter
	Put(table Table, key, value []byte) error
	Delete(table Table, key []byte) error
	// ClearTable removes every entry of table.
	ClearTable(table Table) error
}

// TableImporter bulk-copies tables between transactions.
type TableImporter interface {
	// ImportTable copies every entry of table visible in src into the
	// receiver, overwriting existing keys.
	ImportTable(table Table, src DbTx) error
}

// Cursor walks one table in ascending key order. A nil key with a nil error
// means the cursor ran off either end.
type Cursor interface {
	First() (key, value []byte, err error)
	Last() (key, value []byte, err error)
	// Seek positions at the first key >= key.
	Seek(key []byte) (k, v []byte, err error)
	Next() (key, value []byte, err error)
	Prev() (key, value []byte, err error)
	Close() error
}
