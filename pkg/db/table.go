package db

import (
	"fmt"
	"strings"
)

// Table names a keyspace inside a database.
type Table string

// Validate rejects empty names and names containing NUL, which
// prefix-encoded engines use as the table/key separator.
func (t Table) Validate() error {
	if t == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTable)
	}
	if strings.IndexByte(string(t), 0) >= 0 {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidTable, string(t))
	}
	return nil
}

func (t Table) String() string { return string(t) }

// ValidateKey rejects empty keys. Every backend applies it on Put so that
// a stored entry is always reachable through a cursor.
func ValidateKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return nil
}
