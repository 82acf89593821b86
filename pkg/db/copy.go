package db

import "fmt"

// CopyTable writes every entry of table visible in src into dst. It is the
// ImportTable implementation shared by the backends.
func CopyTable(dst DbTxMut, table Table, src DbTx) (n int, err error) {
	c, err := src.Cursor(table)
	if err != nil {
		return 0, NewError(KindImport, "copy.cursor", err)
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = NewError(KindImport, "copy.close", cerr)
		}
	}()

	for k, v, err := c.First(); ; k, v, err = c.Next() {
		if err != nil {
			return n, NewError(KindImport, "copy.next", err)
		}
		if k == nil {
			return n, nil
		}
		if err := dst.Put(table, k, v); err != nil {
			return n, NewError(KindImport, "copy.put", fmt.Errorf("key %x: %w", k, err))
		}
		n++
	}
}
