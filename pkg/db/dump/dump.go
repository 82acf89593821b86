// Package dump streams tables out of a read transaction and back into a
// write transaction.
//
// A dump is the magic "TXDBDUMP", a version byte, then uvarint
// length-prefixed protobuf-wire records. Entry records carry fields 1
// (table), 2 (key) and 3 (value). The last record carries only field 15, the
// BLAKE2b-256 sum of every byte before that record.
package dump

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/encoding/protowire"

	"txdb/internal/logging"
	"txdb/pkg/db"
)

var logger = logging.For("dump")

const (
	magic   = "TXDBDUMP"
	version = 1

	fieldTable    protowire.Number = 1
	fieldKey      protowire.Number = 2
	fieldValue    protowire.Number = 3
	fieldChecksum protowire.Number = 15

	// maxRecord bounds a single record so a corrupt length cannot force a
	// huge allocation.
	maxRecord = 64 << 20
)

var (
	ErrBadMagic   = errors.New("not a txdb dump")
	ErrBadVersion = errors.New("unsupported dump version")
	ErrChecksum   = errors.New("dump checksum mismatch")
	ErrTruncated  = errors.New("dump truncated")
	ErrBadRecord  = errors.New("malformed dump record")
)

// Stats summarizes an export or import.
type Stats struct {
	Tables  int
	Entries int
	Bytes   int64
}

type entry struct {
	table db.Table
	key   []byte
	value []byte
}

// Export writes every entry of tables visible in tx to w. With no tables it
// exports every table tx reports.
func Export(w io.Writer, tx db.DbTx, tables ...db.Table) (Stats, error) {
	var st Stats
	if len(tables) == 0 {
		all, err := tx.Tables()
		if err != nil {
			return st, err
		}
		tables = all
	}

	sum, _ := blake2b.New256(nil)
	cw := &countWriter{w: io.MultiWriter(w, sum)}
	if _, err := cw.Write(append([]byte(magic), version)); err != nil {
		return st, fmt.Errorf("writing header: %w", err)
	}

	var rec []byte
	for _, table := range tables {
		n, err := exportTable(cw, tx, table, &rec)
		if err != nil {
			return st, err
		}
		st.Tables++
		st.Entries += n
	}

	rec = protowire.AppendTag(rec[:0], fieldChecksum, protowire.BytesType)
	rec = protowire.AppendBytes(rec, sum.Sum(nil))
	if err := writeRecord(cw, rec); err != nil {
		return st, err
	}
	st.Bytes = cw.n
	logger.Debug("exported", "tables", st.Tables, "entries", st.Entries, "bytes", st.Bytes)
	return st, nil
}

func exportTable(w io.Writer, tx db.DbTx, table db.Table, rec *[]byte) (n int, err error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	for k, v, err := c.First(); ; k, v, err = c.Next() {
		if err != nil {
			return n, err
		}
		if k == nil {
			return n, nil
		}
		b := (*rec)[:0]
		b = protowire.AppendTag(b, fieldTable, protowire.BytesType)
		b = protowire.AppendString(b, string(table))
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendBytes(b, k)
		b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
		*rec = b
		if err := writeRecord(w, b); err != nil {
			return n, err
		}
		n++
	}
}

func writeRecord(w io.Writer, rec []byte) error {
	var hdr [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(hdr[:], uint64(len(rec)))
	if _, err := w.Write(hdr[:l]); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if _, err := w.Write(rec); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Import reads a whole dump from r, verifies its checksum and only then
// writes the entries into tx. A corrupt dump writes nothing.
func Import(r io.Reader, tx db.DbTxMut) (Stats, error) {
	var st Stats
	entries, n, err := decode(r)
	if err != nil {
		return st, db.NewError(db.KindDecode, "dump.Import", err)
	}
	st.Bytes = n

	var last db.Table
	for _, e := range entries {
		if e.table != last || st.Tables == 0 {
			st.Tables++
			last = e.table
		}
		if err := tx.Put(e.table, e.key, e.value); err != nil {
			return st, db.NewError(db.KindImport, "dump.Import", err)
		}
		st.Entries++
	}
	logger.Debug("imported", "tables", st.Tables, "entries", st.Entries, "bytes", st.Bytes)
	return st, nil
}

func decode(r io.Reader) ([]entry, int64, error) {
	sum, _ := blake2b.New256(nil)
	br := bufio.NewReader(r)
	tr := &teeReader{r: br, h: sum}

	hdr := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(tr, hdr); err != nil {
		return nil, tr.n, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(hdr[:len(magic)]) != magic {
		return nil, tr.n, ErrBadMagic
	}
	if hdr[len(magic)] != version {
		return nil, tr.n, fmt.Errorf("%w: %d", ErrBadVersion, hdr[len(magic)])
	}

	var entries []entry
	for {
		expected := sum.Sum(nil)
		rec, err := readRecord(tr)
		if err != nil {
			return nil, tr.n, err
		}
		e, checksum, err := parseRecord(rec)
		if err != nil {
			return nil, tr.n, err
		}
		if checksum != nil {
			if !bytes.Equal(checksum, expected) {
				return nil, tr.n, ErrChecksum
			}
			if _, err := br.ReadByte(); err != io.EOF {
				return nil, tr.n, fmt.Errorf("%w: data after checksum", ErrBadRecord)
			}
			return entries, tr.n, nil
		}
		entries = append(entries, e)
	}
}

func readRecord(r *teeReader) ([]byte, error) {
	l, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	if l > maxRecord {
		return nil, fmt.Errorf("%w: record of %d bytes", ErrBadRecord, l)
	}
	rec := make([]byte, l)
	if _, err := io.ReadFull(r, rec); err != nil {
		return nil, ErrTruncated
	}
	return rec, nil
}

// parseRecord returns either an entry or, for the trailer, the checksum.
func parseRecord(b []byte) (e entry, checksum []byte, err error) {
	var haveTable, haveKey, haveValue bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, nil, fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return e, nil, fmt.Errorf("%w: field %d has wire type %d", ErrBadRecord, num, typ)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return e, nil, fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldTable:
			e.table, haveTable = db.Table(v), true
		case fieldKey:
			e.key, haveKey = bytes.Clone(v), true
		case fieldValue:
			e.value, haveValue = bytes.Clone(v), true
		case fieldChecksum:
			checksum = bytes.Clone(v)
		}
	}
	if checksum != nil {
		return e, checksum, nil
	}
	if !haveTable || !haveKey || !haveValue {
		return e, nil, fmt.Errorf("%w: missing field", ErrBadRecord)
	}
	if err := e.table.Validate(); err != nil {
		return e, nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	if err := db.ValidateKey(e.key); err != nil {
		return e, nil, fmt.Errorf("%w: table %s: %v", ErrBadRecord, e.table, err)
	}
	return e, nil, nil
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// teeReader hashes and counts what it reads. It implements io.ByteReader
// for binary.ReadUvarint.
type teeReader struct {
	r *bufio.Reader
	h hash.Hash
	n int64
}

func (t *teeReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.h.Write(p[:n])
	t.n += int64(n)
	return n, err
}

func (t *teeReader) ReadByte() (byte, error) {
	b, err := t.r.ReadByte()
	if err == nil {
		t.h.Write([]byte{b})
		t.n++
	}
	return b, err
}
