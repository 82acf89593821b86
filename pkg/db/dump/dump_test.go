package dump

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/encoding/protowire"

	"txdb/pkg/db"
	"txdb/pkg/db/dbtest"
	"txdb/pkg/db/memdb"
)

func populated(t *testing.T) *memdb.DB {
	t.Helper()
	d := memdb.New(memdb.Options{})
	t.Cleanup(func() { d.Close() })
	dbtest.Put(t, d, "accounts", "alice", "10", "bob", "20")
	dbtest.Put(t, d, "logs", "1", "boot", "2", "")
	return d
}

func export(t *testing.T, d db.Database, tables ...db.Table) ([]byte, Stats) {
	t.Helper()
	var buf bytes.Buffer
	type res struct {
		st  Stats
		err error
	}
	r, err := db.View(d, func(tx db.DbTx) res {
		st, err := Export(&buf, tx, tables...)
		return res{st, err}
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.err != nil {
		t.Fatalf("export: %v", r.err)
	}
	return buf.Bytes(), r.st
}

func restore(d db.Database, dump []byte) (Stats, error, error) {
	type res struct {
		st  Stats
		err error
	}
	r, err := db.Update(d, func(tx db.DbTxMut) res {
		st, err := Import(bytes.NewReader(dump), tx)
		return res{st, err}
	})
	return r.st, r.err, err
}

func contents(t *testing.T, d db.Database) map[db.Table][]string {
	t.Helper()
	out, err := db.View(d, func(tx db.DbTx) map[db.Table][]string {
		tables, err := tx.Tables()
		if err != nil {
			t.Fatal(err)
		}
		m := make(map[db.Table][]string)
		for _, tbl := range tables {
			m[tbl] = dbtest.Walk(t, tx, tbl)
		}
		return m
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	src := populated(t)
	dump, st := export(t, src)
	if diff := cmp.Diff(Stats{Tables: 2, Entries: 4, Bytes: int64(len(dump))}, st); diff != "" {
		t.Errorf("export stats (-want +got):\n%s", diff)
	}

	dst := memdb.New(memdb.Options{})
	defer dst.Close()
	ist, ierr, err := restore(dst, dump)
	if err != nil || ierr != nil {
		t.Fatalf("restore: %v / %v", err, ierr)
	}
	if diff := cmp.Diff(st, ist); diff != "" {
		t.Errorf("import stats (-export +import):\n%s", diff)
	}
	if diff := cmp.Diff(contents(t, src), contents(t, dst)); diff != "" {
		t.Errorf("restored contents (-src +dst):\n%s", diff)
	}
}

func TestExportSelectedTables(t *testing.T) {
	src := populated(t)
	dump, st := export(t, src, "logs", "missing")
	if st.Tables != 2 || st.Entries != 2 {
		t.Errorf("stats = %+v, want 2 tables 2 entries", st)
	}

	dst := memdb.New(memdb.Options{})
	defer dst.Close()
	if _, ierr, err := restore(dst, dump); err != nil || ierr != nil {
		t.Fatalf("restore: %v / %v", err, ierr)
	}
	want := map[db.Table][]string{"logs": {"1=boot", "2="}}
	if diff := cmp.Diff(want, contents(t, dst)); diff != "" {
		t.Errorf("contents (-want +got):\n%s", diff)
	}
}

func TestEmptyDump(t *testing.T) {
	src := memdb.New(memdb.Options{})
	defer src.Close()
	dump, st := export(t, src)
	if st.Entries != 0 || st.Tables != 0 {
		t.Errorf("stats = %+v", st)
	}
	dst := memdb.New(memdb.Options{})
	defer dst.Close()
	if _, ierr, err := restore(dst, dump); err != nil || ierr != nil {
		t.Fatalf("restore: %v / %v", err, ierr)
	}
}

func TestImportRejectsCorruption(t *testing.T) {
	dump, _ := export(t, populated(t))

	flipped := bytes.Clone(dump)
	flipped[len(magic)+4] ^= 0xff

	badVersion := bytes.Clone(dump)
	badVersion[len(magic)] = 9

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrBadMagic},
		{"bad magic", append([]byte("NOTADUMP"), dump[len(magic):]...), ErrBadMagic},
		{"bad version", badVersion, ErrBadVersion},
		{"truncated", dump[:len(dump)-10], ErrTruncated},
		{"header only", dump[:len(magic)+1], ErrTruncated},
		{"trailing data", append(bytes.Clone(dump), 0), ErrBadRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := memdb.New(memdb.Options{})
			defer dst.Close()
			_, ierr, err := restore(dst, tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if !errors.Is(ierr, tt.want) {
				t.Errorf("import error = %v, want %v", ierr, tt.want)
			}
			if db.KindOf(ierr) != db.KindDecode {
				t.Errorf("kind = %v, want decode", db.KindOf(ierr))
			}
			if got := contents(t, dst); len(got) != 0 {
				t.Errorf("corrupt dump wrote %v", got)
			}
		})
	}

	t.Run("flipped byte", func(t *testing.T) {
		dst := memdb.New(memdb.Options{})
		defer dst.Close()
		_, ierr, err := restore(dst, flipped)
		if err != nil {
			t.Fatal(err)
		}
		if ierr == nil || db.KindOf(ierr) != db.KindDecode {
			t.Errorf("import of flipped dump = %v, want decode error", ierr)
		}
		if got := contents(t, dst); len(got) != 0 {
			t.Errorf("corrupt dump wrote %v", got)
		}
	})
}

func TestImportIntoReadTx(t *testing.T) {
	dump, _ := export(t, populated(t))
	ro := memdb.New(memdb.Options{ReadOnly: true})
	defer ro.Close()
	_, ierr, err := restore(ro, dump)
	if ierr != nil {
		t.Fatalf("fn ran on read-only db: %v", ierr)
	}
	if !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("restore into read-only = %v, want ErrReadOnly", err)
	}
}

// encodeDump builds a well-formed dump holding the given entries verbatim,
// including ones Export would never write.
func encodeDump(entries ...entry) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(version)
	for _, e := range entries {
		var rec []byte
		rec = protowire.AppendTag(rec, fieldTable, protowire.BytesType)
		rec = protowire.AppendString(rec, string(e.table))
		rec = protowire.AppendTag(rec, fieldKey, protowire.BytesType)
		rec = protowire.AppendBytes(rec, e.key)
		rec = protowire.AppendTag(rec, fieldValue, protowire.BytesType)
		rec = protowire.AppendBytes(rec, e.value)
		buf.Write(protowire.AppendVarint(nil, uint64(len(rec))))
		buf.Write(rec)
	}
	sum := blake2b.Sum256(buf.Bytes())
	var trailer []byte
	trailer = protowire.AppendTag(trailer, fieldChecksum, protowire.BytesType)
	trailer = protowire.AppendBytes(trailer, sum[:])
	buf.Write(protowire.AppendVarint(nil, uint64(len(trailer))))
	buf.Write(trailer)
	return buf.Bytes()
}

func TestImportRejectsEmptyKey(t *testing.T) {
	good := encodeDump(entry{table: "t", key: []byte("a"), value: []byte("1")})
	dst := memdb.New(memdb.Options{})
	defer dst.Close()
	if _, ierr, err := restore(dst, good); err != nil || ierr != nil {
		t.Fatalf("hand-built dump: %v / %v", err, ierr)
	}

	bad := encodeDump(
		entry{table: "u", key: []byte("b"), value: []byte("2")},
		entry{table: "u", key: nil, value: []byte("3")},
	)
	_, ierr, err := restore(dst, bad)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(ierr, ErrBadRecord) || db.KindOf(ierr) != db.KindDecode {
		t.Fatalf("import with empty key = %v, want decode error", ierr)
	}
	want := map[db.Table][]string{"t": {"a=1"}}
	if diff := cmp.Diff(want, contents(t, dst)); diff != "" {
		t.Errorf("contents after rejected dump (-want +got):\n%s", diff)
	}
}
