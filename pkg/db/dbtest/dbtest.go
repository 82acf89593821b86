// Package dbtest is a conformance suite for db.Database backends.
package dbtest

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"testing"

	"golang.org/x/sync/errgroup"

	"txdb/pkg/db"
)

// Harness tells the suite how to open the backend under test. Every function
// must return a fresh database and register its cleanup with t.
type Harness struct {
	// Open opens an empty writable database.
	Open func(t *testing.T) db.Database
	// OpenLimited opens an empty writable database allowing at most
	// maxReaders concurrent read transactions.
	OpenLimited func(t *testing.T, maxReaders int) db.Database
	// OpenReadOnly runs populate against a writable database, closes it and
	// reopens the same data read-only.
	OpenReadOnly func(t *testing.T, populate func(db.Database)) db.Database
}

const tbl db.Table = "accounts"

// Run executes every conformance test against h.
func Run(t *testing.T, h Harness) {
	tests := []struct {
		name string
		fn   func(*testing.T, Harness)
	}{
		{"PutGet", testPutGet},
		{"GetMissing", testGetMissing},
		{"AbortDiscards", testAbortDiscards},
		{"ReadYourWrites", testReadYourWrites},
		{"SnapshotIsolation", testSnapshotIsolation},
		{"CursorWalk", testCursorWalk},
		{"CursorMissingTable", testCursorMissingTable},
		{"EntriesAndTables", testEntriesAndTables},
		{"DeleteAndClear", testDeleteAndClear},
		{"FinalizedTx", testFinalizedTx},
		{"InvalidTable", testInvalidTable},
		{"EmptyKey", testEmptyKey},
		{"ImportTable", testImportTable},
		{"UpdateTwice", testUpdateTwice},
		{"ReadOnly", testReadOnly},
		{"ReaderLimit", testReaderLimit},
		{"ConcurrentReaders", testConcurrentReaders},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.fn(t, h) })
	}
}

// Put writes kv pairs (alternating key, value) into table in one Update.
func Put(t *testing.T, d db.Database, table db.Table, kv ...string) {
	t.Helper()
	if len(kv)%2 != 0 {
		t.Fatal("dbtest.Put: odd number of key/value arguments")
	}
	werr, err := db.Update(d, func(tx db.DbTxMut) error {
		for i := 0; i < len(kv); i += 2 {
			if err := tx.Put(table, []byte(kv[i]), []byte(kv[i+1])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if werr != nil {
		t.Fatalf("put: %v", werr)
	}
}

// Get reads one key in its own View. Missing keys read as "".
func Get(t *testing.T, d db.Database, table db.Table, key string) string {
	t.Helper()
	type res struct {
		v   []byte
		err error
	}
	r, err := db.View(d, func(tx db.DbTx) res {
		v, err := tx.Get(table, []byte(key))
		return res{v, err}
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if r.err != nil {
		t.Fatalf("get %q: %v", key, r.err)
	}
	return string(r.v)
}

// Walk returns "k=v" strings from a forward cursor scan.
func Walk(t *testing.T, tx db.DbTx, table db.Table) []string {
	t.Helper()
	c, err := tx.Cursor(table)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	defer c.Close()
	var out []string
	for k, v, err := c.First(); ; k, v, err = c.Next() {
		if err != nil {
			t.Fatalf("cursor step: %v", err)
		}
		if k == nil {
			return out
		}
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
}

func testPutGet(t *testing.T, h Harness) {
	d := h.Open(t)
	Put(t, d, tbl, "alice", "10", "bob", "20")
	if got := Get(t, d, tbl, "alice"); got != "10" {
		t.Errorf("alice = %q, want 10", got)
	}
	if got := Get(t, d, tbl, "bob"); got != "20" {
		t.Errorf("bob = %q, want 20", got)
	}
}

func testGetMissing(t *testing.T, h Harness) {
	d := h.Open(t)
	v, err := db.View(d, func(tx db.DbTx) []byte {
		v, _ := tx.Get("nowhere", []byte("k"))
		return v
	})
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("missing table read %q, want nil", v)
	}
	Put(t, d, tbl, "alice", "1")
	if got := Get(t, d, tbl, "carol"); got != "" {
		t.Errorf("missing key read %q", got)
	}
}

func testAbortDiscards(t *testing.T, h Harness) {
	d := h.Open(t)
	tx, err := d.TxMut()
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Put(tbl, []byte("ghost"), []byte("x")); err != nil {
		t.Fatal(err)
	}
	tx.Abort()
	tx.Abort()

	if got := Get(t, d, tbl, "ghost"); got != "" {
		t.Errorf("aborted write visible: %q", got)
	}
}

func testReadYourWrites(t *testing.T, h Harness) {
	d := h.Open(t)
	got, err := db.Update(d, func(tx db.DbTxMut) string {
		if err := tx.Put(tbl, []byte("k"), []byte("v")); err != nil {
			return err.Error()
		}
		v, err := tx.Get(tbl, []byte("k"))
		if err != nil {
			return err.Error()
		}
		return string(v)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "v" {
		t.Errorf("write tx read %q, want v", got)
	}
}

func testSnapshotIsolation(t *testing.T, h Harness) {
	d := h.Open(t)
	Put(t, d, tbl, "k", "old")

	rtx, err := d.Tx()
	if err != nil {
		t.Fatal(err)
	}
	defer rtx.Abort()
	if v, err := rtx.Get(tbl, []byte("k")); err != nil || string(v) != "old" {
		t.Fatalf("before write: %q, %v", v, err)
	}

	Put(t, d, tbl, "k", "new")

	if v, err := rtx.Get(tbl, []byte("k")); err != nil || string(v) != "old" {
		t.Errorf("open reader saw %q (%v), want old", v, err)
	}
	if err := rtx.Commit(); err != nil {
		t.Fatalf("read commit: %v", err)
	}
	if got := Get(t, d, tbl, "k"); got != "new" {
		t.Errorf("new reader saw %q, want new", got)
	}
}

func testCursorWalk(t *testing.T, h Harness) {
	d := h.Open(t)
	Put(t, d, tbl, "c", "3", "a", "1", "e", "5", "b", "2")
	Put(t, d, "other", "a", "x")

	_, err := db.View(d, func(tx db.DbTx) struct{} {
		want := []string{"a=1", "b=2", "c=3", "e=5"}
		if got := Walk(t, tx, tbl); !slices.Equal(got, want) {
			t.Errorf("forward walk = %v, want %v", got, want)
		}

		c, err := tx.Cursor(tbl)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()

		expect := func(label string, k, v []byte, err error, wantK string) {
			t.Helper()
			if err != nil {
				t.Fatalf("%s: %v", label, err)
			}
			if string(k) != wantK {
				t.Errorf("%s = %q, want %q", label, k, wantK)
			}
		}
		k, v, err := c.Last()
		expect("Last", k, v, err, "e")
		k, v, err = c.Prev()
		expect("Prev", k, v, err, "c")
		k, v, err = c.Seek([]byte("d"))
		expect("Seek(d)", k, v, err, "e")
		k, v, err = c.Next()
		expect("Next past end", k, v, err, "")
		k, v, err = c.Seek([]byte("b"))
		expect("Seek(b)", k, v, err, "b")
		if !bytes.Equal(v, []byte("2")) {
			t.Errorf("Seek(b) value = %q, want 2", v)
		}
		k, v, err = c.First()
		expect("First", k, v, err, "a")
		k, v, err = c.Prev()
		expect("Prev before start", k, v, err, "")
		return struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testCursorMissingTable(t *testing.T, h Harness) {
	d := h.Open(t)
	_, err := db.View(d, func(tx db.DbTx) struct{} {
		if got := Walk(t, tx, "empty"); len(got) != 0 {
			t.Errorf("walk of missing table = %v", got)
		}
		return struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testEntriesAndTables(t *testing.T, h Harness) {
	d := h.Open(t)
	Put(t, d, "b-table", "1", "x", "2", "y", "3", "z")
	Put(t, d, "a-table", "1", "x")

	type counts struct {
		a, b, none int
		tables     []db.Table
		err        error
	}
	got, err := db.View(d, func(tx db.DbTx) counts {
		var c counts
		if c.a, c.err = tx.Entries("a-table"); c.err != nil {
			return c
		}
		if c.b, c.err = tx.Entries("b-table"); c.err != nil {
			return c
		}
		if c.none, c.err = tx.Entries("none"); c.err != nil {
			return c
		}
		c.tables, c.err = tx.Tables()
		return c
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.err != nil {
		t.Fatal(got.err)
	}
	if got.a != 1 || got.b != 3 || got.none != 0 {
		t.Errorf("entries = %d/%d/%d, want 1/3/0", got.a, got.b, got.none)
	}
	if len(got.tables) != 2 || got.tables[0] != "a-table" || got.tables[1] != "b-table" {
		t.Errorf("tables = %v, want [a-table b-table]", got.tables)
	}
}

func testDeleteAndClear(t *testing.T, h Harness) {
	d := h.Open(t)
	Put(t, d, tbl, "a", "1", "b", "2")
	Put(t, d, "logs", "1", "x", "2", "y")

	werr, err := db.Update(d, func(tx db.DbTxMut) error {
		if err := tx.Delete(tbl, []byte("a")); err != nil {
			return err
		}
		if err := tx.Delete(tbl, []byte("never-there")); err != nil {
			return err
		}
		if err := tx.Delete("no-table", []byte("a")); err != nil {
			return err
		}
		if err := tx.ClearTable("logs"); err != nil {
			return err
		}
		return tx.ClearTable("no-table")
	})
	if err != nil || werr != nil {
		t.Fatalf("update: %v / %v", err, werr)
	}

	if got := Get(t, d, tbl, "a"); got != "" {
		t.Errorf("deleted key still present: %q", got)
	}
	if got := Get(t, d, tbl, "b"); got != "2" {
		t.Errorf("sibling key = %q, want 2", got)
	}
	n, err := db.View(d, func(tx db.DbTx) int {
		n, _ := tx.Entries("logs")
		return n
	})
	if err != nil || n != 0 {
		t.Errorf("cleared table has %d entries (%v)", n, err)
	}
}

func testFinalizedTx(t *testing.T, h Harness) {
	d := h.Open(t)
	tx, err := d.TxMut()
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Put(tbl, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	tx.Abort()

	if err := tx.Commit(); db.KindOf(err) != db.KindTxClosed {
		t.Errorf("second Commit: %v, want tx-closed", err)
	}
	if _, err := tx.Get(tbl, []byte("k")); !errors.Is(err, db.ErrTxClosed) {
		t.Errorf("Get after commit: %v, want ErrTxClosed", err)
	}
	if err := tx.Put(tbl, []byte("k"), []byte("w")); !errors.Is(err, db.ErrTxClosed) {
		t.Errorf("Put after commit: %v, want ErrTxClosed", err)
	}
	if got := Get(t, d, tbl, "k"); got != "v" {
		t.Errorf("committed value = %q, want v", got)
	}

	rtx, err := d.Tx()
	if err != nil {
		t.Fatal(err)
	}
	rtx.Abort()
	if _, err := rtx.Cursor(tbl); !errors.Is(err, db.ErrTxClosed) {
		t.Errorf("Cursor after abort: %v, want ErrTxClosed", err)
	}
}

func testInvalidTable(t *testing.T, h Harness) {
	d := h.Open(t)
	werr, err := db.Update(d, func(tx db.DbTxMut) error {
		return tx.Put("", []byte("k"), []byte("v"))
	})
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(werr, db.ErrInvalidTable) || db.KindOf(werr) != db.KindWrite {
		t.Errorf("Put into empty table name: %v", werr)
	}
}

func testEmptyKey(t *testing.T, h Harness) {
	d := h.Open(t)
	type res struct {
		nilErr, emptyErr, putErr error
	}
	r, err := db.Update(d, func(tx db.DbTxMut) res {
		return res{
			nilErr:   tx.Put(tbl, nil, []byte("v0")),
			emptyErr: tx.Put(tbl, []byte{}, []byte("v0")),
			putErr:   tx.Put(tbl, []byte("a"), []byte("v1")),
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	for name, perr := range map[string]error{"nil": r.nilErr, "empty": r.emptyErr} {
		if !errors.Is(perr, db.ErrEmptyKey) || db.KindOf(perr) != db.KindWrite {
			t.Errorf("Put with %s key: %v, want ErrEmptyKey", name, perr)
		}
	}
	if r.putErr != nil {
		t.Fatalf("Put after rejected key: %v", r.putErr)
	}

	type view struct {
		entries int
		walk    []string
	}
	got, err := db.View(d, func(tx db.DbTx) view {
		n, err := tx.Entries(tbl)
		if err != nil {
			t.Fatal(err)
		}
		return view{n, Walk(t, tx, tbl)}
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.entries != 1 || !slices.Equal(got.walk, []string{"a=v1"}) {
		t.Errorf("entries = %d, walk = %v, want 1 and [a=v1]", got.entries, got.walk)
	}
}

func testImportTable(t *testing.T, h Harness) {
	src := h.Open(t)
	dst := h.Open(t)
	Put(t, src, tbl, "a", "1", "b", "2", "c", "3")
	Put(t, src, "skip", "z", "z")
	Put(t, dst, tbl, "a", "stale", "d", "4")

	rtx, err := src.Tx()
	if err != nil {
		t.Fatal(err)
	}
	werr, err := db.Update(dst, func(tx db.DbTxMut) error {
		return tx.ImportTable(tbl, rtx)
	})
	if cerr := rtx.Commit(); cerr != nil {
		t.Fatal(cerr)
	}
	if err != nil || werr != nil {
		t.Fatalf("import: %v / %v", err, werr)
	}

	got, err := db.View(dst, func(tx db.DbTx) []string { return Walk(t, tx, tbl) })
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a=1", "b=2", "c=3", "d=4"}
	if !slices.Equal(got, want) {
		t.Errorf("imported table = %v, want %v", got, want)
	}
	if v := Get(t, dst, "skip", "z"); v != "" {
		t.Error("ImportTable copied an unrelated table")
	}
}

func testUpdateTwice(t *testing.T, h Harness) {
	d := h.Open(t)
	incr := func(tx db.DbTxMut) error {
		v, err := tx.Get(tbl, []byte("n"))
		if err != nil {
			return err
		}
		return tx.Put(tbl, []byte("n"), append(v, '+'))
	}
	for i := 0; i < 2; i++ {
		if werr, err := db.Update(d, incr); err != nil || werr != nil {
			t.Fatalf("update %d: %v / %v", i, err, werr)
		}
	}
	if got := Get(t, d, tbl, "n"); got != "++" {
		t.Errorf("after two updates n = %q, want ++", got)
	}
}

func testReadOnly(t *testing.T, h Harness) {
	if h.OpenReadOnly == nil {
		t.Skip("backend has no read-only mode")
	}
	d := h.OpenReadOnly(t, func(w db.Database) {
		Put(t, w, tbl, "k", "v")
	})

	calls := 0
	_, err := db.Update(d, func(db.DbTxMut) error {
		calls++
		return nil
	})
	if !errors.Is(err, db.ErrReadOnly) || db.KindOf(err) != db.KindReadOnly {
		t.Fatalf("Update on read-only db: %v, want ErrReadOnly", err)
	}
	if calls != 0 {
		t.Errorf("fn ran %d times on read-only db", calls)
	}
	if got := Get(t, d, tbl, "k"); got != "v" {
		t.Errorf("read-only view = %q, want v", got)
	}
}

func testReaderLimit(t *testing.T, h Harness) {
	if h.OpenLimited == nil {
		t.Skip("backend has no reader limit")
	}
	d := h.OpenLimited(t, 2)

	a, err := d.Tx()
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Tx()
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	_, err = db.View(d, func(db.DbTx) int { calls++; return 0 })
	if !errors.Is(err, db.ErrTxLimit) || db.KindOf(err) != db.KindInitTx {
		t.Fatalf("third reader: %v, want ErrTxLimit", err)
	}
	if calls != 0 {
		t.Error("fn ran without a transaction")
	}

	if err := a.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := db.View(d, func(db.DbTx) int { return 0 }); err != nil {
		t.Errorf("reader after release: %v", err)
	}
	b.Abort()
	if _, err := db.View(d, func(db.DbTx) int { return 0 }); err != nil {
		t.Errorf("reader after abort: %v", err)
	}
}

func testConcurrentReaders(t *testing.T, h Harness) {
	d := h.Open(t)
	Put(t, d, tbl, "k", "v")

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 20; j++ {
				got, err := db.View(d, func(tx db.DbTx) string {
					v, _ := tx.Get(tbl, []byte("k"))
					return string(v)
				})
				if err != nil {
					return err
				}
				if got != "v" {
					return fmt.Errorf("reader saw %q", got)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
