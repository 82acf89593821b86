package bolt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"txdb/pkg/db"
	"txdb/pkg/db/dbtest"
)

func tempDB(t *testing.T, opts Options) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"), opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestConformance(t *testing.T) {
	dbtest.Run(t, dbtest.Harness{
		Open: func(t *testing.T) db.Database {
			return tempDB(t, Options{})
		},
		OpenLimited: func(t *testing.T, n int) db.Database {
			return tempDB(t, Options{MaxReaders: n})
		},
		OpenReadOnly: func(t *testing.T, populate func(db.Database)) db.Database {
			path := filepath.Join(t.TempDir(), "ro.db")
			w, err := Open(path, Options{})
			if err != nil {
				t.Fatal(err)
			}
			populate(w)
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			r, err := Open(path, Options{ReadOnly: true})
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = r.Close() })
			return r
		},
	})
}

func TestOpenClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if d.Path() != path {
		t.Errorf("Path = %q, want %q", d.Path(), path)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file should exist: %v", err)
	}
}

func TestOpenInvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", Options{})
	if db.KindOf(err) != db.KindOpen {
		t.Fatalf("err = %v, want open kind", err)
	}
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.db"), Options{ReadOnly: true})
	if db.KindOf(err) != db.KindOpen || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want open kind wrapping ErrNotExist", err)
	}
}

func TestTxAfterClose(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Close()

	_, err = d.Tx()
	if !errors.Is(err, db.ErrClosed) || db.KindOf(err) != db.KindInitTx {
		t.Errorf("Tx after close: %v, want ErrClosed/init-tx", err)
	}
	_, err = d.TxMut()
	if !errors.Is(err, db.ErrClosed) {
		t.Errorf("TxMut after close: %v, want ErrClosed", err)
	}
}

func TestFailedBeginReleasesReaderSlot(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{MaxReaders: 1})
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Close()
	for i := 0; i < 3; i++ {
		if _, err := d.Tx(); errors.Is(err, db.ErrTxLimit) {
			t.Fatal("failed Begin leaked a reader slot")
		}
	}
}

func TestReadTxRejectsWrites(t *testing.T) {
	d := tempDB(t, Options{})
	rtx, err := d.Tx()
	if err != nil {
		t.Fatal(err)
	}
	defer rtx.Abort()

	w, ok := rtx.(db.DbTxMut)
	if !ok {
		t.Skip("read tx does not expose write methods")
	}
	if err := w.Put("t", []byte("k"), []byte("v")); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Put through read tx: %v, want ErrReadOnly", err)
	}
	if err := w.Delete("t", []byte("k")); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Delete through read tx: %v, want ErrReadOnly", err)
	}
}

func TestPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	dbtest.Put(t, d, "state", "color", "blue", "size", "large")
	_ = d.Close()

	d2, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer d2.Close()
	if got := dbtest.Get(t, d2, "state", "color"); got != "blue" {
		t.Errorf("color = %q, want blue", got)
	}
}
