package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"txdb/pkg/db"
)

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T, backendName string) *cli {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), backendName+".db")
	return &cli{t: t, base: []string{"--backend", backendName, "--path", path, "--log-level", "warn"}}
}

func (c *cli) run(args ...string) (string, string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(append(append([]string{}, c.base...), args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func (c *cli) ok(args ...string) string {
	c.t.Helper()
	out, errOut, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("txdb %s: %v\nstderr: %s", strings.Join(args, " "), err, errOut)
	}
	return out
}

func TestPutGetDel(t *testing.T) {
	c := newCLI(t, "bolt")
	c.ok("put", "users", "alice", "admin")
	c.ok("put", "users", "bob", "guest")

	if got := c.ok("get", "users", "alice"); got != "admin\n" {
		t.Errorf("get alice = %q", got)
	}
	c.ok("del", "users", "alice", "nobody")
	if _, _, err := c.run("get", "users", "alice"); !errors.Is(err, errNotFound) {
		t.Errorf("get deleted key: %v, want errNotFound", err)
	}
	if got := c.ok("get", "users", "bob"); got != "guest\n" {
		t.Errorf("get bob = %q", got)
	}
}

func TestScan(t *testing.T) {
	c := newCLI(t, "sqlite")
	for _, k := range []string{"c", "a", "d", "b"} {
		c.ok("put", "t", k, "v"+k)
	}
	if got := c.ok("scan", "t"); got != "a\tva\nb\tvb\nc\tvc\nd\tvd\n" {
		t.Errorf("scan = %q", got)
	}
	if got := c.ok("scan", "t", "--from", "b", "--limit", "2"); got != "b\tvb\nc\tvc\n" {
		t.Errorf("scan --from b --limit 2 = %q", got)
	}
	if got := c.ok("scan", "empty"); got != "" {
		t.Errorf("scan of missing table = %q", got)
	}
}

func TestTablesAndStats(t *testing.T) {
	c := newCLI(t, "leveldb")
	c.ok("put", "alpha", "1", "x")
	c.ok("put", "alpha", "2", "y")
	c.ok("put", "beta", "1", "z")

	lines := strings.Split(strings.TrimSpace(c.ok("tables")), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "alpha") || !strings.HasSuffix(lines[0], "2") {
		t.Errorf("tables = %q", lines)
	}
	stats := c.ok("stats")
	for _, want := range []string{"leveldb", "tables:", "entries:", "3"} {
		if !strings.Contains(stats, want) {
			t.Errorf("stats missing %q:\n%s", want, stats)
		}
	}
}

func TestReadOnly(t *testing.T) {
	c := newCLI(t, "bolt")
	c.ok("put", "t", "k", "v")
	_, _, err := c.run("--read-only", "put", "t", "k", "w")
	if !errors.Is(err, db.ErrReadOnly) {
		t.Fatalf("put on read-only db: %v, want ErrReadOnly", err)
	}
	if got := c.ok("--read-only", "get", "t", "k"); got != "v\n" {
		t.Errorf("read-only get = %q", got)
	}
}

func TestDumpRestoreCopy(t *testing.T) {
	src := newCLI(t, "bolt")
	src.ok("put", "a", "1", "one")
	src.ok("put", "b", "2", "two")

	file := filepath.Join(t.TempDir(), "out.dump")
	src.ok("dump", "--out", file)

	dst := newCLI(t, "sqlite")
	dst.ok("restore", "--in", file)
	if got := dst.ok("get", "b", "2"); got != "two\n" {
		t.Errorf("restored b/2 = %q", got)
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0xff
	bad := filepath.Join(t.TempDir(), "bad.dump")
	if err := os.WriteFile(bad, raw, 0600); err != nil {
		t.Fatal(err)
	}
	other := newCLI(t, "bolt")
	if _, _, err := other.run("restore", "--in", bad); db.KindOf(err) != db.KindDecode {
		t.Errorf("restore of corrupt dump: %v, want decode error", err)
	}
	if got := other.ok("tables"); got != "" {
		t.Errorf("corrupt restore wrote tables: %q", got)
	}

	lvl := filepath.Join(t.TempDir(), "copy.ldb")
	src.ok("copy", "--to-backend", "leveldb", "--to-path", lvl, "a")
	copied := &cli{t: t, base: []string{"--backend", "leveldb", "--path", lvl, "--log-level", "warn"}}
	if got := copied.ok("get", "a", "1"); got != "one\n" {
		t.Errorf("copied a/1 = %q", got)
	}
	if got := copied.ok("scan", "b"); got != "" {
		t.Errorf("copy of table a also copied b: %q", got)
	}
}

func TestDumpFailureLeavesNoFile(t *testing.T) {
	c := newCLI(t, "bolt")
	c.ok("put", "a", "1", "one")

	dir := t.TempDir()
	file := filepath.Join(dir, "out.dump")
	if _, _, err := c.run("dump", "--out", file, "a", ""); !errors.Is(err, db.ErrInvalidTable) {
		t.Fatalf("dump with invalid table: %v, want ErrInvalidTable", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed dump left files behind: %v", entries)
	}

	if err := os.WriteFile(file, []byte("previous"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.run("dump", "--out", file, ""); err == nil {
		t.Fatal("expected error")
	}
	if got, _ := os.ReadFile(file); string(got) != "previous" {
		t.Errorf("failed dump overwrote existing file: %q", got)
	}

	c.ok("dump", "--out", file)
	if got, _ := os.ReadFile(file); bytes.Equal(got, []byte("previous")) {
		t.Error("successful dump did not replace the file")
	}
}

func TestCopyToSelf(t *testing.T) {
	c := newCLI(t, "bolt")
	c.ok("put", "a", "1", "one")
	path := c.base[3]
	if _, _, err := c.run("copy", "--to-path", path); err == nil {
		t.Fatal("copy onto the source database should fail")
	}
}

func TestMetricsFlag(t *testing.T) {
	c := newCLI(t, "memory")
	_, errOut, err := c.run("--metrics", "put", "t", "k", "v")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`txdb_tx_open_total{mode="write",result="ok"} 1`,
		`txdb_tx_finalize_total{mode="write",outcome="commit"} 1`,
		"# TYPE txdb_tx_duration_seconds histogram",
	} {
		if !strings.Contains(errOut, want) {
			t.Errorf("metrics output missing %q:\n%s", want, errOut)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	c := newCLI(t, "rocksdb")
	_, _, err := c.run("tables")
	if err == nil || !strings.Contains(err.Error(), "database.backend") {
		t.Fatalf("unknown backend: %v", err)
	}
}

func TestLogFormatFollowsTerminal(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, tt := range []struct {
		tty  bool
		want string
	}{
		{true, "text"},
		{false, "json"},
	} {
		a := &app{isTerminal: func(io.Writer) bool { return tt.tty }}
		root := newRootCmd(a)
		root.SetArgs([]string{"--backend", "memory", "tables"})
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		if err := root.Execute(); err != nil {
			t.Fatal(err)
		}
		if a.cfg.Logging.Format != tt.want {
			t.Errorf("tty=%v: format %q, want %q", tt.tty, a.cfg.Logging.Format, tt.want)
		}
		if err := a.close(io.Discard); err != nil {
			t.Fatal(err)
		}
	}
}
