package ashdb

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashlang/ashdb/pkg/types"
)

func TestCreateInsertSelect(t *testing.T) {
	c, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if _, err := c.Execute("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Execute("INSERT INTO users VALUES (1, 'Ada')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	res, err := c.Query("SELECT id, name FROM users WHERE id = 1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][1].Text != "Ada" {
		t.Fatalf("unexpected result: %+v", res.Rows)
	}
}

func TestPreparedStatementWithBinds(t *testing.T) {
	c, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if _, err := c.Execute("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	stmt, err := c.Prepare("INSERT INTO users VALUES (?0, ?1)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	stmt.Bind(0, types.Integer(1))
	stmt.Bind(1, types.Text("Grace"))
	if _, err := stmt.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	res, err := c.Query("SELECT name FROM users WHERE id = 1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0].Text != "Grace" {
		t.Fatalf("unexpected result: %+v", res.Rows)
	}
}

func TestRollbackDiscardsChanges(t *testing.T) {
	c, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if _, err := c.Execute("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Execute("BEGIN"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := c.Execute("INSERT INTO users VALUES (1, 'Ada')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := c.Execute("ROLLBACK"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	res, err := c.Query("SELECT id FROM users")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("expected count 0 after rollback, got %d", len(res.Rows))
	}
}

func TestCrashRecoveryKeepsOnlyCommittedWork(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c.Execute("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Execute("BEGIN"); err != nil {
		t.Fatalf("begin committed batch: %v", err)
	}
	for i := 1; i <= 100; i++ {
		sql := fmt.Sprintf("INSERT INTO users VALUES (%d, 'user-%d')", i, i)
		if _, err := c.Execute(sql); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if _, err := c.Execute("COMMIT"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := c.Execute("BEGIN"); err != nil {
		t.Fatalf("begin uncommitted batch: %v", err)
	}
	for i := 101; i <= 200; i++ {
		sql := fmt.Sprintf("INSERT INTO users VALUES (%d, 'user-%d')", i, i)
		if _, err := c.Execute(sql); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	// Simulate a crash: the connection (and its Engine) go away with the
	// second transaction still open and never committed.

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	res, err := reopened.Query("SELECT id FROM users")
	if err != nil {
		t.Fatalf("select after recovery: %v", err)
	}
	if len(res.Rows) != 100 {
		t.Fatalf("expected 100 committed rows to survive recovery, got %d", len(res.Rows))
	}
}

func TestBulkInsertSingleTransaction(t *testing.T) {
	c, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if _, err := c.Execute("CREATE TABLE events(id INTEGER PRIMARY KEY, payload TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Execute("BEGIN"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 1; i <= 5000; i++ {
		sql := fmt.Sprintf("INSERT INTO events VALUES (%d, 'payload')", i)
		if _, err := c.Execute(sql); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if _, err := c.Execute("COMMIT"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	res, err := c.Query("SELECT id FROM events")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 5000 {
		t.Fatalf("expected 5000 rows, got %d", len(res.Rows))
	}
}

func TestDeletionCascadeKeepsOddSubset(t *testing.T) {
	c, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if _, err := c.Execute("CREATE TABLE nums(n INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 1; i <= 1000; i++ {
		sql := fmt.Sprintf("INSERT INTO nums VALUES (%d)", i)
		if _, err := c.Execute(sql); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	for i := 2; i <= 1000; i += 2 {
		sql := fmt.Sprintf("DELETE FROM nums WHERE n = %d", i)
		if _, err := c.Execute(sql); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	res, err := c.Query("SELECT n FROM nums")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 500 {
		t.Fatalf("expected 500 odd survivors, got %d", len(res.Rows))
	}
	for _, row := range res.Rows {
		if row[0].Integer%2 == 0 {
			t.Fatalf("found an even survivor: %d", row[0].Integer)
		}
	}
}

func TestOpenCreatesDatabaseDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected database directory to exist: %v", err)
	}
}
