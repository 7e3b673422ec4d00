package conn

import (
	"testing"

	"github.com/ashlang/ashdb/pkg/storage"
	"github.com/ashlang/ashdb/pkg/types"
)

func newConn(t *testing.T) *Connection {
	t.Helper()
	e, err := storage.Open(storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c := New(e)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnCreateInsertSelect(t *testing.T) {
	c := newConn(t)
	if _, err := c.Execute("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Execute("INSERT INTO users VALUES (1, 'Ada'), (2, 'Linus')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	res, err := c.Query("SELECT id, name FROM users WHERE id = 2")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][1].Text != "Linus" {
		t.Fatalf("unexpected result: %+v", res.Rows)
	}
}

func TestConnPreparedStatementBinding(t *testing.T) {
	c := newConn(t)
	if _, err := c.Execute("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	stmt, err := c.Prepare("INSERT INTO users VALUES (?0, ?1)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	for i := 1; i <= 3; i++ {
		stmt.Bind(0, types.Integer(int64(i)))
		stmt.Bind(1, types.Text("user"))
		if _, err := stmt.Execute(); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}
	res, err := c.Query("SELECT id FROM users")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(res.Rows))
	}
}

func TestConnRollbackDiscardsChanges(t *testing.T) {
	c := newConn(t)
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
		t.Fatalf("expected 0 rows after rollback, got %d", len(res.Rows))
	}
}

func TestConnCommitPersistsChanges(t *testing.T) {
	c := newConn(t)
	if _, err := c.Execute("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Execute("BEGIN"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := c.Execute("INSERT INTO users VALUES (1, 'Ada')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := c.Execute("COMMIT"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	res, err := c.Query("SELECT id FROM users")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row after commit, got %d", len(res.Rows))
	}
}

func TestConnDoubleBeginRejected(t *testing.T) {
	c := newConn(t)
	if _, err := c.Execute("BEGIN"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer c.Execute("ROLLBACK")
	if _, err := c.Execute("BEGIN"); err == nil {
		t.Fatalf("expected an error starting a second transaction")
	}
}
