package executor

import (
	"context"
	"testing"
	"time"

	"github.com/ashlang/ashdb/pkg/conn"
	"github.com/ashlang/ashdb/pkg/storage"
)

func newTestConn(t *testing.T) *conn.Connection {
	t.Helper()
	e, err := storage.Open(storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c := conn.New(e)
	t.Cleanup(func() { _ = c.Close() })
	if _, err := c.Execute("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestExecutorSubmitRunsStatement(t *testing.T) {
	c := newTestConn(t)
	ex := New(DefaultOptions())
	defer ex.Stop()

	res, err := ex.Submit(context.Background(), c, "INSERT INTO users VALUES (1, 'Ada')")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.AffectedRows != 1 {
		t.Fatalf("expected 1 affected row, got %d", res.AffectedRows)
	}
}

func TestExecutorSubmitBatch(t *testing.T) {
	c := newTestConn(t)
	ex := New(DefaultOptions())
	defer ex.Stop()

	out := <-ex.SubmitBatch(context.Background(), c, []string{
		"INSERT INTO users VALUES (1, 'Ada')",
		"INSERT INTO users VALUES (2, 'Linus')",
		"SELECT id FROM users",
	})
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	if len(out[2].Rows) != 2 {
		t.Fatalf("expected 2 rows from final select, got %d", len(out[2].Rows))
	}
}

func TestExecutorSubmitTxRollsBackOnError(t *testing.T) {
	c := newTestConn(t)
	ex := New(DefaultOptions())
	defer ex.Stop()

	errCh := ex.SubmitTx(context.Background(), c, func(tc Conn) error {
		if _, err := tc.Execute("INSERT INTO users VALUES (1, 'Ada')"); err != nil {
			return err
		}
		if _, err := tc.Execute("INSERT INTO users VALUES (1, 'Duplicate')"); err != nil {
			return err
		}
		return nil
	})
	if err := <-errCh; err == nil {
		t.Fatalf("expected the duplicate-key insert to fail the transaction")
	}

	res, err := ex.Submit(context.Background(), c, "SELECT id FROM users")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("expected the whole transaction to roll back, got %d rows", len(res.Rows))
	}
}

func TestExecutorContextCancelUnblocksSubmit(t *testing.T) {
	ex := New(Options{Workers: 1, QueueSize: 1})
	defer ex.Stop()

	// Occupy the lone worker with a blocking task so the next
	// submission is still waiting for its result when ctx expires.
	c := newTestConn(t)
	blocker := make(chan struct{})
	ex.tasks <- task{ctx: context.Background(), run: func() (interface{}, error) {
		<-blocker
		return nil, nil
	}, done: make(chan result, 1)}
	defer close(blocker)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ex.Submit(ctx, c, "SELECT id FROM users"); err == nil {
		t.Fatalf("expected context deadline error while the only worker is busy")
	}
}
