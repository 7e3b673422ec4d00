// Package conn is ashdb's connection layer: one Connection wraps a
// storage Engine with the small bit of session state SQL execution
// needs on top of it — the current explicit transaction (if any) and a
// table of prepared statements — the same shape the teacher's
// StorageEngine.Get/Put use around a begin/defer-close read or write
// transaction, generalized from a single-call helper into a
// standalone type so a REPL or connection pool can hold one open
// across many statements.
package conn

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ashlang/ashdb/pkg/ast"
	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/sqlparse"
	"github.com/ashlang/ashdb/pkg/storage"
	"github.com/ashlang/ashdb/pkg/types"
	"github.com/ashlang/ashdb/pkg/vm"
)

// Stmt is a prepared statement: parsed once, executed (and bound) many
// times.
type Stmt struct {
	id     string
	sql    string
	stmt   ast.Stmt
	conn   *Connection
	params []types.Value
	nargs  int
}

// Bind sets the value of the index-th placeholder (?0, ?1, ...).
func (s *Stmt) Bind(index int, v types.Value) error {
	if index < 0 {
		return fmt.Errorf("conn: negative parameter index %d", index)
	}
	if index >= len(s.params) {
		grown := make([]types.Value, index+1)
		copy(grown, s.params)
		s.params = grown
	}
	s.params[index] = v
	return nil
}

// Reset clears every bound parameter so the statement can be reused.
func (s *Stmt) Reset() { s.params = nil }

// Execute runs the prepared statement with its currently bound
// parameters, inside the connection's open transaction if there is one
// or as its own autocommit transaction otherwise.
func (s *Stmt) Execute() (vm.Result, error) {
	return s.conn.run(s.stmt, s.params)
}

// Connection is one client's session against a storage Engine: the
// transaction it may have open, and the prepared statements it has
// registered.
type Connection struct {
	mu         sync.Mutex
	engine     *storage.Engine
	vm         *vm.VM
	tx         *storage.Txn
	prepared   map[string]*Stmt
	closed     bool
	ownsEngine bool
}

// New wraps an already-open storage Engine in a Connection that does
// not own it: Close leaves the Engine open for other connections
// sharing it (pkg/executor's pool).
func New(engine *storage.Engine) *Connection {
	return &Connection{engine: engine, vm: vm.New(engine), prepared: map[string]*Stmt{}}
}

// NewOwned is New, but Close also closes the underlying Engine — the
// shape the root package's single-connection Open/OpenMemory need.
func NewOwned(engine *storage.Engine) *Connection {
	c := New(engine)
	c.ownsEngine = true
	return c
}

// Prepare parses sql once and returns a Stmt that can be bound and
// executed repeatedly without re-parsing.
func (c *Connection) Prepare(sql string) (*Stmt, error) {
	stmt, err := sqlparse.Parse(sql)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, ashdberrors.Wrap(ashdberrors.KindInternal, err, "conn: generate statement id")
	}
	s := &Stmt{id: id.String(), sql: sql, stmt: stmt, conn: c}
	c.mu.Lock()
	c.prepared[s.id] = s
	c.mu.Unlock()
	return s, nil
}

// Execute parses and runs sql once, discarding any prepared form. It
// is the plain, unparameterized path: DDL, transaction control, and
// ad hoc one-off DML.
func (c *Connection) Execute(sql string) (vm.Result, error) {
	stmt, err := sqlparse.Parse(sql)
	if err != nil {
		return vm.Result{}, err
	}
	return c.run(stmt, nil)
}

// Query is Execute's name for statements a caller expects rows back
// from; it behaves identically, the distinction exists for callers who
// want the SELECT/non-SELECT intent visible at the call site the way
// database/sql separates Query from Exec.
func (c *Connection) Query(sql string) (vm.Result, error) { return c.Execute(sql) }

// run executes one parsed statement, handling transaction-control
// statements itself and routing everything else either into the
// connection's open explicit transaction or into a fresh implicit
// autocommit one.
func (c *Connection) run(stmt ast.Stmt, params []types.Value) (vm.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return vm.Result{}, fmt.Errorf("conn: connection is closed")
	}

	switch s := stmt.(type) {
	case *ast.Begin:
		if c.tx != nil {
			return vm.Result{}, fmt.Errorf("conn: a transaction is already open")
		}
		level := storage.ReadCommitted
		if s.Level == ast.Serializable {
			level = storage.Serializable
		}
		txn, err := c.engine.Begin(true, level)
		if err != nil {
			return vm.Result{}, err
		}
		c.tx = txn
		return vm.Result{}, nil
	case *ast.Commit:
		if c.tx == nil {
			return vm.Result{}, fmt.Errorf("conn: no transaction is open")
		}
		err := c.tx.Commit()
		c.tx = nil
		return vm.Result{}, err
	case *ast.Rollback:
		if c.tx == nil {
			return vm.Result{}, fmt.Errorf("conn: no transaction is open")
		}
		err := c.tx.Rollback()
		c.tx = nil
		return vm.Result{}, err
	}

	if c.tx != nil {
		return c.vm.Exec(stmt, c.tx, params)
	}

	// Implicit autocommit: DDL commits itself inside the Engine, so it
	// needs no wrapping transaction at all. DML gets one created and
	// torn down around the single statement.
	switch stmt.(type) {
	case *ast.CreateTable, *ast.DropTable, *ast.CreateIndex:
		return c.vm.Exec(stmt, nil, params)
	}

	txn, err := c.engine.Begin(true, storage.ReadCommitted)
	if err != nil {
		return vm.Result{}, err
	}
	res, err := c.vm.Exec(stmt, txn, params)
	if err != nil {
		_ = txn.Rollback()
		return vm.Result{}, err
	}
	if err := txn.Commit(); err != nil {
		return vm.Result{}, err
	}
	return res, nil
}

// Close rolls back any open transaction and marks the connection
// unusable. It closes the underlying Engine only when this connection
// owns it (as the root package's Open/OpenMemory connections do); a
// shared Engine is left open.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.tx != nil {
		err = c.tx.Rollback()
		c.tx = nil
	}
	if c.ownsEngine {
		if cerr := c.engine.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// InTransaction reports whether an explicit BEGIN is currently open.
func (c *Connection) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// Catalog exposes the underlying Engine's schema, for REPL
// meta-commands like .tables and .schema.
func (c *Connection) Catalog() *storage.Catalog { return c.engine.Catalog() }
