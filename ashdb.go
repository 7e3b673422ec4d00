// Package ashdb is an embeddable relational database engine: a
// page-based B+tree row/index store with write-ahead logging and
// checkpointing underneath, a hand-rolled SQL front end on top, and a
// connection layer in between. Open or OpenMemory gets a caller a
// Connection; everything else (pkg/storage, pkg/btree, pkg/sqlparse,
// pkg/plan, pkg/vm) is reachable directly for callers who need more
// control than the top-level API gives.
package ashdb

import (
	"github.com/ashlang/ashdb/pkg/conn"
	"github.com/ashlang/ashdb/pkg/storage"
)

// Connection is a session against one database.
type Connection = conn.Connection

// Stmt is a prepared statement bound to one Connection.
type Stmt = conn.Stmt

// Open opens (creating if absent) a durable, file-backed database at
// path.
func Open(path string) (*Connection, error) {
	opts := storage.DefaultOptions()
	opts.Path = path
	engine, err := storage.Open(opts)
	if err != nil {
		return nil, err
	}
	return conn.NewOwned(engine), nil
}

// OpenMemory opens a database that exists only in memory: its WAL and
// checkpoints are never written to disk, and all data is lost when the
// returned Connection's underlying Engine is closed.
func OpenMemory() (*Connection, error) {
	engine, err := storage.Open(storage.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return conn.NewOwned(engine), nil
}
