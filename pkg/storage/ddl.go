package storage

import (
	"github.com/ashlang/ashdb/pkg/btree"
	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/types"
)

// DDL statements mutate the catalog directly and checkpoint immediately
// rather than participating in the WAL transaction/rollback machinery
// that row.go's CRUD methods use. The catalog is a small BSON document
// checkpointed as a whole (see checkpoint.go), so there is no
// before/after page image to roll a schema change back from; treating
// every DDL statement as auto-committing and durable on return avoids
// inventing a second, catalog-specific undo log for the rare case of a
// client wanting to roll back a CREATE TABLE.

// CreateTable adds a table to the catalog and opens a fresh B-tree for
// it, then checkpoints so the new table survives a crash immediately.
// DDL takes the same single-writer slot row transactions do, so a
// CREATE TABLE/INDEX can never race a concurrent INSERT/UPDATE/DELETE.
func (e *Engine) CreateTable(name string, columns []ColumnDef) error {
	<-e.writerSlot
	defer func() { e.writerSlot <- struct{}{} }()
	e.mu.Lock()
	defer e.mu.Unlock()

	def := &TableDef{Name: name, Columns: columns}
	if err := e.catalog.AddTable(def); err != nil {
		return err
	}
	tr, err := btree.Open(e.rowStore, 0, 64, true)
	if err != nil {
		return err
	}
	def.RootPage = tr.RootID()
	e.tables[name] = tr
	return e.checkpointLocked()
}

// DropTable removes a table and every index defined on it. The
// underlying pages are leaked (pkg/btree.PageStore.Free is a no-op),
// the same simplification the B-tree itself makes.
func (e *Engine) DropTable(name string) error {
	<-e.writerSlot
	defer func() { e.writerSlot <- struct{}{} }()
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, idx := range e.catalog.IndexesOn(name) {
		delete(e.indexes, idx.Name)
	}
	if err := e.catalog.DropTable(name); err != nil {
		return err
	}
	delete(e.tables, name)
	return e.checkpointLocked()
}

// CreateIndex adds a secondary index and backfills it from the table's
// current rows.
func (e *Engine) CreateIndex(name, table, column string, unique bool) error {
	<-e.writerSlot
	defer func() { e.writerSlot <- struct{}{} }()
	e.mu.Lock()
	defer e.mu.Unlock()

	tdef, err := e.catalog.Table(table)
	if err != nil {
		return err
	}
	if tdef.ColumnIndex(column) < 0 {
		return &ashdberrors.ColumnNotFound{Table: table, Column: column}
	}
	def := &IndexDef{Name: name, Table: table, Column: column, Unique: unique}
	if err := e.catalog.AddIndex(def); err != nil {
		return err
	}
	tr, err := btree.Open(e.indexStore, 0, 64, unique)
	if err != nil {
		return err
	}
	def.RootPage = tr.RootID()
	e.indexes[name] = tr

	rowTree := e.tables[table]
	colIdx := tdef.ColumnIndex(column)
	cur, err := rowTree.SeekFirst()
	if err != nil {
		return err
	}
	for {
		key, value, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		row, err := types.DecodeRow(value)
		if err != nil {
			return err
		}
		pk := key.(types.RowKey).V
		idxKey := types.IndexKey{V: row[colIdx], RowPK: pk}
		if err := tr.Insert(idxKey, types.RowKeyCodec().Encode(types.RowKey{V: pk})); err != nil {
			return err
		}
	}
	return e.checkpointLocked()
}

func (e *Engine) DropIndex(name string) error {
	<-e.writerSlot
	defer func() { e.writerSlot <- struct{}{} }()
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.catalog.Index(name); err != nil {
		return err
	}
	delete(e.catalog.Indexes, name)
	delete(e.indexes, name)
	return e.checkpointLocked()
}

// checkpointLocked is Checkpoint's body, called while e.mu is already
// held by a DDL method above; Checkpoint itself takes the lock, so it
// cannot be called reentrantly here.
func (e *Engine) checkpointLocked() error {
	e.mu.Unlock()
	err := e.Checkpoint()
	e.mu.Lock()
	return err
}
