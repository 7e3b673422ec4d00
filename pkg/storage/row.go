package storage

import (
	"sync/atomic"

	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/types"
)

// checkRowShape validates a row's column count and per-column Kind
// against a table's definition before it touches the B-tree.
func checkRowShape(def *TableDef, row types.Row) error {
	if len(row) != len(def.Columns) {
		return ashdberrors.New(ashdberrors.KindSchema, "storage: table %q expects %d columns, got %d", def.Name, len(def.Columns), len(row))
	}
	for i, col := range def.Columns {
		v := row[i]
		if v.IsNull() {
			if !col.Nullable {
				return ashdberrors.New(ashdberrors.KindSchema, "storage: column %q is not nullable", col.Name)
			}
			continue
		}
		if v.Kind != col.Kind {
			return &ashdberrors.TypeMismatch{Column: col.Name, Expected: col.Kind.String(), Got: v.Kind.String()}
		}
	}
	return nil
}

// InsertRow appends a new row to table, assigning an implicit rowid
// when the table has no declared primary key. Returns the key the row
// was stored under (so callers can report it back, e.g. last_insert_rowid).
func (e *Engine) InsertRow(txn *Txn, table string, row types.Row) (types.Value, error) {
	e.mu.RLock()
	def, err := e.catalog.Table(table)
	if err != nil {
		e.mu.RUnlock()
		return types.Value{}, err
	}
	if err := checkRowShape(def, row); err != nil {
		e.mu.RUnlock()
		return types.Value{}, err
	}
	tr, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return types.Value{}, &ashdberrors.TableNotFound{Name: table}
	}

	var pk types.Value
	if def.HasImplicitRowID() {
		id := atomic.AddInt64(&def.NextRowID, 1)
		pk = types.Integer(id)
	} else {
		pk = row[def.ColumnIndex(def.PKColumn)]
	}

	if err := tr.Insert(types.RowKey{V: pk}, row.Encode()); err != nil {
		return types.Value{}, err
	}

	if err := e.insertIndexEntries(table, def, row, pk); err != nil {
		return types.Value{}, err
	}
	_ = txn // present for symmetry with UpdateRow/DeleteRow; rollback works through the Tracker wired at Begin
	return pk, nil
}

func (e *Engine) insertIndexEntries(table string, def *TableDef, row types.Row, pk types.Value) error {
	e.mu.RLock()
	indexes := e.catalog.IndexesOn(table)
	e.mu.RUnlock()
	for _, idef := range indexes {
		e.mu.RLock()
		idxTree := e.indexes[idef.Name]
		e.mu.RUnlock()
		colIdx := def.ColumnIndex(idef.Column)
		key := types.IndexKey{V: row[colIdx], RowPK: pk}
		if err := idxTree.Insert(key, types.RowKeyCodec().Encode(types.RowKey{V: pk})); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) removeIndexEntries(table string, def *TableDef, row types.Row, pk types.Value) error {
	e.mu.RLock()
	indexes := e.catalog.IndexesOn(table)
	e.mu.RUnlock()
	for _, idef := range indexes {
		e.mu.RLock()
		idxTree := e.indexes[idef.Name]
		e.mu.RUnlock()
		colIdx := def.ColumnIndex(idef.Column)
		key := types.IndexKey{V: row[colIdx], RowPK: pk}
		if _, err := idxTree.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// GetRow looks up a row by primary key value.
func (e *Engine) GetRow(table string, pk types.Value) (types.Row, bool, error) {
	e.mu.RLock()
	tr, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return nil, false, &ashdberrors.TableNotFound{Name: table}
	}
	value, ok, err := tr.Get(types.RowKey{V: pk})
	if err != nil || !ok {
		return nil, ok, err
	}
	row, err := types.DecodeRow(value)
	return row, true, err
}

// ScanTable returns every row of table in primary-key order. It is
// deliberately eager (not a lazy cursor) since the planner materializes
// full table scans into pkg/vm register sets anyway, and an eager slice
// keeps the Engine API cursor-free: callers outside pkg/btree never see
// a *btree.Cursor.
func (e *Engine) ScanTable(table string) ([]types.Row, []types.Value, error) {
	e.mu.RLock()
	tr, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return nil, nil, &ashdberrors.TableNotFound{Name: table}
	}
	cur, err := tr.SeekFirst()
	if err != nil {
		return nil, nil, err
	}
	var rows []types.Row
	var keys []types.Value
	for {
		key, value, ok, err := cur.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		row, err := types.DecodeRow(value)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
		keys = append(keys, key.(types.RowKey).V)
	}
	return rows, keys, nil
}

// UpdateRow replaces the row stored under pk. If the update changes the
// primary key column's value itself, the caller is responsible for
// issuing a DeleteRow under the old key plus an InsertRow under the new
// one instead: UpdateRow assumes pk is unchanged, which the planner
// enforces by rejecting UPDATE statements that assign to the primary
// key column.
func (e *Engine) UpdateRow(txn *Txn, table string, pk types.Value, newRow types.Row) error {
	e.mu.RLock()
	def, err := e.catalog.Table(table)
	if err != nil {
		e.mu.RUnlock()
		return err
	}
	tr, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return &ashdberrors.TableNotFound{Name: table}
	}
	if err := checkRowShape(def, newRow); err != nil {
		return err
	}

	oldValue, ok, err := tr.Get(types.RowKey{V: pk})
	if err != nil {
		return err
	}
	if !ok {
		return ashdberrors.New(ashdberrors.KindSchema, "storage: no row in %q for update", table)
	}
	oldRow, err := types.DecodeRow(oldValue)
	if err != nil {
		return err
	}

	if err := e.removeIndexEntries(table, def, oldRow, pk); err != nil {
		return err
	}
	if err := tr.Put(types.RowKey{V: pk}, newRow.Encode()); err != nil {
		return err
	}
	return e.insertIndexEntries(table, def, newRow, pk)
}

// DeleteRow removes the row stored under pk, and every secondary index
// entry that pointed to it.
func (e *Engine) DeleteRow(txn *Txn, table string, pk types.Value) error {
	e.mu.RLock()
	def, err := e.catalog.Table(table)
	if err != nil {
		e.mu.RUnlock()
		return err
	}
	tr, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return &ashdberrors.TableNotFound{Name: table}
	}

	value, ok, err := tr.Get(types.RowKey{V: pk})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	row, err := types.DecodeRow(value)
	if err != nil {
		return err
	}
	if err := e.removeIndexEntries(table, def, row, pk); err != nil {
		return err
	}
	_, err = tr.Delete(types.RowKey{V: pk})
	return err
}
