// Package storage is ashdb's storage engine: the table/index catalog,
// row encoding, and the CRUD/scan operations the planner compiles down
// to. Catalog persistence (BSON-encoded checkpoint) and the
// TransactionRegistry are grounded on the teacher's pkg/storage/bson.go
// and pkg/storage/transaction_manager.go; CRUD itself is new, built on
// pkg/btree instead of the teacher's in-memory heap.
package storage

import (
	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/types"
)

// ColumnDef describes one column of a table.
type ColumnDef struct {
	Name       string     `bson:"name"`
	Kind       types.Kind `bson:"kind"`
	PrimaryKey bool       `bson:"primary_key"`
	Nullable   bool       `bson:"nullable"`
}

// TableDef is a table's catalog entry: its schema plus the root page of
// its primary B-tree (keyed by the primary key column, or by an
// implicit rowid when no column is marked PrimaryKey).
type TableDef struct {
	Name      string      `bson:"name"`
	Columns   []ColumnDef `bson:"columns"`
	PKColumn  string      `bson:"pk_column"`
	RootPage  uint64      `bson:"root_page"`
	NextRowID int64       `bson:"next_row_id"`
}

func (t *TableDef) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *TableDef) HasImplicitRowID() bool { return t.PKColumn == "" }

// IndexDef is a secondary index's catalog entry.
type IndexDef struct {
	Name     string `bson:"name"`
	Table    string `bson:"table"`
	Column   string `bson:"column"`
	Unique   bool   `bson:"unique"`
	RootPage uint64 `bson:"root_page"`
}

// Catalog is the full schema: every table and index definition. It is
// checkpointed as a single BSON document (see checkpoint.go) rather
// than stored in B-tree pages, since it is small, changes rarely
// relative to row data, and benefits from being readable as one unit on
// startup before any table tree can be opened.
type Catalog struct {
	Tables  map[string]*TableDef `bson:"tables"`
	Indexes map[string]*IndexDef `bson:"indexes"`
}

func NewCatalog() *Catalog {
	return &Catalog{Tables: map[string]*TableDef{}, Indexes: map[string]*IndexDef{}}
}

func (c *Catalog) AddTable(def *TableDef) error {
	if _, exists := c.Tables[def.Name]; exists {
		return &ashdberrors.TableAlreadyExists{Name: def.Name}
	}
	pkCount := 0
	for _, col := range def.Columns {
		if col.PrimaryKey {
			pkCount++
			def.PKColumn = col.Name
		}
	}
	if pkCount > 1 {
		return &ashdberrors.MultiplePrimaryKeys{Table: def.Name, Total: pkCount}
	}
	c.Tables[def.Name] = def
	return nil
}

func (c *Catalog) Table(name string) (*TableDef, error) {
	t, ok := c.Tables[name]
	if !ok {
		return nil, &ashdberrors.TableNotFound{Name: name}
	}
	return t, nil
}

func (c *Catalog) DropTable(name string) error {
	if _, ok := c.Tables[name]; !ok {
		return &ashdberrors.TableNotFound{Name: name}
	}
	delete(c.Tables, name)
	for idxName, idx := range c.Indexes {
		if idx.Table == name {
			delete(c.Indexes, idxName)
		}
	}
	return nil
}

func (c *Catalog) AddIndex(def *IndexDef) error {
	if _, exists := c.Indexes[def.Name]; exists {
		return &ashdberrors.IndexAlreadyExists{Name: def.Name}
	}
	if _, err := c.Table(def.Table); err != nil {
		return err
	}
	c.Indexes[def.Name] = def
	return nil
}

func (c *Catalog) Index(name string) (*IndexDef, error) {
	idx, ok := c.Indexes[name]
	if !ok {
		return nil, &ashdberrors.IndexNotFound{Name: name}
	}
	return idx, nil
}

func (c *Catalog) IndexesOn(table string) []*IndexDef {
	var out []*IndexDef
	for _, idx := range c.Indexes {
		if idx.Table == table {
			out = append(out, idx)
		}
	}
	return out
}
