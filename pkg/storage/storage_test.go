package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ashlang/ashdb/pkg/types"
)

func newMemEngine(t *testing.T) *Engine {
	t.Helper()
	opts := DefaultOptions()
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newFileEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Path = dir
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return e
}

func usersTable() []ColumnDef {
	return []ColumnDef{
		{Name: "id", Kind: types.KindInteger, PrimaryKey: true},
		{Name: "name", Kind: types.KindText},
		{Name: "age", Kind: types.KindInteger, Nullable: true},
	}
}

func TestCreateInsertGet(t *testing.T) {
	e := newMemEngine(t)
	if err := e.CreateTable("users", usersTable()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	txn, err := e.Begin(true, ReadCommitted)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	row := types.Row{types.Integer(1), types.Text("ada"), types.Integer(30)}
	pk, err := e.InsertRow(txn, "users", row)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if pk.Integer != 1 {
		t.Fatalf("pk = %v, want 1", pk)
	}

	got, ok, err := e.GetRow("users", types.Integer(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("row not found")
	}
	if got[1].Text != "ada" {
		t.Fatalf("name = %q, want ada", got[1].Text)
	}
}

func TestImplicitRowID(t *testing.T) {
	e := newMemEngine(t)
	cols := []ColumnDef{{Name: "note", Kind: types.KindText}}
	if err := e.CreateTable("notes", cols); err != nil {
		t.Fatalf("create table: %v", err)
	}
	txn, _ := e.Begin(true, ReadCommitted)
	pk1, err := e.InsertRow(txn, "notes", types.Row{types.Text("first")})
	if err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	pk2, err := e.InsertRow(txn, "notes", types.Row{types.Text("second")})
	if err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if pk1.Integer != 1 || pk2.Integer != 2 {
		t.Fatalf("rowids = %v, %v, want 1, 2", pk1, pk2)
	}
}

func TestScanTable(t *testing.T) {
	e := newMemEngine(t)
	if err := e.CreateTable("users", usersTable()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	txn, _ := e.Begin(true, ReadCommitted)
	for i := int64(1); i <= 10; i++ {
		if _, err := e.InsertRow(txn, "users", types.Row{types.Integer(i), types.Text("u"), types.Integer(20)}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rows, keys, err := e.ScanTable("users")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 10 || len(keys) != 10 {
		t.Fatalf("scanned %d rows, want 10", len(rows))
	}
	for i, k := range keys {
		if k.Integer != int64(i+1) {
			t.Fatalf("scan out of order at %d: got %v", i, k)
		}
	}
}

func TestUpdateAndDeleteRow(t *testing.T) {
	e := newMemEngine(t)
	if err := e.CreateTable("users", usersTable()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	txn, _ := e.Begin(true, ReadCommitted)
	if _, err := e.InsertRow(txn, "users", types.Row{types.Integer(1), types.Text("ada"), types.Integer(30)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn2, _ := e.Begin(true, ReadCommitted)
	if err := e.UpdateRow(txn2, "users", types.Integer(1), types.Row{types.Integer(1), types.Text("ada lovelace"), types.Integer(31)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := txn2.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, ok, err := e.GetRow("users", types.Integer(1))
	if err != nil || !ok {
		t.Fatalf("get after update: ok=%v err=%v", ok, err)
	}
	if got[1].Text != "ada lovelace" || got[2].Integer != 31 {
		t.Fatalf("row not updated: %v", got)
	}

	txn3, _ := e.Begin(true, ReadCommitted)
	if err := e.DeleteRow(txn3, "users", types.Integer(1)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := txn3.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	_, ok, err = e.GetRow("users", types.Integer(1))
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if ok {
		t.Fatalf("row should have been deleted")
	}
}

func TestRollbackDiscardsChanges(t *testing.T) {
	e := newMemEngine(t)
	if err := e.CreateTable("users", usersTable()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	txn, _ := e.Begin(true, ReadCommitted)
	if _, err := e.InsertRow(txn, "users", types.Row{types.Integer(1), types.Text("ada"), types.Integer(30)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn2, _ := e.Begin(true, ReadCommitted)
	if err := e.UpdateRow(txn2, "users", types.Integer(1), types.Row{types.Integer(1), types.Text("someone else"), types.Integer(99)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := txn2.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	got, ok, err := e.GetRow("users", types.Integer(1))
	if err != nil || !ok {
		t.Fatalf("get after rollback: ok=%v err=%v", ok, err)
	}
	if got[1].Text != "ada" {
		t.Fatalf("rollback did not restore row, got %v", got)
	}
}

func TestSecondaryIndexBackfillAndMaintenance(t *testing.T) {
	e := newMemEngine(t)
	if err := e.CreateTable("users", usersTable()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	txn, _ := e.Begin(true, ReadCommitted)
	for i := int64(1); i <= 5; i++ {
		if _, err := e.InsertRow(txn, "users", types.Row{types.Integer(i), types.Text("name"), types.Integer(20 + i)}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := e.CreateIndex("idx_age", "users", "age", false); err != nil {
		t.Fatalf("create index: %v", err)
	}
	idxTree := e.indexes["idx_age"]
	if idxTree == nil {
		t.Fatalf("index tree not registered")
	}
	v, ok, err := idxTree.Get(types.IndexKey{V: types.Integer(23), RowPK: types.Integer(3)})
	if err != nil || !ok {
		t.Fatalf("backfilled index entry missing: ok=%v err=%v", ok, err)
	}
	if v == nil {
		t.Fatalf("index entry has no value")
	}
}

func TestDuplicatePrimaryKeyRejected(t *testing.T) {
	e := newMemEngine(t)
	if err := e.CreateTable("users", usersTable()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	txn, _ := e.Begin(true, ReadCommitted)
	if _, err := e.InsertRow(txn, "users", types.Row{types.Integer(1), types.Text("a"), types.Null()}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := e.InsertRow(txn, "users", types.Row{types.Integer(1), types.Text("b"), types.Null()}); err == nil {
		t.Fatalf("expected duplicate primary key to fail")
	}
	_ = txn.Rollback()
}

func TestCrashRecoveryReplaysCommittedOnly(t *testing.T) {
	dir := t.TempDir()
	e := newFileEngine(t, dir)
	if err := e.CreateTable("users", usersTable()); err != nil {
		t.Fatalf("create table: %v", err)
	}

	committed, _ := e.Begin(true, ReadCommitted)
	if _, err := e.InsertRow(committed, "users", types.Row{types.Integer(1), types.Text("committed"), types.Null()}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := committed.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	uncommitted, _ := e.Begin(true, ReadCommitted)
	if _, err := e.InsertRow(uncommitted, "users", types.Row{types.Integer(2), types.Text("uncommitted"), types.Null()}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// simulate a crash: the in-memory pager and WAL are dropped without
	// the uncommitted transaction's Commit/Rollback ever running.

	e2, err := Open(Options{Path: dir, CacheFrames: 64})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	row, ok, err := e2.GetRow("users", types.Integer(1))
	if err != nil || !ok {
		t.Fatalf("committed row missing after recovery: ok=%v err=%v", ok, err)
	}
	if row[1].Text != "committed" {
		t.Fatalf("recovered row wrong: %v", row)
	}

	_, ok, err = e2.GetRow("users", types.Integer(2))
	if err != nil {
		t.Fatalf("get uncommitted row: %v", err)
	}
	if ok {
		t.Fatalf("uncommitted row should not survive recovery")
	}
}

func TestCheckpointTruncatesWAL(t *testing.T) {
	dir := t.TempDir()
	e := newFileEngine(t, dir)
	defer e.Close()
	if err := e.CreateTable("users", usersTable()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	txn, _ := e.Begin(true, ReadCommitted)
	if _, err := e.InsertRow(txn, "users", types.Row{types.Integer(1), types.Text("a"), types.Null()}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := e.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	sawCatalog := false
	for _, ent := range entries {
		if len(ent.Name()) > 7 && ent.Name()[:8] == "catalog_" {
			sawCatalog = true
		}
	}
	if !sawCatalog {
		t.Fatalf("expected a catalog checkpoint file in %s", dir)
	}
	info, err := os.Stat(filepath.Join(dir, "wal", "wal.log"))
	if err != nil || info.Size() != 0 {
		t.Fatalf("expected an empty WAL after checkpoint with no active transaction: info=%v err=%v", info, err)
	}
}
