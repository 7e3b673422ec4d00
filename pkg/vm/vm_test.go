package vm

import (
	"testing"

	"github.com/ashlang/ashdb/pkg/ast"
	"github.com/ashlang/ashdb/pkg/storage"
	"github.com/ashlang/ashdb/pkg/types"
)

func newMemEngine(t *testing.T) *storage.Engine {
	t.Helper()
	e, err := storage.Open(storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func mustCreateUsers(t *testing.T, m *VM) {
	t.Helper()
	stmt := &ast.CreateTable{
		Table: "users",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: types.KindInteger, PrimaryKey: true},
			{Name: "name", Type: types.KindText},
			{Name: "age", Type: types.KindInteger, Nullable: true},
		},
	}
	if _, err := m.Exec(stmt, nil, nil); err != nil {
		t.Fatalf("create table: %v", err)
	}
}

func TestVMInsertAndSelect(t *testing.T) {
	e := newMemEngine(t)
	m := New(e)
	mustCreateUsers(t, m)

	ins := &ast.Insert{Table: "users", Rows: [][]ast.Expr{
		{ast.Literal{Value: types.Integer(1)}, ast.Literal{Value: types.Text("Ada")}, ast.Literal{Value: types.Integer(30)}},
		{ast.Literal{Value: types.Integer(2)}, ast.Literal{Value: types.Text("Linus")}, ast.Literal{Value: types.Integer(25)}},
	}}
	res, err := m.Exec(ins, nil, nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.AffectedRows != 2 {
		t.Fatalf("expected 2 affected rows, got %d", res.AffectedRows)
	}

	sel := &ast.Select{Table: "users", Where: ast.BinaryExpr{
		Op:   ast.OpGe,
		Left: ast.ColumnRef{Name: "age"}, Right: ast.Literal{Value: types.Integer(26)},
	}}
	out, err := m.Exec(sel, nil, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(out.Rows) != 1 || out.Rows[0][1].Text != "Ada" {
		t.Fatalf("unexpected select result: %+v", out.Rows)
	}
}

func TestVMSeekOptimizesPointLookup(t *testing.T) {
	e := newMemEngine(t)
	m := New(e)
	mustCreateUsers(t, m)
	ins := &ast.Insert{Table: "users", Rows: [][]ast.Expr{
		{ast.Literal{Value: types.Integer(7)}, ast.Literal{Value: types.Text("Grace")}, ast.Literal{Value: types.Null()}},
	}}
	if _, err := m.Exec(ins, nil, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	sel := &ast.Select{Table: "users", Where: ast.BinaryExpr{
		Op: ast.OpEq, Left: ast.ColumnRef{Name: "id"}, Right: ast.Param{Index: 0},
	}}
	out, err := m.Exec(sel, nil, []types.Value{types.Integer(7)})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(out.Rows) != 1 || out.Rows[0][1].Text != "Grace" {
		t.Fatalf("unexpected seek result: %+v", out.Rows)
	}

	missing := &ast.Select{Table: "users", Where: ast.BinaryExpr{
		Op: ast.OpEq, Left: ast.ColumnRef{Name: "id"}, Right: ast.Literal{Value: types.Integer(999)},
	}}
	out2, err := m.Exec(missing, nil, nil)
	if err != nil {
		t.Fatalf("select missing: %v", err)
	}
	if len(out2.Rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(out2.Rows))
	}
}

func TestVMUpdateAndDelete(t *testing.T) {
	e := newMemEngine(t)
	m := New(e)
	mustCreateUsers(t, m)
	ins := &ast.Insert{Table: "users", Rows: [][]ast.Expr{
		{ast.Literal{Value: types.Integer(1)}, ast.Literal{Value: types.Text("Ada")}, ast.Literal{Value: types.Integer(30)}},
	}}
	if _, err := m.Exec(ins, nil, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	upd := &ast.Update{
		Table:       "users",
		Assignments: []ast.Assignment{{Column: "age", Value: ast.Literal{Value: types.Integer(31)}}},
		Where:       ast.BinaryExpr{Op: ast.OpEq, Left: ast.ColumnRef{Name: "id"}, Right: ast.Literal{Value: types.Integer(1)}},
	}
	if _, err := m.Exec(upd, nil, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	row, ok, err := e.GetRow("users", types.Integer(1))
	if err != nil || !ok {
		t.Fatalf("get after update: %v %v", ok, err)
	}
	if row[2].Integer != 31 {
		t.Fatalf("expected age 31, got %d", row[2].Integer)
	}

	del := &ast.Delete{Table: "users", Where: ast.BinaryExpr{Op: ast.OpEq, Left: ast.ColumnRef{Name: "id"}, Right: ast.Literal{Value: types.Integer(1)}}}
	if _, err := m.Exec(del, nil, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := e.GetRow("users", types.Integer(1)); err != nil || ok {
		t.Fatalf("expected row gone, ok=%v err=%v", ok, err)
	}
}

func TestVMNullComparisonIsUnknown(t *testing.T) {
	e := newMemEngine(t)
	m := New(e)
	mustCreateUsers(t, m)
	ins := &ast.Insert{Table: "users", Rows: [][]ast.Expr{
		{ast.Literal{Value: types.Integer(1)}, ast.Literal{Value: types.Text("Ada")}, ast.Literal{Value: types.Null()}},
	}}
	if _, err := m.Exec(ins, nil, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	sel := &ast.Select{Table: "users", Where: ast.BinaryExpr{Op: ast.OpEq, Left: ast.ColumnRef{Name: "age"}, Right: ast.Literal{Value: types.Integer(30)}}}
	out, err := m.Exec(sel, nil, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(out.Rows) != 0 {
		t.Fatalf("NULL = 30 should filter the row out, got %d rows", len(out.Rows))
	}
}
