package sqlparse

import (
	"testing"

	"github.com/ashlang/ashdb/pkg/ast"
	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
)

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT, age INTEGER)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ct, ok := stmt.(*ast.CreateTable)
	if !ok {
		t.Fatalf("got %T, want *ast.CreateTable", stmt)
	}
	if ct.Table != "users" || len(ct.Columns) != 3 {
		t.Fatalf("unexpected statement: %+v", ct)
	}
	if !ct.Columns[0].PrimaryKey || ct.Columns[0].Nullable {
		t.Fatalf("id column should be a non-nullable primary key: %+v", ct.Columns[0])
	}
}

func TestParseInsertMultiRow(t *testing.T) {
	stmt, err := Parse("INSERT INTO users VALUES (1, 'Alice'), (2, 'Bob')")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ins, ok := stmt.(*ast.Insert)
	if !ok {
		t.Fatalf("got %T, want *ast.Insert", stmt)
	}
	if len(ins.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(ins.Rows))
	}
}

func TestParseInsertWithParams(t *testing.T) {
	stmt, err := Parse("INSERT INTO users VALUES (?0, ?1)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ins := stmt.(*ast.Insert)
	p0, ok := ins.Rows[0][0].(ast.Param)
	if !ok || p0.Index != 0 {
		t.Fatalf("expected ?0 param, got %#v", ins.Rows[0][0])
	}
}

func TestParseSelectWhereAndOr(t *testing.T) {
	stmt, err := Parse("SELECT id, name FROM users WHERE age >= 18 AND name != 'Bob'")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel, ok := stmt.(*ast.Select)
	if !ok {
		t.Fatalf("got %T, want *ast.Select", stmt)
	}
	if len(sel.Columns) != 2 {
		t.Fatalf("expected 2 projected columns, got %v", sel.Columns)
	}
	and, ok := sel.Where.(ast.BinaryExpr)
	if !ok || and.Op != ast.OpAnd {
		t.Fatalf("expected top-level AND, got %#v", sel.Where)
	}
}

func TestParseUpdate(t *testing.T) {
	stmt, err := Parse("UPDATE users SET name = 'Ada', age = 31 WHERE id = 1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	upd, ok := stmt.(*ast.Update)
	if !ok {
		t.Fatalf("got %T, want *ast.Update", stmt)
	}
	if len(upd.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(upd.Assignments))
	}
}

func TestParseDeleteAndTxnControl(t *testing.T) {
	if _, err := Parse("DELETE FROM users WHERE id = 1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := Parse("BEGIN"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := Parse("COMMIT"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := Parse("ROLLBACK"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
}

func TestParseErrorReportsOffset(t *testing.T) {
	_, err := Parse("CREATE users(id INTEGER)")
	if err == nil {
		t.Fatalf("expected a parse error")
	}
	pe, ok := err.(*ashdberrors.ParseError)
	if !ok || pe.Offset != 7 {
		t.Fatalf("expected a ParseError at offset 7 (the token after CREATE), got %#v", err)
	}
}

func TestParseCreateIndex(t *testing.T) {
	stmt, err := Parse("CREATE UNIQUE INDEX idx_name ON users(name)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ci, ok := stmt.(*ast.CreateIndex)
	if !ok {
		t.Fatalf("got %T, want *ast.CreateIndex", stmt)
	}
	if !ci.Unique || ci.Table != "users" || ci.Column != "name" {
		t.Fatalf("unexpected index def: %+v", ci)
	}
}
