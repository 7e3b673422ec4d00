// Package plan compiles an ast.Stmt into a linear operator program, the
// shape spec'd in §4.5: OpenRead/OpenWrite/Seek/Next/Filter/Project/
// InsertCell/UpdateCell/DeleteCell/Close/Halt, with explicit jump targets
// so pkg/vm's interpreter loop never needs to know statement shapes —
// only how to execute one operator record at a time.
package plan

import (
	"fmt"

	"github.com/ashlang/ashdb/pkg/ast"
)

type OpCode uint8

const (
	OpOpenRead OpCode = iota
	OpOpenWrite
	OpSeek
	OpNext
	OpFilter
	OpProject
	OpInsertCell
	OpUpdateCell
	OpDeleteCell
	OpClose
	OpJump
	OpHalt
)

// Instr is one operator record. Not every field applies to every OpCode;
// each field's comment below names the ops that read it.
type Instr struct {
	Op          OpCode
	Table       string
	Expr        ast.Expr         // Filter's predicate, or Seek's key expression
	Columns     []string         // Project
	Assignments []ast.Assignment // UpdateCell
	Row         []ast.Expr       // InsertCell: one VALUES tuple
	RowColumns  []string         // InsertCell: named columns the tuple fills (empty = declared order)
	JumpFalse   int              // Filter/Seek: pc to jump to when the condition fails
	Jump        int              // Next: pc to jump to once exhausted; Jump: unconditional target
}

type Program struct {
	Instrs []Instr
}

type builder struct{ instrs []Instr }

func (b *builder) emit(i Instr) int {
	b.instrs = append(b.instrs, i)
	return len(b.instrs) - 1
}

// Compile turns a DML statement into an operator Program. pkColumn is
// the target table's primary-key column name (empty for an implicit
// rowid table); when the statement's WHERE clause is a bare equality on
// that column, Compile emits a Seek point lookup instead of a full
// Next/Filter scan loop.
func Compile(stmt ast.Stmt, pkColumn string) (*Program, error) {
	switch s := stmt.(type) {
	case *ast.Select:
		return compileSelect(s, pkColumn), nil
	case *ast.Insert:
		return compileInsert(s), nil
	case *ast.Update:
		return compileUpdate(s, pkColumn), nil
	case *ast.Delete:
		return compileDelete(s, pkColumn), nil
	default:
		return nil, fmt.Errorf("plan: %T is not an operator-plan statement", stmt)
	}
}

// pkEquality reports whether where is a bare `pkColumn = expr` (or
// `expr = pkColumn`) equality, returning the other side's expression.
func pkEquality(where ast.Expr, pkColumn string) (ast.Expr, bool) {
	if pkColumn == "" || where == nil {
		return nil, false
	}
	eq, ok := where.(ast.BinaryExpr)
	if !ok || eq.Op != ast.OpEq {
		return nil, false
	}
	if col, ok := eq.Left.(ast.ColumnRef); ok && col.Name == pkColumn {
		return eq.Right, true
	}
	if col, ok := eq.Right.(ast.ColumnRef); ok && col.Name == pkColumn {
		return eq.Left, true
	}
	return nil, false
}

func compileSelect(s *ast.Select, pkColumn string) *Program {
	b := &builder{}
	if key, ok := pkEquality(s.Where, pkColumn); ok {
		seekIdx := b.emit(Instr{Op: OpSeek, Table: s.Table, Expr: key})
		b.emit(Instr{Op: OpProject, Columns: s.Columns})
		closeIdx := b.emit(Instr{Op: OpClose, Table: s.Table})
		b.emit(Instr{Op: OpHalt})
		b.instrs[seekIdx].JumpFalse = closeIdx
		return &Program{Instrs: b.instrs}
	}

	b.emit(Instr{Op: OpOpenRead, Table: s.Table})
	nextIdx := b.emit(Instr{Op: OpNext})
	filterIdx := -1
	if s.Where != nil {
		filterIdx = b.emit(Instr{Op: OpFilter, Expr: s.Where})
	}
	b.emit(Instr{Op: OpProject, Columns: s.Columns})
	jumpIdx := b.emit(Instr{Op: OpJump})
	closeIdx := b.emit(Instr{Op: OpClose, Table: s.Table})
	b.emit(Instr{Op: OpHalt})

	b.instrs[nextIdx].Jump = closeIdx
	b.instrs[jumpIdx].Jump = nextIdx
	if filterIdx >= 0 {
		b.instrs[filterIdx].JumpFalse = nextIdx
	}
	return &Program{Instrs: b.instrs}
}

func compileInsert(s *ast.Insert) *Program {
	b := &builder{}
	b.emit(Instr{Op: OpOpenWrite, Table: s.Table})
	for _, row := range s.Rows {
		b.emit(Instr{Op: OpInsertCell, Table: s.Table, Row: row, RowColumns: s.Columns})
	}
	b.emit(Instr{Op: OpClose, Table: s.Table})
	b.emit(Instr{Op: OpHalt})
	return &Program{Instrs: b.instrs}
}

func compileUpdate(s *ast.Update, pkColumn string) *Program {
	b := &builder{}
	if key, ok := pkEquality(s.Where, pkColumn); ok {
		seekIdx := b.emit(Instr{Op: OpSeek, Table: s.Table, Expr: key})
		b.emit(Instr{Op: OpUpdateCell, Table: s.Table, Assignments: s.Assignments})
		closeIdx := b.emit(Instr{Op: OpClose, Table: s.Table})
		b.emit(Instr{Op: OpHalt})
		b.instrs[seekIdx].JumpFalse = closeIdx
		return &Program{Instrs: b.instrs}
	}

	b.emit(Instr{Op: OpOpenWrite, Table: s.Table})
	nextIdx := b.emit(Instr{Op: OpNext})
	filterIdx := -1
	if s.Where != nil {
		filterIdx = b.emit(Instr{Op: OpFilter, Expr: s.Where})
	}
	b.emit(Instr{Op: OpUpdateCell, Table: s.Table, Assignments: s.Assignments})
	jumpIdx := b.emit(Instr{Op: OpJump})
	closeIdx := b.emit(Instr{Op: OpClose, Table: s.Table})
	b.emit(Instr{Op: OpHalt})

	b.instrs[nextIdx].Jump = closeIdx
	b.instrs[jumpIdx].Jump = nextIdx
	if filterIdx >= 0 {
		b.instrs[filterIdx].JumpFalse = nextIdx
	}
	return &Program{Instrs: b.instrs}
}

func compileDelete(s *ast.Delete, pkColumn string) *Program {
	b := &builder{}
	if key, ok := pkEquality(s.Where, pkColumn); ok {
		seekIdx := b.emit(Instr{Op: OpSeek, Table: s.Table, Expr: key})
		b.emit(Instr{Op: OpDeleteCell, Table: s.Table})
		closeIdx := b.emit(Instr{Op: OpClose, Table: s.Table})
		b.emit(Instr{Op: OpHalt})
		b.instrs[seekIdx].JumpFalse = closeIdx
		return &Program{Instrs: b.instrs}
	}

	b.emit(Instr{Op: OpOpenWrite, Table: s.Table})
	nextIdx := b.emit(Instr{Op: OpNext})
	filterIdx := -1
	if s.Where != nil {
		filterIdx = b.emit(Instr{Op: OpFilter, Expr: s.Where})
	}
	b.emit(Instr{Op: OpDeleteCell, Table: s.Table})
	jumpIdx := b.emit(Instr{Op: OpJump})
	closeIdx := b.emit(Instr{Op: OpClose, Table: s.Table})
	b.emit(Instr{Op: OpHalt})

	b.instrs[nextIdx].Jump = closeIdx
	b.instrs[jumpIdx].Jump = nextIdx
	if filterIdx >= 0 {
		b.instrs[filterIdx].JumpFalse = nextIdx
	}
	return &Program{Instrs: b.instrs}
}
