// Package vm interprets the operator programs pkg/plan compiles: a
// small stack machine with a per-row register file, driven by a
// program counter with explicit jump targets for filter
// short-circuiting, matching the shape the pack's own SQL engines use
// for their bytecode interpreters.
package vm

import (
	"fmt"

	"github.com/ashlang/ashdb/pkg/ast"
	"github.com/ashlang/ashdb/pkg/plan"
	"github.com/ashlang/ashdb/pkg/storage"
	"github.com/ashlang/ashdb/pkg/types"
)

// Result is what running a Program produces: rows for a SELECT, or an
// affected-row count for INSERT/UPDATE/DELETE.
type Result struct {
	Columns      []string
	Rows         []types.Row
	AffectedRows uint64
}

// VM runs compiled programs and the small set of statements that never
// reach pkg/plan (DDL, transaction control) against one storage Engine.
type VM struct {
	engine *storage.Engine
}

func New(engine *storage.Engine) *VM { return &VM{engine: engine} }

// Exec runs one parsed statement to completion. pkg/conn passes the
// open transaction, or the implicit one it begins for an autocommit DML
// statement; DDL does not use txn, and pkg/conn passes nil for it.
func (m *VM) Exec(stmt ast.Stmt, txn *storage.Txn, params []types.Value) (Result, error) {
	switch s := stmt.(type) {
	case *ast.CreateTable:
		return Result{}, m.execCreateTable(s)
	case *ast.DropTable:
		return Result{}, m.engine.DropTable(s.Table)
	case *ast.CreateIndex:
		return Result{}, m.engine.CreateIndex(s.Name, s.Table, s.Column, s.Unique)
	case *ast.Insert, *ast.Select, *ast.Update, *ast.Delete:
		return m.execProgram(stmt, txn, params)
	default:
		return Result{}, fmt.Errorf("vm: %T is not directly executable (transaction control is the caller's job)", stmt)
	}
}

func (m *VM) execCreateTable(s *ast.CreateTable) error {
	cols := make([]storage.ColumnDef, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = storage.ColumnDef{Name: c.Name, Kind: c.Type, PrimaryKey: c.PrimaryKey, Nullable: c.Nullable}
	}
	return m.engine.CreateTable(s.Table, cols)
}

func (m *VM) pkColumnOf(table string) string {
	def, err := m.engine.Catalog().Table(table)
	if err != nil {
		return ""
	}
	return def.PKColumn
}

func (m *VM) execProgram(stmt ast.Stmt, txn *storage.Txn, params []types.Value) (Result, error) {
	table := tableNameOf(stmt)
	prog, err := plan.Compile(stmt, m.pkColumnOf(table))
	if err != nil {
		return Result{}, err
	}
	def, err := m.engine.Catalog().Table(table)
	if err != nil {
		return Result{}, err
	}

	st := &runState{m: m, txn: txn, params: params, def: def}
	pc := 0
	for pc < len(prog.Instrs) {
		instr := prog.Instrs[pc]
		next, err := st.step(instr)
		if err != nil {
			return Result{}, err
		}
		if next >= 0 {
			pc = next
			continue
		}
		pc++
	}

	res := Result{Columns: st.projectedCols, Rows: st.results, AffectedRows: st.affected}
	return res, nil
}

func tableNameOf(stmt ast.Stmt) string {
	switch s := stmt.(type) {
	case *ast.Insert:
		return s.Table
	case *ast.Select:
		return s.Table
	case *ast.Update:
		return s.Table
	case *ast.Delete:
		return s.Table
	default:
		return ""
	}
}

// runState carries one execution's mutable machine state: the
// materialized scan (rows/keys from an eager OpenRead/OpenWrite), the
// current cursor position, and the accumulating result.
type runState struct {
	m      *VM
	txn    *storage.Txn
	params []types.Value
	def    *storage.TableDef

	rows []types.Row
	keys []types.Value
	idx  int

	curRow  types.Row
	curKey  types.Value
	haveRow bool

	projectedCols []string
	results       []types.Row
	affected      uint64
}

func (st *runState) colNames() []string {
	names := make([]string, len(st.def.Columns))
	for i, c := range st.def.Columns {
		names[i] = c.Name
	}
	return names
}

// step executes one instruction and returns the next pc, or -1 to mean
// "fall through to pc+1".
func (st *runState) step(instr plan.Instr) (int, error) {
	switch instr.Op {
	case plan.OpOpenRead, plan.OpOpenWrite:
		rows, keys, err := st.m.engine.ScanTable(instr.Table)
		if err != nil {
			return -1, err
		}
		st.rows, st.keys, st.idx = rows, keys, -1
		return -1, nil

	case plan.OpSeek:
		ctx := evalCtx{cols: st.colNames(), params: st.params}
		keyVal, err := evalValue(instr.Expr, ctx)
		if err != nil {
			return -1, err
		}
		row, found, err := st.m.engine.GetRow(instr.Table, keyVal)
		if err != nil {
			return -1, err
		}
		if !found {
			return instr.JumpFalse, nil
		}
		st.curRow, st.curKey, st.haveRow = row, keyVal, true
		return -1, nil

	case plan.OpNext:
		st.idx++
		if st.idx >= len(st.rows) {
			st.haveRow = false
			return instr.Jump, nil
		}
		st.curRow, st.curKey, st.haveRow = st.rows[st.idx], st.keys[st.idx], true
		return -1, nil

	case plan.OpFilter:
		ctx := evalCtx{cols: st.colNames(), row: st.curRow, params: st.params}
		tri, err := evalBool(instr.Expr, ctx)
		if err != nil {
			return -1, err
		}
		if !tri.IsTrue() {
			return instr.JumpFalse, nil
		}
		return -1, nil

	case plan.OpProject:
		cols, row := projectRow(st.def, instr.Columns, st.curRow)
		st.projectedCols = cols
		st.results = append(st.results, row)
		return -1, nil

	case plan.OpInsertCell:
		ctx := evalCtx{cols: st.colNames(), params: st.params}
		row, err := buildInsertRow(st.def, instr.RowColumns, instr.Row, ctx)
		if err != nil {
			return -1, err
		}
		if _, err := st.m.engine.InsertRow(st.txn, instr.Table, row); err != nil {
			return -1, err
		}
		st.affected++
		return -1, nil

	case plan.OpUpdateCell:
		if !st.haveRow {
			return -1, nil
		}
		ctx := evalCtx{cols: st.colNames(), row: st.curRow, params: st.params}
		newRow, err := applyAssignments(st.def, st.curRow, instr.Assignments, ctx)
		if err != nil {
			return -1, err
		}
		if err := st.m.engine.UpdateRow(st.txn, instr.Table, st.curKey, newRow); err != nil {
			return -1, err
		}
		st.affected++
		return -1, nil

	case plan.OpDeleteCell:
		if !st.haveRow {
			return -1, nil
		}
		if err := st.m.engine.DeleteRow(st.txn, instr.Table, st.curKey); err != nil {
			return -1, err
		}
		st.affected++
		return -1, nil

	case plan.OpClose:
		return -1, nil

	case plan.OpJump:
		return instr.Jump, nil

	case plan.OpHalt:
		// Always the program's final instruction; falling through to
		// pc+1 runs pc past len(Instrs) and ends the caller's loop.
		return -1, nil

	default:
		return -1, fmt.Errorf("vm: unknown opcode %d", instr.Op)
	}
}

func projectRow(def *storage.TableDef, columns []string, row types.Row) ([]string, types.Row) {
	if len(columns) == 0 {
		names := make([]string, len(def.Columns))
		for i, c := range def.Columns {
			names[i] = c.Name
		}
		return names, append(types.Row{}, row...)
	}
	out := make(types.Row, len(columns))
	for i, name := range columns {
		idx := def.ColumnIndex(name)
		if idx >= 0 {
			out[i] = row[idx]
		}
	}
	return columns, out
}

// buildInsertRow assembles a full, declared-order row from a VALUES
// tuple, filling columns the statement didn't name with NULL.
func buildInsertRow(def *storage.TableDef, columns []string, values []ast.Expr, ctx evalCtx) (types.Row, error) {
	row := make(types.Row, len(def.Columns))
	for i := range row {
		row[i] = types.Null()
	}
	if len(columns) == 0 {
		for i, v := range values {
			if i >= len(row) {
				return nil, fmt.Errorf("vm: insert has more values than table %q has columns", def.Name)
			}
			val, err := evalValue(v, ctx)
			if err != nil {
				return nil, err
			}
			row[i] = val
		}
		return row, nil
	}
	for i, name := range columns {
		idx := def.ColumnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("vm: table %q has no column %q", def.Name, name)
		}
		val, err := evalValue(values[i], ctx)
		if err != nil {
			return nil, err
		}
		row[idx] = val
	}
	return row, nil
}

func applyAssignments(def *storage.TableDef, cur types.Row, assignments []ast.Assignment, ctx evalCtx) (types.Row, error) {
	out := append(types.Row{}, cur...)
	for _, a := range assignments {
		idx := def.ColumnIndex(a.Column)
		if idx < 0 {
			return nil, fmt.Errorf("vm: table %q has no column %q", def.Name, a.Column)
		}
		if a.Column == def.PKColumn {
			return nil, fmt.Errorf("vm: update cannot assign to primary key column %q", a.Column)
		}
		val, err := evalValue(a.Value, ctx)
		if err != nil {
			return nil, err
		}
		out[idx] = val
	}
	return out, nil
}
