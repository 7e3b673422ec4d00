package vm

import (
	"fmt"

	"github.com/ashlang/ashdb/pkg/ast"
	"github.com/ashlang/ashdb/pkg/types"
)

// evalCtx is the register file an expression is evaluated against: the
// current row (named by column, for WHERE/SET expressions that
// reference it) plus the bound parameter slots of the statement being
// run.
type evalCtx struct {
	cols   []string
	row    types.Row
	params []types.Value
}

func (c evalCtx) column(name string) (types.Value, error) {
	for i, col := range c.cols {
		if col == name {
			return c.row[i], nil
		}
	}
	return types.Value{}, fmt.Errorf("vm: unknown column %q", name)
}

func (c evalCtx) param(i int) (types.Value, error) {
	if i < 0 || i >= len(c.params) {
		return types.Value{}, fmt.Errorf("vm: parameter ?%d has no bound value", i)
	}
	return c.params[i], nil
}

// evalValue evaluates a non-boolean expression (a VALUES tuple entry or
// a SET assignment's right-hand side) to a single Value.
func evalValue(expr ast.Expr, ctx evalCtx) (types.Value, error) {
	switch e := expr.(type) {
	case ast.Literal:
		return e.Value, nil
	case ast.Param:
		return ctx.param(e.Index)
	case ast.ColumnRef:
		return ctx.column(e.Name)
	default:
		return types.Value{}, fmt.Errorf("vm: %T is not a value expression", expr)
	}
}

// evalBool evaluates a WHERE-clause expression to a three-valued
// result: comparisons against a NULL operand yield Unknown rather than
// panicking or silently defaulting to false, and AND/OR/NOT compose
// Unknown the way SQL's three-valued logic requires.
func evalBool(expr ast.Expr, ctx evalCtx) (types.TriBool, error) {
	switch e := expr.(type) {
	case ast.UnaryExpr:
		if e.Op != ast.OpNot {
			return types.Unknown, fmt.Errorf("vm: unsupported unary operator")
		}
		inner, err := evalBool(e.Operand, ctx)
		if err != nil {
			return types.Unknown, err
		}
		return inner.Not(), nil
	case ast.BinaryExpr:
		switch e.Op {
		case ast.OpAnd:
			left, err := evalBool(e.Left, ctx)
			if err != nil {
				return types.Unknown, err
			}
			right, err := evalBool(e.Right, ctx)
			if err != nil {
				return types.Unknown, err
			}
			return left.And(right), nil
		case ast.OpOr:
			left, err := evalBool(e.Left, ctx)
			if err != nil {
				return types.Unknown, err
			}
			right, err := evalBool(e.Right, ctx)
			if err != nil {
				return types.Unknown, err
			}
			return left.Or(right), nil
		default:
			return evalComparison(e, ctx)
		}
	default:
		return types.Unknown, fmt.Errorf("vm: %T is not a boolean expression", expr)
	}
}

func evalComparison(e ast.BinaryExpr, ctx evalCtx) (types.TriBool, error) {
	left, err := evalValue(e.Left, ctx)
	if err != nil {
		return types.Unknown, err
	}
	right, err := evalValue(e.Right, ctx)
	if err != nil {
		return types.Unknown, err
	}
	if left.IsNull() || right.IsNull() {
		return types.Unknown, nil
	}
	cmp := left.Compare(right)
	switch e.Op {
	case ast.OpEq:
		return types.BoolToTri(cmp == 0), nil
	case ast.OpNe:
		return types.BoolToTri(cmp != 0), nil
	case ast.OpLt:
		return types.BoolToTri(cmp < 0), nil
	case ast.OpLe:
		return types.BoolToTri(cmp <= 0), nil
	case ast.OpGt:
		return types.BoolToTri(cmp > 0), nil
	case ast.OpGe:
		return types.BoolToTri(cmp >= 0), nil
	default:
		return types.Unknown, fmt.Errorf("vm: unsupported comparison operator")
	}
}
