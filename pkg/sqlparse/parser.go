package sqlparse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ashlang/ashdb/pkg/ast"
	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/types"
)

type parser struct {
	lex  *lexer
	tok  token
	peek *token
}

// Parse tokenizes and parses one SQL statement, returning its AST per
// the ast.Stmt contract, or a *ashdberrors.ParseError.
func Parse(sql string) (ast.Stmt, error) {
	p := &parser{lex: newLexer(sql)}
	p.advance()
	if p.tok.kind == tokEOF {
		return nil, &ashdberrors.ParseError{Offset: 0, Message: "empty statement"}
	}

	var stmt ast.Stmt
	var err error
	switch p.tok.text {
	case "CREATE":
		stmt, err = p.parseCreate()
	case "DROP":
		stmt, err = p.parseDropTable()
	case "INSERT":
		stmt, err = p.parseInsert()
	case "SELECT":
		stmt, err = p.parseSelect()
	case "UPDATE":
		stmt, err = p.parseUpdate()
	case "DELETE":
		stmt, err = p.parseDelete()
	case "BEGIN":
		stmt, err = p.parseBegin()
	case "COMMIT":
		stmt, err = p.parseCommit()
	case "ROLLBACK":
		stmt, err = p.parseRollback()
	default:
		return nil, p.errorf("unexpected token %q", p.tok.text)
	}
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokPunct && p.tok.text == ";" {
		p.advance()
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected trailing input %q", p.tok.text)
	}
	return stmt, nil
}

func (p *parser) errorf(format string, args ...any) *ashdberrors.ParseError {
	return &ashdberrors.ParseError{Offset: p.tok.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) advance() {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return
	}
	p.tok = p.lex.next()
}

func (p *parser) peekTok() token {
	if p.peek == nil {
		t := p.lex.next()
		p.peek = &t
	}
	return *p.peek
}

func (p *parser) expectKeyword(kw string) error {
	if p.tok.kind != tokKeyword || p.tok.text != kw {
		return p.errorf("expected %s, got %q", kw, p.tok.text)
	}
	p.advance()
	return nil
}

func (p *parser) expectPunct(s string) error {
	if p.tok.kind != tokPunct || p.tok.text != s {
		return p.errorf("expected %q, got %q", s, p.tok.text)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	if p.tok.kind != tokIdent {
		return "", p.errorf("expected identifier, got %q", p.tok.text)
	}
	name := p.tok.text
	p.advance()
	return name, nil
}

func (p *parser) atKeyword(kw string) bool { return p.tok.kind == tokKeyword && p.tok.text == kw }
func (p *parser) atPunct(s string) bool    { return p.tok.kind == tokPunct && p.tok.text == s }

// ---- CREATE TABLE / CREATE INDEX ----

func (p *parser) parseCreate() (ast.Stmt, error) {
	p.advance() // CREATE
	if p.atKeyword("TABLE") {
		return p.parseCreateTable()
	}
	unique := false
	if p.atKeyword("UNIQUE") {
		unique = true
		p.advance()
	}
	if p.atKeyword("INDEX") {
		return p.parseCreateIndex(unique)
	}
	return nil, p.errorf("expected TABLE or INDEX after CREATE, got %q", p.tok.text)
}

func (p *parser) parseCreateTable() (ast.Stmt, error) {
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var cols []ast.ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &ast.CreateTable{Table: name, Columns: cols}, nil
}

func (p *parser) parseColumnDef() (ast.ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ast.ColumnDef{}, err
	}
	kind, err := p.parseTypeName()
	if err != nil {
		return ast.ColumnDef{}, err
	}
	col := ast.ColumnDef{Name: name, Type: kind, Nullable: true}
	for {
		switch {
		case p.atKeyword("PRIMARY"):
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return ast.ColumnDef{}, err
			}
			col.PrimaryKey = true
			col.Nullable = false
		case p.atKeyword("NOT"):
			p.advance()
			if err := p.expectKeyword("NULL"); err != nil {
				return ast.ColumnDef{}, err
			}
			col.Nullable = false
		default:
			return col, nil
		}
	}
}

func (p *parser) parseTypeName() (types.Kind, error) {
	if p.tok.kind != tokKeyword {
		return 0, p.errorf("expected a column type, got %q", p.tok.text)
	}
	switch p.tok.text {
	case "INTEGER":
		p.advance()
		return types.KindInteger, nil
	case "TEXT":
		p.advance()
		return types.KindText, nil
	case "REAL":
		p.advance()
		return types.KindReal, nil
	case "BLOB":
		p.advance()
		return types.KindBlob, nil
	default:
		return 0, p.errorf("unknown column type %q", p.tok.text)
	}
}

func (p *parser) parseCreateIndex(unique bool) (ast.Stmt, error) {
	if err := p.expectKeyword("INDEX"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	column, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &ast.CreateIndex{Name: name, Table: table, Column: column, Unique: unique}, nil
}

// ---- DROP TABLE ----

func (p *parser) parseDropTable() (ast.Stmt, error) {
	p.advance() // DROP
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &ast.DropTable{Table: name}, nil
}

// ---- INSERT ----

func (p *parser) parseInsert() (ast.Stmt, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var columns []string
	if p.atPunct("(") {
		p.advance()
		for {
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)
			if p.atPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	var rows [][]ast.Expr
	for {
		row, err := p.parseValueTuple()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return &ast.Insert{Table: table, Columns: columns, Rows: rows}, nil
}

func (p *parser) parseValueTuple() ([]ast.Expr, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var vals []ast.Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		vals = append(vals, e)
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return vals, nil
}

// ---- SELECT ----

func (p *parser) parseSelect() (ast.Stmt, error) {
	p.advance() // SELECT
	var columns []string
	if p.atPunct("*") {
		p.advance()
	} else {
		for {
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)
			if p.atPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var where ast.Expr
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &ast.Select{Table: table, Columns: columns, Where: where}, nil
}

// ---- UPDATE ----

func (p *parser) parseUpdate() (ast.Stmt, error) {
	p.advance() // UPDATE
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	var assigns []ast.Assignment
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, ast.Assignment{Column: col, Value: val})
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	var where ast.Expr
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &ast.Update{Table: table, Assignments: assigns, Where: where}, nil
}

// ---- DELETE ----

func (p *parser) parseDelete() (ast.Stmt, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var where ast.Expr
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &ast.Delete{Table: table, Where: where}, nil
}

// ---- transaction control ----

func (p *parser) parseBegin() (ast.Stmt, error) {
	p.advance() // BEGIN
	if p.atKeyword("TRANSACTION") {
		p.advance()
	}
	level := ast.ReadCommitted
	if p.atKeyword("SERIALIZABLE") {
		level = ast.Serializable
		p.advance()
	}
	return &ast.Begin{Level: level}, nil
}

func (p *parser) parseCommit() (ast.Stmt, error) {
	p.advance()
	if p.atKeyword("TRANSACTION") {
		p.advance()
	}
	return &ast.Commit{}, nil
}

func (p *parser) parseRollback() (ast.Stmt, error) {
	p.advance()
	if p.atKeyword("TRANSACTION") {
		p.advance()
	}
	return &ast.Rollback{}, nil
}

// ---- expressions ----
// orExpr := andExpr (OR andExpr)*
// andExpr := comparison (AND comparison)*
// comparison := unary (op unary)?
// unary := NOT unary | primary

func (p *parser) parseExpr() (ast.Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: ast.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: ast.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	op, ok := p.comparisonOp()
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return ast.BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *parser) comparisonOp() (ast.BinaryOp, bool) {
	if p.tok.kind != tokPunct {
		return 0, false
	}
	switch p.tok.text {
	case "=":
		return ast.OpEq, true
	case "!=", "<>":
		return ast.OpNe, true
	case "<":
		return ast.OpLt, true
	case "<=":
		return ast.OpLe, true
	case ">":
		return ast.OpGt, true
	case ">=":
		return ast.OpGe, true
	default:
		return 0, false
	}
}

func (p *parser) parseUnary() (ast.Expr, error) {
	if p.atKeyword("NOT") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Op: ast.OpNot, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	switch {
	case p.tok.kind == tokNumber:
		text := p.tok.text
		p.advance()
		if strings.Contains(text, ".") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, p.errorf("invalid number %q", text)
			}
			return ast.Literal{Value: types.Real(f)}, nil
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer %q", text)
		}
		return ast.Literal{Value: types.Integer(i)}, nil
	case p.tok.kind == tokString:
		s := p.tok.text
		p.advance()
		return ast.Literal{Value: types.Text(s)}, nil
	case p.tok.kind == tokParam:
		idxText := p.tok.text
		p.advance()
		idx := 0
		if idxText != "" {
			n, err := strconv.Atoi(idxText)
			if err != nil {
				return nil, p.errorf("invalid parameter index %q", idxText)
			}
			idx = n
		}
		return ast.Param{Index: idx}, nil
	case p.atKeyword("NULL"):
		p.advance()
		return ast.Literal{Value: types.Null()}, nil
	case p.tok.kind == tokIdent:
		name := p.tok.text
		p.advance()
		return ast.ColumnRef{Name: name}, nil
	case p.atPunct("("):
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, p.errorf("unexpected token %q in expression", p.tok.text)
	}
}
