package query

import (
	"fmt"
	"strconv"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/shopspring/decimal"
)

// Parser is a recursive-descent parser for the query language:
//
//	SELECT [DISTINCT] item {, item} FROM kind [WHERE expr]
//	    [GROUP BY expr {, expr}] [ORDER BY expr [ASC|DESC] {, ...}] [LIMIT n]
//
// Operator precedence from loosest to tightest: OR, AND, NOT, comparisons (including
// ~, IS NULL and IN), + and -, * and /, unary minus.
type Parser struct {
	query  string
	tokens []Token
	pos    int
}

// Parse parses query text into a Statement.
func Parse(query string) (*Statement, error) {
	p := &Parser{query: query, tokens: NewLexer(query).ScanAll()}
	return p.parseStatement()
}

func (p *Parser) parseStatement() (*Statement, error) {
	if _, err := p.expect(SELECT, "SELECT"); err != nil {
		return nil, err
	}

	stmt := &Statement{}
	if p.match(DISTINCT) {
		stmt.Distinct = true
	}

	// SELECT * leaves Items empty.
	if !p.match(STAR) {
		for {
			item, err := p.parseSelectItem()
			if err != nil {
				return nil, err
			}
			stmt.Items = append(stmt.Items, item)
			if !p.match(COMMA) {
				break
			}
		}
	}

	if _, err := p.expect(FROM, "FROM"); err != nil {
		return nil, err
	}
	kind, err := p.expect(IDENT, "fact kind")
	if err != nil {
		return nil, err
	}
	stmt.From = &FromClause{Offset: kind.Start, Kind: kind.Text}

	if p.match(WHERE) {
		if stmt.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}

	if p.match(GROUP) {
		if _, err := p.expect(BY, "BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if !p.match(COMMA) {
				break
			}
		}
	}

	if p.match(ORDER) {
		if _, err := p.expect(BY, "BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := &OrderItem{Expr: e}
			if p.match(DESC) {
				item.Desc = true
			} else {
				p.match(ASC)
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if !p.match(COMMA) {
				break
			}
		}
	}

	if p.match(LIMIT) {
		tok, err := p.expect(NUMBER, "row count")
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(tok.Text)
		if err != nil || n < 0 {
			return nil, p.errorAt(tok.Start, "LIMIT needs a non-negative integer, got %s", tok.Text)
		}
		stmt.Limit = &LimitClause{Offset: tok.Start, Count: n}
	}

	if tok := p.peek(); tok.Type != EOF {
		return nil, p.errorAt(tok.Start, "unexpected %s after end of query", describe(tok))
	}
	return stmt, nil
}

func (p *Parser) parseSelectItem() (*SelectItem, error) {
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	item := &SelectItem{Expr: e}
	if p.match(AS) {
		alias, err := p.expect(IDENT, "column alias")
		if err != nil {
			return nil, err
		}
		item.Alias = alias.Text
	}
	return item, nil
}

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.check(OR) {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: op.Start, Op: OR, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.check(AND) {
		op := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: op.Start, Op: AND, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.check(NOT) {
		op := p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: op.Start, Op: NOT, X: x}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	switch tok := p.peek(); tok.Type {
	case EQ, NEQ, LT, LTE, GT, GTE, MATCH, IN:
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Pos: tok.Start, Op: tok.Type, Left: left, Right: right}, nil

	case NOT:
		// x NOT IN set
		if p.peekAhead(1).Type != IN {
			return left, nil
		}
		p.advance()
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		in := &BinaryExpr{Pos: tok.Start, Op: IN, Left: left, Right: right}
		return &UnaryExpr{Pos: tok.Start, Op: NOT, X: in}, nil

	case IS:
		p.advance()
		not := p.match(NOT)
		if _, err := p.expect(NULL, "NULL"); err != nil {
			return nil, err
		}
		return &IsNullExpr{Pos: tok.Start, X: left, Not: not}, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.check(PLUS) || p.check(MINUS) {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: op.Start, Op: op.Type, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.check(STAR) || p.check(SLASH) {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: op.Start, Op: op.Type, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.check(MINUS) {
		op := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold negative number literals so -5 prints and groups as a constant.
		if lit, ok := x.(*Literal); ok && lit.Value.Type == TypeNumber {
			return &Literal{Pos: op.Start, Value: Number(lit.Value.Number.Neg()), Raw: "-" + lit.Raw}, nil
		}
		return &UnaryExpr{Pos: op.Start, Op: MINUS, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()

	switch tok.Type {
	case NUMBER:
		p.advance()
		d, err := decimal.NewFromString(tok.Text)
		if err != nil {
			return nil, p.errorAt(tok.Start, "invalid number %s", tok.Text)
		}
		return &Literal{Pos: tok.Start, Value: Number(d), Raw: tok.Text}, nil

	case STRING:
		p.advance()
		return &Literal{Pos: tok.Start, Value: String(unquoteString(tok.Text)), Raw: tok.Text}, nil

	case DATE:
		p.advance()
		d, err := ast.ParseDate(tok.Text)
		if err != nil {
			return nil, p.errorAt(tok.Start, "invalid date %s", tok.Text)
		}
		return &Literal{Pos: tok.Start, Value: DateValue(d), Raw: tok.Text}, nil

	case TRUE, FALSE:
		p.advance()
		return &Literal{Pos: tok.Start, Value: Bool(tok.Type == TRUE), Raw: tok.Type.String()}, nil

	case NULL:
		p.advance()
		return &Literal{Pos: tok.Start, Value: Null, Raw: "NULL"}, nil

	case IDENT:
		p.advance()
		if !p.match(LPAREN) {
			return &ColumnRef{Pos: tok.Start, Name: tok.Text}, nil
		}
		return p.parseCall(tok)

	case LPAREN:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN, ")"); err != nil {
			return nil, err
		}
		return e, nil
	}

	return nil, p.unexpected("expression")
}

// parseCall parses the argument list of a call whose name and "(" were consumed.
func (p *Parser) parseCall(name Token) (Expr, error) {
	call := &Call{Pos: name.Start, Name: name.Text}

	if p.check(STAR) {
		p.advance()
		call.Star = true
	} else if !p.check(RPAREN) {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if !p.match(COMMA) {
				break
			}
		}
	}

	if _, err := p.expect(RPAREN, ")"); err != nil {
		return nil, err
	}
	return call, nil
}

// Token navigation

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peekAhead(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if tok.Type != EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) check(typ TokenType) bool {
	return p.peek().Type == typ
}

func (p *Parser) match(typ TokenType) bool {
	if !p.check(typ) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(typ TokenType, what string) (Token, error) {
	if !p.check(typ) {
		return Token{}, p.unexpected(what)
	}
	return p.advance(), nil
}

// Error helpers

func (p *Parser) errorAt(offset int, format string, args ...any) *CompileError {
	return &CompileError{Query: p.query, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) unexpected(what string) *CompileError {
	tok := p.peek()
	return p.errorAt(tok.Start, "expected %s but got %s", what, describe(tok))
}

func describe(tok Token) string {
	switch {
	case tok.Type == EOF:
		return "end of query"
	case tok.Type == ILLEGAL:
		return fmt.Sprintf("invalid text %q", tok.Text)
	case tok.Type.IsKeyword():
		return fmt.Sprintf("keyword %s", tok.Type)
	}
	return fmt.Sprintf("%s %q", tok.Type, tok.Text)
}
