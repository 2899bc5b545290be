package query

import (
	"strings"
)

// Statement is a parsed SELECT query.
type Statement struct {
	Distinct bool
	Items    []*SelectItem // empty for SELECT *
	From     *FromClause
	Where    Expr
	GroupBy  []Expr
	OrderBy  []*OrderItem
	Limit    *LimitClause
}

// SelectItem is one output column of a query.
type SelectItem struct {
	Expr  Expr
	Alias string
}

// Name returns the column name of the item: its alias, or the expression text.
func (s *SelectItem) Name() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Expr.String()
}

// FromClause names the fact kind a query reads.
type FromClause struct {
	Offset int
	Kind   string
}

// OrderItem is one sort key.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// LimitClause caps the number of result rows.
type LimitClause struct {
	Offset int
	Count  int
}

// Expr is an expression node. Offset is the byte offset of the node in the query
// text and String renders it back into query syntax.
type Expr interface {
	Offset() int
	String() string
	expr()
}

// Literal is a constant value.
type Literal struct {
	Pos   int
	Value Value
	Raw   string
}

// ColumnRef refers to a column of the fact kind being queried.
type ColumnRef struct {
	Pos  int
	Name string
}

// Call is a function or aggregate call. Star is set for count(*).
type Call struct {
	Pos  int
	Name string
	Args []Expr
	Star bool
}

// UnaryExpr is NOT x or -x.
type UnaryExpr struct {
	Pos int
	Op  TokenType
	X   Expr
}

// BinaryExpr is a comparison, logical or arithmetic operation.
type BinaryExpr struct {
	Pos   int
	Op    TokenType
	Left  Expr
	Right Expr
}

// IsNullExpr is x IS [NOT] NULL.
type IsNullExpr struct {
	Pos int
	X   Expr
	Not bool
}

func (e *Literal) Offset() int    { return e.Pos }
func (e *ColumnRef) Offset() int  { return e.Pos }
func (e *Call) Offset() int       { return e.Pos }
func (e *UnaryExpr) Offset() int  { return e.Pos }
func (e *BinaryExpr) Offset() int { return e.Pos }
func (e *IsNullExpr) Offset() int { return e.Pos }

func (*Literal) expr()    {}
func (*ColumnRef) expr()  {}
func (*Call) expr()       {}
func (*UnaryExpr) expr()  {}
func (*BinaryExpr) expr() {}
func (*IsNullExpr) expr() {}

func (e *Literal) String() string {
	return e.Raw
}

func (e *ColumnRef) String() string {
	return e.Name
}

func (e *Call) String() string {
	if e.Star {
		return e.Name + "(*)"
	}
	args := make([]string, len(e.Args))
	for i, arg := range e.Args {
		args[i] = arg.String()
	}
	return e.Name + "(" + strings.Join(args, ", ") + ")"
}

func (e *UnaryExpr) String() string {
	if e.Op == NOT {
		return "NOT " + e.X.String()
	}
	return e.Op.String() + e.X.String()
}

func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

func (e *IsNullExpr) String() string {
	if e.Not {
		return e.X.String() + " IS NOT NULL"
	}
	return e.X.String() + " IS NULL"
}

// walk calls fn for e and each of its descendants, stopping descent where fn returns
// false.
func walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch e := e.(type) {
	case *Call:
		for _, arg := range e.Args {
			walk(arg, fn)
		}
	case *UnaryExpr:
		walk(e.X, fn)
	case *BinaryExpr:
		walk(e.Left, fn)
		walk(e.Right, fn)
	case *IsNullExpr:
		walk(e.X, fn)
	}
}
