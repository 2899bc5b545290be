package query

import (
	"regexp"

	"github.com/robinvdvleuten/beancount-mcp/ledger"
)

// env is the evaluation context of a bound expression: the scanned row, or the
// representative row and finished aggregates of a group.
type env struct {
	ledger *ledger.Ledger
	row    []Value
	aggs   []Value
}

// boundExpr is an expression resolved against a schema with its type known.
type boundExpr interface {
	Type() Type
	eval(e *env) (Value, error)
}

type constExpr struct {
	value Value
}

func (c *constExpr) Type() Type               { return c.value.Type }
func (c *constExpr) eval(*env) (Value, error) { return c.value, nil }

type columnExpr struct {
	index int
	typ   Type
}

func (c *columnExpr) Type() Type { return c.typ }
func (c *columnExpr) eval(e *env) (Value, error) {
	return e.row[c.index], nil
}

// aggRefExpr reads the result of an aggregate computed for the current group.
type aggRefExpr struct {
	slot int
	typ  Type
}

func (a *aggRefExpr) Type() Type { return a.typ }
func (a *aggRefExpr) eval(e *env) (Value, error) {
	return e.aggs[a.slot], nil
}

type notExpr struct {
	x boundExpr
}

func (n *notExpr) Type() Type { return TypeBool }
func (n *notExpr) eval(e *env) (Value, error) {
	v, err := n.x.eval(e)
	if err != nil || v.IsNull() {
		return Null, err
	}
	return Bool(!v.Bool), nil
}

type negExpr struct {
	x boundExpr
}

func (n *negExpr) Type() Type { return n.x.Type() }
func (n *negExpr) eval(e *env) (Value, error) {
	v, err := n.x.eval(e)
	if err != nil || v.IsNull() {
		return Null, err
	}
	v.Number = v.Number.Neg()
	return v, nil
}

// logicExpr implements AND and OR with three-valued logic.
type logicExpr struct {
	and         bool
	left, right boundExpr
}

func (l *logicExpr) Type() Type { return TypeBool }
func (l *logicExpr) eval(e *env) (Value, error) {
	left, err := l.left.eval(e)
	if err != nil {
		return Null, err
	}
	// Short-circuit: FALSE AND x, TRUE OR x
	if !left.IsNull() && left.Bool != l.and {
		return left, nil
	}
	right, err := l.right.eval(e)
	if err != nil {
		return Null, err
	}
	switch {
	case !right.IsNull() && right.Bool != l.and:
		return right, nil
	case left.IsNull() || right.IsNull():
		return Null, nil
	}
	return Bool(l.and), nil
}

type compareExpr struct {
	op          TokenType
	left, right boundExpr
}

func (c *compareExpr) Type() Type { return TypeBool }
func (c *compareExpr) eval(e *env) (Value, error) {
	left, err := c.left.eval(e)
	if err != nil {
		return Null, err
	}
	right, err := c.right.eval(e)
	if err != nil {
		return Null, err
	}
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}

	var cmp int
	switch {
	case left.Type == TypeAmount && right.Type == TypeAmount && left.Commodity != right.Commodity:
		switch c.op {
		case EQ:
			return Bool(false), nil
		case NEQ:
			return Bool(true), nil
		}
		return Null, runtimeErrorf("cannot order %s against %s", left, right)
	case left.Type != right.Type:
		// number against amount compares the numbers
		cmp = left.Number.Cmp(right.Number)
	default:
		cmp = compareValues(left, right)
	}

	switch c.op {
	case EQ:
		return Bool(cmp == 0), nil
	case NEQ:
		return Bool(cmp != 0), nil
	case LT:
		return Bool(cmp < 0), nil
	case LTE:
		return Bool(cmp <= 0), nil
	case GT:
		return Bool(cmp > 0), nil
	}
	return Bool(cmp >= 0), nil
}

// matchExpr is x ~ pattern, an unanchored regular expression search. A constant
// pattern is compiled once at bind time.
type matchExpr struct {
	x       boundExpr
	re      *regexp.Regexp
	pattern boundExpr
}

func (m *matchExpr) Type() Type { return TypeBool }
func (m *matchExpr) eval(e *env) (Value, error) {
	v, err := m.x.eval(e)
	if err != nil || v.IsNull() {
		return Null, err
	}
	re := m.re
	if re == nil {
		pattern, err := m.pattern.eval(e)
		if err != nil || pattern.IsNull() {
			return Null, err
		}
		if re, err = regexp.Compile(pattern.Str); err != nil {
			return Null, runtimeErrorf("invalid regular expression %q: %v", pattern.Str, err)
		}
	}
	return Bool(re.MatchString(v.Str)), nil
}

type inExpr struct {
	x, set boundExpr
}

func (i *inExpr) Type() Type { return TypeBool }
func (i *inExpr) eval(e *env) (Value, error) {
	v, err := i.x.eval(e)
	if err != nil || v.IsNull() {
		return Null, err
	}
	set, err := i.set.eval(e)
	if err != nil || set.IsNull() {
		return Null, err
	}
	for _, item := range set.Set {
		if item == v.Str {
			return Bool(true), nil
		}
	}
	return Bool(false), nil
}

type isNullExpr struct {
	x   boundExpr
	not bool
}

func (i *isNullExpr) Type() Type { return TypeBool }
func (i *isNullExpr) eval(e *env) (Value, error) {
	v, err := i.x.eval(e)
	if err != nil {
		return Null, err
	}
	return Bool(v.IsNull() != i.not), nil
}

// arithExpr is + - * / over numbers and amounts. The result type is fixed at bind
// time; amounts keep their commodity.
type arithExpr struct {
	op          TokenType
	left, right boundExpr
	typ         Type
}

func (a *arithExpr) Type() Type { return a.typ }
func (a *arithExpr) eval(e *env) (Value, error) {
	left, err := a.left.eval(e)
	if err != nil {
		return Null, err
	}
	right, err := a.right.eval(e)
	if err != nil {
		return Null, err
	}
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}

	commodity := left.Commodity
	if commodity == "" {
		commodity = right.Commodity
	}

	result := Value{Type: a.typ, Commodity: commodity}
	switch a.op {
	case PLUS, MINUS:
		if left.Type == TypeAmount && right.Type == TypeAmount && left.Commodity != right.Commodity {
			return Null, runtimeErrorf("cannot combine %s and %s", left, right)
		}
		if a.op == PLUS {
			result.Number = left.Number.Add(right.Number)
		} else {
			result.Number = left.Number.Sub(right.Number)
		}
	case STAR:
		result.Number = left.Number.Mul(right.Number)
	case SLASH:
		if right.Number.IsZero() {
			return Null, runtimeErrorf("division by zero in %s / %s", left, right)
		}
		result.Number = left.Number.Div(right.Number)
	}
	if a.typ != TypeAmount {
		result.Commodity = ""
	}
	return result, nil
}

// callExpr applies a scalar function. Any NULL argument makes the result NULL.
type callExpr struct {
	fn   *scalarFunc
	args []boundExpr
	typ  Type
}

func (c *callExpr) Type() Type { return c.typ }
func (c *callExpr) eval(e *env) (Value, error) {
	args := make([]Value, len(c.args))
	for i, arg := range c.args {
		v, err := arg.eval(e)
		if err != nil {
			return Null, err
		}
		if v.IsNull() {
			return Null, nil
		}
		args[i] = v
	}
	return c.fn.call(e, args)
}

// truthy reports whether a filter value selects the row. NULL does not.
func truthy(v Value) bool {
	return v.Type == TypeBool && v.Bool
}
