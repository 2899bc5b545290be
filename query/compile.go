package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
)

// Plan is a compiled query: a scan of one fact kind followed by filter, project or
// aggregate, distinct, sort and limit operators. A Plan holds no ledger state and can
// be executed against any snapshot, any number of times.
type Plan struct {
	query     string
	source    *source
	needed    []bool // columns the scan materializes
	where     boundExpr
	aggregate bool
	groupBy   []boundExpr
	aggs      []*aggregateSpec
	outputs   []boundExpr // select items followed by hidden sort keys
	columns   []Column
	sortKeys  []sortKey
	distinct  bool
	limit     int // -1 for no limit
}

type aggregateSpec struct {
	call *Call
	fn   *aggregateFunc
	arg  boundExpr // nil for count(*)
}

type sortKey struct {
	index int // into the output row
	desc  bool
}

// Query returns the query text the plan was compiled from.
func (p *Plan) Query() string {
	return p.query
}

// Kind returns the fact kind the plan scans.
func (p *Plan) Kind() string {
	return p.source.name
}

// Columns returns the result columns.
func (p *Plan) Columns() []Column {
	return p.columns
}

// Explain describes the operator pipeline.
func (p *Plan) Explain() string {
	stages := []string{"scan " + p.source.name}
	if p.where != nil {
		stages = append(stages, "filter")
	}
	if p.aggregate {
		stages = append(stages, fmt.Sprintf("aggregate %d key(s) %d aggregate(s)", len(p.groupBy), len(p.aggs)))
	}
	stages = append(stages, fmt.Sprintf("project %d column(s)", len(p.columns)))
	if p.distinct {
		stages = append(stages, "distinct")
	}
	if len(p.sortKeys) > 0 {
		stages = append(stages, fmt.Sprintf("sort %d key(s)", len(p.sortKeys)))
	}
	if p.limit >= 0 {
		stages = append(stages, fmt.Sprintf("limit %d", p.limit))
	}
	return strings.Join(stages, " -> ")
}

// Compile parses query and binds it against the schema of its fact kind. Unknown
// kinds, columns and functions, type errors and aggregations that would add numbers
// of different commodities are reported as *CompileError.
func Compile(query string) (*Plan, error) {
	stmt, err := Parse(query)
	if err != nil {
		return nil, err
	}
	c := &compiler{query: query, stmt: stmt}
	return c.compile()
}

type compiler struct {
	query  string
	stmt   *Statement
	src    *source
	plan   *Plan
	clause string // clause being bound, for error messages
	inAgg  bool
}

func (c *compiler) errorAt(offset int, format string, args ...any) *CompileError {
	return &CompileError{Query: c.query, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func (c *compiler) compile() (*Plan, error) {
	stmt := c.stmt

	src, ok := sources[strings.ToLower(stmt.From.Kind)]
	if !ok {
		return nil, c.errorAt(stmt.From.Offset, "unknown fact kind %q, expected one of %s",
			stmt.From.Kind, strings.Join(Kinds(), ", "))
	}
	c.src = src
	c.plan = &Plan{
		query:    c.query,
		source:   src,
		needed:   make([]bool, len(src.columns)),
		distinct: stmt.Distinct,
		limit:    -1,
	}

	items := stmt.Items
	if len(items) == 0 {
		if len(stmt.GroupBy) > 0 {
			return nil, c.errorAt(stmt.From.Offset, "SELECT * cannot be combined with GROUP BY")
		}
		for _, name := range src.columnNames() {
			items = append(items, &SelectItem{Expr: &ColumnRef{Pos: stmt.From.Offset, Name: name}})
		}
	}

	if stmt.Where != nil {
		c.clause = "WHERE"
		where, err := c.bind(stmt.Where, false)
		if err != nil {
			return nil, err
		}
		if t := where.Type(); t != TypeBool && t != TypeNull {
			return nil, c.errorAt(stmt.Where.Offset(), "WHERE needs a boolean condition, got %s", t)
		}
		c.plan.where = where
	}

	groupExprs, err := c.resolveGroupBy(items)
	if err != nil {
		return nil, err
	}
	c.plan.aggregate = len(groupExprs) > 0 || containsAggregate(items, stmt.OrderBy)

	c.clause = "GROUP BY"
	for _, g := range groupExprs {
		bound, err := c.bind(g, false)
		if err != nil {
			return nil, err
		}
		c.plan.groupBy = append(c.plan.groupBy, bound)
	}

	grouped := newGroupedSet(groupExprs)

	c.clause = "SELECT"
	for _, item := range items {
		if c.plan.aggregate {
			if err := c.checkGrouped(item.Expr, grouped); err != nil {
				return nil, err
			}
		}
		bound, err := c.bind(item.Expr, c.plan.aggregate)
		if err != nil {
			return nil, err
		}
		c.plan.outputs = append(c.plan.outputs, bound)
		c.plan.columns = append(c.plan.columns, Column{Name: item.Name(), Type: bound.Type()})
	}

	c.clause = "ORDER BY"
	for _, order := range stmt.OrderBy {
		index, err := c.resolveOutput(order.Expr, items)
		if err != nil {
			return nil, err
		}
		if index < 0 {
			if stmt.Distinct {
				return nil, c.errorAt(order.Expr.Offset(), "with DISTINCT, ORDER BY %s must appear in the select list", order.Expr)
			}
			if c.plan.aggregate {
				if err := c.checkGrouped(order.Expr, grouped); err != nil {
					return nil, err
				}
			}
			bound, err := c.bind(order.Expr, c.plan.aggregate)
			if err != nil {
				return nil, err
			}
			index = len(c.plan.outputs)
			c.plan.outputs = append(c.plan.outputs, bound)
		}
		c.plan.sortKeys = append(c.plan.sortKeys, sortKey{index: index, desc: order.Desc})
	}

	if err := c.checkCommodityPinned(groupExprs); err != nil {
		return nil, err
	}

	if stmt.Limit != nil {
		c.plan.limit = stmt.Limit.Count
	}
	return c.plan, nil
}

// resolveGroupBy maps positional (GROUP BY 1) and alias references onto the
// expressions of the select list.
func (c *compiler) resolveGroupBy(items []*SelectItem) ([]Expr, error) {
	var exprs []Expr
	for _, g := range c.stmt.GroupBy {
		resolved := g
		switch e := g.(type) {
		case *Literal:
			i, ok := ordinal(e)
			if !ok {
				break
			}
			if i < 1 || i > len(items) {
				return nil, c.errorAt(e.Pos, "GROUP BY position %s is out of range", e.Raw)
			}
			resolved = items[i-1].Expr
		case *ColumnRef:
			if idx, _ := c.src.column(e.Name); idx < 0 {
				for _, item := range items {
					if item.Alias != "" && strings.EqualFold(item.Alias, e.Name) {
						resolved = item.Expr
					}
				}
			}
		}
		if hasAggregate(resolved) {
			return nil, c.errorAt(g.Offset(), "GROUP BY cannot contain an aggregate")
		}
		exprs = append(exprs, resolved)
	}
	return exprs, nil
}

// resolveOutput returns the select item an ORDER BY expression refers to by
// position, alias or identical text, or -1.
func (c *compiler) resolveOutput(e Expr, items []*SelectItem) (int, error) {
	if lit, ok := e.(*Literal); ok {
		if i, ok := ordinal(lit); ok {
			if i < 1 || i > len(items) {
				return 0, c.errorAt(lit.Pos, "ORDER BY position %s is out of range", lit.Raw)
			}
			return i - 1, nil
		}
	}
	if ref, ok := e.(*ColumnRef); ok {
		for i, item := range items {
			if item.Alias != "" && strings.EqualFold(item.Alias, ref.Name) {
				return i, nil
			}
		}
	}
	text := e.String()
	for i, item := range items {
		if strings.EqualFold(item.Expr.String(), text) {
			return i, nil
		}
	}
	return -1, nil
}

func ordinal(lit *Literal) (int, bool) {
	if lit.Value.Type != TypeNumber || !lit.Value.Number.IsInteger() {
		return 0, false
	}
	return int(lit.Value.Number.IntPart()), true
}

// groupedSet records what an aggregate query may reference outside of aggregates.
type groupedSet struct {
	exprs   map[string]bool // text of GROUP BY expressions
	columns map[string]bool // GROUP BY expressions that are plain columns
}

func newGroupedSet(exprs []Expr) *groupedSet {
	g := &groupedSet{exprs: make(map[string]bool), columns: make(map[string]bool)}
	for _, e := range exprs {
		g.exprs[strings.ToLower(e.String())] = true
		if ref, ok := e.(*ColumnRef); ok {
			g.columns[strings.ToLower(ref.Name)] = true
		}
	}
	return g
}

// checkGrouped rejects column references in an aggregate query that are neither
// grouped on nor inside an aggregate.
func (c *compiler) checkGrouped(e Expr, grouped *groupedSet) error {
	var err error
	walk(e, func(node Expr) bool {
		if err != nil || grouped.exprs[strings.ToLower(node.String())] {
			return false
		}
		switch node := node.(type) {
		case *Call:
			return !isAggregate(node)
		case *ColumnRef:
			if !grouped.columns[strings.ToLower(node.Name)] {
				err = c.errorAt(node.Pos, "column %s must appear in GROUP BY or be used in an aggregate", node.Name)
			}
		}
		return true
	})
	return err
}

// checkCommodityPinned rejects sum over bare numbers unless the query fixes the
// commodity they are in, either by grouping on it or by filtering on a single value.
// Bare numbers are number columns and number() of an amount.
func (c *compiler) checkCommodityPinned(groupExprs []Expr) error {
	for _, agg := range c.plan.aggs {
		if strings.ToLower(agg.call.Name) != "sum" {
			continue
		}
		var err error
		walk(agg.call, func(node Expr) bool {
			if err != nil {
				return false
			}
			switch node := node.(type) {
			case *Call:
				if strings.EqualFold(node.Name, "number") && len(node.Args) == 1 {
					if !c.amountPinned(node.Args[0], groupExprs) {
						err = c.errorAt(agg.call.Pos,
							"%s adds up numbers of different commodities; sum %s instead, or group by or filter on commodity(%s)",
							agg.call, node.Args[0], node.Args[0])
					}
					return false
				}
			case *ColumnRef:
				_, col := c.src.column(node.Name)
				if col != nil && col.typ == TypeNumber && col.pinnedBy != "" && !c.pinned(&ColumnRef{Name: col.pinnedBy}, groupExprs) {
					err = c.errorAt(agg.call.Pos,
						"%s adds up numbers of different commodities; sum amount instead, group by %s or filter on a single %s",
						agg.call, col.pinnedBy, col.pinnedBy)
				}
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// amountPinned reports whether every amount e yields is in the same commodity.
func (c *compiler) amountPinned(e Expr, groupExprs []Expr) bool {
	if c.pinned(&Call{Name: "commodity", Args: []Expr{e}}, groupExprs) {
		return true
	}
	switch e := e.(type) {
	case *ColumnRef:
		_, col := c.src.column(e.Name)
		return col != nil && col.pinnedBy != "" && c.pinned(&ColumnRef{Name: col.pinnedBy}, groupExprs)
	case *Call:
		switch strings.ToLower(e.Name) {
		case "convert":
			if len(e.Args) < 2 {
				return false
			}
			_, ok := e.Args[1].(*Literal)
			return ok
		case "abs":
			return len(e.Args) == 1 && c.amountPinned(e.Args[0], groupExprs)
		}
	}
	return false
}

// pinned reports whether the query fixes the value of e, by grouping on it or by
// comparing it to a literal in WHERE.
func (c *compiler) pinned(e Expr, groupExprs []Expr) bool {
	key := strings.ToLower(e.String())
	for _, g := range groupExprs {
		if strings.ToLower(g.String()) == key {
			return true
		}
	}
	for _, conj := range conjuncts(c.stmt.Where) {
		b, ok := conj.(*BinaryExpr)
		if ok && b.Op == EQ && (isEqLiteral(b.Left, b.Right, key) || isEqLiteral(b.Right, b.Left, key)) {
			return true
		}
	}
	return false
}

func isEqLiteral(left, right Expr, key string) bool {
	if strings.ToLower(left.String()) != key {
		return false
	}
	_, ok := right.(*Literal)
	return ok
}

// conjuncts splits e at its top-level ANDs.
func conjuncts(e Expr) []Expr {
	if b, ok := e.(*BinaryExpr); ok && b.Op == AND {
		return append(conjuncts(b.Left), conjuncts(b.Right)...)
	}
	if e == nil {
		return nil
	}
	return []Expr{e}
}

func isAggregate(call *Call) bool {
	_, ok := aggregateFuncs[strings.ToLower(call.Name)]
	return ok
}

func hasAggregate(e Expr) bool {
	found := false
	walk(e, func(node Expr) bool {
		if call, ok := node.(*Call); ok && isAggregate(call) {
			found = true
		}
		return !found
	})
	return found
}

func containsAggregate(items []*SelectItem, order []*OrderItem) bool {
	for _, item := range items {
		if hasAggregate(item.Expr) {
			return true
		}
	}
	for _, o := range order {
		if hasAggregate(o.Expr) {
			return true
		}
	}
	return false
}

// bind resolves e against the schema and type-checks it. Aggregates are only
// allowed when allowAgg is set; each one gets a slot in the plan.
func (c *compiler) bind(e Expr, allowAgg bool) (boundExpr, error) {
	switch e := e.(type) {
	case *Literal:
		return &constExpr{value: e.Value}, nil

	case *ColumnRef:
		idx, col := c.src.column(e.Name)
		if col == nil {
			return nil, c.errorAt(e.Pos, "unknown column %q in %s, expected one of %s",
				e.Name, c.src.name, strings.Join(c.src.columnNames(), ", "))
		}
		c.plan.needed[idx] = true
		return &columnExpr{index: idx, typ: col.typ}, nil

	case *Call:
		if isAggregate(e) {
			return c.bindAggregate(e, allowAgg)
		}
		return c.bindCall(e, allowAgg)

	case *UnaryExpr:
		x, err := c.bind(e.X, allowAgg)
		if err != nil {
			return nil, err
		}
		if e.Op == NOT {
			if t := x.Type(); t != TypeBool && t != TypeNull {
				return nil, c.errorAt(e.Pos, "NOT needs a boolean, got %s", t)
			}
			return &notExpr{x: x}, nil
		}
		if t := x.Type(); t != TypeNumber && t != TypeAmount && t != TypeNull {
			return nil, c.errorAt(e.Pos, "cannot negate a %s", t)
		}
		return &negExpr{x: x}, nil

	case *IsNullExpr:
		x, err := c.bind(e.X, allowAgg)
		if err != nil {
			return nil, err
		}
		return &isNullExpr{x: x, not: e.Not}, nil

	case *BinaryExpr:
		return c.bindBinary(e, allowAgg)
	}
	panic(fmt.Sprintf("query: unhandled expression %T", e))
}

func (c *compiler) bindAggregate(e *Call, allowAgg bool) (boundExpr, error) {
	name := strings.ToLower(e.Name)
	switch {
	case c.inAgg:
		return nil, c.errorAt(e.Pos, "aggregate %s cannot be nested inside another aggregate", name)
	case !allowAgg:
		return nil, c.errorAt(e.Pos, "aggregate %s is not allowed in %s", name, c.clause)
	}

	fn := aggregateFuncs[name]
	spec := &aggregateSpec{call: e, fn: fn}

	argType := TypeBool
	switch {
	case e.Star && name != "count":
		return nil, c.errorAt(e.Pos, "%s(*) is not supported, only count(*)", name)
	case e.Star:
	case len(e.Args) != 1:
		return nil, c.errorAt(e.Pos, "%s takes exactly one argument, got %d", name, len(e.Args))
	default:
		c.inAgg = true
		arg, err := c.bind(e.Args[0], true)
		c.inAgg = false
		if err != nil {
			return nil, err
		}
		spec.arg = arg
		argType = arg.Type()
	}

	typ, err := fn.check(argType)
	if err != nil {
		return nil, c.errorAt(e.Pos, "%s: %v", name, err)
	}

	slot := len(c.plan.aggs)
	c.plan.aggs = append(c.plan.aggs, spec)
	return &aggRefExpr{slot: slot, typ: typ}, nil
}

func (c *compiler) bindCall(e *Call, allowAgg bool) (boundExpr, error) {
	name := strings.ToLower(e.Name)
	fn, ok := scalarFuncs[name]
	if !ok {
		return nil, c.errorAt(e.Pos, "unknown function %q", e.Name)
	}
	if e.Star {
		return nil, c.errorAt(e.Pos, "%s(*) is not supported, only count(*)", name)
	}

	args := make([]boundExpr, 0, len(e.Args)+1)
	for _, arg := range e.Args {
		bound, err := c.bind(arg, allowAgg)
		if err != nil {
			return nil, err
		}
		args = append(args, bound)
	}

	// convert(amount, 'CUR') converts at the date of the fact.
	if name == "convert" && len(args) == 2 {
		idx, col := c.src.column("date")
		c.plan.needed[idx] = true
		args = append(args, &columnExpr{index: idx, typ: col.typ})
	}

	types := make([]Type, len(args))
	for i, arg := range args {
		types[i] = arg.Type()
	}
	typ, err := fn.check(types)
	if err != nil {
		return nil, c.errorAt(e.Pos, "%s: %v", name, err)
	}
	return &callExpr{fn: fn, args: args, typ: typ}, nil
}

func (c *compiler) bindBinary(e *BinaryExpr, allowAgg bool) (boundExpr, error) {
	left, err := c.bind(e.Left, allowAgg)
	if err != nil {
		return nil, err
	}
	right, err := c.bind(e.Right, allowAgg)
	if err != nil {
		return nil, err
	}
	lt, rt := left.Type(), right.Type()

	switch e.Op {
	case AND, OR:
		for _, t := range []Type{lt, rt} {
			if t != TypeBool && t != TypeNull {
				return nil, c.errorAt(e.Pos, "%s needs boolean operands, got %s", e.Op, t)
			}
		}
		return &logicExpr{and: e.Op == AND, left: left, right: right}, nil

	case EQ, NEQ, LT, LTE, GT, GTE:
		left, err = c.coerceDate(left, right, e.Left)
		if err != nil {
			return nil, err
		}
		right, err = c.coerceDate(right, left, e.Right)
		if err != nil {
			return nil, err
		}
		lt, rt = left.Type(), right.Type()
		if !comparableTypes(lt, rt) {
			return nil, c.errorAt(e.Pos, "cannot compare %s with %s", lt, rt)
		}
		return &compareExpr{op: e.Op, left: left, right: right}, nil

	case MATCH:
		if (lt != TypeString && lt != TypeNull) || (rt != TypeString && rt != TypeNull) {
			return nil, c.errorAt(e.Pos, "~ needs a string and a pattern, got %s and %s", lt, rt)
		}
		m := &matchExpr{x: left, pattern: right}
		if pattern, ok := right.(*constExpr); ok && pattern.value.Type == TypeString {
			re, err := regexp.Compile(pattern.value.Str)
			if err != nil {
				return nil, c.errorAt(e.Right.Offset(), "invalid regular expression: %v", err)
			}
			m.re = re
		}
		return m, nil

	case IN:
		if lt != TypeString && lt != TypeNull {
			return nil, c.errorAt(e.Pos, "IN needs a string on the left, got %s", lt)
		}
		if rt != TypeSet {
			return nil, c.errorAt(e.Right.Offset(), "IN needs tags or links on the right, got %s", rt)
		}
		return &inExpr{x: left, set: right}, nil

	case PLUS, MINUS, STAR, SLASH:
		typ, ok := arithmeticType(e.Op, lt, rt)
		if !ok {
			return nil, c.errorAt(e.Pos, "operator %s is not defined for %s and %s", e.Op, lt, rt)
		}
		return &arithExpr{op: e.Op, left: left, right: right, typ: typ}, nil
	}
	panic(fmt.Sprintf("query: unhandled operator %s", e.Op))
}

// coerceDate turns a string constant compared against a date into a date constant.
func (c *compiler) coerceDate(x, other boundExpr, node Expr) (boundExpr, error) {
	lit, ok := x.(*constExpr)
	if !ok || lit.value.Type != TypeString || other.Type() != TypeDate {
		return x, nil
	}
	date, err := ast.ParseDate(lit.value.Str)
	if err != nil {
		return nil, c.errorAt(node.Offset(), "invalid date %q", lit.value.Str)
	}
	return &constExpr{value: DateValue(date)}, nil
}

func comparableTypes(a, b Type) bool {
	switch {
	case a == TypeSet || b == TypeSet:
		return false
	case a == b || a == TypeNull || b == TypeNull:
		return true
	}
	return isNumeric(a) && isNumeric(b)
}

func isNumeric(t Type) bool {
	return t == TypeNumber || t == TypeAmount
}

// arithmeticType returns the result type of an arithmetic operator. Amounts add to
// amounts and scale by numbers; anything else combines numbers only.
func arithmeticType(op TokenType, a, b Type) (Type, bool) {
	if a == TypeNull && b == TypeNull {
		return TypeNull, true
	}
	if a == TypeNull {
		a = b
	}
	if b == TypeNull {
		b = a
	}
	if !isNumeric(a) || !isNumeric(b) {
		return 0, false
	}

	switch op {
	case PLUS, MINUS:
		if a != b {
			return 0, false
		}
		return a, true
	case STAR:
		if a == TypeAmount && b == TypeAmount {
			return 0, false
		}
		if a == TypeAmount || b == TypeAmount {
			return TypeAmount, true
		}
		return TypeNumber, true
	}
	// SLASH
	switch {
	case a == TypeAmount && b == TypeAmount:
		return 0, false
	case a == TypeAmount:
		return TypeAmount, true
	case b == TypeAmount:
		return 0, false
	}
	return TypeNumber, true
}
