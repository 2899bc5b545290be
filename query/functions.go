package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/shopspring/decimal"
)

// scalarFunc is a row-level function. check validates the argument types and returns
// the result type; call is only invoked when no argument is NULL.
type scalarFunc struct {
	check func(args []Type) (Type, error)
	call  func(e *env, args []Value) (Value, error)
}

var scalarFuncs = map[string]*scalarFunc{
	"convert": {
		check: func(args []Type) (Type, error) {
			if len(args) != 3 {
				return 0, fmt.Errorf("convert takes an amount, a commodity and an optional date")
			}
			if err := expectTypes(args, TypeAmount, TypeString, TypeDate); err != nil {
				return 0, err
			}
			return TypeAmount, nil
		},
		call: func(e *env, args []Value) (Value, error) {
			amount, target, date := args[0], args[1].Str, args[2].Date
			if amount.Commodity == target {
				return amount, nil
			}
			rate, ok := e.ledger.LookupPrice(amount.Commodity, target, date)
			if !ok {
				return Null, runtimeErrorf("no price to convert %s to %s on %s", amount.Commodity, target, date)
			}
			return AmountValue(ast.NewAmount(amount.Number.Mul(rate), target)), nil
		},
	},
	"year":  datePart(func(d ast.Date) int { return d.Year() }),
	"month": datePart(func(d ast.Date) int { return int(d.Month()) }),
	"day":   datePart(func(d ast.Date) int { return d.Day() }),
	"parent": {
		check: fixedSignature(TypeString, TypeString),
		call: func(_ *env, args []Value) (Value, error) {
			return OptionalString(string(ast.Account(args[0].Str).Parent())), nil
		},
	},
	"root": {
		check: fixedSignature(TypeString, TypeString, TypeNumber),
		call: func(_ *env, args []Value) (Value, error) {
			if !args[1].Number.IsInteger() {
				return Null, runtimeErrorf("root needs a whole number of segments, got %s", args[1])
			}
			return OptionalString(string(ast.Account(args[0].Str).Ancestor(int(args[1].Number.IntPart())))), nil
		},
	},
	"abs": {
		check: func(args []Type) (Type, error) {
			if len(args) != 1 {
				return 0, fmt.Errorf("abs takes 1 argument, got %d", len(args))
			}
			if args[0] != TypeNumber && args[0] != TypeAmount && args[0] != TypeNull {
				return 0, fmt.Errorf("abs needs a number or amount, got %s", args[0])
			}
			return args[0], nil
		},
		call: func(_ *env, args []Value) (Value, error) {
			v := args[0]
			v.Number = v.Number.Abs()
			return v, nil
		},
	},
	"number": {
		check: fixedSignature(TypeNumber, TypeAmount),
		call: func(_ *env, args []Value) (Value, error) {
			return Number(args[0].Number), nil
		},
	},
	"commodity": {
		check: fixedSignature(TypeString, TypeAmount),
		call: func(_ *env, args []Value) (Value, error) {
			return String(args[0].Commodity), nil
		},
	},
	"lower": {
		check: fixedSignature(TypeString, TypeString),
		call: func(_ *env, args []Value) (Value, error) {
			return String(strings.ToLower(args[0].Str)), nil
		},
	},
	"upper": {
		check: fixedSignature(TypeString, TypeString),
		call: func(_ *env, args []Value) (Value, error) {
			return String(strings.ToUpper(args[0].Str)), nil
		},
	},
}

func datePart(part func(ast.Date) int) *scalarFunc {
	return &scalarFunc{
		check: fixedSignature(TypeNumber, TypeDate),
		call: func(_ *env, args []Value) (Value, error) {
			return Number(decimal.NewFromInt(int64(part(args[0].Date)))), nil
		},
	}
}

// fixedSignature checks that the arguments match params exactly. NULL is accepted for
// any parameter.
func fixedSignature(result Type, params ...Type) func([]Type) (Type, error) {
	return func(args []Type) (Type, error) {
		if len(args) != len(params) {
			return 0, fmt.Errorf("takes %d argument(s), got %d", len(params), len(args))
		}
		if err := expectTypes(args, params...); err != nil {
			return 0, err
		}
		return result, nil
	}
}

func expectTypes(args []Type, params ...Type) error {
	for i, param := range params {
		if args[i] != param && args[i] != TypeNull {
			return fmt.Errorf("argument %d must be a %s, got %s", i+1, param, args[i])
		}
	}
	return nil
}

// aggregateFunc folds the values of a group into one. check returns the result type
// for the argument type.
type aggregateFunc struct {
	check func(arg Type) (Type, error)
	new   func() accumulator
}

type accumulator interface {
	add(v Value) error
	result() Value
}

// Aggregates lists the aggregate functions in name order.
func Aggregates() []string {
	names := make([]string, 0, len(aggregateFuncs))
	for name := range aggregateFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var aggregateFuncs = map[string]*aggregateFunc{
	"sum": {
		check: func(arg Type) (Type, error) {
			if arg != TypeNumber && arg != TypeAmount {
				return 0, fmt.Errorf("sum needs a number or amount, got %s", arg)
			}
			return arg, nil
		},
		new: func() accumulator { return &sumAccumulator{} },
	},
	"count": {
		check: func(Type) (Type, error) { return TypeNumber, nil },
		new:   func() accumulator { return &countAccumulator{} },
	},
	"first": {
		check: func(arg Type) (Type, error) { return arg, nil },
		new:   func() accumulator { return &pickAccumulator{keep: func(_, _ Value) bool { return false }} },
	},
	"last": {
		check: func(arg Type) (Type, error) { return arg, nil },
		new:   func() accumulator { return &pickAccumulator{keep: func(_, _ Value) bool { return true }} },
	},
	"min": {
		check: orderable,
		new: func() accumulator {
			return &pickAccumulator{keep: func(cur, v Value) bool { return compareValues(v, cur) < 0 }}
		},
	},
	"max": {
		check: orderable,
		new: func() accumulator {
			return &pickAccumulator{keep: func(cur, v Value) bool { return compareValues(v, cur) > 0 }}
		},
	},
}

func orderable(arg Type) (Type, error) {
	switch arg {
	case TypeNumber, TypeString, TypeDate:
		return arg, nil
	}
	return 0, fmt.Errorf("needs a number, string or date, got %s", arg)
}

// mixedCommoditiesError is raised when sum meets a second commodity within a group.
type mixedCommoditiesError struct {
	first, second string
}

func (e *mixedCommoditiesError) Error() string {
	return fmt.Sprintf("sum mixes %s and %s in one group; group by commodity or convert the amounts", e.first, e.second)
}

type sumAccumulator struct {
	seen      bool
	total     decimal.Decimal
	typ       Type
	commodity string
}

func (a *sumAccumulator) add(v Value) error {
	if v.IsNull() {
		return nil
	}
	if !a.seen {
		a.seen, a.total, a.typ, a.commodity = true, v.Number, v.Type, v.Commodity
		return nil
	}
	if v.Type == TypeAmount && v.Commodity != a.commodity {
		return &mixedCommoditiesError{first: a.commodity, second: v.Commodity}
	}
	a.total = a.total.Add(v.Number)
	return nil
}

func (a *sumAccumulator) result() Value {
	if !a.seen {
		return Null
	}
	return Value{Type: a.typ, Number: a.total, Commodity: a.commodity}
}

type countAccumulator struct {
	n int64
}

func (a *countAccumulator) add(v Value) error {
	if !v.IsNull() {
		a.n++
	}
	return nil
}

func (a *countAccumulator) result() Value {
	return Number(decimal.NewFromInt(a.n))
}

// pickAccumulator keeps one of the non-NULL values it sees; keep decides whether v
// replaces the current value.
type pickAccumulator struct {
	seen  bool
	value Value
	keep  func(cur, v Value) bool
}

func (a *pickAccumulator) add(v Value) error {
	if v.IsNull() {
		return nil
	}
	if !a.seen || a.keep(a.value, v) {
		a.seen, a.value = true, v
	}
	return nil
}

func (a *pickAccumulator) result() Value {
	return a.value
}
