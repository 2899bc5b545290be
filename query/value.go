package query

import (
	"encoding/json"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/shopspring/decimal"
)

// Type is the static type of an expression and the kind of a Value.
type Type uint8

const (
	TypeNull Type = iota
	TypeBool
	TypeNumber
	TypeAmount // a number annotated with its commodity
	TypeString
	TypeDate
	TypeSet // tags and links
)

var typeNames = [...]string{
	TypeNull:   "null",
	TypeBool:   "boolean",
	TypeNumber: "number",
	TypeAmount: "amount",
	TypeString: "string",
	TypeDate:   "date",
	TypeSet:    "set",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// Value is a typed cell. The zero Value is NULL.
type Value struct {
	Type      Type
	Bool      bool
	Number    decimal.Decimal
	Commodity string // TypeAmount only
	Str       string
	Date      ast.Date
	Set       []string
}

// Null is the NULL value.
var Null = Value{}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{Type: TypeBool, Bool: b}
}

// Number returns a number value.
func Number(d decimal.Decimal) Value {
	return Value{Type: TypeNumber, Number: d}
}

// AmountValue returns an amount value.
func AmountValue(a ast.Amount) Value {
	return Value{Type: TypeAmount, Number: a.Number, Commodity: a.Commodity}
}

// String returns a string value.
func String(s string) Value {
	return Value{Type: TypeString, Str: s}
}

// OptionalString returns a string value, or NULL for the empty string.
func OptionalString(s string) Value {
	if s == "" {
		return Null
	}
	return String(s)
}

// DateValue returns a date value.
func DateValue(d ast.Date) Value {
	return Value{Type: TypeDate, Date: d}
}

// SetValue returns a set value.
func SetValue(items []string) Value {
	return Value{Type: TypeSet, Set: items}
}

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// Amount returns v as an ast.Amount. Only meaningful for TypeAmount.
func (v Value) Amount() ast.Amount {
	return ast.NewAmount(v.Number, v.Commodity)
}

// String renders v for display. NULL renders as the empty string.
func (v Value) String() string {
	switch v.Type {
	case TypeBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case TypeNumber:
		return ast.FormatNumber(v.Number)
	case TypeAmount:
		return ast.FormatNumber(v.Number) + " " + v.Commodity
	case TypeString:
		return v.Str
	case TypeDate:
		return v.Date.String()
	case TypeSet:
		return strings.Join(v.Set, ",")
	}
	return ""
}

// Native converts v to plain Go values for encoding. Numbers become strings to keep
// their exact decimal form and amounts become {"number": "...", "commodity": "..."}.
func (v Value) Native() any {
	switch v.Type {
	case TypeNull:
		return nil
	case TypeBool:
		return v.Bool
	case TypeAmount:
		return struct {
			Number    string `json:"number"`
			Commodity string `json:"commodity"`
		}{ast.FormatNumber(v.Number), v.Commodity}
	case TypeSet:
		if v.Set == nil {
			return []string{}
		}
		return v.Set
	}
	return v.String()
}

// MarshalJSON encodes the native form of v.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// key encodes v for exact grouping and DISTINCT. Numerically equal decimals share a
// key regardless of their precision.
func (v Value) key() string {
	var b strings.Builder
	b.WriteByte(byte('0' + v.Type))
	switch v.Type {
	case TypeNumber:
		b.WriteString(v.Number.String())
	case TypeAmount:
		b.WriteString(v.Number.String())
		b.WriteByte(' ')
		b.WriteString(v.Commodity)
	case TypeSet:
		for _, item := range v.Set {
			b.WriteString(item)
			b.WriteByte(0)
		}
	default:
		b.WriteString(v.String())
	}
	return b.String()
}

// compareValues orders values for sorting. NULL sorts before everything; values of
// different types are ordered by type.
func compareValues(a, b Value) int {
	if a.Type != b.Type {
		return int(a.Type) - int(b.Type)
	}
	switch a.Type {
	case TypeBool:
		switch {
		case a.Bool == b.Bool:
			return 0
		case !a.Bool:
			return -1
		}
		return 1
	case TypeNumber:
		return a.Number.Cmp(b.Number)
	case TypeAmount:
		if c := strings.Compare(a.Commodity, b.Commodity); c != 0 {
			return c
		}
		return a.Number.Cmp(b.Number)
	case TypeString:
		return strings.Compare(a.Str, b.Str)
	case TypeDate:
		return a.Date.Compare(b.Date)
	case TypeSet:
		return strings.Compare(strings.Join(a.Set, ","), strings.Join(b.Set, ","))
	}
	return 0
}
