package ast

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// AccountTypes are the five root categories every account belongs to.
var AccountTypes = []string{"Assets", "Liabilities", "Equity", "Income", "Expenses"}

// Account represents a Beancount account name consisting of at least two colon-separated
// segments. The first segment must be one of AccountTypes. Subsequent segments must start
// with an uppercase letter or digit and can contain letters, numbers, and hyphens.
//
// Example accounts:
//
//	Assets:US:BofA:Checking
//	Liabilities:CreditCard:CapitalOne
//	Expenses:Home:Rent
type Account string

// accountSegmentRegex validates account segments (after first).
var accountSegmentRegex = regexp.MustCompile(`^[A-Z0-9][A-Za-z0-9-]*$`)

// ParseAccount validates name and returns it as an Account.
func ParseAccount(name string) (Account, error) {
	parts := strings.Split(name, ":")
	if len(parts) < 2 {
		return "", fmt.Errorf("account must have at least two segments: %q", name)
	}

	if !slices.Contains(AccountTypes, parts[0]) {
		return "", fmt.Errorf("unexpected account type %q in %q", parts[0], name)
	}

	for i := 1; i < len(parts); i++ {
		if !accountSegmentRegex.MatchString(parts[i]) {
			return "", fmt.Errorf("invalid account segment at position %d: %q", i, parts[i])
		}
	}

	return Account(name), nil
}

// Valid reports whether a is a well-formed account name.
func (a Account) Valid() bool {
	_, err := ParseAccount(string(a))
	return err == nil
}

// Root returns the account type (first segment).
func (a Account) Root() string {
	root, _, _ := strings.Cut(string(a), ":")
	return root
}

// Parent returns the account one level up, or "" for a root category.
func (a Account) Parent() Account {
	i := strings.LastIndexByte(string(a), ':')
	if i < 0 {
		return ""
	}
	return a[:i]
}

// Ancestor returns the first n segments of the account.
func (a Account) Ancestor(n int) Account {
	if n <= 0 {
		return ""
	}
	parts := strings.Split(string(a), ":")
	if n >= len(parts) {
		return a
	}
	return Account(strings.Join(parts[:n], ":"))
}

func (a Account) String() string { return string(a) }

// Date represents a calendar date. All directives carry one; it drives chronological
// ordering and the as-of semantics of balances.
type Date struct {
	time.Time
}

// ParseDate parses YYYY-MM-DD (or YYYY/MM/DD) into a Date.
func ParseDate(s string) (Date, error) {
	layout := "2006-01-02"
	if strings.Contains(s, "/") {
		layout = "2006/01/02"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date: %s", s)
	}
	return Date{t}, nil
}

// MustParseDate is like ParseDate but panics on error. Intended for tests and constants.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDateFromTime truncates t to its calendar date.
func NewDateFromTime(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// Compare returns -1, 0 or 1 depending on whether d is before, equal to or after other.
func (d Date) Compare(other Date) int {
	return d.Time.Compare(other.Time)
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// MarshalText encodes the date as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalJSON encodes the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	return d.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}

// UnmarshalText decodes a YYYY-MM-DD date.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var commodityRegex = regexp.MustCompile(`^[A-Z]([A-Z0-9'._-]{0,22}[A-Z0-9])?$`)

// ValidCommodity reports whether s is a well-formed commodity symbol.
func ValidCommodity(s string) bool {
	return commodityRegex.MatchString(s)
}

// Amount is an exact decimal quantity of a single commodity.
type Amount struct {
	Number    decimal.Decimal
	Commodity string
}

// NewAmount returns an Amount of number units of commodity.
func NewAmount(number decimal.Decimal, commodity string) Amount {
	return Amount{Number: number, Commodity: commodity}
}

// ParseAmount parses a decimal number (thousands separators allowed) and pairs it with
// commodity.
func ParseAmount(number, commodity string) (Amount, error) {
	n, err := decimal.NewFromString(strings.ReplaceAll(number, ",", ""))
	if err != nil {
		return Amount{}, fmt.Errorf("invalid number %q", number)
	}
	if !ValidCommodity(commodity) {
		return Amount{}, fmt.Errorf("invalid commodity %q", commodity)
	}
	return Amount{Number: n, Commodity: commodity}, nil
}

// Neg returns the amount with its sign flipped.
func (a Amount) Neg() Amount {
	return Amount{Number: a.Number.Neg(), Commodity: a.Commodity}
}

func (a Amount) String() string {
	return FormatNumber(a.Number) + " " + a.Commodity
}

// FormatNumber renders d keeping the precision it was written or computed with
// (10.00 stays 10.00).
func FormatNumber(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// Link connects related transactions. Stored without the leading ^.
type Link string

// NewLink creates a Link, stripping a leading ^ if present.
func NewLink(name string) Link {
	return Link(strings.TrimPrefix(name, "^"))
}

// Tag categorizes a transaction. Stored without the leading #.
type Tag string

// NewTag creates a Tag, stripping a leading # if present.
func NewTag(name string) Tag {
	return Tag(strings.TrimPrefix(name, "#"))
}
