package ledger

import (
	"fmt"
	"sort"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/shopspring/decimal"
)

// PriceGraph maintains a temporal index of exchange rates with forward-fill lookups
// (most recent price on or before a given date).
//
// It stores prices bidirectionally: adding a price from HOOL to USD also creates the
// inverse edge from USD to HOOL. A rate quoted directly always beats a derived inverse
// for the same pair and date. Same-commodity conversions have a rate of 1.
type PriceGraph struct {
	edges map[pricePair][]rate
}

type pricePair struct {
	base, quote string
}

type rate struct {
	date    ast.Date
	value   decimal.Decimal
	inverse bool
}

// NewPriceGraph creates a new empty price graph
func NewPriceGraph() *PriceGraph {
	return &PriceGraph{
		edges: make(map[pricePair][]rate),
	}
}

// AddPrice records that one unit of base was worth value units of quote on date.
// Zero rates are rejected with an error.
//
// Example: AddPrice(2024-01-15, "USD", "EUR", 0.92) creates edges:
//
//	USD → EUR: 0.92
//	EUR → USD: 1/0.92 ≈ 1.087
func (pg *PriceGraph) AddPrice(date ast.Date, base, quote string, value decimal.Decimal) error {
	if value.IsZero() {
		return fmt.Errorf("price rate must be non-zero: %s %s on %s", base, quote, date)
	}
	if base == quote {
		return fmt.Errorf("price of %s cannot be quoted in itself", base)
	}

	pg.insert(pricePair{base, quote}, rate{date: date, value: value})
	pg.insert(pricePair{quote, base}, rate{date: date, value: decimal.NewFromInt(1).Div(value), inverse: true})
	return nil
}

func (pg *PriceGraph) insert(pair pricePair, r rate) {
	rates := pg.edges[pair]
	i := sort.Search(len(rates), func(i int) bool {
		return !rates[i].date.Before(r.date.Time)
	})

	if i < len(rates) && rates[i].date.Equal(r.date.Time) {
		if r.inverse && !rates[i].inverse {
			return
		}
		rates[i] = r
		return
	}

	rates = append(rates, rate{})
	copy(rates[i+1:], rates[i:])
	rates[i] = r
	pg.edges[pair] = rates
}

// LookupPrice returns the value of one unit of base in quote on date, using the most
// recent price on or before the date. It returns false when no such price exists.
func (pg *PriceGraph) LookupPrice(base, quote string, date ast.Date) (decimal.Decimal, bool) {
	if base == quote {
		return decimal.NewFromInt(1), true
	}

	rates := pg.edges[pricePair{base, quote}]
	i := sort.Search(len(rates), func(i int) bool {
		return rates[i].date.After(date.Time)
	})
	if i == 0 {
		return decimal.Zero, false
	}
	return rates[i-1].value, true
}

// Convert converts amount into quote at the rate effective on date.
func (pg *PriceGraph) Convert(amount ast.Amount, quote string, date ast.Date) (ast.Amount, bool) {
	value, ok := pg.LookupPrice(amount.Commodity, quote, date)
	if !ok {
		return ast.Amount{}, false
	}
	return ast.NewAmount(amount.Number.Mul(value), quote), true
}
