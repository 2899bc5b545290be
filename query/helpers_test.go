package query

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/parser"
)

const fixture = `2024-01-01 open Assets:Bank
2024-01-01 open Assets:Brokerage
2024-01-01 open Expenses:Food
2024-01-01 open Expenses:Rent
2024-01-01 open Equity:Opening

2024-01-01 price HOOL 50.00 USD
2024-01-01 price EUR 1.10 USD

2024-02-01 * "Grocer" "Weekly shopping" #food
  Assets:Bank    -10.00 USD
  Expenses:Food   10.00 USD

2024-02-08 * "Market" "Snacks" #food ^trip
  Assets:Bank     -5.00 USD
  Expenses:Food    5.00 USD

2024-02-15 * "Rent"
  Assets:Bank   -500.00 EUR
  Expenses:Rent  500.00 EUR

2024-03-01 * "Buy shares"
  Assets:Brokerage   2 HOOL {50.00 USD}
  Assets:Bank     -100.00 USD
`

func loadLedger(t testing.TB, source string) *ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	directives, warnings := parser.Parse(ctx, "test.beancount", []byte(source))
	assert.Equal(t, 0, len(warnings), "parse warnings: %v", warnings)
	l, err := ledger.Load(ctx, directives)
	assert.NoError(t, err)
	return l
}
