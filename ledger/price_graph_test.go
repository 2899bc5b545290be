package ledger

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/shopspring/decimal"
)

func TestPriceGraphForwardFill(t *testing.T) {
	pg := NewPriceGraph()
	assert.NoError(t, pg.AddPrice(ast.MustParseDate("2024-01-20"), "HOOL", "USD", decimalOf("600")))
	assert.NoError(t, pg.AddPrice(ast.MustParseDate("2024-01-10"), "HOOL", "USD", decimalOf("500")))

	tests := []struct {
		date  string
		want  string
		found bool
	}{
		{"2024-01-09", "0", false},
		{"2024-01-10", "500", true},
		{"2024-01-19", "500", true},
		{"2024-01-20", "600", true},
		{"2025-01-01", "600", true},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			value, found := pg.LookupPrice("HOOL", "USD", ast.MustParseDate(tt.date))
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, value.String())
		})
	}
}

func TestPriceGraphInverse(t *testing.T) {
	pg := NewPriceGraph()
	date := ast.MustParseDate("2024-01-15")
	assert.NoError(t, pg.AddPrice(date, "EUR", "USD", decimalOf("1.25")))

	value, found := pg.LookupPrice("USD", "EUR", date)
	assert.True(t, found)
	assert.Equal(t, "0.8", value.String())

	// A direct quote replaces the derived inverse, but not the other way around.
	assert.NoError(t, pg.AddPrice(date, "USD", "EUR", decimalOf("0.81")))
	value, _ = pg.LookupPrice("USD", "EUR", date)
	assert.Equal(t, "0.81", value.String())
	value, _ = pg.LookupPrice("EUR", "USD", date)
	assert.Equal(t, "1.25", value.String())
}

func TestPriceGraphSameCommodity(t *testing.T) {
	value, found := NewPriceGraph().LookupPrice("USD", "USD", ast.MustParseDate("2024-01-01"))
	assert.True(t, found)
	assert.True(t, value.Equal(decimal.NewFromInt(1)))
}

func TestPriceGraphRejectsInvalidRates(t *testing.T) {
	pg := NewPriceGraph()
	date := ast.MustParseDate("2024-01-15")
	assert.Error(t, pg.AddPrice(date, "USD", "EUR", decimal.Zero))
	assert.Error(t, pg.AddPrice(date, "USD", "USD", decimalOf("1")))
}

func TestPriceGraphConvert(t *testing.T) {
	pg := NewPriceGraph()
	assert.NoError(t, pg.AddPrice(ast.MustParseDate("2024-01-01"), "EUR", "USD", decimalOf("1.10")))

	converted, ok := pg.Convert(ast.NewAmount(decimalOf("10.00"), "EUR"), "USD", ast.MustParseDate("2024-02-01"))
	assert.True(t, ok)
	assert.Equal(t, "11.0000 USD", converted.String())

	_, ok = pg.Convert(ast.NewAmount(decimalOf("10.00"), "EUR"), "CAD", ast.MustParseDate("2024-02-01"))
	assert.False(t, ok)
}
