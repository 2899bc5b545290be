package ledger

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/shopspring/decimal"
)

func change(date, commodity, delta string) BalanceChange {
	return BalanceChange{
		Account:   "Assets:Bank",
		Date:      ast.MustParseDate(date),
		Commodity: commodity,
		Delta:     decimal.RequireFromString(delta),
	}
}

func balances(h *history) []string {
	out := make([]string, len(h.changes))
	for i, c := range h.changes {
		out[i] = c.Date.String() + " " + ast.FormatNumber(c.Balance) + " " + c.Commodity
	}
	return out
}

func TestHistoryInsertShiftsLaterChanges(t *testing.T) {
	h := &history{}
	h.insert(change("2024-01-01", "USD", "100.00"))
	h.insert(change("2024-03-01", "USD", "-30.00"))
	h.insert(change("2024-03-01", "EUR", "5.00"))

	// Booked in the past: the later USD balances move, EUR stays.
	h.insert(change("2024-02-01", "USD", "-10.00"))

	assert.Equal(t, []string{
		"2024-01-01 100.00 USD",
		"2024-02-01 90.00 USD",
		"2024-03-01 60.00 USD",
		"2024-03-01 5.00 EUR",
	}, balances(h))
}

func TestHistorySameDateKeepsBookingOrder(t *testing.T) {
	h := &history{}
	h.insert(change("2024-01-01", "USD", "1"))
	h.insert(change("2024-01-01", "USD", "2"))

	assert.Equal(t, "1", h.changes[0].Delta.String())
	assert.Equal(t, "2", h.changes[1].Delta.String())
	assert.Equal(t, "3", h.changes[1].Balance.String())
}

func TestHistoryRemoveShiftsLaterChanges(t *testing.T) {
	h := &history{}
	h.insert(change("2024-01-01", "USD", "100.00"))
	h.insert(change("2024-02-01", "USD", "-10.00"))
	h.insert(change("2024-02-01", "EUR", "5.00"))
	h.insert(change("2024-03-01", "USD", "-30.00"))

	h.remove(ast.MustParseDate("2024-01-01"), "USD", decimal.RequireFromString("100.00"))
	assert.Equal(t, []string{
		"2024-02-01 -10.00 USD",
		"2024-02-01 5.00 EUR",
		"2024-03-01 -40.00 USD",
	}, balances(h))

	// Nothing matches on that date.
	h.remove(ast.MustParseDate("2024-03-01"), "USD", decimal.RequireFromString("-10.00"))
	assert.Equal(t, 3, len(h.changes))
}

func TestHistoryCloneIsIndependent(t *testing.T) {
	h := &history{}
	h.insert(change("2024-01-01", "USD", "10"))

	next := h.clone()
	next.insert(change("2023-12-01", "USD", "5"))

	assert.Equal(t, 1, len(h.changes))
	assert.Equal(t, "10", h.changes[0].Balance.String())
	assert.Equal(t, "15", next.changes[1].Balance.String())
}

func TestHistoryAsOf(t *testing.T) {
	h := &history{}
	h.insert(change("2024-01-01", "USD", "100"))
	h.insert(change("2024-02-01", "USD", "-10"))

	assert.Equal(t, "0", h.unitsAtStartOf(ast.MustParseDate("2024-01-01"), "USD").String())
	assert.Equal(t, "100", h.unitsAtStartOf(ast.MustParseDate("2024-02-01"), "USD").String())
	assert.Equal(t, "90", h.inventoryAt(ast.MustParseDate("2024-02-01")).Get("USD").String())
	assert.Equal(t, "100", h.inventoryAt(ast.MustParseDate("2024-01-31")).Get("USD").String())
	assert.True(t, h.inventoryAt(ast.MustParseDate("2023-01-01")).IsEmpty())

	var missing *history
	assert.True(t, missing.inventoryAt(ast.MustParseDate("2024-01-01")).IsEmpty())
}
