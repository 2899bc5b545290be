package ledger

import (
	"sort"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// BalanceChange is one step of an account's running balance: a posting moved Delta
// units of Commodity on Date, leaving Balance units held.
type BalanceChange struct {
	Account   ast.Account
	Date      ast.Date
	Commodity string
	Delta     decimal.Decimal
	Balance   decimal.Decimal
}

// history is the running balance of one account in chronological order. Changes
// sharing a date keep the order they were booked in.
type history struct {
	changes []BalanceChange
}

// clone returns a copy that can be modified without affecting snapshots sharing h.
func (h *history) clone() *history {
	if h == nil {
		return &history{}
	}
	return &history{changes: slices.Clone(h.changes)}
}

// after returns the index of the first change dated after date.
func (h *history) after(date ast.Date) int {
	return sort.Search(len(h.changes), func(i int) bool {
		return h.changes[i].Date.After(date.Time)
	})
}

// from returns the index of the first change dated on or after date.
func (h *history) from(date ast.Date) int {
	return sort.Search(len(h.changes), func(i int) bool {
		return !h.changes[i].Date.Before(date.Time)
	})
}

// balanceBefore returns the units of commodity held after the first n changes.
func (h *history) balanceBefore(n int, commodity string) decimal.Decimal {
	for i := n - 1; i >= 0; i-- {
		if h.changes[i].Commodity == commodity {
			return h.changes[i].Balance
		}
	}
	return decimal.Zero
}

// insert books a change after every change on or before its date and shifts the
// running balance of later changes in the same commodity.
func (h *history) insert(change BalanceChange) {
	pos := h.after(change.Date)
	change.Balance = h.balanceBefore(pos, change.Commodity).Add(change.Delta)

	if pos == len(h.changes) {
		h.changes = append(h.changes, change)
		return
	}

	h.changes = slices.Insert(h.changes, pos, change)
	for i := pos + 1; i < len(h.changes); i++ {
		if h.changes[i].Commodity == change.Commodity {
			h.changes[i].Balance = h.changes[i].Balance.Add(change.Delta)
		}
	}
}

// remove takes back the first change on date that moved delta units of commodity and
// shifts the running balance of later changes in the same commodity.
func (h *history) remove(date ast.Date, commodity string, delta decimal.Decimal) {
	for i := h.from(date); i < len(h.changes) && h.changes[i].Date.Equal(date.Time); i++ {
		change := h.changes[i]
		if change.Commodity != commodity || !change.Delta.Equal(delta) {
			continue
		}
		h.changes = slices.Delete(h.changes, i, i+1)
		for j := i; j < len(h.changes); j++ {
			if h.changes[j].Commodity == commodity {
				h.changes[j].Balance = h.changes[j].Balance.Sub(delta)
			}
		}
		return
	}
}

// inventoryAt returns the balance at the end of date.
func (h *history) inventoryAt(date ast.Date) *Inventory {
	inv := NewInventory()
	if h == nil {
		return inv
	}
	latest := make(map[string]decimal.Decimal)
	for _, change := range h.changes[:h.after(date)] {
		latest[change.Commodity] = change.Balance
	}
	for commodity, units := range latest {
		inv.Add(commodity, units)
	}
	return inv
}

// unitsAtStartOf returns the units of commodity held at the beginning of date.
func (h *history) unitsAtStartOf(date ast.Date, commodity string) decimal.Decimal {
	if h == nil {
		return decimal.Zero
	}
	return h.balanceBefore(h.from(date), commodity)
}
