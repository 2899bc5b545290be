package ledger

import (
	"sort"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/shopspring/decimal"
)

// Inventory is the balance of an account as units per commodity. Commodities whose
// units sum to zero are dropped.
type Inventory struct {
	units map[string]decimal.Decimal
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{units: make(map[string]decimal.Decimal)}
}

// Add adds number units of commodity.
func (inv *Inventory) Add(commodity string, number decimal.Decimal) {
	total := inv.units[commodity].Add(number)
	if total.IsZero() {
		delete(inv.units, commodity)
		return
	}
	inv.units[commodity] = total
}

// Get returns the units held of commodity.
func (inv *Inventory) Get(commodity string) decimal.Decimal {
	return inv.units[commodity]
}

// IsEmpty reports whether the inventory holds nothing.
func (inv *Inventory) IsEmpty() bool {
	return len(inv.units) == 0
}

// Commodities returns the held commodities in alphabetical order.
func (inv *Inventory) Commodities() []string {
	commodities := make([]string, 0, len(inv.units))
	for commodity := range inv.units {
		commodities = append(commodities, commodity)
	}
	sort.Strings(commodities)
	return commodities
}

// Amounts returns one amount per held commodity in alphabetical order.
func (inv *Inventory) Amounts() []ast.Amount {
	commodities := inv.Commodities()
	amounts := make([]ast.Amount, len(commodities))
	for i, commodity := range commodities {
		amounts[i] = ast.NewAmount(inv.units[commodity], commodity)
	}
	return amounts
}

// String renders the inventory as "-10.00 USD, 2 HOOL", or "0" when empty.
func (inv *Inventory) String() string {
	if inv.IsEmpty() {
		return "0"
	}
	amounts := inv.Amounts()
	parts := make([]string, len(amounts))
	for i, amount := range amounts {
		parts[i] = amount.String()
	}
	return strings.Join(parts, ", ")
}
