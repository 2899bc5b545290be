package ledger

import (
	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/shopspring/decimal"
)

// Weight returns the amount a posting contributes to its transaction's balance:
//
//	10 HOOL {518.73 USD}  -> 5187.30 USD  (cost wins over price)
//	200 EUR @ 1.35 USD    ->  270.00 USD
//	200 EUR @@ 270 USD    ->  270 USD     (sign of the units)
//	45.60 USD             ->   45.60 USD
//
// Elided postings have no weight until the ledger solves for them.
func Weight(posting *ast.Posting) (ast.Amount, bool) {
	if posting.Amount == nil {
		return ast.Amount{}, false
	}
	return weightOf(*posting.Amount, posting.Cost, posting.Price, posting.PriceTotal), true
}

func weightOf(units ast.Amount, cost, price *ast.Amount, priceTotal bool) ast.Amount {
	switch {
	case cost != nil:
		return ast.NewAmount(units.Number.Mul(cost.Number), cost.Commodity)
	case price != nil && priceTotal:
		total := price.Number.Abs()
		if units.Number.IsNegative() {
			total = total.Neg()
		}
		return ast.NewAmount(total, price.Commodity)
	case price != nil:
		return ast.NewAmount(units.Number.Mul(price.Number), price.Commodity)
	default:
		return units
	}
}

// residuals sums weights per commodity, keeping first-seen commodity order so the
// postings solved for an elided amount come out deterministically.
type residuals struct {
	order []string
	sums  map[string]decimal.Decimal
}

func newResiduals() *residuals {
	return &residuals{sums: make(map[string]decimal.Decimal)}
}

func (r *residuals) add(amount ast.Amount) {
	sum, ok := r.sums[amount.Commodity]
	if !ok {
		r.order = append(r.order, amount.Commodity)
	}
	r.sums[amount.Commodity] = sum.Add(amount.Number)
}

// nonZero returns the residual amounts that are not exactly zero.
func (r *residuals) nonZero() []ast.Amount {
	var amounts []ast.Amount
	for _, commodity := range r.order {
		if sum := r.sums[commodity]; !sum.IsZero() {
			amounts = append(amounts, ast.NewAmount(sum, commodity))
		}
	}
	return amounts
}

// exceeding returns the residuals larger than their commodity's tolerance.
func (r *residuals) exceeding(tolerance *ToleranceConfig) map[string]string {
	out := make(map[string]string)
	for _, commodity := range r.order {
		if sum := r.sums[commodity]; !tolerance.Within(commodity, sum) {
			out[commodity] = ast.FormatNumber(sum)
		}
	}
	return out
}
