package ledger

import (
	"fmt"

	"github.com/robinvdvleuten/beancount-mcp/ast"
)

// Validation is split in two phases, the way every directive flows through the ledger:
//
//  1. A validator with read-only access to the account registry checks a directive
//     and, for transactions, produces a delta: the booked postings with elided
//     amounts solved and weights computed. Nothing is mutated.
//  2. Only when validation passes does the ledger apply the delta to its indices.
//
// Load and ApplyTransaction share the validator, so a submitted transaction is held
// to exactly the rules a loaded one is. Transaction checks run in a fixed order and
// stop at the first failure:
//
//	structural  >= 2 postings, valid accounts, <= 1 elided posting
//	lifecycle   every account open on the transaction date
//	structural  posted commodities allowed by the accounts' open directives
//	balance     weights sum to zero per commodity within tolerance
type validator struct {
	accounts  map[ast.Account]*Account
	tolerance *ToleranceConfig
}

// transactionDelta is the booked form of a valid transaction.
type transactionDelta struct {
	postings []Posting
}

func (v *validator) validateTransaction(txn *ast.Transaction) (*transactionDelta, error) {
	if err := v.validateStructure(txn); err != nil {
		return nil, err
	}
	if err := v.validateAccountsOpen(txn); err != nil {
		return nil, err
	}

	delta := &transactionDelta{postings: make([]Posting, 0, len(txn.Postings))}
	sums := newResiduals()
	var elided *ast.Posting

	for _, posting := range txn.Postings {
		if posting.Elided() {
			elided = posting
			continue
		}
		if err := v.validateCommodity(txn, posting.Account, posting.Amount.Commodity); err != nil {
			return nil, err
		}
		booked := bookPosting(posting, *posting.Amount)
		sums.add(booked.Weight)
		delta.postings = append(delta.postings, booked)
	}

	if elided == nil {
		if exceeding := sums.exceeding(v.tolerance); len(exceeding) > 0 {
			return nil, &TransactionNotBalancedError{Residuals: exceeding, Transaction: txn}
		}
		return delta, nil
	}

	solved, err := v.solveElided(txn, elided, sums)
	if err != nil {
		return nil, err
	}
	delta.postings = append(delta.postings, solved...)
	return delta, nil
}

func (v *validator) validateStructure(txn *ast.Transaction) error {
	invalid := func(format string, args ...any) error {
		return &InvalidTransactionError{Reason: fmt.Sprintf(format, args...), Transaction: txn}
	}

	if len(txn.Postings) < 2 {
		return invalid("a transaction needs at least two postings, got %d", len(txn.Postings))
	}

	elided := 0
	for _, posting := range txn.Postings {
		if !posting.Account.Valid() {
			return invalid("invalid account name %q", posting.Account)
		}

		if posting.Elided() {
			elided++
			if posting.Price != nil || posting.Cost != nil {
				return invalid("posting to %s has a price or cost but no amount", posting.Account)
			}
			continue
		}

		for _, amount := range []*ast.Amount{posting.Amount, posting.Cost, posting.Price} {
			if amount != nil && !ast.ValidCommodity(amount.Commodity) {
				return invalid("posting to %s has an invalid commodity %q", posting.Account, amount.Commodity)
			}
		}
	}

	if elided > 1 {
		return invalid("at most one posting may omit its amount, got %d", elided)
	}
	return nil
}

func (v *validator) validateAccountsOpen(txn *ast.Transaction) error {
	for _, account := range txn.Accounts() {
		if err := v.checkOpen(account, txn.Date, txn.Pos, txn); err != nil {
			return err
		}
	}
	return nil
}

// checkOpen reports a lifecycle error unless account accepts entries on date.
func (v *validator) checkOpen(account ast.Account, date ast.Date, pos ast.Position, directive ast.Directive) error {
	acc, ok := v.accounts[account]
	if !ok {
		return &AccountNotOpenError{Account: account, Date: date, Pos: pos, Directive: directive}
	}

	switch acc.State(date) {
	case Unopened:
		openDate := acc.OpenDate
		return &AccountNotOpenError{Account: account, Date: date, OpenDate: &openDate, Pos: pos, Directive: directive}
	case Closed:
		return &AccountClosedError{Account: account, Date: date, ClosedDate: *acc.CloseDate, Pos: pos, Directive: directive}
	}
	return nil
}

func (v *validator) validateCommodity(txn *ast.Transaction, account ast.Account, commodity string) error {
	if acc := v.accounts[account]; !acc.Allows(commodity) {
		return &CommodityNotAllowedError{
			Account:     account,
			Commodity:   commodity,
			Allowed:     acc.Commodities,
			Transaction: txn,
		}
	}
	return nil
}

// solveElided books the elided posting as one posting per commodity left unbalanced by
// the others, each carrying the negated residual.
func (v *validator) solveElided(txn *ast.Transaction, elided *ast.Posting, sums *residuals) ([]Posting, error) {
	residual := sums.nonZero()
	if len(residual) == 0 {
		return nil, &InvalidTransactionError{
			Reason:      fmt.Sprintf("the posting to %s without amount resolves to zero", elided.Account),
			Transaction: txn,
		}
	}

	solved := make([]Posting, 0, len(residual))
	for _, amount := range residual {
		if err := v.validateCommodity(txn, elided.Account, amount.Commodity); err != nil {
			return nil, err
		}
		booked := bookPosting(elided, amount.Neg())
		booked.Solved = true
		solved = append(solved, booked)
	}
	return solved, nil
}

// bookPosting builds the booked form of posting carrying units.
func bookPosting(posting *ast.Posting, units ast.Amount) Posting {
	booked := Posting{
		Source:  posting,
		Account: posting.Account,
		Flag:    posting.Flag,
		Units:   units,
		Cost:    posting.Cost,
		Weight:  weightOf(units, posting.Cost, posting.Price, posting.PriceTotal),
	}

	if price := posting.Price; price != nil {
		perUnit := *price
		if posting.PriceTotal && !units.Number.IsZero() {
			perUnit.Number = price.Number.Div(units.Number.Abs())
		}
		booked.Price = &perUnit
	}

	return booked
}
