package ledger

import (
	"fmt"

	"github.com/robinvdvleuten/beancount-mcp/ast"
)

// builder carries the state of a single Load.
type builder struct {
	ledger   *Ledger
	errors   []error
	rejected map[ast.Directive]bool
	pads     map[ast.Account]*pendingPad
}

// pendingPad is a pad waiting for the next balance assertion on its account. It pads
// each commodity at most once.
type pendingPad struct {
	pad    *ast.Pad
	padded map[string]bool
}

// padding records how a pad was resolved against the first balance assertion of a
// commodity that followed it. txn is nil when the balance already matched.
type padding struct {
	pad     *ast.Pad
	balance *ast.Balance
	txn     *Transaction
}

func (b *builder) fail(d ast.Directive, err error) {
	b.rejected[d] = true
	b.errors = append(b.errors, err)
}

// registerAccounts builds the account registry from every open and close directive
// before anything else is validated, so lifecycle checks see the whole lifetime of
// an account regardless of where its directives sit within a day.
func (b *builder) registerAccounts(directives ast.Directives) {
	accounts := b.ledger.accounts

	for _, directive := range directives {
		switch d := directive.(type) {
		case *ast.Open:
			if existing, ok := accounts[d.Account]; ok {
				b.fail(d, &AccountAlreadyOpenError{
					Account:    d.Account,
					Date:       d.Date,
					OpenedDate: existing.OpenDate,
					Pos:        d.Pos,
					Directive:  d,
				})
				continue
			}
			accounts[d.Account] = &Account{
				Name:        d.Account,
				Type:        ParseAccountType(d.Account),
				OpenDate:    d.Date,
				Commodities: d.Commodities,
				Open:        d,
			}

		case *ast.Close:
			account, ok := accounts[d.Account]
			switch {
			case !ok:
				b.fail(d, &AccountNotOpenError{Account: d.Account, Date: d.Date, Pos: d.Pos, Directive: d})
			case account.CloseDate != nil:
				b.fail(d, &AccountClosedError{
					Account:    d.Account,
					Date:       d.Date,
					ClosedDate: *account.CloseDate,
					Pos:        d.Pos,
					Directive:  d,
				})
			case d.Date.Before(account.OpenDate.Time):
				openDate := account.OpenDate
				b.fail(d, &AccountNotOpenError{Account: d.Account, Date: d.Date, OpenDate: &openDate, Pos: d.Pos, Directive: d})
			default:
				closeDate := d.Date
				account.CloseDate = &closeDate
			}
		}
	}
}

// process validates a single directive and applies it to the ledger.
func (b *builder) process(directive ast.Directive) {
	l := b.ledger
	v := l.validator()

	switch d := directive.(type) {
	case *ast.Open, *ast.Close:
		if !b.rejected[d] {
			l.addDirective(d)
		}

	case *ast.Transaction:
		delta, err := v.validateTransaction(d)
		if err != nil {
			b.fail(d, err)
			return
		}
		l.record(d, delta)

	case *ast.Balance:
		b.processBalance(v, d)

	case *ast.Pad:
		for _, account := range []ast.Account{d.Account, d.Source} {
			if err := v.checkOpen(account, d.Date, d.Pos, d); err != nil {
				b.fail(d, err)
				return
			}
		}
		b.pads[d.Account] = &pendingPad{pad: d, padded: make(map[string]bool)}
		l.addDirective(d)

	case *ast.Price:
		if err := l.priceGraph.AddPrice(d.Date, d.Commodity, d.Amount.Commodity, d.Amount.Number); err != nil {
			b.fail(d, &InvalidPriceError{Reason: err.Error(), Price: d})
			return
		}
		l.prices = append(l.prices, d)
		l.addDirective(d)

	case *ast.Note:
		b.processAccountDirective(v, d, d.Account)

	case *ast.Document:
		b.processAccountDirective(v, d, d.Account)

	case *ast.Custom:
		l.addDirective(d)

	default:
		panic(fmt.Sprintf("ledger: unhandled directive %T", directive))
	}
}

func (b *builder) processAccountDirective(v *validator, d ast.Directive, account ast.Account) {
	if err := v.checkOpen(account, ast.DateOf(d), d.Position(), d); err != nil {
		b.fail(d, err)
		return
	}
	b.ledger.addDirective(d)
}

// processBalance pads the account if a pad is pending and checks the assertion against
// the balance at the start of its date.
func (b *builder) processBalance(v *validator, balance *ast.Balance) {
	l := b.ledger
	if err := v.checkOpen(balance.Account, balance.Date, balance.Pos, balance); err != nil {
		b.fail(balance, err)
		return
	}

	commodity := balance.Amount.Commodity
	actual := l.assertedUnits(balance.Account, balance.Date, commodity)
	diff := balance.Amount.Number.Sub(actual)

	if pending, ok := b.pads[balance.Account]; ok && !pending.padded[commodity] {
		pending.padded[commodity] = true
		resolved := &padding{pad: pending.pad, balance: balance}
		if !v.tolerance.Within(commodity, diff) {
			booked, err := l.bookPadding(v, pending.pad, balance, ast.NewAmount(diff, commodity))
			if err != nil {
				b.fail(pending.pad, err)
				resolved = nil
			} else {
				resolved.txn = booked
				actual = actual.Add(diff)
			}
		}
		if resolved != nil {
			l.paddings = append(l.paddings, resolved)
		}
	}

	if !v.tolerance.Within(commodity, balance.Amount.Number.Sub(actual)) {
		b.fail(balance, &BalanceAssertionError{
			Assertion: balance,
			Actual:    ast.NewAmount(actual, commodity),
		})
		return
	}

	l.assertions[balance.Account] = append(l.assertions[balance.Account], balance)
	l.addDirective(balance)
}

// bookPadding books a transaction flagged P on the pad date that moves amount from
// the pad's source account into the padded account.
func (l *Ledger) bookPadding(v *validator, pad *ast.Pad, balance *ast.Balance, amount ast.Amount) (*Transaction, error) {
	txn := &ast.Transaction{
		Pos:  pad.Pos,
		Date: pad.Date,
		Flag: "P",
		Narration: fmt.Sprintf("(Padding inserted for Balance of %s for difference %s)",
			balance.Amount, amount),
		Postings: []*ast.Posting{
			{Account: pad.Account, Amount: &amount},
			{Account: pad.Source, Amount: ptr(amount.Neg())},
		},
	}

	delta, err := v.validateTransaction(txn)
	if err != nil {
		return nil, err
	}
	return l.record(txn, delta), nil
}

func ptr[T any](v T) *T {
	return &v
}
