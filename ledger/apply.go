package ledger

import (
	"context"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/telemetry"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ApplyTransaction validates txn against the snapshot exactly as Load would and
// returns a new snapshot with txn inserted at its chronological position. Only the
// histories of the accounts txn posts to are copied; everything else is shared with
// the receiver.
//
// Padding that a pad resolved against a later balance assertion is recomputed with
// txn in place, so the result matches loading the ledger with txn appended.
//
// On failure the receiver is returned unchanged together with the validation error.
// A transaction that would make a later balance assertion fail is rejected with a
// *BalanceAssertionError.
func (l *Ledger) ApplyTransaction(ctx context.Context, txn *ast.Transaction) (*Ledger, error) {
	timer := telemetry.FromContext(ctx).Start("ledger.apply")
	defer timer.End()

	delta, err := l.validator().validateTransaction(txn)
	if err != nil {
		return l, err
	}

	next := l.fork()
	for _, posting := range delta.postings {
		next.own(l, posting.Account)
	}
	booked := next.record(txn, delta)

	repadded, err := next.repad(l, booked)
	if err != nil {
		return l, err
	}

	if err := next.checkLaterAssertions(txn, append(repadded, booked)); err != nil {
		return l, err
	}

	next.version = l.version + 1
	return next, nil
}

// fork returns a shallow copy of l with its own directive, transaction and padding
// indices. Histories stay shared until own is called for an account.
func (l *Ledger) fork() *Ledger {
	next := *l
	next.directives = slices.Clone(l.directives)
	next.transactions = slices.Clone(l.transactions)
	next.byID = maps.Clone(l.byID)
	next.histories = maps.Clone(l.histories)
	next.paddings = slices.Clone(l.paddings)
	return &next
}

// own gives l a private copy of the history of account if it still shares it with
// parent.
func (l *Ledger) own(parent *Ledger, account ast.Account) {
	if l.histories[account] == parent.histories[account] {
		l.histories[account] = parent.histories[account].clone()
	}
}

// repad recomputes every padding whose balance assertion comes after booked on an
// account booked posts to. It returns the padding transactions it took back and the
// ones it booked in their place.
func (l *Ledger) repad(parent *Ledger, booked *Transaction) ([]*Transaction, error) {
	var changed []*Transaction
	v := l.validator()

	for i, resolved := range l.paddings {
		balance := resolved.balance
		commodity := balance.Amount.Commodity
		if !balance.Date.After(booked.Date().Time) || !postsUnder(booked, balance.Account, commodity) {
			continue
		}

		l.own(parent, resolved.pad.Account)
		l.own(parent, resolved.pad.Source)
		if resolved.txn != nil {
			l.unrecord(resolved.txn)
			changed = append(changed, resolved.txn)
		}

		repadded := &padding{pad: resolved.pad, balance: balance}
		diff := balance.Amount.Number.Sub(l.assertedUnits(balance.Account, balance.Date, commodity))
		if !v.tolerance.Within(commodity, diff) {
			txn, err := l.bookPadding(v, resolved.pad, balance, ast.NewAmount(diff, commodity))
			if err != nil {
				return nil, err
			}
			repadded.txn = txn
			changed = append(changed, txn)
		}
		l.paddings[i] = repadded
	}
	return changed, nil
}

// postsUnder reports whether booked moves commodity in account or one of its
// descendants.
func postsUnder(booked *Transaction, account ast.Account, commodity string) bool {
	prefix := string(account) + ":"
	for _, posting := range booked.Postings {
		if posting.Units.Commodity == commodity &&
			(posting.Account == account || strings.HasPrefix(string(posting.Account), prefix)) {
			return true
		}
	}
	return false
}

// unrecord removes booked from the indices. Histories of the accounts it posts to
// must be owned by l.
func (l *Ledger) unrecord(booked *Transaction) {
	for _, posting := range booked.Postings {
		l.histories[posting.Account].remove(booked.Date(), posting.Units.Commodity, posting.Units.Number)
	}

	if i := slices.Index(l.transactions, booked); i >= 0 {
		l.transactions = slices.Delete(l.transactions, i, i+1)
	}
	if i := slices.IndexFunc(l.directives, func(d ast.Directive) bool {
		txn, ok := d.(*ast.Transaction)
		return ok && txn == booked.Directive
	}); i >= 0 {
		l.directives = slices.Delete(l.directives, i, i+1)
	}
	delete(l.byID, booked.ID)
}

// checkLaterAssertions re-checks the balance assertions on the accounts the changed
// transactions post to, and on their parents, that are dated after the change.
func (l *Ledger) checkLaterAssertions(txn *ast.Transaction, changed []*Transaction) error {
	touched := make(map[ast.Account]map[string]ast.Date)
	for _, booked := range changed {
		for _, posting := range booked.Postings {
			for account := posting.Account; account != ""; account = account.Parent() {
				since := touched[account]
				if since == nil {
					since = make(map[string]ast.Date)
					touched[account] = since
				}
				commodity := posting.Units.Commodity
				if earliest, ok := since[commodity]; !ok || booked.Date().Before(earliest.Time) {
					since[commodity] = booked.Date()
				}
			}
		}
	}

	for account, since := range touched {
		for _, assertion := range l.assertions[account] {
			commodity := assertion.Amount.Commodity
			from, ok := since[commodity]
			if !ok || !assertion.Date.After(from.Time) {
				continue
			}
			actual := l.assertedUnits(account, assertion.Date, commodity)
			if !l.config.Tolerance.Within(commodity, assertion.Amount.Number.Sub(actual)) {
				return &BalanceAssertionError{
					Assertion:   assertion,
					Actual:      ast.NewAmount(actual, commodity),
					Transaction: txn,
				}
			}
		}
	}
	return nil
}
