// Package ledger provides the validated fact store behind a Beancount ledger.
//
// A Ledger is an immutable snapshot: the directives that passed validation plus the
// indices derived from them (account registry, per-account running balances, price
// graph and a transaction index by ID). Load builds the first snapshot from parsed
// directives; ApplyTransaction derives the next one without touching the receiver, so
// readers holding a snapshot are never affected by a concurrent write.
//
// The ledger validates that:
//   - Transactions have at least two postings and balance to zero per commodity
//     within tolerance, after solving at most one elided posting
//   - Accounts are only used in the half-open interval [open, close)
//   - Postings only use commodities their account's open directive allows
//   - Balance assertions hold at the start of their date, after padding
//
// Example usage:
//
//	directives, warnings := parser.Parse(ctx, "main.beancount", source)
//	l, err := ledger.Load(ctx, directives)
//	if err != nil {
//	    var verrs *ledger.ValidationErrors
//	    if errors.As(err, &verrs) {
//	        for _, e := range verrs.Errors {
//	            fmt.Println(e)
//	        }
//	    }
//	}
//	fmt.Println(l.GetBalance("Assets:Bank", ast.MustParseDate("2024-02-01")))
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/telemetry"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// Ledger is an immutable snapshot of the ledger state. All methods are safe for
// concurrent use; none of them mutates the snapshot.
type Ledger struct {
	version      uint64
	config       *Config
	directives   ast.Directives
	transactions []*Transaction
	byID         map[string]*Transaction
	accounts     map[ast.Account]*Account
	histories    map[ast.Account]*history
	assertions   map[ast.Account][]*ast.Balance
	paddings     []*padding
	prices       []*ast.Price
	priceGraph   *PriceGraph
}

// Transaction is a transaction as booked by the ledger, with its elided posting
// solved and every posting's weight computed.
type Transaction struct {
	ID        string
	Directive *ast.Transaction
	Postings  []Posting
}

// Date returns the transaction date.
func (t *Transaction) Date() ast.Date {
	return t.Directive.Date
}

// Posting is a booked posting. An elided posting is booked once per commodity it was
// solved in, with Solved set.
type Posting struct {
	Source  *ast.Posting
	Account ast.Account
	Flag    string
	Units   ast.Amount
	Cost    *ast.Amount // per-unit cost
	Price   *ast.Amount // per-unit price, derived from @@ totals
	Weight  ast.Amount
	Solved  bool
}

func newLedger(config *Config) *Ledger {
	return &Ledger{
		config:     config,
		byID:       make(map[string]*Transaction),
		accounts:   make(map[ast.Account]*Account),
		histories:  make(map[ast.Account]*history),
		assertions: make(map[ast.Account][]*ast.Balance),
		priceGraph: NewPriceGraph(),
	}
}

// Load validates directives in chronological order and builds the first snapshot.
// Invalid directives are left out of the ledger and reported together as
// *ValidationErrors; the returned ledger is usable either way.
//
// Tolerances come from the Config in ctx unless an Option overrides them.
func Load(ctx context.Context, directives ast.Directives, opts ...Option) (*Ledger, error) {
	timer := telemetry.FromContext(ctx).Start("ledger.load")
	defer timer.End()

	config := *ConfigFromContext(ctx)
	for _, opt := range opts {
		opt(&config)
	}

	sorted := slices.Clone(directives)
	sorted.Sort()

	l := newLedger(&config)
	l.version = 1
	b := &builder{
		ledger:   l,
		rejected: make(map[ast.Directive]bool),
		pads:     make(map[ast.Account]*pendingPad),
	}

	accountsTimer := timer.Child("ledger.accounts")
	b.registerAccounts(sorted)
	accountsTimer.End()

	validateTimer := timer.Child(fmt.Sprintf("ledger.validate (%d directives)", len(sorted)))
	for _, directive := range sorted {
		select {
		case <-ctx.Done():
			validateTimer.End()
			return l, ctx.Err()
		default:
		}

		b.process(directive)
	}
	validateTimer.End()

	if len(b.errors) > 0 {
		return l, &ValidationErrors{Errors: b.errors}
	}
	return l, nil
}

// Version increases by one with every applied transaction.
func (l *Ledger) Version() uint64 {
	return l.version
}

// Config returns the settings the ledger validates with.
func (l *Ledger) Config() *Config {
	return l.config
}

// Directives returns the valid directives in chronological order, including the
// padding transactions the ledger inserted. The slice must not be modified.
func (l *Ledger) Directives() ast.Directives {
	return l.directives
}

// Transactions returns the booked transactions in chronological order.
func (l *Ledger) Transactions() []*Transaction {
	return l.transactions
}

// Transaction looks up a transaction by its ID.
func (l *Ledger) Transaction(id string) (*Transaction, bool) {
	txn, ok := l.byID[id]
	return txn, ok
}

// Booked returns the booking of the transaction directive d.
func (l *Ledger) Booked(d *ast.Transaction) (*Transaction, bool) {
	i := sort.Search(len(l.transactions), func(i int) bool {
		return !l.transactions[i].Date().Before(d.Date.Time)
	})
	for ; i < len(l.transactions) && l.transactions[i].Date().Equal(d.Date.Time); i++ {
		if l.transactions[i].Directive == d {
			return l.transactions[i], true
		}
	}
	return nil, false
}

// Accounts returns every opened account sorted by name.
func (l *Ledger) Accounts() []*Account {
	accounts := make([]*Account, 0, len(l.accounts))
	for _, account := range l.accounts {
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b *Account) int {
		return strings.Compare(string(a.Name), string(b.Name))
	})
	return accounts
}

// Account returns an account by name
func (l *Ledger) Account(name ast.Account) (*Account, bool) {
	account, ok := l.accounts[name]
	return account, ok
}

// GetBalance returns the balance of account at the end of asOf: every change dated on
// or before asOf counts. Accounts without postings have an empty inventory.
func (l *Ledger) GetBalance(account ast.Account, asOf ast.Date) *Inventory {
	return l.histories[account].inventoryAt(asOf)
}

// BalanceHistory returns every running-balance change, grouped by account in name
// order and chronological within an account.
func (l *Ledger) BalanceHistory() []BalanceChange {
	names := make([]string, 0, len(l.histories))
	total := 0
	for name, h := range l.histories {
		names = append(names, string(name))
		total += len(h.changes)
	}
	sort.Strings(names)

	changes := make([]BalanceChange, 0, total)
	for _, name := range names {
		changes = append(changes, l.histories[ast.Account(name)].changes...)
	}
	return changes
}

// Prices returns the price directives in chronological order.
func (l *Ledger) Prices() []*ast.Price {
	return l.prices
}

// PriceGraph returns the forward-filled price index.
func (l *Ledger) PriceGraph() *PriceGraph {
	return l.priceGraph
}

// LookupPrice returns the value of one unit of base in quote on date.
func (l *Ledger) LookupPrice(base, quote string, date ast.Date) (decimal.Decimal, bool) {
	return l.priceGraph.LookupPrice(base, quote, date)
}

func (l *Ledger) validator() *validator {
	return &validator{accounts: l.accounts, tolerance: l.config.Tolerance}
}

// assertedUnits returns the units of commodity held by account and its descendants at
// the start of date, which is what a balance assertion compares against.
func (l *Ledger) assertedUnits(account ast.Account, date ast.Date, commodity string) decimal.Decimal {
	prefix := string(account) + ":"
	total := l.histories[account].unitsAtStartOf(date, commodity)
	for name, h := range l.histories {
		if strings.HasPrefix(string(name), prefix) {
			total = total.Add(h.unitsAtStartOf(date, commodity))
		}
	}
	return total
}

// record adds a booked transaction to the indices. Histories of the accounts it posts
// to must be owned by l.
func (l *Ledger) record(txn *ast.Transaction, delta *transactionDelta) *Transaction {
	booked := &Transaction{
		ID:        l.uniqueID(txn),
		Directive: txn,
		Postings:  delta.postings,
	}

	for _, posting := range delta.postings {
		h := l.histories[posting.Account]
		if h == nil {
			h = &history{}
			l.histories[posting.Account] = h
		}
		h.insert(BalanceChange{
			Account:   posting.Account,
			Date:      txn.Date,
			Commodity: posting.Units.Commodity,
			Delta:     posting.Units.Number,
		})
	}

	i := sort.Search(len(l.transactions), func(i int) bool {
		return l.transactions[i].Date().After(txn.Date.Time)
	})
	l.transactions = slices.Insert(l.transactions, i, booked)
	l.byID[booked.ID] = booked
	l.addDirective(txn)

	return booked
}

// addDirective inserts d after every directive on or before its date.
func (l *Ledger) addDirective(d ast.Directive) {
	date := ast.DateOf(d)
	i := sort.Search(len(l.directives), func(i int) bool {
		return ast.DateOf(l.directives[i]).After(date.Time)
	})
	l.directives = slices.Insert(l.directives, i, d)
}
