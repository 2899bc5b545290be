package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/formatter"
)

const openAccounts = `
2024-01-01 open Assets:Bank
2024-01-01 open Expenses:Food
`

func date(s string) ast.Date {
	return ast.MustParseDate(s)
}

func groceries(bank, food string) *ast.Transaction {
	return ast.NewTransaction(date("2024-02-01"), "Groceries",
		ast.WithPostings(
			ast.NewPosting("Assets:Bank", ast.WithAmount(bank, "USD")),
			ast.NewPosting("Expenses:Food", ast.WithAmount(food, "USD")),
		),
	)
}

func TestApplyTransactionBalanced(t *testing.T) {
	l := mustLoad(t, openAccounts)

	next, err := l.ApplyTransaction(context.Background(), groceries("-10.00", "10.00"))
	assert.NoError(t, err)

	assert.Equal(t, "-10.00 USD", next.GetBalance("Assets:Bank", date("2024-02-01")).String())
	assert.Equal(t, "10.00 USD", next.GetBalance("Expenses:Food", date("2024-02-01")).String())
	assert.True(t, next.GetBalance("Assets:Bank", date("2024-01-31")).IsEmpty())

	// The receiver is a separate snapshot and did not change.
	assert.True(t, l.GetBalance("Assets:Bank", date("2024-02-01")).IsEmpty())
	assert.Equal(t, 0, len(l.Transactions()))
	assert.Equal(t, 1, len(next.Transactions()))
	assert.Equal(t, l.Version()+1, next.Version())
}

func TestApplyTransactionUnbalanced(t *testing.T) {
	l := mustLoad(t, openAccounts)

	next, err := l.ApplyTransaction(context.Background(), groceries("-10.00", "9.99"))
	assert.Error(t, err)
	assert.True(t, next == l)

	var notBalanced *TransactionNotBalancedError
	assert.True(t, errors.As(err, &notBalanced))
	assert.Equal(t, Balance, notBalanced.Kind())
	assert.Equal(t, map[string]string{"USD": "-0.01"}, notBalanced.Residuals)
	assert.Contains(t, err.Error(), "Transaction does not balance: (-0.01 USD)")

	assert.True(t, l.GetBalance("Assets:Bank", date("2024-02-01")).IsEmpty())
}

func TestApplyTransactionWithinTolerance(t *testing.T) {
	l := mustLoad(t, openAccounts)

	_, err := l.ApplyTransaction(context.Background(), groceries("-10.000", "9.996"))
	assert.NoError(t, err)

	strict := NewToleranceConfig()
	assert.NoError(t, strict.Set("USD", decimalOf("0.001")))
	l = mustLoad(t, openAccounts, WithTolerance(strict))

	_, err = l.ApplyTransaction(context.Background(), groceries("-10.000", "9.996"))
	var notBalanced *TransactionNotBalancedError
	assert.True(t, errors.As(err, &notBalanced))
}

func TestLifecycleInterval(t *testing.T) {
	l := mustLoad(t, openAccounts+`
2024-03-01 close Expenses:Food
`)

	tests := []struct {
		name    string
		date    string
		account ast.Account
		kind    any
	}{
		{name: "BeforeOpen", date: "2023-12-31", kind: &AccountNotOpenError{}},
		{name: "OnOpen", date: "2024-01-01"},
		{name: "DayBeforeClose", date: "2024-02-29"},
		{name: "OnClose", date: "2024-03-01", kind: &AccountClosedError{}},
		{name: "AfterClose", date: "2024-04-01", kind: &AccountClosedError{}},
		{name: "Unknown", date: "2024-02-01", account: "Expenses:Rent", kind: &AccountNotOpenError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := tt.account
			if account == "" {
				account = "Expenses:Food"
			}
			txn := ast.NewTransaction(date(tt.date), "Lunch",
				ast.WithPostings(
					ast.NewPosting("Assets:Bank", ast.WithAmount("-5.00", "USD")),
					ast.NewPosting(account, ast.WithAmount("5.00", "USD")),
				),
			)

			next, err := l.ApplyTransaction(context.Background(), txn)
			switch tt.kind.(type) {
			case nil:
				assert.NoError(t, err)
			case *AccountNotOpenError:
				var target *AccountNotOpenError
				assert.True(t, errors.As(err, &target), "got %v", err)
				assert.Equal(t, Lifecycle, target.Kind())
				assert.True(t, next == l)
			case *AccountClosedError:
				var target *AccountClosedError
				assert.True(t, errors.As(err, &target), "got %v", err)
				assert.Equal(t, "2024-03-01", target.ClosedDate.String())
				assert.True(t, next == l)
			}
		})
	}
}

func TestStructuralErrors(t *testing.T) {
	l := mustLoad(t, openAccounts)

	tests := []struct {
		name   string
		txn    *ast.Transaction
		reason string
	}{
		{
			name: "SinglePosting",
			txn: ast.NewTransaction(date("2024-02-01"), "",
				ast.WithPostings(ast.NewPosting("Assets:Bank", ast.WithAmount("1", "USD")))),
			reason: "at least two postings",
		},
		{
			name: "TwoElided",
			txn: ast.NewTransaction(date("2024-02-01"), "",
				ast.WithPostings(
					ast.NewPosting("Assets:Bank", ast.WithAmount("1", "USD")),
					ast.NewPosting("Expenses:Food"),
					ast.NewPosting("Assets:Bank"),
				)),
			reason: "at most one posting may omit its amount",
		},
		{
			name: "InvalidAccount",
			txn: ast.NewTransaction(date("2024-02-01"), "",
				ast.WithPostings(
					ast.NewPosting("Assets:Bank", ast.WithAmount("1", "USD")),
					ast.NewPosting("Food", ast.WithAmount("-1", "USD")),
				)),
			reason: `invalid account name "Food"`,
		},
		{
			name: "ElidedResolvesToZero",
			txn: ast.NewTransaction(date("2024-02-01"), "",
				ast.WithPostings(
					ast.NewPosting("Assets:Bank", ast.WithAmount("1", "USD")),
					ast.NewPosting("Assets:Bank", ast.WithAmount("-1", "USD")),
					ast.NewPosting("Expenses:Food"),
				)),
			reason: "resolves to zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.ApplyTransaction(context.Background(), tt.txn)
			var invalid *InvalidTransactionError
			assert.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, Structural, invalid.Kind())
			assert.Contains(t, invalid.Reason, tt.reason)
		})
	}
}

func TestElidedPostingSolvedPerCommodity(t *testing.T) {
	l := mustLoad(t, `
2024-01-01 open Assets:Bank
2024-01-01 open Assets:Cash
2024-01-01 open Equity:Opening

2024-01-02 * "Opening"
  Assets:Bank   100.00 USD
  Assets:Cash    50.00 EUR
  Equity:Opening
`)

	txns := l.Transactions()
	assert.Equal(t, 1, len(txns))
	postings := txns[0].Postings
	assert.Equal(t, 4, len(postings))
	assert.Equal(t, "-100.00 USD", postings[2].Units.String())
	assert.Equal(t, "-50.00 EUR", postings[3].Units.String())
	assert.True(t, postings[3].Solved)
	assert.Equal(t, "-100.00 USD", l.GetBalance("Equity:Opening", date("2024-01-02")).Amounts()[1].String())
}

func TestCommodityNotAllowed(t *testing.T) {
	l := mustLoad(t, `
2024-01-01 open Assets:Bank USD
2024-01-01 open Expenses:Food
`)

	txn := ast.NewTransaction(date("2024-02-01"), "",
		ast.WithPostings(
			ast.NewPosting("Assets:Bank", ast.WithAmount("-5", "EUR")),
			ast.NewPosting("Expenses:Food"),
		),
	)

	_, err := l.ApplyTransaction(context.Background(), txn)
	var notAllowed *CommodityNotAllowedError
	assert.True(t, errors.As(err, &notAllowed), "got %v", err)
	assert.Equal(t, Structural, notAllowed.Kind())
	assert.Equal(t, "EUR", notAllowed.Commodity)

	// The solved commodity of an elided posting is checked as well.
	txn = ast.NewTransaction(date("2024-02-01"), "",
		ast.WithPostings(
			ast.NewPosting("Expenses:Food", ast.WithAmount("5", "EUR")),
			ast.NewPosting("Assets:Bank"),
		),
	)
	_, err = l.ApplyTransaction(context.Background(), txn)
	assert.True(t, errors.As(err, &notAllowed), "got %v", err)
}

func TestWeightsBalanceAcrossCommodities(t *testing.T) {
	l := mustLoad(t, `
2024-01-01 open Assets:Bank
2024-01-01 open Assets:Brokerage

2024-01-10 * "Buy shares"
  Assets:Brokerage   10 HOOL {50.00 USD}
  Assets:Bank      -500.00 USD

2024-01-11 * "Exchange"
  Assets:Bank   -110.00 USD
  Assets:Bank    100.00 EUR @ 1.10 USD
`)

	assert.Equal(t, 2, len(l.Transactions()))
	assert.Equal(t, "10 HOOL", l.GetBalance("Assets:Brokerage", date("2024-01-31")).String())
	assert.Equal(t, "100.00 EUR, -610.00 USD", l.GetBalance("Assets:Bank", date("2024-01-31")).String())

	exchange := l.Transactions()[1]
	assert.Equal(t, "110.0000 USD", exchange.Postings[1].Weight.String())
	assert.Equal(t, "1.10 USD", exchange.Postings[1].Price.String())
}

func TestLoadCollectsErrors(t *testing.T) {
	directives := mustParse(t, openAccounts+`
2024-01-01 open Assets:Bank

2024-02-01 * "Fine"
  Assets:Bank    -10.00 USD
  Expenses:Food   10.00 USD

2024-02-02 * "Unbalanced"
  Assets:Bank    -10.00 USD
  Expenses:Food    9.00 USD

2024-02-03 * "Unknown account"
  Assets:Bank    -10.00 USD
  Expenses:Rent   10.00 USD
`)

	l, err := Load(context.Background(), directives)
	assert.Error(t, err)

	var verrs *ValidationErrors
	assert.True(t, errors.As(err, &verrs))
	assert.Equal(t, 3, len(verrs.Errors))

	var alreadyOpen *AccountAlreadyOpenError
	assert.True(t, errors.As(verrs.Errors[0], &alreadyOpen))
	assert.Contains(t, verrs.Errors[0].Error(), "test.beancount:5:")

	kinds := make([]ErrorKind, len(verrs.Errors))
	for i, e := range verrs.Errors {
		kinds[i] = e.(ValidationError).Kind()
	}
	assert.Equal(t, []ErrorKind{Lifecycle, Balance, Lifecycle}, kinds)

	// Invalid directives are left out; the rest is usable.
	assert.Equal(t, 1, len(l.Transactions()))
	assert.Equal(t, "-10.00 USD", l.GetBalance("Assets:Bank", date("2024-12-31")).String())
}

func TestSameDayOpenAfterTransaction(t *testing.T) {
	l := mustLoad(t, `
2024-01-01 * "Listed before the open"
  Assets:Bank    -1 USD
  Expenses:Food   1 USD

2024-01-01 open Assets:Bank
2024-01-01 open Expenses:Food
`)
	assert.Equal(t, 1, len(l.Transactions()))
}

func TestBalanceAssertions(t *testing.T) {
	source := openAccounts + `
2024-02-01 * "Lunch"
  Assets:Bank    -10.00 USD
  Expenses:Food   10.00 USD

2024-02-01 balance Assets:Bank    0.00 USD
2024-02-02 balance Assets:Bank  -10.00 USD
`
	l := mustLoad(t, source)
	assert.Equal(t, 5, len(l.Directives()))

	_, err := Load(context.Background(), mustParse(t, openAccounts+`
2024-02-01 * "Lunch"
  Assets:Bank    -10.00 USD
  Expenses:Food   10.00 USD

2024-02-02 balance Assets:Bank  -12.00 USD
`))
	var failed *BalanceAssertionError
	assert.True(t, errors.As(err, &failed), "got %v", err)
	assert.Equal(t, Balance, failed.Kind())
	assert.Equal(t, "-10.00 USD", failed.Actual.String())
	assert.Contains(t, err.Error(), "(2.00 USD too much)")
}

func TestBalanceAssertionIncludesSubAccounts(t *testing.T) {
	mustLoad(t, `
2024-01-01 open Assets:Bank
2024-01-01 open Assets:Bank:Checking
2024-01-01 open Assets:Bank:Savings
2024-01-01 open Equity:Opening

2024-01-02 * "Opening"
  Assets:Bank:Checking   100 USD
  Assets:Bank:Savings    200 USD
  Equity:Opening

2024-01-03 balance Assets:Bank  300 USD
`)
}

func TestPadInsertsPaddingTransaction(t *testing.T) {
	l := mustLoad(t, `
2024-01-01 open Assets:Bank
2024-01-01 open Equity:Opening-Balances
2024-01-01 open Expenses:Food

2024-01-01 pad Assets:Bank Equity:Opening-Balances

2024-01-05 * "Lunch"
  Assets:Bank    -10.00 USD
  Expenses:Food   10.00 USD

2024-01-10 balance Assets:Bank  90.00 USD
`)

	txns := l.Transactions()
	assert.Equal(t, 2, len(txns))

	padding := txns[0]
	assert.Equal(t, "P", padding.Directive.Flag)
	assert.Equal(t, "2024-01-01", padding.Date().String())
	assert.Equal(t, "(Padding inserted for Balance of 90.00 USD for difference 100.00 USD)", padding.Directive.Narration)
	assert.Equal(t, "-100.00 USD", l.GetBalance("Equity:Opening-Balances", date("2024-01-01")).String())
	assert.Equal(t, "90.00 USD", l.GetBalance("Assets:Bank", date("2024-01-10")).String())
}

func TestApplyTransactionRejectsBreakingLaterAssertion(t *testing.T) {
	l := mustLoad(t, openAccounts+`
2024-03-01 balance Assets:Bank  0.00 USD
`)

	_, err := l.ApplyTransaction(context.Background(), groceries("-10.00", "10.00"))
	var failed *BalanceAssertionError
	assert.True(t, errors.As(err, &failed), "got %v", err)
	assert.True(t, failed.Transaction != nil)
	assert.Equal(t, Balance, failed.Kind())

	// On or after the assertion date the assertion is unaffected.
	late := groceries("-10.00", "10.00")
	late.Date = date("2024-03-01")
	_, err = l.ApplyTransaction(context.Background(), late)
	assert.NoError(t, err)
}

func TestApplyTransactionRechecksParentAssertions(t *testing.T) {
	l := mustLoad(t, `
2024-01-01 open Assets:Bank
2024-01-01 open Assets:Bank:Checking
2024-01-01 open Expenses:Food

2024-03-01 balance Assets:Bank  0.00 USD
`)

	txn := ast.NewTransaction(date("2024-02-01"), "Groceries",
		ast.WithPostings(
			ast.NewPosting("Assets:Bank:Checking", ast.WithAmount("-10.00", "USD")),
			ast.NewPosting("Expenses:Food", ast.WithAmount("10.00", "USD")),
		),
	)
	_, err := l.ApplyTransaction(context.Background(), txn)
	var failed *BalanceAssertionError
	assert.True(t, errors.As(err, &failed), "got %v", err)
	assert.Equal(t, ast.Account("Assets:Bank"), failed.Assertion.Account)
	assert.Equal(t, "-10.00 USD", failed.Actual.String())
}

const paddedAccounts = openAccounts + `
2024-01-01 open Equity:Opening

2024-01-01 pad Assets:Bank Equity:Opening
2024-03-01 balance Assets:Bank  100.00 USD
`

func TestApplyTransactionRecomputesPadding(t *testing.T) {
	ctx := context.Background()
	l := mustLoad(t, paddedAccounts)

	txn := groceries("-10.00", "10.00")
	next, err := l.ApplyTransaction(ctx, txn)
	assert.NoError(t, err)

	end := date("2024-12-31")
	assert.Equal(t, "100.00 USD", next.GetBalance("Assets:Bank", end).String())
	assert.Equal(t, "-110.00 USD", next.GetBalance("Equity:Opening", end).String())

	txns := next.Transactions()
	assert.Equal(t, 2, len(txns))
	assert.Equal(t, "(Padding inserted for Balance of 100.00 USD for difference 110.00 USD)", txns[0].Directive.Narration)
	assert.Equal(t, "Groceries", txns[1].Directive.Narration)

	// The previous snapshot keeps its own padding.
	assert.Equal(t, 1, len(l.Transactions()))
	assert.Equal(t, "-100.00 USD", l.GetBalance("Equity:Opening", end).String())

	// Loading the ledger with the transaction appended gives the same result.
	reloaded := mustLoad(t, paddedAccounts+"\n"+formatter.FormatTransaction(txn))
	for _, account := range []ast.Account{"Assets:Bank", "Equity:Opening", "Expenses:Food"} {
		assert.Equal(t,
			reloaded.GetBalance(account, end).String(),
			next.GetBalance(account, end).String())
	}
	assert.Equal(t, reloaded.Transactions()[0].ID, txns[0].ID)
	assert.Equal(t, len(reloaded.Directives()), len(next.Directives()))
}

func TestApplyTransactionPaddingChecksSourceAssertions(t *testing.T) {
	l := mustLoad(t, paddedAccounts+`
2024-04-01 balance Equity:Opening  -100.00 USD
`)

	// The larger padding on 2024-01-01 would break the later assertion on the source.
	_, err := l.ApplyTransaction(context.Background(), groceries("-10.00", "10.00"))
	var failed *BalanceAssertionError
	assert.True(t, errors.As(err, &failed), "got %v", err)
	assert.Equal(t, ast.Account("Equity:Opening"), failed.Assertion.Account)
	assert.Equal(t, "-110.00 USD", failed.Actual.String())
}

func TestApplyTransactionInsertsChronologically(t *testing.T) {
	l := mustLoad(t, openAccounts+`
2024-03-01 * "Later"
  Assets:Bank    -5.00 USD
  Expenses:Food   5.00 USD
`)

	next, err := l.ApplyTransaction(context.Background(), groceries("-10.00", "10.00"))
	assert.NoError(t, err)

	txns := next.Transactions()
	assert.Equal(t, "Groceries", txns[0].Directive.Narration)
	assert.Equal(t, "Later", txns[1].Directive.Narration)

	history := next.BalanceHistory()
	var bank []string
	for _, change := range history {
		if change.Account == "Assets:Bank" {
			bank = append(bank, change.Date.String()+" "+ast.FormatNumber(change.Balance))
		}
	}
	assert.Equal(t, []string{"2024-02-01 -10.00", "2024-03-01 -15.00"}, bank)

	// The previous snapshot still sees the old running balance.
	assert.Equal(t, "-5.00 USD", l.GetBalance("Assets:Bank", date("2024-03-01")).String())
}

func TestSubmittedTransactionRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := mustLoad(t, openAccounts)

	txn := ast.NewTransaction(date("2024-02-01"), "Groceries",
		ast.WithPayee("Grocer \"Fresh\""),
		ast.WithTags("food"),
		ast.WithPostings(
			ast.NewPosting("Assets:Bank", ast.WithAmount("-10.00", "USD")),
			ast.NewPosting("Expenses:Food"),
		),
	)

	applied, err := l.ApplyTransaction(ctx, txn)
	assert.NoError(t, err)

	text := openAccounts + "\n" + formatter.FormatTransaction(txn)
	reloaded := mustLoad(t, text)

	for _, account := range []ast.Account{"Assets:Bank", "Expenses:Food"} {
		assert.Equal(t,
			applied.GetBalance(account, date("2024-12-31")).String(),
			reloaded.GetBalance(account, date("2024-12-31")).String())
	}

	id := applied.Transactions()[0].ID
	found, ok := reloaded.Transaction(id)
	assert.True(t, ok)
	assert.Equal(t, `Grocer "Fresh"`, found.Directive.Payee)
}

func TestTransactionIDs(t *testing.T) {
	l := mustLoad(t, openAccounts+`
2024-02-01 * "Lunch"
  Assets:Bank    -10.00 USD
  Expenses:Food   10.00 USD

2024-02-01 * "Lunch"
  Assets:Bank    -10.00 USD
  Expenses:Food   10.00 USD
`)

	txns := l.Transactions()
	assert.Equal(t, TransactionID(txns[0].Directive), txns[0].ID)
	assert.NotEqual(t, txns[0].ID, txns[1].ID)

	for _, txn := range txns {
		found, ok := l.Transaction(txn.ID)
		assert.True(t, ok)
		assert.True(t, found == txn)
	}
}

func TestBooked(t *testing.T) {
	l := mustLoad(t, openAccounts)

	first := groceries("-10.00", "10.00")
	second := groceries("-10.00", "10.00")
	next, err := l.ApplyTransaction(context.Background(), first)
	assert.NoError(t, err)
	next, err = next.ApplyTransaction(context.Background(), second)
	assert.NoError(t, err)

	booked, ok := next.Booked(second)
	assert.True(t, ok)
	assert.True(t, booked.Directive == second)
	assert.NotEqual(t, TransactionID(second), booked.ID)

	_, ok = l.Booked(first)
	assert.False(t, ok)
}

func TestAccountsSorted(t *testing.T) {
	l := mustLoad(t, `
2024-01-01 open Expenses:Food
2024-01-01 open Assets:Bank USD
`)

	accounts := l.Accounts()
	assert.Equal(t, 2, len(accounts))
	assert.Equal(t, ast.Account("Assets:Bank"), accounts[0].Name)
	assert.Equal(t, []string{"USD"}, accounts[0].Commodities)

	account, ok := l.Account("Expenses:Food")
	assert.True(t, ok)
	assert.Equal(t, AccountTypeExpenses, account.Type)
}

func TestPricesIndexed(t *testing.T) {
	l := mustLoad(t, `
2024-01-01 price EUR 1.10 USD
2024-02-01 price EUR 1.20 USD
`)

	assert.Equal(t, 2, len(l.Prices()))
	rate, ok := l.LookupPrice("EUR", "USD", date("2024-01-15"))
	assert.True(t, ok)
	assert.Equal(t, "1.1", rate.String())
}

func TestLoadUsesConfigFromContext(t *testing.T) {
	tolerance := NewToleranceConfig()
	assert.NoError(t, tolerance.Set("*", decimalOf("0.1")))
	ctx := (&Config{Tolerance: tolerance}).WithContext(context.Background())

	l, err := Load(ctx, mustParse(t, openAccounts))
	assert.NoError(t, err)

	_, err = l.ApplyTransaction(ctx, groceries("-10.00", "9.95"))
	assert.NoError(t, err)
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, mustParse(t, openAccounts))
	assert.IsError(t, err, context.Canceled)
}
