package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/audit"
	"github.com/robinvdvleuten/beancount-mcp/journal"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/loader"
	"github.com/robinvdvleuten/beancount-mcp/query"
)

const ledgerText = `2024-01-01 open Assets:Bank USD
2024-01-01 open Expenses:Food USD

2024-01-10 * "Grocer" "Weekly shop"
  Expenses:Food   5.00 USD
  Assets:Bank    -5.00 USD
`

func writeLedger(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.beancount")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	return string(data)
}

func newService(t *testing.T, content string, opts ...Option) *Service {
	t.Helper()
	s, err := New(context.Background(), writeLedger(t, content), opts...)
	assert.NoError(t, err)
	return s
}

func groceries(amount string) *TransactionDraft {
	return &TransactionDraft{
		Date:      "2024-02-01",
		Payee:     "Grocer",
		Narration: "Groceries",
		Postings: []PostingDraft{
			{Account: "Expenses:Food", Amount: amount, Commodity: "USD"},
			{Account: "Assets:Bank"},
		},
	}
}

func balance(s *Service, account string) string {
	return s.Snapshot().GetBalance(ast.Account(account), ast.MustParseDate("2024-12-31")).String()
}

// fakeJournal fails every append with err, or pretends to append when err is nil.
type fakeJournal struct {
	path string
	err  error
}

func (j *fakeJournal) Append(_ context.Context, text string) (journal.Entry, error) {
	if j.err != nil {
		return journal.Entry{}, j.err
	}
	return journal.Entry{Size: int64(len(text))}, nil
}

func (j *fakeJournal) Path() string { return j.path }

type fakeRecorder struct {
	mu   sync.Mutex
	subs []audit.Submission
	err  error
}

func (r *fakeRecorder) Record(_ context.Context, sub audit.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
	return r.err
}

func TestSubmitTransaction(t *testing.T) {
	s := newService(t, ledgerText)
	ctx := context.Background()
	assert.Equal(t, uint64(1), s.Version())

	result, err := s.SubmitTransaction(ctx, groceries("10.00"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), result.Version)
	assert.Equal(t, uint64(2), s.Version())
	assert.NotZero(t, result.ConfirmationID)

	assert.Equal(t, ledgerText+"\n"+result.Text, readFile(t, s.Filename()))
	assert.Equal(t, "-15.00 USD", balance(s, "Assets:Bank"))
	assert.Equal(t, "15.00 USD", balance(s, "Expenses:Food"))

	txn, ok := s.Transaction(result.TransactionID)
	assert.True(t, ok)
	assert.Equal(t, s.Filename(), txn.Directive.Pos.Filename)
	assert.Equal(t, 8, txn.Directive.Pos.Line)
}

func TestSubmittedTransactionSurvivesReload(t *testing.T) {
	s := newService(t, ledgerText)
	ctx := context.Background()

	first, err := s.SubmitTransaction(ctx, groceries("10.00"))
	assert.NoError(t, err)
	second, err := s.SubmitText(ctx, `2024-02-02 * "Market"
  Expenses:Food   2.50 USD
  Assets:Bank
`)
	assert.NoError(t, err)

	loaded, err := loader.New().Load(ctx, s.Filename())
	assert.NoError(t, err)
	for _, account := range []string{"Assets:Bank", "Expenses:Food"} {
		date := ast.MustParseDate("2024-12-31")
		assert.Equal(t, s.Snapshot().GetBalance(ast.Account(account), date).String(),
			loaded.Ledger.GetBalance(ast.Account(account), date).String())
	}

	for _, result := range []*Result{first, second} {
		inMemory, ok := s.Transaction(result.TransactionID)
		assert.True(t, ok)
		onDisk, ok := loaded.Ledger.Transaction(result.TransactionID)
		assert.True(t, ok)
		assert.Equal(t, inMemory.Directive.Pos.Line, onDisk.Directive.Pos.Line)
	}

	assert.NoError(t, s.Reload(ctx))
	assert.Equal(t, 3, len(s.Snapshot().Transactions()))
	assert.Equal(t, uint64(4), s.Version())
}

func TestRejectedSubmissionLeavesLedgerUntouched(t *testing.T) {
	tests := []struct {
		name  string
		draft *TransactionDraft
		kind  string
		want  string
	}{
		{
			name: "Unbalanced",
			draft: &TransactionDraft{Date: "2024-02-01", Narration: "Groceries", Postings: []PostingDraft{
				{Account: "Expenses:Food", Amount: "10.00", Commodity: "USD"},
				{Account: "Assets:Bank", Amount: "-9.99", Commodity: "USD"},
			}},
			kind: "balance",
			want: "does not balance",
		},
		{
			name: "UnknownAccount",
			draft: &TransactionDraft{Date: "2024-02-01", Narration: "Groceries", Postings: []PostingDraft{
				{Account: "Expenses:Rent", Amount: "10.00", Commodity: "USD"},
				{Account: "Assets:Bank"},
			}},
			kind: "lifecycle",
			want: "Expenses:Rent",
		},
		{
			name: "BeforeOpen",
			draft: &TransactionDraft{Date: "2023-12-31", Narration: "Groceries", Postings: []PostingDraft{
				{Account: "Expenses:Food", Amount: "10.00", Commodity: "USD"},
				{Account: "Assets:Bank"},
			}},
			kind: "lifecycle",
			want: "not open",
		},
		{
			name: "SinglePosting",
			draft: &TransactionDraft{Date: "2024-02-01", Narration: "Groceries", Postings: []PostingDraft{
				{Account: "Expenses:Food", Amount: "10.00", Commodity: "USD"},
			}},
			kind: "structural",
			want: "at least two postings",
		},
		{
			name: "CommodityNotAllowed",
			draft: &TransactionDraft{Date: "2024-02-01", Narration: "Groceries", Postings: []PostingDraft{
				{Account: "Expenses:Food", Amount: "10.00", Commodity: "EUR"},
				{Account: "Assets:Bank"},
			}},
			kind: "structural",
			want: "EUR",
		},
		{
			name:  "BadDate",
			draft: &TransactionDraft{Date: "2024-13-01", Narration: "Groceries"},
			kind:  "structural",
			want:  "date",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := newService(t, ledgerText)

			_, err := s.SubmitTransaction(context.Background(), test.draft)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), test.want)
			assert.Equal(t, test.kind, ErrorKind(err))

			assert.Equal(t, ledgerText, readFile(t, s.Filename()))
			assert.Equal(t, uint64(1), s.Version())
			assert.Equal(t, "-5.00 USD", balance(s, "Assets:Bank"))
		})
	}
}

func TestConcurrentConflictingSubmissions(t *testing.T) {
	// Each submission alone keeps the assertion within tolerance; both together break it.
	s := newService(t, ledgerText+`
2024-03-01 balance Assets:Bank -5.00 USD
`)

	draft := &TransactionDraft{Date: "2024-02-01", Narration: "Rounding", Postings: []PostingDraft{
		{Account: "Expenses:Food", Amount: "0.004", Commodity: "USD"},
		{Account: "Assets:Bank", Amount: "-0.004", Commodity: "USD"},
	}}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.SubmitTransaction(context.Background(), draft)
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			var assertion *ledger.BalanceAssertionError
			assert.True(t, errors.As(err, &assertion))
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, uint64(2), s.Version())
	assert.Equal(t, "-5.004 USD", balance(s, "Assets:Bank"))
}

func TestAppendFailureRolledBack(t *testing.T) {
	j := &fakeJournal{err: &journal.StorageError{Op: "write", Path: "main.beancount", Err: errors.New("disk full"), RolledBack: true}}
	s := newService(t, ledgerText, WithJournal(j))

	_, err := s.SubmitTransaction(context.Background(), groceries("10.00"))
	assert.Error(t, err)
	assert.Equal(t, "storage", ErrorKind(err))
	assert.False(t, s.Halted())
	assert.Equal(t, uint64(1), s.Version())
	assert.Equal(t, "-5.00 USD", balance(s, "Assets:Bank"))

	j.err = nil
	_, err = s.SubmitTransaction(context.Background(), groceries("10.00"))
	assert.NoError(t, err)
}

func TestAppendFailureHaltsWrites(t *testing.T) {
	j := &fakeJournal{err: &journal.StorageError{Op: "sync", Path: "main.beancount", Err: errors.New("io error")}}
	s := newService(t, ledgerText, WithJournal(j))
	ctx := context.Background()

	_, err := s.SubmitTransaction(ctx, groceries("10.00"))
	assert.IsError(t, err, ErrWritesHalted)
	assert.True(t, s.Halted())
	assert.Equal(t, "-5.00 USD", balance(s, "Assets:Bank"))

	j.err = nil
	_, err = s.SubmitTransaction(ctx, groceries("10.00"))
	assert.IsError(t, err, ErrWritesHalted)
	assert.Equal(t, "halted", ErrorKind(err))

	// Queries keep working while writes are halted.
	_, err = s.RunQuery(ctx, "SELECT count(*) FROM transactions")
	assert.NoError(t, err)

	assert.NoError(t, s.Reload(ctx))
	assert.False(t, s.Halted())
	_, err = s.SubmitTransaction(ctx, groceries("10.00"))
	assert.NoError(t, err)
}

func TestSubmitCanceled(t *testing.T) {
	s := newService(t, ledgerText)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SubmitTransaction(ctx, groceries("10.00"))
	assert.IsError(t, err, context.Canceled)
	assert.Equal(t, "canceled", ErrorKind(err))
	assert.Equal(t, ledgerText, readFile(t, s.Filename()))
}

func TestSubmitRecordsAudit(t *testing.T) {
	at := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	recorder := &fakeRecorder{}
	s := newService(t, ledgerText, WithRecorder(recorder), WithClock(func() time.Time { return at }))

	result, err := s.SubmitTransaction(context.Background(), groceries("10.00"))
	assert.NoError(t, err)

	assert.Equal(t, 1, len(recorder.subs))
	sub := recorder.subs[0]
	assert.Equal(t, result.ConfirmationID, sub.ConfirmationID)
	assert.Equal(t, result.TransactionID, sub.TransactionID)
	assert.Equal(t, "2024-02-01", sub.Date)
	assert.Equal(t, "Groceries", sub.Narration)
	assert.Equal(t, int64(len(ledgerText)+1), sub.Offset)
	assert.Equal(t, at, sub.SubmittedAt)
}

func TestAuditFailureDoesNotFailSubmission(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("database is locked")}
	s := newService(t, ledgerText, WithRecorder(recorder))

	_, err := s.SubmitTransaction(context.Background(), groceries("10.00"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), s.Version())
}

func TestRunQuery(t *testing.T) {
	s := newService(t, ledgerText)
	ctx := context.Background()

	_, err := s.SubmitTransaction(ctx, groceries("10.00"))
	assert.NoError(t, err)

	result, err := s.RunQuery(ctx, "SELECT account, sum(amount) FROM postings WHERE account = 'Expenses:Food' GROUP BY account")
	assert.NoError(t, err)
	assert.Equal(t, [][]string{{"Expenses:Food", "15.00 USD"}}, result.Strings())
	assert.False(t, result.Truncated)
	assert.Equal(t, uint64(2), result.Version)

	_, err = s.RunQuery(ctx, "SELECT nope FROM postings")
	var compileErr *query.CompileError
	assert.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "query", ErrorKind(err))
}

func TestRunQueryRowLimit(t *testing.T) {
	s := newService(t, ledgerText, WithRowLimit(1))

	result, err := s.RunQuery(context.Background(), "SELECT account FROM postings")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(result.Rows))
	assert.True(t, result.Truncated)
}

func TestSubmitText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"TwoTransactions", "2024-02-01 * \"A\"\n  Expenses:Food 1.00 USD\n  Assets:Bank\n\n2024-02-02 * \"B\"\n  Expenses:Food 1.00 USD\n  Assets:Bank\n", "exactly one transaction"},
		{"NotATransaction", "2024-02-01 open Assets:Cash\n", "expected a transaction"},
		{"Malformed", "2024-02-01 * \"A\" 10\n", "line 1"},
		{"Empty", "", "got 0 directives"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := newService(t, ledgerText)

			_, err := s.SubmitText(context.Background(), test.text)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), test.want)
			assert.Equal(t, "structural", ErrorKind(err))
			assert.Equal(t, ledgerText, readFile(t, s.Filename()))
		})
	}
}

func TestNewReportsProblems(t *testing.T) {
	s := newService(t, ledgerText+`
2024-02-01 * "Broken"
  Expenses:Food   1.00 USD
  Assets:Bank    -2.00 USD
`)

	var verrs *ledger.ValidationErrors
	assert.True(t, errors.As(s.Problems(), &verrs))
	assert.Equal(t, 1, len(s.Snapshot().Transactions()))
}

func TestNewMissingFile(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "missing.beancount"))
	assert.Error(t, err)
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	s := newService(t, ledgerText)
	ctx := context.Background()

	f, err := os.OpenFile(s.Filename(), os.O_APPEND|os.O_WRONLY, 0)
	assert.NoError(t, err)
	_, err = f.WriteString("\n2024-01-20 * \"Edited\"\n  Expenses:Food   1.00 USD\n  Assets:Bank\n")
	assert.NoError(t, err)
	assert.NoError(t, f.Close())

	assert.NoError(t, s.Reload(ctx))
	assert.Equal(t, 2, len(s.Snapshot().Transactions()))
	assert.Equal(t, uint64(2), s.Version())
	assert.Equal(t, "-6.00 USD", balance(s, "Assets:Bank"))
}

func TestFiles(t *testing.T) {
	s := newService(t, ledgerText)
	assert.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(s.Filename()), "prices.bean"), nil, 0o644))

	files, err := s.Files()
	assert.NoError(t, err)
	assert.Equal(t, []string{"main.beancount", "prices.bean"}, files)
}
