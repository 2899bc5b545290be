package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
)

// ErrorKind classifies a validation failure.
type ErrorKind int

const (
	// Structural errors concern the shape of a directive: too few postings, more than
	// one elided posting, a commodity the account does not allow.
	Structural ErrorKind = iota + 1
	// Lifecycle errors concern accounts used outside their open interval.
	Lifecycle
	// Balance errors concern the double-entry law and balance assertions.
	Balance
)

func (k ErrorKind) String() string {
	switch k {
	case Structural:
		return "structural"
	case Lifecycle:
		return "lifecycle"
	case Balance:
		return "balance"
	default:
		return "unknown"
	}
}

// ValidationError is implemented by every error the ledger reports about a directive.
type ValidationError interface {
	error
	Kind() ErrorKind
	GetPosition() ast.Position
	GetDirective() ast.Directive
}

// ValidationErrors wraps multiple validation errors
type ValidationErrors struct {
	Errors []error
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d validation errors occurred", len(e.Errors))
}

// Unwrap returns the underlying errors for error unwrapping
func (e *ValidationErrors) Unwrap() []error {
	return e.Errors
}

// location renders "filename:line" or, for directives built in code, the date.
func location(pos ast.Position, date ast.Date) string {
	if pos.Filename == "" || pos.IsZero() {
		return date.String()
	}
	return fmt.Sprintf("%s:%d", pos.Filename, pos.Line)
}

// InvalidTransactionError is returned when a transaction is malformed: fewer than two
// postings, an invalid account name, more than one elided posting.
type InvalidTransactionError struct {
	Reason      string
	Transaction *ast.Transaction
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("%s: Invalid transaction: %s", location(e.Transaction.Pos, e.Transaction.Date), e.Reason)
}

func (e *InvalidTransactionError) Kind() ErrorKind { return Structural }

func (e *InvalidTransactionError) GetPosition() ast.Position {
	return e.Transaction.Pos
}

func (e *InvalidTransactionError) GetDirective() ast.Directive {
	return e.Transaction
}

// InvalidPriceError is returned for a price directive that cannot enter the price
// graph, such as a zero rate.
type InvalidPriceError struct {
	Reason string
	Price  *ast.Price
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("%s: Invalid price for %s: %s", location(e.Price.Pos, e.Price.Date), e.Price.Commodity, e.Reason)
}

func (e *InvalidPriceError) Kind() ErrorKind { return Structural }

func (e *InvalidPriceError) GetPosition() ast.Position {
	return e.Price.Pos
}

func (e *InvalidPriceError) GetDirective() ast.Directive {
	return e.Price
}

// AccountNotOpenError is returned when a directive references an account that has not
// been opened, or is dated before the account's open date.
type AccountNotOpenError struct {
	Account   ast.Account
	Date      ast.Date
	OpenDate  *ast.Date // set when the account exists but opens later
	Pos       ast.Position
	Directive ast.Directive
}

func (e *AccountNotOpenError) Error() string {
	if e.OpenDate != nil {
		return fmt.Sprintf("%s: Account %s is not open on %s (opened on %s)",
			location(e.Pos, e.Date), e.Account, e.Date, e.OpenDate)
	}
	return fmt.Sprintf("%s: Invalid reference to unknown account '%s'", location(e.Pos, e.Date), e.Account)
}

func (e *AccountNotOpenError) Kind() ErrorKind { return Lifecycle }

func (e *AccountNotOpenError) GetPosition() ast.Position {
	return e.Pos
}

func (e *AccountNotOpenError) GetDirective() ast.Directive {
	return e.Directive
}

// AccountClosedError is returned when a directive references an account on or after its
// close date, or closes an account twice.
type AccountClosedError struct {
	Account    ast.Account
	Date       ast.Date
	ClosedDate ast.Date
	Pos        ast.Position
	Directive  ast.Directive
}

func (e *AccountClosedError) Error() string {
	return fmt.Sprintf("%s: Account %s is closed (closed on %s)",
		location(e.Pos, e.Date), e.Account, e.ClosedDate)
}

func (e *AccountClosedError) Kind() ErrorKind { return Lifecycle }

func (e *AccountClosedError) GetPosition() ast.Position {
	return e.Pos
}

func (e *AccountClosedError) GetDirective() ast.Directive {
	return e.Directive
}

// AccountAlreadyOpenError is returned when an account is opened twice.
type AccountAlreadyOpenError struct {
	Account    ast.Account
	Date       ast.Date
	OpenedDate ast.Date
	Pos        ast.Position
	Directive  ast.Directive
}

func (e *AccountAlreadyOpenError) Error() string {
	return fmt.Sprintf("%s: Account %s is already open (opened on %s)",
		location(e.Pos, e.Date), e.Account, e.OpenedDate)
}

func (e *AccountAlreadyOpenError) Kind() ErrorKind { return Lifecycle }

func (e *AccountAlreadyOpenError) GetPosition() ast.Position {
	return e.Pos
}

func (e *AccountAlreadyOpenError) GetDirective() ast.Directive {
	return e.Directive
}

// CommodityNotAllowedError is returned when a posting uses a commodity its account's
// open directive does not list.
type CommodityNotAllowedError struct {
	Account     ast.Account
	Commodity   string
	Allowed     []string
	Transaction *ast.Transaction
}

func (e *CommodityNotAllowedError) Error() string {
	return fmt.Sprintf("%s: Commodity %s is not allowed in account %s (allowed: %s)",
		location(e.Transaction.Pos, e.Transaction.Date), e.Commodity, e.Account, strings.Join(e.Allowed, ", "))
}

func (e *CommodityNotAllowedError) Kind() ErrorKind { return Structural }

func (e *CommodityNotAllowedError) GetPosition() ast.Position {
	return e.Transaction.Pos
}

func (e *CommodityNotAllowedError) GetDirective() ast.Directive {
	return e.Transaction
}

// TransactionNotBalancedError is returned when a transaction doesn't balance
type TransactionNotBalancedError struct {
	Residuals   map[string]string // commodity -> residual amount
	Transaction *ast.Transaction
}

// Error returns a bean-check style error message with filename:line prefix.
func (e *TransactionNotBalancedError) Error() string {
	return fmt.Sprintf("%s: Transaction does not balance: %s",
		location(e.Transaction.Pos, e.Transaction.Date), e.formatResiduals())
}

// formatResiduals formats the residual amounts in a consistent order.
func (e *TransactionNotBalancedError) formatResiduals() string {
	commodities := make([]string, 0, len(e.Residuals))
	for commodity := range e.Residuals {
		commodities = append(commodities, commodity)
	}
	sort.Strings(commodities)

	var buf strings.Builder
	buf.WriteByte('(')
	for i, commodity := range commodities {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(e.Residuals[commodity])
		buf.WriteByte(' ')
		buf.WriteString(commodity)
	}
	buf.WriteByte(')')

	return buf.String()
}

func (e *TransactionNotBalancedError) Kind() ErrorKind { return Balance }

func (e *TransactionNotBalancedError) GetPosition() ast.Position {
	return e.Transaction.Pos
}

func (e *TransactionNotBalancedError) GetDirective() ast.Directive {
	return e.Transaction
}

// BalanceAssertionError is returned when a balance assertion fails, either when it is
// loaded or because a later transaction would change the balance it asserts.
type BalanceAssertionError struct {
	Assertion *ast.Balance
	Actual    ast.Amount

	// Transaction is set when a submitted transaction broke an assertion that held
	// before.
	Transaction *ast.Transaction
}

func (e *BalanceAssertionError) Error() string {
	diff := e.Actual.Number.Sub(e.Assertion.Amount.Number)
	direction := "too much"
	if diff.IsNegative() {
		direction = "too little"
	}
	msg := fmt.Sprintf("Balance failed for %s: expected %s, actual %s (%s %s)",
		e.Assertion.Account, e.Assertion.Amount, e.Actual, ast.NewAmount(diff.Abs(), e.Actual.Commodity), direction)
	if e.Transaction != nil {
		return fmt.Sprintf("%s: %s on %s", location(e.Transaction.Pos, e.Transaction.Date), msg, e.Assertion.Date)
	}
	return fmt.Sprintf("%s: %s", location(e.Assertion.Pos, e.Assertion.Date), msg)
}

func (e *BalanceAssertionError) Kind() ErrorKind { return Balance }

func (e *BalanceAssertionError) GetPosition() ast.Position {
	if e.Transaction != nil {
		return e.Transaction.Pos
	}
	return e.Assertion.Pos
}

func (e *BalanceAssertionError) GetDirective() ast.Directive {
	if e.Transaction != nil {
		return e.Transaction
	}
	return e.Assertion
}

var (
	_ ValidationError = (*InvalidTransactionError)(nil)
	_ ValidationError = (*InvalidPriceError)(nil)
	_ ValidationError = (*AccountNotOpenError)(nil)
	_ ValidationError = (*AccountClosedError)(nil)
	_ ValidationError = (*AccountAlreadyOpenError)(nil)
	_ ValidationError = (*CommodityNotAllowedError)(nil)
	_ ValidationError = (*TransactionNotBalancedError)(nil)
	_ ValidationError = (*BalanceAssertionError)(nil)
)
