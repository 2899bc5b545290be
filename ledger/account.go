package ledger

import (
	"github.com/robinvdvleuten/beancount-mcp/ast"
)

// AccountType represents the type of account
type AccountType int

const (
	AccountTypeUnknown AccountType = iota
	AccountTypeAssets
	AccountTypeLiabilities
	AccountTypeEquity
	AccountTypeIncome
	AccountTypeExpenses
)

// String returns the string representation of the account type
func (t AccountType) String() string {
	switch t {
	case AccountTypeAssets:
		return "Assets"
	case AccountTypeLiabilities:
		return "Liabilities"
	case AccountTypeEquity:
		return "Equity"
	case AccountTypeIncome:
		return "Income"
	case AccountTypeExpenses:
		return "Expenses"
	default:
		return "Unknown"
	}
}

// ParseAccountType parses the account type from the account name
func ParseAccountType(account ast.Account) AccountType {
	switch account.Root() {
	case "Assets":
		return AccountTypeAssets
	case "Liabilities":
		return AccountTypeLiabilities
	case "Equity":
		return AccountTypeEquity
	case "Income":
		return AccountTypeIncome
	case "Expenses":
		return AccountTypeExpenses
	default:
		return AccountTypeUnknown
	}
}

// AccountState is the lifecycle state of an account at a given date.
type AccountState int

const (
	Unopened AccountState = iota
	Open
	Closed
)

func (s AccountState) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unopened"
	}
}

// Account is an entry of the account registry. Accounts are created by Open directives
// and never change afterwards except for receiving a close date.
type Account struct {
	Name        ast.Account
	Type        AccountType
	OpenDate    ast.Date
	CloseDate   *ast.Date
	Commodities []string // allowed commodities, empty means any
	Open        *ast.Open
}

// State returns the lifecycle state of the account on date. An account accepts
// postings in the half-open interval [OpenDate, CloseDate).
func (a *Account) State(date ast.Date) AccountState {
	if date.Before(a.OpenDate.Time) {
		return Unopened
	}
	if a.CloseDate != nil && !date.Before(a.CloseDate.Time) {
		return Closed
	}
	return Open
}

// IsOpen returns true if the account accepts postings on date.
func (a *Account) IsOpen(date ast.Date) bool {
	return a.State(date) == Open
}

// IsClosed returns true if the account has been closed
func (a *Account) IsClosed() bool {
	return a.CloseDate != nil
}

// Allows reports whether the account may hold commodity.
func (a *Account) Allows(commodity string) bool {
	if len(a.Commodities) == 0 {
		return true
	}
	for _, allowed := range a.Commodities {
		if allowed == commodity {
			return true
		}
	}
	return false
}
