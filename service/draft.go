package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/parser"
)

// TransactionDraft is a transaction as submitted by a client. Numbers are decimal
// strings so no precision is lost in transit.
type TransactionDraft struct {
	Date      string         `json:"date" jsonschema:"transaction date as YYYY-MM-DD"`
	Flag      string         `json:"flag,omitempty" jsonschema:"* for cleared (default) or ! for pending"`
	Payee     string         `json:"payee,omitempty"`
	Narration string         `json:"narration"`
	Tags      []string       `json:"tags,omitempty" jsonschema:"tags without the leading #"`
	Links     []string       `json:"links,omitempty" jsonschema:"links without the leading ^"`
	Postings  []PostingDraft `json:"postings" jsonschema:"at least two postings; at most one may omit its amount"`
}

// PostingDraft is one leg of a TransactionDraft.
type PostingDraft struct {
	Account   string       `json:"account" jsonschema:"full account name such as Expenses:Food"`
	Amount    string       `json:"amount,omitempty" jsonschema:"decimal number such as -12.50; omit to let the ledger solve it"`
	Commodity string       `json:"commodity,omitempty" jsonschema:"commodity of amount such as USD"`
	Cost      *AmountDraft `json:"cost,omitempty" jsonschema:"per-unit cost basis"`
	Price     *PriceDraft  `json:"price,omitempty"`
}

// AmountDraft is a decimal string paired with a commodity.
type AmountDraft struct {
	Number    string `json:"number"`
	Commodity string `json:"commodity"`
}

// PriceDraft is a per-unit price, or the total price when Total is set.
type PriceDraft struct {
	AmountDraft
	Total bool `json:"total,omitempty"`
}

// DraftError reports a draft that cannot be turned into a transaction.
type DraftError struct {
	Field  string
	Reason string
}

func (e *DraftError) Error() string {
	return fmt.Sprintf("invalid transaction: %s: %s", e.Field, e.Reason)
}

// Kind classifies draft errors with the ledger's structural errors.
func (e *DraftError) Kind() ledger.ErrorKind { return ledger.Structural }

// Transaction converts the draft into a transaction directive. It checks that fields
// are well-formed; whether the transaction balances is up to the ledger.
func (d *TransactionDraft) Transaction() (*ast.Transaction, error) {
	date, err := ast.ParseDate(strings.TrimSpace(d.Date))
	if err != nil {
		return nil, &DraftError{Field: "date", Reason: err.Error()}
	}

	txn := ast.NewTransaction(date, d.Narration,
		ast.WithPayee(d.Payee),
		ast.WithTags(d.Tags...),
		ast.WithLinks(d.Links...),
	)
	switch d.Flag {
	case "":
	case "*", "!":
		txn.Flag = d.Flag
	default:
		return nil, &DraftError{Field: "flag", Reason: fmt.Sprintf("unknown flag %q, expected * or !", d.Flag)}
	}

	for i, p := range d.Postings {
		posting, err := p.posting()
		if err != nil {
			err.Field = fmt.Sprintf("postings[%d].%s", i, err.Field)
			return nil, err
		}
		txn.Postings = append(txn.Postings, posting)
	}
	return txn, nil
}

func (p *PostingDraft) posting() (*ast.Posting, *DraftError) {
	account, err := ast.ParseAccount(strings.TrimSpace(p.Account))
	if err != nil {
		return nil, &DraftError{Field: "account", Reason: err.Error()}
	}
	posting := ast.NewPosting(account)

	switch {
	case p.Amount == "" && p.Commodity == "":
		if p.Cost != nil || p.Price != nil {
			return nil, &DraftError{Field: "amount", Reason: "a posting with a cost or price needs an amount"}
		}
		return posting, nil
	case p.Amount == "":
		return nil, &DraftError{Field: "amount", Reason: fmt.Sprintf("commodity %s has no amount", p.Commodity)}
	case p.Commodity == "":
		return nil, &DraftError{Field: "commodity", Reason: fmt.Sprintf("amount %s is missing a commodity", p.Amount)}
	}

	amount, derr := parseAmount(AmountDraft{Number: p.Amount, Commodity: p.Commodity})
	if derr != nil {
		derr.Field = "amount"
		return nil, derr
	}
	posting.Amount = amount

	if p.Cost != nil {
		if posting.Cost, derr = parseAmount(*p.Cost); derr != nil {
			derr.Field = "cost"
			return nil, derr
		}
	}
	if p.Price != nil {
		if posting.Price, derr = parseAmount(p.Price.AmountDraft); derr != nil {
			derr.Field = "price"
			return nil, derr
		}
		posting.PriceTotal = p.Price.Total
	}
	return posting, nil
}

func parseAmount(a AmountDraft) (*ast.Amount, *DraftError) {
	number, err := decimal.NewFromString(strings.TrimSpace(a.Number))
	if err != nil {
		return nil, &DraftError{Reason: fmt.Sprintf("invalid number %q", a.Number)}
	}
	commodity := strings.TrimSpace(a.Commodity)
	if !ast.ValidCommodity(commodity) {
		return nil, &DraftError{Reason: fmt.Sprintf("invalid commodity %q", a.Commodity)}
	}
	amount := ast.NewAmount(number, commodity)
	return &amount, nil
}

// ParseTransaction parses text holding exactly one transaction and nothing else.
func ParseTransaction(ctx context.Context, text string) (*ast.Transaction, error) {
	directives, warnings := parser.ParseString(ctx, text)
	if len(warnings) > 0 {
		return nil, &DraftError{Field: "text", Reason: warnings[0].Error()}
	}
	if len(directives) != 1 {
		return nil, &DraftError{Field: "text", Reason: fmt.Sprintf("expected exactly one transaction, got %d directives", len(directives))}
	}
	txn, ok := directives[0].(*ast.Transaction)
	if !ok {
		return nil, &DraftError{Field: "text", Reason: fmt.Sprintf("expected a transaction, got a %s directive", directives[0].Kind())}
	}
	txn.Pos = ast.Position{}
	for _, posting := range txn.Postings {
		posting.Pos = ast.Position{}
	}
	return txn, nil
}
