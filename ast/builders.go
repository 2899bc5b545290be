package ast

import "github.com/shopspring/decimal"

// TransactionOption is a functional option for configuring a Transaction.
type TransactionOption func(*Transaction)

// NewTransaction creates a new Transaction with the given date and narration.
// The flag defaults to "*". Additional fields are set using functional options.
//
// Example:
//
//	txn := ast.NewTransaction(date, "Buy groceries",
//	    ast.WithPayee("Whole Foods"),
//	    ast.WithTags("food"),
//	    ast.WithPostings(
//	        ast.NewPosting("Expenses:Groceries", ast.WithAmount("45.60", "USD")),
//	        ast.NewPosting("Assets:Checking"),
//	    ),
//	)
func NewTransaction(date Date, narration string, opts ...TransactionOption) *Transaction {
	txn := &Transaction{
		Date:      date,
		Flag:      "*",
		Narration: narration,
	}
	for _, opt := range opts {
		opt(txn)
	}
	return txn
}

// WithFlag sets the transaction flag.
func WithFlag(flag string) TransactionOption {
	return func(t *Transaction) {
		t.Flag = flag
	}
}

// WithPayee sets the transaction payee.
func WithPayee(payee string) TransactionOption {
	return func(t *Transaction) {
		t.Payee = payee
	}
}

// WithTags appends tags. A leading # is stripped.
func WithTags(tags ...string) TransactionOption {
	return func(t *Transaction) {
		for _, tag := range tags {
			t.Tags = append(t.Tags, NewTag(tag))
		}
	}
}

// WithLinks appends links. A leading ^ is stripped.
func WithLinks(links ...string) TransactionOption {
	return func(t *Transaction) {
		for _, link := range links {
			t.Links = append(t.Links, NewLink(link))
		}
	}
}

// WithPostings appends postings.
func WithPostings(postings ...*Posting) TransactionOption {
	return func(t *Transaction) {
		t.Postings = append(t.Postings, postings...)
	}
}

// PostingOption is a functional option for configuring a Posting.
type PostingOption func(*Posting)

// NewPosting creates a posting to account. Without WithAmount the posting is elided.
func NewPosting(account Account, opts ...PostingOption) *Posting {
	p := &Posting{Account: account}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithAmount sets the posting amount. The number must be a valid decimal; it panics
// otherwise, so use it with literals only.
func WithAmount(number, commodity string) PostingOption {
	return func(p *Posting) {
		amount := NewAmount(decimal.RequireFromString(number), commodity)
		p.Amount = &amount
	}
}

// WithPrice sets a per-unit price annotation (@).
func WithPrice(number, commodity string) PostingOption {
	return func(p *Posting) {
		price := NewAmount(decimal.RequireFromString(number), commodity)
		p.Price = &price
		p.PriceTotal = false
	}
}

// WithTotalPrice sets a total price annotation (@@).
func WithTotalPrice(number, commodity string) PostingOption {
	return func(p *Posting) {
		price := NewAmount(decimal.RequireFromString(number), commodity)
		p.Price = &price
		p.PriceTotal = true
	}
}

// WithCost sets a per-unit cost basis ({...}).
func WithCost(number, commodity string) PostingOption {
	return func(p *Posting) {
		cost := NewAmount(decimal.RequireFromString(number), commodity)
		p.Cost = &cost
	}
}
