package ast

// Transaction records a financial transaction with a date, flag, optional payee,
// narration, and a list of postings. The flag indicates transaction status: '*' for
// cleared transactions, '!' for pending ones, or 'P' for padding transactions generated
// by the ledger. A transaction needs at least two postings whose weights sum to zero
// per commodity.
//
// Example:
//
//	2014-05-05 * "Cafe Mogador" "Lamb tagine with wine"
//	  Liabilities:CreditCard:CapitalOne         -37.45 USD
//	  Expenses:Food:Restaurant
type Transaction struct {
	Pos       Position
	Date      Date
	Flag      string
	Payee     string
	Narration string
	Tags      []Tag
	Links     []Link

	withMetadata

	Postings []*Posting
}

var _ Directive = &Transaction{}

func (t *Transaction) Kind() Kind         { return KindTransaction }
func (t *Transaction) Position() Position { return t.Pos }
func (t *Transaction) date() Date         { return t.Date }

// Accounts returns the distinct accounts the transaction posts to, in posting order.
func (t *Transaction) Accounts() []Account {
	seen := make(map[Account]bool, len(t.Postings))
	accounts := make([]Account, 0, len(t.Postings))
	for _, p := range t.Postings {
		if !seen[p.Account] {
			seen[p.Account] = true
			accounts = append(accounts, p.Account)
		}
	}
	return accounts
}

// Posting represents a single leg of a transaction. The amount may be omitted (nil) on at
// most one posting, in which case the ledger solves for it. Cost is a per-unit cost basis
// ({518.73 USD}); Price is a per-unit price (@) or, when PriceTotal is set, a total price
// (@@). Either converts the posting's weight into the cost or price commodity.
//
// Example postings within transactions:
//
//	Assets:Investments:Brokerage    10 HOOL {518.73 USD}
//	Assets:Investments:Cash        200 EUR @ 1.35 USD
//	Expenses:Groceries              45.60 USD
//	Assets:Checking
type Posting struct {
	Pos        Position
	Flag       string
	Account    Account
	Amount     *Amount
	Cost       *Amount
	Price      *Amount
	PriceTotal bool

	withMetadata
}

// Elided reports whether the posting omits its amount.
func (p *Posting) Elided() bool {
	return p.Amount == nil
}
