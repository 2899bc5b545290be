package ast

// Open declares the opening of an account at a specific date, marking the beginning
// of its lifetime in the ledger. Optionally constrains the commodities the account may
// hold. Postings are accepted from the open date onwards.
//
// Example:
//
//	2014-05-01 open Assets:US:BofA:Checking USD
//	2014-05-01 open Assets:Investments:Brokerage USD,EUR "FIFO"
type Open struct {
	Pos           Position
	Date          Date
	Account       Account
	Commodities   []string
	BookingMethod string

	withMetadata
}

var _ Directive = &Open{}

func (o *Open) Kind() Kind         { return KindOpen }
func (o *Open) Position() Position { return o.Pos }
func (o *Open) date() Date         { return o.Date }

// Close declares the end of an account's lifetime. Postings dated on or after the close
// date are rejected.
//
// Example:
//
//	2015-09-23 close Assets:US:BofA:Checking
type Close struct {
	Pos     Position
	Date    Date
	Account Account

	withMetadata
}

var _ Directive = &Close{}

func (c *Close) Kind() Kind         { return KindClose }
func (c *Close) Position() Position { return c.Pos }
func (c *Close) date() Date         { return c.Date }

// Balance asserts that an account holds a specific amount of a commodity at the
// beginning of a given date.
//
// Example:
//
//	2014-08-09 balance Assets:US:BofA:Checking 562.00 USD
type Balance struct {
	Pos     Position
	Date    Date
	Account Account
	Amount  Amount

	withMetadata
}

var _ Directive = &Balance{}

func (b *Balance) Kind() Kind         { return KindBalance }
func (b *Balance) Position() Position { return b.Pos }
func (b *Balance) date() Date         { return b.Date }

// Price records the value of one unit of a commodity in another commodity on a date.
//
// Example:
//
//	2014-07-09 price HOOL 579.18 USD
type Price struct {
	Pos       Position
	Date      Date
	Commodity string
	Amount    Amount

	withMetadata
}

var _ Directive = &Price{}

func (p *Price) Kind() Kind         { return KindPrice }
func (p *Price) Position() Position { return p.Pos }
func (p *Price) date() Date         { return p.Date }

// Pad inserts a transaction from Source so that the next balance assertion on Account
// holds.
//
// Example:
//
//	2014-01-01 pad Assets:US:BofA:Checking Equity:Opening-Balances
type Pad struct {
	Pos     Position
	Date    Date
	Account Account
	Source  Account

	withMetadata
}

var _ Directive = &Pad{}

func (p *Pad) Kind() Kind         { return KindPad }
func (p *Pad) Position() Position { return p.Pos }
func (p *Pad) date() Date         { return p.Date }

// Note attaches a dated comment to an account.
//
// Example:
//
//	2014-07-09 note Assets:US:BofA:Checking "Called about fraudulent card"
type Note struct {
	Pos         Position
	Date        Date
	Account     Account
	Description string

	withMetadata
}

var _ Directive = &Note{}

func (n *Note) Kind() Kind         { return KindNote }
func (n *Note) Position() Position { return n.Pos }
func (n *Note) date() Date         { return n.Date }

// Document links an external file to an account.
//
// Example:
//
//	2014-07-09 document Assets:US:BofA:Checking "/statements/2014-07.pdf"
type Document struct {
	Pos            Position
	Date           Date
	Account        Account
	PathToDocument string

	withMetadata
}

var _ Directive = &Document{}

func (d *Document) Kind() Kind         { return KindDocument }
func (d *Document) Position() Position { return d.Pos }
func (d *Document) date() Date         { return d.Date }

// Custom is a user-defined directive. Values are kept as written in the source.
//
// Example:
//
//	2014-07-09 custom "budget" Expenses:Food "monthly" 500.00 USD
type Custom struct {
	Pos    Position
	Date   Date
	Type   string
	Values []string

	withMetadata
}

var _ Directive = &Custom{}

func (c *Custom) Kind() Kind         { return KindCustom }
func (c *Custom) Position() Position { return c.Pos }
func (c *Custom) date() Date         { return c.Date }
