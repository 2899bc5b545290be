package query

import (
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/shopspring/decimal"
)

// fact is one scanned record. Which fields are set depends on the fact kind.
type fact struct {
	txn     *ledger.Transaction
	posting *ledger.Posting
	change  *ledger.BalanceChange
	price   *ast.Price
}

// column describes one column of a fact kind.
type column struct {
	name string
	typ  Type
	get  func(f *fact) Value
	// pinnedBy names the column that fixes the commodity of a number or amount column.
	// Summing bare numbers is only meaningful when the query pins that column.
	pinnedBy string
}

// source is a fact kind: a fixed schema and a scan over a ledger snapshot.
type source struct {
	name    string
	columns []*column
	scan    func(l *ledger.Ledger, yield func(*fact) bool)
}

func (s *source) column(name string) (int, *column) {
	for i, c := range s.columns {
		if strings.EqualFold(c.name, name) {
			return i, c
		}
	}
	return -1, nil
}

// columnNames lists the schema in declaration order.
func (s *source) columnNames() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	return names
}

var sources = map[string]*source{
	"transactions": transactionsSource,
	"postings":     postingsSource,
	"balances":     balancesSource,
	"prices":       pricesSource,
}

// Kinds lists the fact kinds a query can read from.
func Kinds() []string {
	return []string{"transactions", "postings", "balances", "prices"}
}

// Columns returns the column names of kind, or nil for an unknown kind.
func Columns(kind string) []string {
	if src, ok := sources[strings.ToLower(kind)]; ok {
		return src.columnNames()
	}
	return nil
}

// Columns shared by transactions and postings read the transaction.
var transactionColumns = []*column{
	{name: "id", typ: TypeString, get: func(f *fact) Value { return String(f.txn.ID) }},
	{name: "date", typ: TypeDate, get: func(f *fact) Value { return DateValue(f.txn.Date()) }},
	{name: "flag", typ: TypeString, get: func(f *fact) Value { return String(f.txn.Directive.Flag) }},
	{name: "payee", typ: TypeString, get: func(f *fact) Value { return OptionalString(f.txn.Directive.Payee) }},
	{name: "narration", typ: TypeString, get: func(f *fact) Value { return String(f.txn.Directive.Narration) }},
	{name: "tags", typ: TypeSet, get: func(f *fact) Value { return SetValue(tagNames(f.txn.Directive.Tags)) }},
	{name: "links", typ: TypeSet, get: func(f *fact) Value { return SetValue(linkNames(f.txn.Directive.Links)) }},
	{name: "filename", typ: TypeString, get: func(f *fact) Value { return OptionalString(f.txn.Directive.Pos.Filename) }},
}

var transactionsSource = &source{
	name: "transactions",
	columns: append(append([]*column{}, transactionColumns...),
		&column{name: "lineno", typ: TypeNumber, get: func(f *fact) Value { return lineNumber(f.txn.Directive.Pos) }},
	),
	scan: func(l *ledger.Ledger, yield func(*fact) bool) {
		for _, txn := range l.Transactions() {
			if !yield(&fact{txn: txn}) {
				return
			}
		}
	},
}

var postingsSource = &source{
	name: "postings",
	columns: append(append([]*column{}, transactionColumns...),
		&column{name: "lineno", typ: TypeNumber, get: func(f *fact) Value {
			if f.posting.Source != nil && f.posting.Source.Pos.Line > 0 {
				return lineNumber(f.posting.Source.Pos)
			}
			return lineNumber(f.txn.Directive.Pos)
		}},
		&column{name: "account", typ: TypeString, get: func(f *fact) Value { return String(string(f.posting.Account)) }},
		&column{name: "amount", typ: TypeAmount, pinnedBy: "commodity", get: func(f *fact) Value { return AmountValue(f.posting.Units) }},
		&column{name: "number", typ: TypeNumber, pinnedBy: "commodity", get: func(f *fact) Value { return Number(f.posting.Units.Number) }},
		&column{name: "commodity", typ: TypeString, get: func(f *fact) Value { return String(f.posting.Units.Commodity) }},
		&column{name: "cost", typ: TypeAmount, get: func(f *fact) Value { return optionalAmount(f.posting.Cost) }},
		&column{name: "price", typ: TypeAmount, get: func(f *fact) Value { return optionalAmount(f.posting.Price) }},
		&column{name: "weight", typ: TypeAmount, get: func(f *fact) Value { return AmountValue(f.posting.Weight) }},
	),
	scan: func(l *ledger.Ledger, yield func(*fact) bool) {
		for _, txn := range l.Transactions() {
			for i := range txn.Postings {
				if !yield(&fact{txn: txn, posting: &txn.Postings[i]}) {
					return
				}
			}
		}
	},
}

var balancesSource = &source{
	name: "balances",
	columns: []*column{
		{name: "account", typ: TypeString, get: func(f *fact) Value { return String(string(f.change.Account)) }},
		{name: "date", typ: TypeDate, get: func(f *fact) Value { return DateValue(f.change.Date) }},
		{name: "commodity", typ: TypeString, get: func(f *fact) Value { return String(f.change.Commodity) }},
		{name: "amount", typ: TypeAmount, pinnedBy: "commodity", get: func(f *fact) Value {
			return AmountValue(ast.NewAmount(f.change.Balance, f.change.Commodity))
		}},
		{name: "number", typ: TypeNumber, pinnedBy: "commodity", get: func(f *fact) Value { return Number(f.change.Balance) }},
		{name: "change", typ: TypeAmount, pinnedBy: "commodity", get: func(f *fact) Value {
			return AmountValue(ast.NewAmount(f.change.Delta, f.change.Commodity))
		}},
	},
	scan: func(l *ledger.Ledger, yield func(*fact) bool) {
		history := l.BalanceHistory()
		for i := range history {
			if !yield(&fact{change: &history[i]}) {
				return
			}
		}
	},
}

var pricesSource = &source{
	name: "prices",
	columns: []*column{
		{name: "date", typ: TypeDate, get: func(f *fact) Value { return DateValue(f.price.Date) }},
		{name: "commodity", typ: TypeString, get: func(f *fact) Value { return String(f.price.Commodity) }},
		{name: "currency", typ: TypeString, get: func(f *fact) Value { return String(f.price.Amount.Commodity) }},
		{name: "amount", typ: TypeAmount, pinnedBy: "currency", get: func(f *fact) Value { return AmountValue(f.price.Amount) }},
		{name: "number", typ: TypeNumber, pinnedBy: "currency", get: func(f *fact) Value { return Number(f.price.Amount.Number) }},
	},
	scan: func(l *ledger.Ledger, yield func(*fact) bool) {
		for _, price := range l.Prices() {
			if !yield(&fact{price: price}) {
				return
			}
		}
	},
}

func tagNames(tags []ast.Tag) []string {
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = string(tag)
	}
	return names
}

func linkNames(links []ast.Link) []string {
	names := make([]string, len(links))
	for i, link := range links {
		names[i] = string(link)
	}
	return names
}

func lineNumber(pos ast.Position) Value {
	if pos.Line == 0 {
		return Null
	}
	return Number(decimal.NewFromInt(int64(pos.Line)))
}

func optionalAmount(a *ast.Amount) Value {
	if a == nil {
		return Null
	}
	return AmountValue(*a)
}
