// Package formatter serializes directives back into Beancount text.
//
// The output is canonical: the same directive always renders to the same text, and
// parsing that text yields an equal directive. Submitted transactions are appended to
// the ledger file in this form, and transaction IDs are derived from it.
package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/robinvdvleuten/beancount-mcp/ast"
)

const (
	// DefaultCurrencyColumn is the default column position for currency alignment
	// (matches bean-format behavior)
	DefaultCurrencyColumn = 52

	// DefaultIndentation is the default indentation for postings and metadata
	DefaultIndentation = 2

	// MinimumSpacing is the minimum number of spaces between account/number and currency
	MinimumSpacing = 2

	// DateWidth is the width of a formatted date (YYYY-MM-DD)
	DateWidth = 10

	// BalanceKeywordWidth is the width of the "balance" keyword (7 chars) + space
	BalanceKeywordWidth = 8

	// PriceKeywordWidth is the width of the "price" keyword (5 chars) + space
	PriceKeywordWidth = 6
)

// Formatter handles formatting of directives with proper alignment.
type Formatter struct {
	// CurrencyColumn is the column numbers are right-aligned to; the commodity follows
	// after a single space. If 0, it is calculated from the directives being formatted.
	CurrencyColumn int
}

// Option is a functional option for configuring a Formatter.
type Option func(*Formatter)

// WithCurrencyColumn sets a specific column for currency alignment.
func WithCurrencyColumn(col int) Option {
	return func(f *Formatter) {
		f.CurrencyColumn = col
	}
}

// New creates a new Formatter with the given options.
func New(opts ...Option) *Formatter {
	f := &Formatter{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FormatTransaction renders a single transaction with amounts aligned among its own
// postings. The result ends with a newline.
func FormatTransaction(txn *ast.Transaction) string {
	f := New()
	var buf strings.Builder
	f.formatTransaction(txn, f.column(ast.Directives{txn}), &buf)
	return buf.String()
}

// FormatDirective renders a single directive.
func (f *Formatter) FormatDirective(d ast.Directive) string {
	var buf strings.Builder
	f.formatDirective(d, f.column(ast.Directives{d}), &buf)
	return buf.String()
}

// Format writes directives separated by blank lines, with currencies aligned on one
// column across all of them.
func (f *Formatter) Format(directives ast.Directives, w io.Writer) error {
	column := f.column(directives)

	var buf strings.Builder
	buf.Grow(len(directives) * 100)

	for i, d := range directives {
		if i > 0 {
			buf.WriteByte('\n')
		}
		f.formatDirective(d, column, &buf)
	}

	_, err := io.WriteString(w, buf.String())
	return err
}

// column returns the configured currency column or the smallest one that leaves
// MinimumSpacing before every number in directives.
func (f *Formatter) column(directives ast.Directives) int {
	if f.CurrencyColumn > 0 {
		return f.CurrencyColumn
	}

	width := 0
	for _, directive := range directives {
		switch d := directive.(type) {
		case *ast.Transaction:
			for _, posting := range d.Postings {
				if posting.Amount == nil {
					continue
				}
				prefix := DefaultIndentation + runewidth.StringWidth(string(posting.Account))
				if posting.Flag != "" {
					prefix += 2
				}
				width = max(width, prefix+MinimumSpacing+len(ast.FormatNumber(posting.Amount.Number)))
			}
		case *ast.Balance:
			prefix := DateWidth + 1 + BalanceKeywordWidth + runewidth.StringWidth(string(d.Account))
			width = max(width, prefix+MinimumSpacing+len(ast.FormatNumber(d.Amount.Number)))
		case *ast.Price:
			prefix := DateWidth + 1 + PriceKeywordWidth + runewidth.StringWidth(d.Commodity)
			width = max(width, prefix+MinimumSpacing+len(ast.FormatNumber(d.Amount.Number)))
		}
	}

	if width == 0 {
		return DefaultCurrencyColumn
	}
	return width
}

// formatDirective formats a directive based on its type.
func (f *Formatter) formatDirective(d ast.Directive, column int, buf *strings.Builder) {
	switch directive := d.(type) {
	case *ast.Open:
		f.formatOpen(directive, buf)
	case *ast.Close:
		f.formatClose(directive, buf)
	case *ast.Transaction:
		f.formatTransaction(directive, column, buf)
	case *ast.Balance:
		f.formatBalance(directive, column, buf)
	case *ast.Price:
		f.formatPrice(directive, column, buf)
	case *ast.Pad:
		f.formatPad(directive, buf)
	case *ast.Note:
		f.formatNote(directive, buf)
	case *ast.Document:
		f.formatDocument(directive, buf)
	case *ast.Custom:
		f.formatCustom(directive, buf)
	default:
		panic(fmt.Sprintf("formatter: unhandled directive %T", d))
	}
}

func writeHeader(date ast.Date, keyword string, buf *strings.Builder) {
	buf.WriteString(date.String())
	buf.WriteByte(' ')
	buf.WriteString(keyword)
}

// formatOpen formats an open directive.
func (f *Formatter) formatOpen(o *ast.Open, buf *strings.Builder) {
	writeHeader(o.Date, "open ", buf)
	buf.WriteString(string(o.Account))

	if len(o.Commodities) > 0 {
		buf.WriteByte(' ')
		buf.WriteString(strings.Join(o.Commodities, ","))
	}

	if o.BookingMethod != "" {
		buf.WriteByte(' ')
		writeQuoted(o.BookingMethod, buf)
	}

	buf.WriteByte('\n')
	f.formatMetadata(o.Metadata, DefaultIndentation, buf)
}

// formatClose formats a close directive.
func (f *Formatter) formatClose(c *ast.Close, buf *strings.Builder) {
	writeHeader(c.Date, "close ", buf)
	buf.WriteString(string(c.Account))
	buf.WriteByte('\n')
	f.formatMetadata(c.Metadata, DefaultIndentation, buf)
}

// formatBalance formats a balance directive.
func (f *Formatter) formatBalance(b *ast.Balance, column int, buf *strings.Builder) {
	start := buf.Len()
	writeHeader(b.Date, "balance ", buf)
	buf.WriteString(string(b.Account))
	f.formatAmountAligned(b.Amount, column, lineWidth(buf, start), buf)
	buf.WriteByte('\n')
	f.formatMetadata(b.Metadata, DefaultIndentation, buf)
}

// formatPrice formats a price directive.
func (f *Formatter) formatPrice(p *ast.Price, column int, buf *strings.Builder) {
	start := buf.Len()
	writeHeader(p.Date, "price ", buf)
	buf.WriteString(p.Commodity)
	f.formatAmountAligned(p.Amount, column, lineWidth(buf, start), buf)
	buf.WriteByte('\n')
	f.formatMetadata(p.Metadata, DefaultIndentation, buf)
}

// formatPad formats a pad directive.
func (f *Formatter) formatPad(p *ast.Pad, buf *strings.Builder) {
	writeHeader(p.Date, "pad ", buf)
	buf.WriteString(string(p.Account))
	buf.WriteByte(' ')
	buf.WriteString(string(p.Source))
	buf.WriteByte('\n')
	f.formatMetadata(p.Metadata, DefaultIndentation, buf)
}

// formatNote formats a note directive.
func (f *Formatter) formatNote(n *ast.Note, buf *strings.Builder) {
	writeHeader(n.Date, "note ", buf)
	buf.WriteString(string(n.Account))
	buf.WriteByte(' ')
	writeQuoted(n.Description, buf)
	buf.WriteByte('\n')
	f.formatMetadata(n.Metadata, DefaultIndentation, buf)
}

// formatDocument formats a document directive.
func (f *Formatter) formatDocument(d *ast.Document, buf *strings.Builder) {
	writeHeader(d.Date, "document ", buf)
	buf.WriteString(string(d.Account))
	buf.WriteByte(' ')
	writeQuoted(d.PathToDocument, buf)
	buf.WriteByte('\n')
	f.formatMetadata(d.Metadata, DefaultIndentation, buf)
}

// formatCustom formats a custom directive. Values are written as they were parsed.
func (f *Formatter) formatCustom(c *ast.Custom, buf *strings.Builder) {
	writeHeader(c.Date, "custom ", buf)
	writeQuoted(c.Type, buf)
	for _, value := range c.Values {
		buf.WriteByte(' ')
		buf.WriteString(value)
	}
	buf.WriteByte('\n')
	f.formatMetadata(c.Metadata, DefaultIndentation, buf)
}

// formatTransaction formats a transaction directive.
// Format: date flag ["payee"] "narration" [^links] [#tags]
func (f *Formatter) formatTransaction(t *ast.Transaction, column int, buf *strings.Builder) {
	buf.WriteString(t.Date.String())
	buf.WriteByte(' ')
	buf.WriteString(t.Flag)

	if t.Payee != "" {
		buf.WriteByte(' ')
		writeQuoted(t.Payee, buf)
	}

	// The narration is written even when empty so a payee is never read back as one.
	if t.Narration != "" || t.Payee != "" {
		buf.WriteByte(' ')
		writeQuoted(t.Narration, buf)
	}

	for _, link := range t.Links {
		buf.WriteString(" ^")
		buf.WriteString(string(link))
	}

	for _, tag := range t.Tags {
		buf.WriteString(" #")
		buf.WriteString(string(tag))
	}

	buf.WriteByte('\n')
	f.formatMetadata(t.Metadata, DefaultIndentation, buf)

	for _, posting := range t.Postings {
		f.formatPosting(posting, column, buf)
	}
}

// formatPosting formats a single posting with proper alignment.
// Handles both postings with explicit amounts and elided amounts (nil).
func (f *Formatter) formatPosting(p *ast.Posting, column int, buf *strings.Builder) {
	start := buf.Len()
	buf.WriteString(strings.Repeat(" ", DefaultIndentation))

	if p.Flag != "" {
		buf.WriteString(p.Flag)
		buf.WriteByte(' ')
	}

	buf.WriteString(string(p.Account))

	if p.Amount != nil {
		f.formatAmountAligned(*p.Amount, column, lineWidth(buf, start), buf)

		if p.Cost != nil {
			buf.WriteString(" {")
			buf.WriteString(p.Cost.String())
			buf.WriteByte('}')
		}

		if p.Price != nil {
			if p.PriceTotal {
				buf.WriteString(" @@ ")
			} else {
				buf.WriteString(" @ ")
			}
			buf.WriteString(p.Price.String())
		}
	}

	buf.WriteByte('\n')
	f.formatMetadata(p.Metadata, DefaultIndentation*2, buf)
}

// formatAmountAligned writes amount so its number ends at column, keeping at least
// MinimumSpacing spaces after the current content.
func (f *Formatter) formatAmountAligned(amount ast.Amount, column, currentWidth int, buf *strings.Builder) {
	number := ast.FormatNumber(amount.Number)

	padding := column - currentWidth - len(number)
	if padding < MinimumSpacing {
		padding = MinimumSpacing
	}

	buf.WriteString(strings.Repeat(" ", padding))
	buf.WriteString(number)
	buf.WriteByte(' ')
	buf.WriteString(amount.Commodity)
}

// formatMetadata formats metadata entries. Values are written as they were parsed.
func (f *Formatter) formatMetadata(metadata []*ast.Metadata, indent int, buf *strings.Builder) {
	for _, m := range metadata {
		buf.WriteString(strings.Repeat(" ", indent))
		buf.WriteString(m.Key)
		buf.WriteByte(':')
		if m.Value != "" {
			buf.WriteByte(' ')
			buf.WriteString(m.Value)
		}
		buf.WriteByte('\n')
	}
}

// lineWidth returns the display width of what was written to buf since start.
func lineWidth(buf *strings.Builder, start int) int {
	return runewidth.StringWidth(buf.String()[start:])
}
