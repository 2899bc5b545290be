// Package ast declares the types used to represent the directives of a Beancount ledger.
//
// The set of directives is closed: every concrete directive lives in this package and
// implements Directive through an unexported method, so no other package can add a kind.
// Consumers switch over the concrete types (or Kind) and treat anything else as a
// programming error.
package ast

import (
	"golang.org/x/exp/slices"
)

// Kind identifies the variant of a Directive.
type Kind uint8

const (
	KindOpen Kind = iota + 1
	KindClose
	KindTransaction
	KindBalance
	KindPrice
	KindPad
	KindNote
	KindDocument
	KindCustom
)

var kindNames = map[Kind]string{
	KindOpen:        "open",
	KindClose:       "close",
	KindTransaction: "transaction",
	KindBalance:     "balance",
	KindPrice:       "price",
	KindPad:         "pad",
	KindNote:        "note",
	KindDocument:    "document",
	KindCustom:      "custom",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Directive is the interface implemented by all ledger directives.
type Directive interface {
	Kind() Kind
	Position() Position

	date() Date
}

// DateOf returns the date a directive is effective at.
func DateOf(d Directive) Date {
	return d.date()
}

// Directives is an ordered sequence of directives.
type Directives []Directive

// Sort orders directives chronologically. Directives sharing a date keep their
// relative order.
func (d Directives) Sort() {
	slices.SortStableFunc(d, func(a, b Directive) int {
		return a.date().Compare(b.date())
	})
}

// Transactions returns the transactions in d, in order.
func (d Directives) Transactions() []*Transaction {
	var txns []*Transaction
	for _, directive := range d {
		if txn, ok := directive.(*Transaction); ok {
			txns = append(txns, txn)
		}
	}
	return txns
}

// Metadata is a key-value pair attached to a directive or posting. The value is kept
// as written in the source (quotes included) so it can be printed back unchanged.
type Metadata struct {
	Key   string
	Value string
}

type withMetadata struct {
	Metadata []*Metadata
}

// AddMetadata appends metadata entries.
func (w *withMetadata) AddMetadata(m ...*Metadata) {
	w.Metadata = append(w.Metadata, m...)
}
