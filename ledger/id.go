package ledger

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/formatter"
)

// transactionNamespace scopes the name-based UUIDs of transactions.
var transactionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://beancount.github.io/transaction"))

// TransactionID returns the deterministic ID of txn: a version 5 UUID over its
// canonical text, so the same transaction gets the same ID whether it was loaded from
// disk or just submitted.
func TransactionID(txn *ast.Transaction) string {
	return uuid.NewSHA1(transactionNamespace, []byte(formatter.FormatTransaction(txn))).String()
}

// uniqueID returns the ID of txn, disambiguating identical transactions by the order
// they were booked in.
func (l *Ledger) uniqueID(txn *ast.Transaction) string {
	id := TransactionID(txn)
	for n := 2; ; n++ {
		if _, taken := l.byID[id]; !taken {
			return id
		}
		text := formatter.FormatTransaction(txn) + "#" + strconv.Itoa(n)
		id = uuid.NewSHA1(transactionNamespace, []byte(text)).String()
	}
}
