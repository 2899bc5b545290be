package ledger

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/parser"
	"github.com/shopspring/decimal"
)

func decimalOf(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// mustParse parses source and fails the test on any parse warning.
func mustParse(t *testing.T, source string) ast.Directives {
	t.Helper()
	directives, warnings := parser.Parse(context.Background(), "test.beancount", []byte(source))
	assert.Equal(t, 0, len(warnings), "unexpected parse warnings: %v", warnings)
	return directives
}

// mustLoad parses and loads source and fails the test on any error.
func mustLoad(t *testing.T, source string, opts ...Option) *Ledger {
	t.Helper()
	l, err := Load(context.Background(), mustParse(t, source), opts...)
	assert.NoError(t, err)
	return l
}
