package query

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseStatement(t *testing.T) {
	stmt, err := Parse("SELECT DISTINCT account AS acct, count(*) FROM postings WHERE amount > 0 GROUP BY 1 ORDER BY acct DESC, 2 LIMIT 5")
	assert.NoError(t, err)

	assert.True(t, stmt.Distinct)
	assert.Equal(t, 2, len(stmt.Items))
	assert.Equal(t, "acct", stmt.Items[0].Name())
	assert.Equal(t, "count(*)", stmt.Items[1].Name())
	assert.Equal(t, "postings", stmt.From.Kind)
	assert.Equal(t, "(amount > 0)", stmt.Where.String())
	assert.Equal(t, 1, len(stmt.GroupBy))
	assert.Equal(t, 2, len(stmt.OrderBy))
	assert.True(t, stmt.OrderBy[0].Desc)
	assert.False(t, stmt.OrderBy[1].Desc)
	assert.Equal(t, 5, stmt.Limit.Count)
}

func TestParseExpressionPrecedence(t *testing.T) {
	tests := []struct {
		where string
		want  string
	}{
		{where: "NOT a = 1 OR b AND c", want: "(NOT (a = 1) OR (b AND c))"},
		{where: "a = 1 + 2 * 3", want: "(a = (1 + (2 * 3)))"},
		{where: "a = (1 + 2) * 3", want: "(a = ((1 + 2) * 3))"},
		{where: "a = -5", want: "(a = -5)"},
		{where: "a = -number", want: "(a = -number)"},
		{where: "'food' NOT IN tags", want: "NOT ('food' IN tags)"},
		{where: "payee IS NOT NULL", want: "payee IS NOT NULL"},
		{where: "account ~ 'Food$'", want: "(account ~ 'Food$')"},
		{where: "convert(amount, 'USD', 2024-01-01) <> amount", want: "(convert(amount, 'USD', 2024-01-01) != amount)"},
	}

	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			stmt, err := Parse("SELECT * FROM postings WHERE " + tt.where)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, stmt.Where.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		query  string
		offset int
		msg    string
	}{
		{query: "account FROM postings", offset: 0, msg: "expected SELECT"},
		{query: "SELECT account FROM", offset: 19, msg: "expected fact kind but got end of query"},
		{query: "SELECT account postings", offset: 15, msg: "expected FROM"},
		{query: "SELECT account FROM postings LIMIT", offset: 34, msg: "expected row count"},
		{query: "SELECT account FROM postings LIMIT 1.5", offset: 35, msg: "LIMIT needs a non-negative integer"},
		{query: "SELECT (account FROM postings", offset: 16, msg: "expected )"},
		{query: "SELECT account FROM postings extra", offset: 29, msg: "unexpected identifier"},
		{query: "SELECT 'open FROM postings", offset: 7, msg: "invalid text"},
		{query: "SELECT account FROM postings WHERE payee IS 1", offset: 44, msg: "expected NULL"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, err := Parse(tt.query)
			var compileErr *CompileError
			assert.True(t, errors.As(err, &compileErr), "got %v", err)
			assert.Equal(t, tt.offset, compileErr.Offset)
			assert.Contains(t, compileErr.Message, tt.msg)
		})
	}
}

func TestCompileErrorExcerpt(t *testing.T) {
	err := &CompileError{Query: "SELECT foo\nFROM postings", Offset: 7, Message: "unknown column"}
	assert.Equal(t, "SELECT foo\n       ^", err.Excerpt())
	assert.Equal(t, "query error at offset 7: unknown column", err.Error())
}
