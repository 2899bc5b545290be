package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/journal"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/parser"
	"github.com/robinvdvleuten/beancount-mcp/query"
)

func closedAccountError() *ledger.AccountNotOpenError {
	closing := &ast.Close{
		Pos:     ast.Position{Filename: "ledger.bean", Line: 12},
		Date:    ast.MustParseDate("2024-01-10"),
		Account: "Assets:Cash",
	}
	return &ledger.AccountNotOpenError{
		Account:   closing.Account,
		Date:      closing.Date,
		Pos:       closing.Pos,
		Directive: closing,
	}
}

func TestTextFormatter_Format_WithDirectiveContext(t *testing.T) {
	tf := NewTextFormatter(nil)

	output := tf.Format(closedAccountError())
	expected := "ledger.bean:12: Invalid reference to unknown account 'Assets:Cash'\n\n" +
		"   2024-01-10 close Assets:Cash\n"

	assert.Equal(t, expected, output)
}

func TestTextFormatter_Format_WithSourceContext(t *testing.T) {
	warning := &parser.ParseWarning{
		Pos:     ast.Position{Filename: "main.bean", Line: 2, Column: 4},
		Message: "unexpected token",
	}

	t.Run("WithSource", func(t *testing.T) {
		tf := NewTextFormatter(nil, WithSource([]byte("a\nbb bad\nc\nd\n")))

		expected := "main.bean:2: unexpected token\n\n" +
			"   a\n" +
			"   bb bad\n" +
			"      ^\n" +
			"   c\n"
		assert.Equal(t, expected, tf.Format(warning))
	})

	t.Run("WithoutSource", func(t *testing.T) {
		tf := NewTextFormatter(nil)
		assert.Equal(t, "main.bean:2: unexpected token", tf.Format(warning))
	})
}

func TestTextFormatter_Format_CompileError(t *testing.T) {
	tf := NewTextFormatter(nil)

	err := fmt.Errorf("run query: %w", &query.CompileError{Query: "SELECT foo\nFROM postings", Offset: 7, Message: "unknown column"})

	expected := "query error at offset 7: unknown column\n\n" +
		"   SELECT foo\n" +
		"          ^\n"
	assert.Equal(t, expected, tf.Format(err))
}

func TestTextFormatter_Format_Plain(t *testing.T) {
	tf := NewTextFormatter(nil)
	assert.Equal(t, "boom", tf.Format(stderrors.New("boom")))
}

func TestTextFormatter_FormatAll(t *testing.T) {
	tf := NewTextFormatter(nil)

	assert.Equal(t, "", tf.FormatAll(nil))

	output := tf.FormatAll([]error{stderrors.New("first"), closedAccountError()})
	expected := "first\n\n" +
		"ledger.bean:12: Invalid reference to unknown account 'Assets:Cash'\n\n" +
		"   2024-01-10 close Assets:Cash"
	assert.Equal(t, expected, output)
}

func TestFlatten(t *testing.T) {
	a, b, c := stderrors.New("a"), stderrors.New("b"), stderrors.New("c")

	assert.Equal(t, 0, len(Flatten(nil)))
	assert.Equal(t, []error{a}, Flatten(a))
	assert.Equal(t, []error{a, b, c}, Flatten(stderrors.Join(a, stderrors.Join(b, c))))
	assert.Equal(t, []error{a, b}, Flatten(&ledger.ValidationErrors{Errors: []error{a, b}}))
}

func TestJSONFormatter(t *testing.T) {
	jf := NewJSONFormatter()

	t.Run("ValidationError", func(t *testing.T) {
		var output ErrorJSON
		assert.NoError(t, json.Unmarshal([]byte(jf.Format(closedAccountError())), &output))

		assert.Equal(t, "*ledger.AccountNotOpenError", output.Type)
		assert.Equal(t, "lifecycle", output.Kind)
		assert.Equal(t, &PositionJSON{Filename: "ledger.bean", Line: 12}, output.Position)
		assert.Equal(t, map[string]any{"account": "Assets:Cash", "date": "2024-01-10"}, output.Details)
	})

	t.Run("StorageError", func(t *testing.T) {
		err := &journal.StorageError{Op: "sync", Path: "main.bean", Err: stderrors.New("disk full"), RolledBack: true}

		output := jf.FormatAllToSlice([]error{err})
		assert.Equal(t, 1, len(output))
		assert.Equal(t, "storage", output[0].Kind)
		assert.Zero(t, output[0].Position)
		assert.Equal(t, map[string]any{"op": "sync", "rolled_back": true}, output[0].Details)
	})

	t.Run("PlainError", func(t *testing.T) {
		output := jf.Format(stderrors.New("boom"))
		assert.Equal(t, `{"type":"*errors.errorString","kind":"internal","message":"boom"}`, output)
	})
}
