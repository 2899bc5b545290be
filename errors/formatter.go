// Package errors provides error formatting for ledger, query and submission errors.
// It separates error formatting from domain logic, allowing errors to be rendered in
// multiple formats (text, JSON) for different consumers (CLI, HTTP API).
//
// The package defines a Formatter interface and provides two implementations:
//   - TextFormatter: Formats errors for command-line output in bean-check style
//   - JSONFormatter: Formats errors as structured JSON for APIs
//
// Domain-specific error types remain in their respective packages (e.g., ledger),
// while this package handles the presentation layer.
package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/formatter"
	"github.com/robinvdvleuten/beancount-mcp/journal"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/query"
	"github.com/robinvdvleuten/beancount-mcp/service"
)

// Formatter formats errors for output in different formats.
type Formatter interface {
	// Format formats a single error.
	Format(err error) string

	// FormatAll formats multiple errors.
	FormatAll(errs []error) string
}

// Flatten splits joined errors, such as *ledger.ValidationErrors, into their parts.
// A nil error yields nil.
func Flatten(err error) []error {
	if err == nil {
		return nil
	}
	var multi interface{ Unwrap() []error }
	if stderrors.As(err, &multi) {
		var errs []error
		for _, e := range multi.Unwrap() {
			errs = append(errs, Flatten(e)...)
		}
		return errs
	}
	return []error{err}
}

// positioned is implemented by parse warnings and validation errors.
type positioned interface {
	GetPosition() ast.Position
	GetDirective() ast.Directive
	Error() string
}

// TextFormatter formats errors for command-line output in bean-check style.
type TextFormatter struct {
	formatter     *formatter.Formatter
	sourceContent []byte // Optional source content for parse error context
}

// TextFormatterOption is an option for configuring TextFormatter.
type TextFormatterOption func(*TextFormatter)

// WithSource sets the source content for parse error context.
func WithSource(source []byte) TextFormatterOption {
	return func(tf *TextFormatter) {
		tf.sourceContent = source
	}
}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter(f *formatter.Formatter, opts ...TextFormatterOption) *TextFormatter {
	if f == nil {
		f = formatter.New()
	}
	tf := &TextFormatter{formatter: f}
	for _, opt := range opts {
		opt(tf)
	}
	return tf
}

// Format formats a single error in bean-check style.
func (tf *TextFormatter) Format(err error) string {
	var compileErr *query.CompileError
	if stderrors.As(err, &compileErr) {
		return compileErr.Error() + "\n\n" + indent(compileErr.Excerpt())
	}

	var e positioned
	if stderrors.As(err, &e) {
		if d := e.GetDirective(); d != nil {
			return tf.formatWithContext(e.Error(), d)
		}
		if tf.sourceContent != nil && e.GetPosition().Line > 0 {
			return tf.formatWithSourceContext(e.GetPosition(), e.Error(), tf.sourceContent)
		}
	}

	return err.Error()
}

// FormatAll formats multiple errors, separating them with blank lines.
func (tf *TextFormatter) FormatAll(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	var buf bytes.Buffer
	for i, err := range errs {
		buf.WriteString(strings.TrimRight(tf.Format(err), "\n"))

		// Add blank line between errors (but not after the last one)
		if i < len(errs)-1 {
			buf.WriteString("\n\n")
		}
	}

	return buf.String()
}

// formatWithSourceContext formats a parse error with original source context.
// Shows the error message followed by the original source lines around the error position.
func (tf *TextFormatter) formatWithSourceContext(pos ast.Position, message string, sourceContent []byte) string {
	var buf bytes.Buffer

	buf.WriteString(message)
	buf.WriteString("\n\n")

	sourceLines := strings.Split(string(sourceContent), "\n")

	// Two lines before the error line and one after, 0-based.
	startLine := max(pos.Line-3, 0)
	endLine := min(pos.Line, len(sourceLines)-1)

	for i := startLine; i <= endLine; i++ {
		buf.WriteString("   ")
		buf.WriteString(sourceLines[i])
		buf.WriteByte('\n')

		if i == pos.Line-1 && pos.Column > 0 {
			buf.WriteString("   ")
			buf.WriteString(strings.Repeat(" ", pos.Column-1))
			buf.WriteString("^\n")
		}
	}

	return buf.String()
}

// formatWithContext formats an error followed by the offending directive.
func (tf *TextFormatter) formatWithContext(message string, directive ast.Directive) string {
	var buf bytes.Buffer

	buf.WriteString(message)
	buf.WriteString("\n\n")
	buf.WriteString(indent(tf.formatter.FormatDirective(directive)))

	return buf.String()
}

// indent prefixes every non-empty line with three spaces.
func indent(text string) string {
	var buf strings.Builder
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line != "" {
			buf.WriteString("   ")
			buf.WriteString(line)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// JSONFormatter formats errors as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// ErrorJSON represents an error in JSON format.
type ErrorJSON struct {
	Type     string         `json:"type"`
	Kind     string         `json:"kind"`
	Message  string         `json:"message"`
	Position *PositionJSON  `json:"position,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// PositionJSON represents a file position in JSON format.
type PositionJSON struct {
	Filename string `json:"filename"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// Format formats a single error as JSON.
func (jf *JSONFormatter) Format(err error) string {
	data, _ := json.Marshal(jf.toJSON(err))
	return string(data)
}

// FormatAll formats multiple errors as a JSON array.
func (jf *JSONFormatter) FormatAll(errs []error) string {
	data, _ := json.MarshalIndent(jf.FormatAllToSlice(errs), "", "  ")
	return string(data)
}

// FormatAllToSlice returns errors as a slice of ErrorJSON structs.
func (jf *JSONFormatter) FormatAllToSlice(errs []error) []ErrorJSON {
	result := make([]ErrorJSON, 0, len(errs))
	for _, err := range errs {
		result = append(result, jf.toJSON(err))
	}
	return result
}

// toJSON converts an error to ErrorJSON.
func (jf *JSONFormatter) toJSON(err error) ErrorJSON {
	errJSON := ErrorJSON{
		Type:    fmt.Sprintf("%T", err),
		Kind:    service.ErrorKind(err),
		Message: err.Error(),
		Details: make(map[string]any),
	}

	var e positioned
	if stderrors.As(err, &e) && !e.GetPosition().IsZero() {
		pos := e.GetPosition()
		errJSON.Position = &PositionJSON{
			Filename: pos.Filename,
			Line:     pos.Line,
			Column:   pos.Column,
		}
	}

	switch e := err.(type) {
	case *ledger.AccountNotOpenError:
		errJSON.Details["account"] = e.Account.String()
		errJSON.Details["date"] = e.Date.String()
	case *ledger.AccountClosedError:
		errJSON.Details["account"] = e.Account.String()
		errJSON.Details["date"] = e.Date.String()
	case *ledger.CommodityNotAllowedError:
		errJSON.Details["account"] = e.Account.String()
		errJSON.Details["commodity"] = e.Commodity
	case *ledger.TransactionNotBalancedError:
		errJSON.Details["residuals"] = e.Residuals
	case *ledger.BalanceAssertionError:
		errJSON.Details["account"] = e.Assertion.Account.String()
		errJSON.Details["expected"] = e.Assertion.Amount.String()
		errJSON.Details["actual"] = e.Actual.String()
	case *query.CompileError:
		errJSON.Details["offset"] = e.Offset
	case *journal.StorageError:
		errJSON.Details["op"] = e.Op
		errJSON.Details["rolled_back"] = e.RolledBack
	case *service.DraftError:
		errJSON.Details["field"] = e.Field
	}
	if len(errJSON.Details) == 0 {
		errJSON.Details = nil
	}

	return errJSON
}
