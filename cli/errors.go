package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robinvdvleuten/beancount-mcp/errors"
)

var (
	errMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"}).Bold(true)
	errCaretStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"})
	errContextStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#808080", Dark: "#808080"})
)

// ErrorRenderer renders errors with terminal styling and source context.
type ErrorRenderer struct {
	formatter *errors.TextFormatter
}

// NewErrorRenderer creates a renderer with source content for context. Source may be
// nil, in which case positioned errors without a directive render as their message.
func NewErrorRenderer(source []byte) *ErrorRenderer {
	var opts []errors.TextFormatterOption
	if source != nil {
		opts = append(opts, errors.WithSource(source))
	}
	return &ErrorRenderer{formatter: errors.NewTextFormatter(nil, opts...)}
}

// Render formats a single error with styling and context.
func (r *ErrorRenderer) Render(err error) string {
	text := strings.TrimRight(r.formatter.Format(err), "\n")
	lines := strings.Split(text, "\n")

	var buf strings.Builder
	for i, line := range lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		switch trimmed := strings.TrimSpace(line); {
		case i == 0:
			buf.WriteString(errMessageStyle.Render(line))
		case trimmed == "":
		case trimmed == "^":
			buf.WriteString(strings.TrimSuffix(line, "^"))
			buf.WriteString(errCaretStyle.Render("^"))
		default:
			buf.WriteString(errContextStyle.Render(line))
		}
	}
	return buf.String()
}

// RenderAll formats multiple errors, separating them with blank lines.
func (r *ErrorRenderer) RenderAll(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	var buf strings.Builder
	for i, err := range errs {
		buf.WriteString(r.Render(err))

		if i < len(errs)-1 {
			buf.WriteString("\n\n")
		}
	}

	return buf.String()
}
