// Package output renders command results for terminals: status lines, timings and
// query tables.
package output

import (
	"io"

	"github.com/muesli/termenv"
)

// ANSI palette indices.
const (
	red     = "1"
	green   = "2"
	yellow  = "3"
	blue    = "4"
	magenta = "5"
	cyan    = "6"
)

// Styles colors text for one writer. Colors are dropped when the writer is not a
// terminal, so the same calls produce plain text in pipes and tests.
type Styles struct {
	output *termenv.Output
}

// NewStyles creates a new Styles instance for the given writer.
func NewStyles(w io.Writer) *Styles {
	return &Styles{
		output: termenv.NewOutput(w),
	}
}

func (s *Styles) paint(text, color string) termenv.Style {
	return s.output.String(text).Foreground(s.output.Color(color))
}

func (s *Styles) Success(text string) string { return s.paint(text, green).Bold().String() }
func (s *Styles) Error(text string) string   { return s.paint(text, red).Bold().String() }
func (s *Styles) Warning(text string) string { return s.paint(text, yellow).Bold().String() }
func (s *Styles) Info(text string) string    { return s.paint(text, blue).String() }
func (s *Styles) FilePath(text string) string {
	return s.paint(text, cyan).String()
}

// Account and Amount highlight ledger values in previews.
func (s *Styles) Account(text string) string { return s.paint(text, yellow).String() }
func (s *Styles) Amount(text string) string  { return s.paint(text, magenta).String() }

func (s *Styles) Keyword(text string) string {
	return s.output.String(text).Bold().String()
}

// Dim returns faint text for secondary information.
func (s *Styles) Dim(text string) string {
	return s.output.String(text).Faint().String()
}

// Timing dims a duration, or paints it red for slow operations.
func (s *Styles) Timing(text string, slow bool) string {
	if slow {
		return s.paint(text, red).String()
	}
	return s.Dim(text)
}
