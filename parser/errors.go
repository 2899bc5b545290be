package parser

import (
	"fmt"

	"github.com/robinvdvleuten/beancount-mcp/ast"
)

// ParseWarning reports a malformed line. The directive it belongs to is skipped and
// parsing resumes at the next directive, so a warning never aborts a parse.
type ParseWarning struct {
	Pos     ast.Position
	Message string
}

func (w *ParseWarning) Error() string {
	location := fmt.Sprintf("%s:%d", w.Pos.Filename, w.Pos.Line)
	if w.Pos.Filename == "" {
		location = fmt.Sprintf("line %d", w.Pos.Line)
	}

	return fmt.Sprintf("%s: %s", location, w.Message)
}

// GetPosition returns where the warning was raised.
func (w *ParseWarning) GetPosition() ast.Position {
	return w.Pos
}

// GetDirective returns nil; a warning belongs to text that never became a directive.
func (w *ParseWarning) GetDirective() ast.Directive {
	return nil
}
