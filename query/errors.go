package query

import (
	"fmt"
	"strings"
)

// CompileError rejects a query before it produces a table: a syntax error, an unknown
// fact kind, column or function, a type mismatch, or an aggregation that would merge
// commodities.
type CompileError struct {
	Query   string
	Offset  int // byte offset into Query
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("query error at offset %d: %s", e.Offset, e.Message)
}

// Excerpt returns the query line holding the error and a caret under the offending
// byte.
func (e *CompileError) Excerpt() string {
	offset := min(max(e.Offset, 0), len(e.Query))
	start := strings.LastIndexByte(e.Query[:offset], '\n') + 1
	end := strings.IndexByte(e.Query[offset:], '\n')
	if end < 0 {
		end = len(e.Query)
	} else {
		end += offset
	}
	return e.Query[start:end] + "\n" + strings.Repeat(" ", offset-start) + "^"
}

// RuntimeError is an execution failure such as a missing price for a conversion.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return "query execution failed: " + e.Message
}

func runtimeErrorf(format string, args ...any) *RuntimeError {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}
