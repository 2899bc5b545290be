package ast

import "fmt"

// Position is a location in a ledger file. Directives built in code, such as a
// submitted transaction before it is written, have the zero Position.
type Position struct {
	Filename string
	Offset   int // byte offset
	Line     int // 1-indexed
	Column   int // 1-indexed, 0 when unknown
}

// IsZero reports whether the position is unset.
func (p Position) IsZero() bool {
	return p.Line == 0
}

// String renders the position as file:line:column, dropping the parts that are unset.
func (p Position) String() string {
	loc := fmt.Sprintf("%d", p.Line)
	if p.Column > 0 {
		loc = fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	if p.Filename != "" {
		return p.Filename + ":" + loc
	}
	return loc
}
