package query

// Column is a named, typed result column.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Table is a query result: ordered columns and rows of typed cells.
type Table struct {
	Columns []Column  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// MarshalText encodes the type by name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Headers returns the column names.
func (t *Table) Headers() []string {
	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = c.Name
	}
	return headers
}

// Strings renders every cell for display.
func (t *Table) Strings() [][]string {
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = v.String()
		}
		rows[i] = cells
	}
	return rows
}

// NumericColumns reports which columns hold numbers or amounts, for right-aligned
// rendering.
func (t *Table) NumericColumns() map[int]bool {
	numeric := make(map[int]bool)
	for i, c := range t.Columns {
		if isNumeric(c.Type) {
			numeric[i] = true
		}
	}
	return numeric
}

// Truncate keeps the first n rows and reports whether rows were dropped.
func (t *Table) Truncate(n int) bool {
	if n < 0 || len(t.Rows) <= n {
		return false
	}
	t.Rows = t.Rows[:n]
	return true
}
