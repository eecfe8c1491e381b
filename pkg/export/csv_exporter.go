package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is an ordered tabular report ready for rendering. Footer, when set,
// is a summary record (totals, balances) appended after the body rows.
type Table struct {
	Columns []string
	Rows    [][]string
	Footer  []string
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("report table needs at least one column")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Columns))
		}
	}
	if t.Footer != nil && len(t.Footer) != len(t.Columns) {
		return fmt.Errorf("footer has %d cells, want %d", len(t.Footer), len(t.Columns))
	}
	return nil
}

// RenderCSV encodes the table as CSV, columns first, footer last.
func RenderCSV(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	if t.Footer != nil {
		if err := w.Write(t.Footer); err != nil {
			return nil, fmt.Errorf("write csv footer: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
