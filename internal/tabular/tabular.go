// Package tabular reads the CSV tables produced by spike sorting and CCF
// alignment into a column-addressable form.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Table is an in-memory CSV table with a header row.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadFile parses the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	table, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return table, nil
}

// Read parses CSV from r. Rows shorter than the header are padded with blanks.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty table")
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	t := &Table{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < len(header) {
			record = append(record, make([]string, len(header)-len(record))...)
		}
		t.Rows = append(t.Rows, record[:len(header)])
	}
	t.reindex()
	return t, nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, name := range t.Header {
		if _, ok := t.index[name]; !ok {
			t.index[name] = i
		}
	}
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Has reports whether the table has the named column.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// String returns the trimmed cell value, or "" when the column is absent.
func (t *Table) String(row int, column string) string {
	col, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// Float parses a numeric cell. Missing columns, blanks, NaN and infinities
// all yield 0.
func (t *Table) Float(row int, column string) float64 {
	v, err := strconv.ParseFloat(t.String(row, column), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Int parses an integer cell, accepting float spellings such as "12.0".
func (t *Table) Int(row int, column string) (int, error) {
	raw := t.String(row, column)
	if raw == "" {
		return 0, fmt.Errorf("row %d: column %q is empty", row, column)
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("row %d: column %q: %q is not an integer", row, column, raw)
	}
	return int(f), nil
}

// Require returns an error naming every column that is absent.
func (t *Table) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// InnerJoin returns a table holding the rows of t that have a matching key in
// other, in t's order, with other's non-key columns appended. Columns present
// in both tables keep t's values.
func (t *Table) InnerJoin(other *Table, key string) (*Table, error) {
	if !t.Has(key) || !other.Has(key) {
		return nil, fmt.Errorf("join key %q missing", key)
	}

	var extra []int
	header := append([]string{}, t.Header...)
	for i, name := range other.Header {
		if name == key || t.Has(name) {
			continue
		}
		extra = append(extra, i)
		header = append(header, name)
	}

	lookup := make(map[string]int, other.Len())
	for i := range other.Rows {
		k := other.String(i, key)
		if _, ok := lookup[k]; !ok {
			lookup[k] = i
		}
	}

	joined := &Table{Header: header}
	for i, row := range t.Rows {
		match, ok := lookup[t.String(i, key)]
		if !ok {
			continue
		}
		merged := append([]string{}, row...)
		for _, col := range extra {
			merged = append(merged, other.Rows[match][col])
		}
		joined.Rows = append(joined.Rows, merged)
	}
	joined.reindex()
	return joined, nil
}
