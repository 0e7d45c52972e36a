package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// WriteCSV writes a table with a header row. Missing values are written as
// NaN so they stay visible downstream.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{t.Index}, t.Columns...)); err != nil {
		return fmt.Errorf("write %s header: %w", t.Name, err)
	}
	record := make([]string, len(t.Columns)+1)
	for i, row := range t.Rows {
		record[0] = t.RowKeys[i]
		for j, v := range row {
			record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write %s row %s: %w", t.Name, t.RowKeys[i], err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonTable struct {
	Name    string    `json:"name"`
	Index   string    `json:"index"`
	Columns []string  `json:"columns"`
	Rows    []jsonRow `json:"rows"`
}

type jsonRow struct {
	Key    string     `json:"key"`
	Values []*float64 `json:"values"`
}

// WriteJSON writes a table as indented JSON. Missing values become null.
func WriteJSON(w io.Writer, t *Table) error {
	doc := jsonTable{Name: t.Name, Index: t.Index, Columns: t.Columns, Rows: make([]jsonRow, len(t.Rows))}
	for i, row := range t.Rows {
		vals := make([]*float64, len(row))
		for j := range row {
			if v := row[j]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				vals[j] = &v
			}
		}
		doc.Rows[i] = jsonRow{Key: t.RowKeys[i], Values: vals}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
