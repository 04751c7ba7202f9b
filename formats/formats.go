// Package formats writes tabular listings as aligned text, CSV or JSON.
package formats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Format names an output format.
type Format string

const (
	Text Format = "text"
	CSV  Format = "csv"
	JSON Format = "json"
)

// Parse validates a format name. The empty string selects Text.
func Parse(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case "":
		return Text, nil
	case Text, CSV, JSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be text, csv or json)", name)
	}
}

// Table is a listing with named columns.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Write renders t in format f.
func Write(w io.Writer, f Format, t Table) error {
	switch f {
	case Text, "":
		return WriteText(w, t)
	case CSV:
		return WriteCSV(w, t)
	case JSON:
		return WriteJSON(w, t)
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
}

// WriteText writes an aligned table with an upper-case header.
func WriteText(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := make([]string, len(t.Columns))
	rule := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = strings.ToUpper(c)
		rule[i] = strings.Repeat("-", len(c))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	fmt.Fprintln(tw, strings.Join(rule, "\t"))

	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		for i := range record {
			record[i] = "-"
			if i < len(row) && row[i] != "" {
				record[i] = row[i]
			}
		}
		fmt.Fprintln(tw, strings.Join(record, "\t"))
	}
	return tw.Flush()
}

// WriteCSV writes the listing as CSV with a header row.
func WriteCSV(w io.Writer, t Table) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		copy(record, row)
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// WriteJSON writes the listing as {"data": [{column: value}, ...]}. Empty
// cells are written as null.
func WriteJSON(w io.Writer, t Table) error {
	data := make([]map[string]interface{}, 0, len(t.Rows))
	for _, row := range t.Rows {
		rowMap := make(map[string]interface{}, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) && row[i] != "" {
				rowMap[col] = row[i]
			} else {
				rowMap[col] = nil
			}
		}
		data = append(data, rowMap)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{"data": data})
}
