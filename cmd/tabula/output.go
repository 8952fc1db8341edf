package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/tabula/query"
	"github.com/tailored-agentic-units/tabula/transform"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatCSV   = "csv"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML, formatCSV:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json, yaml, or csv)", format)
}

// columns returns the sorted union of the field names in rows.
func columns(rows []transform.Row) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// cell renders a value for table and csv output. Missing and NaN values
// render as empty cells.
func cell(v any) string {
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return ""
	}
	return cast.ToString(v)
}

// writeRows renders rows in the requested format.
func writeRows(w io.Writer, format string, rows []transform.Row) error {
	switch format {
	case formatJSON:
		return writeJSON(w, jsonSafe(rows))
	case formatYAML:
		return yaml.NewEncoder(w).Encode(rows)
	}

	cols := columns(rows)
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		record := make([]string, len(cols))
		for i, col := range cols {
			record[i] = cell(row[col])
		}
		records = append(records, record)
	}

	if format == formatCSV {
		cw := csv.NewWriter(w)
		if err := cw.Write(cols); err != nil {
			return err
		}
		return cw.WriteAll(records)
	}
	return writeTable(w, cols, records)
}

// writeSeries renders grouped rows. Table and csv output add a leading
// series column.
func writeSeries(w io.Writer, format string, series []query.Series) error {
	switch format {
	case formatJSON:
		out := make([]query.Series, len(series))
		for i, s := range series {
			out[i] = query.Series{Key: s.Key, Meta: s.Meta, Values: jsonSafe(s.Values)}
		}
		return writeJSON(w, out)
	case formatYAML:
		return yaml.NewEncoder(w).Encode(series)
	}

	var rows []transform.Row
	for _, s := range series {
		rows = append(rows, s.Values...)
	}
	cols := columns(rows)

	records := make([][]string, 0, len(rows))
	for _, s := range series {
		for _, row := range s.Values {
			record := []string{s.Key}
			for _, col := range cols {
				record = append(record, cell(row[col]))
			}
			records = append(records, record)
		}
	}

	header := append([]string{"series"}, cols...)
	if format == formatCSV {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		return cw.WriteAll(records)
	}
	return writeTable(w, header, records)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, header []string, records [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeLine(tw, header)
	for _, record := range records {
		writeLine(tw, record)
	}
	return tw.Flush()
}

func writeLine(w io.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, f)
	}
	fmt.Fprintln(w)
}

// jsonSafe replaces NaN and infinities with nil so rows encode as JSON.
func jsonSafe(rows []transform.Row) []transform.Row {
	out := make([]transform.Row, len(rows))
	for i, row := range rows {
		clean := make(transform.Row, len(row))
		for k, v := range row {
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				v = nil
			}
			clean[k] = v
		}
		out[i] = clean
	}
	return out
}
