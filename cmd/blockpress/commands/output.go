package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// maxColumnWidth is the maximum width for table columns before truncation
const maxColumnWidth = 50

// rows is tabular command output keyed by column name.
type rows []map[string]any

// writeRows renders data in the requested format.
func writeRows(w io.Writer, format string, data rows) error {
	switch format {
	case "", "table":
		return outputTable(w, data)
	case "json":
		return outputJSON(w, data)
	case "csv":
		return outputCSV(w, data)
	}
	return fmt.Errorf("unknown format %q (use table, json or csv)", format)
}

// outputJSON outputs any value as indented JSON
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// columnsOf returns the columns used across data, "id" first and the rest
// sorted.
func columnsOf(data rows) []string {
	columnSet := make(map[string]bool)
	for _, row := range data {
		for col := range row {
			columnSet[col] = true
		}
	}
	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i] == "id" {
			return true
		}
		if columns[j] == "id" {
			return false
		}
		return columns[i] < columns[j]
	})
	return columns
}

// outputCSV outputs data as CSV
func outputCSV(w io.Writer, data rows) error {
	if len(data) == 0 {
		return nil
	}
	columns := columnsOf(data)

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, row := range data {
		record := make([]string, len(columns))
		for i, col := range columns {
			if val, ok := row[col]; ok {
				record[i] = fmt.Sprintf("%v", val)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// truncateString truncates a string to maxColumnWidth with ellipsis if needed
func truncateString(s string) string {
	if len(s) > maxColumnWidth {
		return s[:maxColumnWidth-3] + "..."
	}
	return s
}

// outputTable outputs data as a formatted table
func outputTable(w io.Writer, data rows) error {
	if len(data) == 0 {
		fmt.Fprintln(w, "No items.")
		return nil
	}
	columns := columnsOf(data)

	widths := make(map[string]int)
	for _, col := range columns {
		widths[col] = len(col)
	}
	for _, row := range data {
		for col, val := range row {
			str := truncateString(fmt.Sprintf("%v", val))
			if len(str) > widths[col] {
				widths[col] = len(str)
			}
		}
	}

	var header, separator strings.Builder
	for i, col := range columns {
		if i > 0 {
			header.WriteString(" | ")
			separator.WriteString("-+-")
		}
		fmt.Fprintf(&header, "%-*s", widths[col], col)
		separator.WriteString(strings.Repeat("-", widths[col]))
	}
	fmt.Fprintln(w, strings.TrimRight(header.String(), " "))
	fmt.Fprintln(w, separator.String())

	for _, row := range data {
		var line strings.Builder
		for i, col := range columns {
			if i > 0 {
				line.WriteString(" | ")
			}
			val := ""
			if v, ok := row[col]; ok {
				val = truncateString(fmt.Sprintf("%v", v))
			}
			fmt.Fprintf(&line, "%-*s", widths[col], val)
		}
		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}

	fmt.Fprintf(w, "\n%d item(s)\n", len(data))
	return nil
}
