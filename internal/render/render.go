// Package render prints projected tables as a bordered text table, JSON or CSV.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cast"

	"github.com/limberduck/tsccm/internal/projector"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatRaw   = "raw"
)

// IndexColumn is the header of the 1-based row number column.
const IndexColumn = "#"

// CountColumn is added by grouping.
const CountColumn = "count"

// Options controls formatting and row ordering.
type Options struct {
	Format  string
	SortBy  []string
	GroupBy []string
	NoColor bool
}

// Render writes t to w. Grouping runs before sorting; row numbers are assigned last.
func Render(w io.Writer, t projector.Table, opts Options) error {
	var err error
	if len(opts.GroupBy) > 0 {
		if t, err = Group(t, opts.GroupBy); err != nil {
			return err
		}
	}
	if len(opts.SortBy) > 0 {
		if t, err = Sort(t, opts.SortBy); err != nil {
			return err
		}
	}
	switch opts.Format {
	case FormatTable, "":
		return writeTable(w, t, opts.NoColor)
	case FormatJSON:
		return writeJSON(w, t.Records)
	case FormatCSV:
		return writeCSV(w, t)
	case FormatRaw:
		return fmt.Errorf("format %q prints unprojected records", FormatRaw)
	default:
		return fmt.Errorf("unknown output format %q", opts.Format)
	}
}

// RenderRaw writes the server records unchanged as a JSON array.
func RenderRaw(w io.Writer, raws []json.RawMessage) error {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	return writeJSON(w, raws)
}

func writeJSON(w io.Writer, v any) error {
	if recs, ok := v.([]projector.Record); ok && recs == nil {
		v = []projector.Record{}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// Cell returns the display text of a value.
func Cell(v any) string {
	return cast.ToString(v)
}

func rows(t projector.Table) [][]string {
	out := make([][]string, len(t.Records))
	for i, r := range t.Records {
		row := make([]string, 0, len(t.Columns)+1)
		row = append(row, strconv.Itoa(i+1))
		for _, c := range t.Columns {
			v, _ := r.Get(c)
			row = append(row, Cell(v))
		}
		out[i] = row
	}
	return out
}

func writeTable(w io.Writer, t projector.Table, noColor bool) error {
	re := lipgloss.NewRenderer(w)
	cell := re.NewStyle().Padding(0, 1)
	header := cell
	index := cell
	if !noColor {
		header = header.Bold(true).Foreground(lipgloss.Color("12"))
		index = index.Faint(true)
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(re.NewStyle()).
		Headers(append([]string{IndexColumn}, t.Columns...)...).
		Rows(rows(t)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col == 0:
				return index
			default:
				return cell
			}
		})
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}

func writeCSV(w io.Writer, t projector.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{IndexColumn}, t.Columns...)); err != nil {
		return err
	}
	if err := cw.WriteAll(rows(t)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func checkColumns(t projector.Table, names []string) error {
	have := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		have[c] = true
	}
	for _, n := range names {
		if !have[n] {
			return fmt.Errorf("unknown column %q (available: %s)", n, strings.Join(t.Columns, ", "))
		}
	}
	return nil
}

// Sort orders records ascending by the given columns, keeping the input order of ties.
func Sort(t projector.Table, by []string) (projector.Table, error) {
	if err := checkColumns(t, by); err != nil {
		return t, err
	}
	recs := append([]projector.Record(nil), t.Records...)
	sort.SliceStable(recs, func(i, j int) bool {
		return compareBy(recs[i], recs[j], by) < 0
	})
	return projector.Table{Columns: t.Columns, Records: recs}, nil
}

// Group collapses records to one per distinct combination of the given columns,
// in ascending key order, with a count column.
func Group(t projector.Table, by []string) (projector.Table, error) {
	if err := checkColumns(t, by); err != nil {
		return t, err
	}
	cols := append(append([]string(nil), by...), CountColumn)
	var (
		out   []projector.Record
		index = map[string]int{}
	)
	for _, r := range t.Records {
		values := make([]any, 0, len(cols))
		keyParts := make([]string, 0, len(by))
		for _, c := range by {
			v, _ := r.Get(c)
			values = append(values, v)
			keyParts = append(keyParts, Cell(v))
		}
		key := strings.Join(keyParts, "\x00")
		if i, ok := index[key]; ok {
			out[i].Values[len(by)] = out[i].Values[len(by)].(int) + 1
			continue
		}
		index[key] = len(out)
		out = append(out, projector.NewRecord(cols, append(values, 1)))
	}
	grouped := projector.Table{Columns: cols, Records: out}
	return Sort(grouped, by)
}

func compareBy(a, b projector.Record, by []string) int {
	for _, c := range by {
		av, _ := a.Get(c)
		bv, _ := b.Get(c)
		if n := compareValues(av, bv); n != 0 {
			return n
		}
	}
	return 0
}

func compareValues(a, b any) int {
	af, aok := number(a)
	bf, bok := number(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(Cell(a), Cell(b))
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case bool, nil:
		return 0, false
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, false
		}
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}
