// Package projector turns raw Tenable.sc records into flat display records
// following the column rules in package resource.
package projector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/limberduck/tsccm/internal/resource"
)

// TimeLayout is the display layout of timestamp columns.
const TimeLayout = "2006-01-02 15:04:05"

// Record is one display row. Values line up with Names.
type Record struct {
	Names  []string
	Values []any
}

// NewRecord builds a record from parallel name and value slices.
func NewRecord(names []string, values []any) Record {
	return Record{Names: names, Values: values}
}

// Get returns the value of column name.
func (r Record) Get(name string) (any, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON encodes the record as an object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Table is an ordered list of records sharing the same columns.
type Table struct {
	Columns []string
	Records []Record
}

// Project maps every raw record of kind to a display record. Output order and
// length match the input. Timestamps are shown in loc (UTC when nil).
func Project(kind resource.Kind, raws []json.RawMessage, loc *time.Location) (Table, error) {
	spec, err := resource.SpecFor(kind)
	if err != nil {
		return Table{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	table := Table{Columns: spec.ColumnNames(), Records: make([]Record, 0, len(raws))}
	for i, raw := range raws {
		if !gjson.ValidBytes(raw) {
			return Table{}, fmt.Errorf("%s record %d: invalid JSON", kind, i)
		}
		values := make([]any, len(spec.Columns))
		for j, c := range spec.Columns {
			values[j] = Value(gjson.GetBytes(raw, c.Path), c.Resolved(), loc)
		}
		table.Records = append(table.Records, NewRecord(table.Columns, values))
	}
	return table, nil
}

// Value converts one looked-up field to its display value. Missing and null fields are "".
func Value(res gjson.Result, format resource.Format, loc *time.Location) any {
	if !res.Exists() || res.Type == gjson.Null {
		return ""
	}
	switch format {
	case resource.Timestamp:
		return FormatTimestamp(res.String(), loc)
	case resource.Duration:
		return FormatDuration(res.String())
	default:
		return scalar(res)
	}
}

func scalar(res gjson.Result) any {
	switch res.Type {
	case gjson.String:
		return res.Str
	case gjson.True, gjson.False:
		return res.Bool()
	case gjson.Number:
		if res.Num == math.Trunc(res.Num) && math.Abs(res.Num) < 1<<53 {
			return res.Int()
		}
		return res.Num
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(res.Raw)); err != nil {
			return res.Raw
		}
		return buf.String()
	}
}

// FormatTimestamp renders epoch seconds as TimeLayout in loc.
// Negative epochs (the server uses -1 for "not run") render as "";
// non-numeric values are returned unchanged.
func FormatTimestamp(v string, loc *time.Location) string {
	if v == "" {
		return ""
	}
	secs, err := seconds(v)
	if err != nil {
		return v
	}
	if secs < 0 {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(secs, 0).In(loc).Format(TimeLayout)
}

// FormatDuration renders seconds as H:MM:SS. Negative values (the server uses -1
// for "not run") render as 0:00:00; non-numeric values are returned unchanged.
func FormatDuration(v string) string {
	if v == "" {
		return ""
	}
	secs, err := seconds(v)
	if err != nil {
		return v
	}
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

// seconds parses a decimal second count. Octal and hex prefixes are not numbers here.
func seconds(v string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
}
