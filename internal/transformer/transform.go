package transformer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"dogeexport/pkg/records"
)

// MaxCellChars is the longest text cell we emit. Excel's hard limit is 32,767;
// we stay below it.
const MaxCellChars = 32000

// Func converts one cell value. Returning an error aborts the whole Transform.
type Func func(v any) (any, error)

// Options tune Transform. The zero value applies no id handling and discards logs.
type Options struct {
	// IDField, when present in the data, becomes column 0.
	IDField string
	// DedupeByID drops later records that repeat an already-seen IDField value.
	// Off by default: every input record yields one row.
	DedupeByID bool
	Logger     *slog.Logger
}

// Transform builds a Table from records.
//
// Columns are the union of record keys in first-seen order. For every column
// named in transforms that exists, each cell (including nil cells) is passed
// through the Func. Then every cell is normalized for output:
//   - json.Number becomes int64 when integral, else float64
//   - nested records and lists become compact JSON text
//   - text is truncated to MaxCellChars runes, one warning per column
//   - '\r', '\n' and '\t' in text become spaces
//
// Edge cases:
//   - no records: empty Table, nil error
//   - transforms naming absent columns are ignored
//
// Errors:
//   - a Func error, wrapped with the column name and 1-based row number
func Transform(in []records.Record, transforms map[string]Func, opts Options) (Table, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if len(in) == 0 {
		return Table{}, nil
	}

	if opts.DedupeByID {
		in = dedupeByID(in, opts.IDField, log)
	}
	cols := unionColumns(in, opts.IDField)

	rows := make([][]any, len(in))
	for i, rec := range in {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j], _ = rec.Get(c)
		}
		rows[i] = row
	}

	for j, c := range cols {
		fn, ok := transforms[c]
		if !ok || fn == nil {
			continue
		}
		for i := range rows {
			v, err := fn(rows[i][j])
			if err != nil {
				return Table{}, fmt.Errorf("transformer: column %q row %d: %w", c, i+1, err)
			}
			rows[i][j] = v
		}
	}

	for j, c := range cols {
		maxLen := 0
		for i := range rows {
			v, n := normalizeCell(rows[i][j])
			rows[i][j] = v
			if n > maxLen {
				maxLen = n
			}
		}
		if maxLen > MaxCellChars {
			log.Warn("column values truncated",
				"column", c,
				"max_length", maxLen,
				"limit", MaxCellChars,
			)
		}
	}

	return Table{Columns: cols, Rows: rows}, nil
}

// unionColumns collects keys in first-seen order, moving idField to the front
// when any record carries it.
func unionColumns(in []records.Record, idField string) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, rec := range in {
		rec.Range(func(k string, _ any) bool {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
			return true
		})
	}

	if i := indexOf(cols, idField); i > 0 {
		copy(cols[1:i+1], cols[:i])
		cols[0] = idField
	}
	return cols
}

func dedupeByID(in []records.Record, idField string, log *slog.Logger) []records.Record {
	if idField == "" {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]records.Record, 0, len(in))
	dropped := 0
	for _, rec := range in {
		v, ok := rec.Get(idField)
		if !ok || v == nil {
			out = append(out, rec)
			continue
		}
		key := canonicalKey(v)
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	if dropped > 0 {
		log.Warn("dropped records with duplicate id", "id_field", idField, "dropped", dropped)
	}
	return out
}

// normalizeCell converts v to a writer-friendly value. The second result is the
// rune length of text before truncation (0 for non-text).
func normalizeCell(v any) (any, int) {
	switch t := v.(type) {
	case nil, bool, int64, float64:
		return t, 0
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, 0
		}
		if f, err := t.Float64(); err == nil {
			return f, 0
		}
		return cleanText(t.String())
	case string:
		return cleanText(t)
	case records.Record, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return cleanText(fmt.Sprint(t))
		}
		return cleanText(string(b))
	default:
		return t, 0
	}
}

var controlReplacer = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

func cleanText(s string) (any, int) {
	n := utf8.RuneCountInString(s)
	if n > MaxCellChars {
		s = truncateRunes(s, MaxCellChars)
	}
	return controlReplacer.Replace(s), n
}

func truncateRunes(s string, max int) string {
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}

// canonicalKey gives id values a stable comparison form, so 7, "7" and
// json.Number("7") are the same id.
func canonicalKey(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
