// Package builtin contains the cell coercions referenced by name from the
// category table ("float", "int", "date").
//
// Truthiness follows the upstream API's conventions: an empty string, nil,
// false or zero counts as "no value".
package builtin

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Float coerces a cell to float64. Empty values become 0. Currency text such as
// "$1,234.50" is accepted.
func Float(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return float64(0), nil
	case bool:
		if t {
			return float64(1), nil
		}
		return float64(0), nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("float: %q: %w", t.String(), err)
		}
		return f, nil
	case string:
		s := stripNumber(t)
		if s == "" {
			return float64(0), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("float: cannot parse %q", t)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("float: unsupported value of type %T", v)
	}
}

// Int coerces a cell to int64. Empty values (including zero) become nil.
// Integral floats ("2024.0") are accepted; fractional ones are an error.
func Int(v any) (any, error) {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if !t {
			return nil, nil
		}
		return int64(1), nil
	case int:
		if t == 0 {
			return nil, nil
		}
		return int64(t), nil
	case int64:
		if t == 0 {
			return nil, nil
		}
		return t, nil
	case float64:
		f = t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			if n == 0 {
				return nil, nil
			}
			return n, nil
		}
		parsed, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("int: %q: %w", t.String(), err)
		}
		f = parsed
	case string:
		s := stripNumber(t)
		if s == "" {
			return nil, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("int: cannot parse %q", t)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("int: unsupported value of type %T", v)
	}

	if f == 0 {
		return nil, nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("int: %v is not a whole number", f)
	}
	return int64(f), nil
}

// Date layouts tried in order. Slash dates are month-first, so an ambiguous
// "03/04/2025" reads as 4 March; "14/02/2025" still falls through to day-first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"01/02/2006",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Date coerces a cell to time.Time. Empty values become nil. Numbers are read
// as Unix seconds.
func Date(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t, nil
	case bool:
		if !t {
			return nil, nil
		}
		return nil, fmt.Errorf("date: unsupported boolean value")
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return nil, fmt.Errorf("date: %q is not a Unix timestamp", t.String())
		}
		if n == 0 {
			return nil, nil
		}
		return time.Unix(n, 0).UTC(), nil
	case int64:
		if t == 0 {
			return nil, nil
		}
		return time.Unix(t, 0).UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		for _, lay := range dateLayouts {
			if ts, err := time.Parse(lay, s); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("date: cannot parse %q", t)
	default:
		return nil, fmt.Errorf("date: unsupported value of type %T", v)
	}
}

func stripNumber(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "$, \t") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '\t':
			return -1
		}
		return r
	}, s)
}

// Lookup resolves a transform kind from configuration.
func Lookup(kind string) (func(any) (any, error), error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "float":
		return Float, nil
	case "int":
		return Int, nil
	case "date":
		return Date, nil
	default:
		return nil, fmt.Errorf("builtin: unknown transform kind %q", kind)
	}
}
