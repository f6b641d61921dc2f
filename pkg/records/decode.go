package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode reads exactly one JSON value from r.
//
// Objects become Record (key order preserved), arrays become []any, numbers stay
// json.Number so that large ids survive untouched; downstream coercion decides
// what a number means.
//
// Errors:
//   - empty input, malformed JSON, or trailing non-whitespace data.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		// A bare io.EOF means not even the first token was present.
		if err == io.EOF {
			return nil, fmt.Errorf("records: empty JSON document")
		}
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("records: trailing data: %w", err)
		}
		return nil, fmt.Errorf("records: trailing data after JSON value")
	}
	return v, nil
}

// DecodeBytes is Decode over an in-memory body.
func DecodeBytes(b []byte) (any, error) {
	return Decode(bytes.NewReader(b))
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch d := tok.(type) {
	case json.Delim:
		switch d {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("records: unexpected delimiter %q", d)
		}
	default:
		// string, json.Number, bool or nil
		return tok, nil
	}
}

// decodeObject consumes the members of an object whose '{' was already read.
func decodeObject(dec *json.Decoder) (Record, error) {
	var rec Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, fmt.Errorf("records: read object key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("records: object key is %T, want string", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return Record{}, fmt.Errorf("records: read value for %q: %w", key, err)
		}
		rec.Set(key, v)
	}
	if end, err := dec.Token(); err != nil {
		return Record{}, fmt.Errorf("records: read object end: %w", err)
	} else if end != json.Delim('}') {
		return Record{}, fmt.Errorf("records: expected object end '}', got %v", end)
	}
	if rec.values == nil {
		rec.values = map[string]any{}
	}
	return rec, nil
}

// decodeArray consumes the elements of an array whose '[' was already read.
func decodeArray(dec *json.Decoder) ([]any, error) {
	out := []any{}
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("records: decode array element %d: %w", len(out), err)
		}
		out = append(out, v)
	}
	if end, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("records: read array end: %w", err)
	} else if end != json.Delim(']') {
		return nil, fmt.Errorf("records: expected array end ']', got %v", end)
	}
	return out, nil
}

// FromValue turns one decoded list item into a Record. Objects pass through;
// anything else is wrapped as {"value": item}.
func FromValue(v any) Record {
	if rec, ok := v.(Record); ok {
		return rec
	}
	return New("value", v)
}
