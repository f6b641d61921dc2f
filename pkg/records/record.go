// Package records holds the loosely-typed record model shared by the API client,
// the transformer and the writers.
//
// A Record is a JSON object that remembers the order its keys arrived in. Key
// order matters twice in this tool: the envelope heuristic picks "the first list"
// inside an object, and exported columns follow first-seen field order.
package records

import (
	"bytes"
	"encoding/json"
)

// Record is an ordered mapping from field name to value.
//
// Values are whatever Decode produced: nil, bool, string, json.Number, Record
// (nested object) or []any (list). The zero value is an empty record ready to use.
type Record struct {
	keys   []string
	values map[string]any
}

// New builds a record from alternating key/value pairs. It is mostly useful in
// tests and for wrapping scalars. A trailing key without a value is set to nil.
func New(kv ...any) Record {
	var r Record
	for i := 0; i < len(kv); i += 2 {
		k, _ := kv[i].(string)
		var v any
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		r.Set(k, v)
	}
	return r
}

// Set stores v under k. A key that already exists keeps its original position.
func (r *Record) Set(k string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[k]; !ok {
		r.keys = append(r.keys, k)
	}
	r.values[k] = v
}

// Get returns the value stored under k.
func (r Record) Get(k string) (any, bool) {
	v, ok := r.values[k]
	return v, ok
}

// Has reports whether k is present (even with a nil value).
func (r Record) Has(k string) bool {
	_, ok := r.values[k]
	return ok
}

// Keys returns the field names in insertion order. The slice is a copy.
func (r Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.keys) }

// Range calls fn for each field in order until fn returns false.
func (r Record) Range(fn func(k string, v any) bool) {
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

// MarshalJSON encodes the record as a JSON object, preserving key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
