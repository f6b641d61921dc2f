// Package filters holds the caller-supplied query filters passed through to the
// API verbatim, and the parser for the CLI's "k1=v1,k2=v2" syntax.
package filters

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrParam marks malformed user parameters. The CLI maps it to exit code 1.
var ErrParam = errors.New("parameter error")

// Set is an ordered mapping from query-parameter name to value.
//
// The zero value is empty and ready to use. Set has value semantics for reads;
// use Clone before mutating a Set that someone else holds.
type Set struct {
	keys   []string
	values map[string]string
}

// Of builds a Set from alternating key/value strings.
func Of(kv ...string) Set {
	var s Set
	for i := 0; i+1 < len(kv); i += 2 {
		s.Set(kv[i], kv[i+1])
	}
	return s
}

// Set stores v under k; an existing key keeps its position.
func (s *Set) Set(k, v string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[k]; !ok {
		s.keys = append(s.keys, k)
	}
	s.values[k] = v
}

// Get returns the value for k.
func (s Set) Get(k string) (string, bool) {
	v, ok := s.values[k]
	return v, ok
}

// Keys returns parameter names in insertion order.
func (s Set) Keys() []string { return append([]string(nil), s.keys...) }

// Len returns the number of parameters.
func (s Set) Len() int { return len(s.keys) }

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := Set{
		keys:   append([]string(nil), s.keys...),
		values: make(map[string]string, len(s.values)),
	}
	for k, v := range s.values {
		out.values[k] = v
	}
	return out
}

// Encode renders the set as a URL query string in insertion order.
func (s Set) Encode() string {
	var b strings.Builder
	for i, k := range s.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(s.values[k]))
	}
	return b.String()
}

// String is the human form used in logs: k1=v1,k2=v2.
func (s Set) String() string {
	parts := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		parts = append(parts, k+"="+s.values[k])
	}
	return strings.Join(parts, ",")
}

// Parse parses "key1=value1,key2=value2" into a Set.
//
// Keys and values are trimmed. Empty items (",,") are skipped. Only the first
// '=' separates key from value, so values may contain '='. A later duplicate key
// overwrites the earlier value.
//
// Errors (wrapping ErrParam):
//   - an item without '='
//   - an item whose key is empty after trimming
func Parse(raw string) (Set, error) {
	var out Set
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return Set{}, fmt.Errorf("%w: filter %q does not contain '=' separator", ErrParam, item)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return Set{}, fmt.Errorf("%w: empty key found in filter %q", ErrParam, item)
		}
		out.Set(key, strings.TrimSpace(value))
	}
	return out, nil
}
