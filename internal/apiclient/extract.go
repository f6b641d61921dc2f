package apiclient

import (
	"log/slog"
	"strings"

	"dogeexport/pkg/records"
)

// Extract pulls the list of items out of a decoded response envelope.
//
// Lookup order:
//  1. "result" is an object: the list under the endpoint's last path segment
//     (only for endpoints with at least two segments), else the first
//     list-valued entry of "result" in wire order.
//  2. "result" is a list.
//  3. no "result", and "data" is a list.
//  4. the body itself is a list.
//  5. otherwise the whole body, as a single record (logged as a warning).
//
// Non-object items are wrapped as {"value": item}.
func Extract(endpoint string, body any, log *slog.Logger) []records.Record {
	if items, ok := extractList(endpoint, body); ok {
		return toRecords(items)
	}

	if log != nil {
		log.Warn("could not extract structured data from response", "endpoint", endpoint)
		if obj, ok := body.(records.Record); ok {
			log.Debug("response keys", "endpoint", endpoint, "keys", obj.Keys())
		}
	}
	if body == nil {
		return nil
	}
	return []records.Record{records.FromValue(body)}
}

func extractList(endpoint string, body any) ([]any, bool) {
	switch v := body.(type) {
	case []any:
		return v, true
	case records.Record:
		if result, ok := v.Get("result"); ok {
			switch r := result.(type) {
			case records.Record:
				return listInResult(endpoint, r)
			case []any:
				return r, true
			}
			return nil, false
		}
		if data, ok := v.Get("data"); ok {
			if list, ok := data.([]any); ok {
				return list, true
			}
		}
	}
	return nil, false
}

func listInResult(endpoint string, result records.Record) ([]any, bool) {
	if name := dataTypeOf(endpoint); name != "" {
		if list, ok := getList(result, name); ok {
			return list, true
		}
	}

	var found []any
	ok := false
	result.Range(func(_ string, val any) bool {
		if list, isList := val.([]any); isList {
			found, ok = list, true
			return false
		}
		return true
	})
	return found, ok
}

// dataTypeOf returns the last path segment ("grants" for "/savings/grants"),
// or "" when the endpoint has fewer than two segments.
func dataTypeOf(endpoint string) string {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-1]
}

func getList(r records.Record, key string) ([]any, bool) {
	v, ok := r.Get(key)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	return list, ok
}

func toRecords(items []any) []records.Record {
	out := make([]records.Record, 0, len(items))
	for _, it := range items {
		out = append(out, records.FromValue(it))
	}
	return out
}
