package records

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDecode_PreservesKeyOrder(t *testing.T) {
	t.Parallel()

	v, err := DecodeBytes([]byte(`{"zeta": 1, "alpha": {"b": [1, "x"], "a": null}, "mid": true}`))
	if err != nil {
		t.Fatalf("DecodeBytes() err=%v, want nil", err)
	}
	rec, ok := v.(Record)
	if !ok {
		t.Fatalf("root=%T, want Record", v)
	}
	if got, want := rec.Keys(), []string{"zeta", "alpha", "mid"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys()=%v, want %v", got, want)
	}

	n, _ := rec.Get("zeta")
	if n != json.Number("1") {
		t.Fatalf("zeta=%#v, want json.Number(1)", n)
	}

	nested, _ := rec.Get("alpha")
	nr, ok := nested.(Record)
	if !ok {
		t.Fatalf("alpha=%T, want Record", nested)
	}
	if got, want := nr.Keys(), []string{"b", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("alpha.Keys()=%v, want %v", got, want)
	}
	list, _ := nr.Get("b")
	if got, want := list, []any{json.Number("1"), "x"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("alpha.b=%#v, want %#v", got, want)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantSub string
	}{
		{name: "empty", in: "", wantSub: "empty JSON document"},
		{name: "whitespace_only", in: "  \n", wantSub: "empty JSON document"},
		{name: "trailing_value", in: `{"a":1} {"b":2}`, wantSub: "trailing data"},
		{name: "truncated_object", in: `{"a":`, wantSub: "records:"},
		{name: "html_body", in: `<html></html>`, wantSub: "invalid character"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(strings.NewReader(tc.in))
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("Decode(%q) err=%v, want contains %q", tc.in, err, tc.wantSub)
			}
		})
	}
}

func TestDecode_BareArrayAndScalars(t *testing.T) {
	t.Parallel()

	v, err := DecodeBytes([]byte(`[{"id": 1}, 2, "three", null]`))
	if err != nil {
		t.Fatalf("DecodeBytes() err=%v", err)
	}
	list, ok := v.([]any)
	if !ok || len(list) != 4 {
		t.Fatalf("root=%#v, want 4-element list", v)
	}
	if _, ok := list[0].(Record); !ok {
		t.Fatalf("list[0]=%T, want Record", list[0])
	}
	if list[3] != nil {
		t.Fatalf("list[3]=%#v, want nil", list[3])
	}
}

func TestRecord_SetKeepsFirstPosition(t *testing.T) {
	t.Parallel()

	r := New("a", 1, "b", 2)
	r.Set("a", 3)
	r.Set("c", nil)

	if got, want := r.Keys(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys()=%v, want %v", got, want)
	}
	if v, _ := r.Get("a"); v != 3 {
		t.Fatalf("a=%v, want 3", v)
	}
	if !r.Has("c") {
		t.Fatalf("Has(c)=false, want true for nil-valued key")
	}
	if r.Len() != 3 {
		t.Fatalf("Len()=%d, want 3", r.Len())
	}
}

func TestRecord_MarshalJSONKeepsOrder(t *testing.T) {
	t.Parallel()

	v, err := DecodeBytes([]byte(`{"b":1,"a":{"y":[true,null],"x":"s"}}`))
	if err != nil {
		t.Fatalf("DecodeBytes() err=%v", err)
	}
	got, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	if want := `{"b":1,"a":{"y":[true,null],"x":"s"}}`; string(got) != want {
		t.Fatalf("Marshal()=%s, want %s", got, want)
	}
}

func TestFromValue(t *testing.T) {
	t.Parallel()

	obj := New("id", "g-1")
	if got := FromValue(obj); !reflect.DeepEqual(got.Keys(), []string{"id"}) {
		t.Fatalf("FromValue(record).Keys()=%v", got.Keys())
	}

	wrapped := FromValue("plain")
	v, ok := wrapped.Get("value")
	if !ok || v != "plain" {
		t.Fatalf("FromValue(scalar) value=%v ok=%v, want plain", v, ok)
	}
}
