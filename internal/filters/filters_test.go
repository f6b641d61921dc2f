package filters

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		wantKeys []string
		wantVals map[string]string
		wantErr  string
	}{
		{name: "empty", in: "", wantKeys: nil},
		{name: "blank", in: "   ", wantKeys: nil},
		{
			name:     "single",
			in:       "department=Treasury",
			wantKeys: []string{"department"},
			wantVals: map[string]string{"department": "Treasury"},
		},
		{
			name:     "trims_whitespace",
			in:       "  sort_by = savings ,  sort_order=desc  ",
			wantKeys: []string{"sort_by", "sort_order"},
			wantVals: map[string]string{"sort_by": "savings", "sort_order": "desc"},
		},
		{
			name:     "skips_empty_items",
			in:       "a=1,,b=2,",
			wantKeys: []string{"a", "b"},
			wantVals: map[string]string{"a": "1", "b": "2"},
		},
		{
			name:     "value_keeps_extra_equals",
			in:       "q=x=y",
			wantKeys: []string{"q"},
			wantVals: map[string]string{"q": "x=y"},
		},
		{
			name:     "empty_value_allowed",
			in:       "agency=",
			wantKeys: []string{"agency"},
			wantVals: map[string]string{"agency": ""},
		},
		{
			name:     "duplicate_key_last_wins_first_position",
			in:       "a=1,b=2,a=3",
			wantKeys: []string{"a", "b"},
			wantVals: map[string]string{"a": "3", "b": "2"},
		},
		{name: "missing_separator", in: "a=1,broken", wantErr: "does not contain '='"},
		{name: "empty_key", in: " =value", wantErr: "empty key"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tc.in)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("Parse(%q) err=%v, want contains %q", tc.in, err, tc.wantErr)
				}
				if !errors.Is(err, ErrParam) {
					t.Fatalf("Parse(%q) err=%v, want errors.Is ErrParam", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) err=%v, want nil", tc.in, err)
			}
			if !reflect.DeepEqual(got.Keys(), tc.wantKeys) {
				t.Fatalf("Keys()=%v, want %v", got.Keys(), tc.wantKeys)
			}
			for k, want := range tc.wantVals {
				if v, ok := got.Get(k); !ok || v != want {
					t.Fatalf("Get(%q)=(%q,%v), want %q", k, v, ok, want)
				}
			}
		})
	}
}

func TestSet_EncodeKeepsOrderAndEscapes(t *testing.T) {
	t.Parallel()

	s := Of("sort_by", "savings", "agency", "Dept of X&Y")
	if got, want := s.Encode(), "sort_by=savings&agency=Dept+of+X%26Y"; got != want {
		t.Fatalf("Encode()=%q, want %q", got, want)
	}
	if got, want := s.String(), "sort_by=savings,agency=Dept of X&Y"; got != want {
		t.Fatalf("String()=%q, want %q", got, want)
	}
}

func TestSet_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := Of("a", "1")
	cp := orig.Clone()
	cp.Set("a", "2")
	cp.Set("b", "3")

	if v, _ := orig.Get("a"); v != "1" {
		t.Fatalf("orig a=%q, want 1", v)
	}
	if orig.Len() != 1 {
		t.Fatalf("orig.Len()=%d, want 1", orig.Len())
	}
}
