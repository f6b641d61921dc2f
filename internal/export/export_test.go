package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dogeexport/internal/apiclient"
	"dogeexport/internal/config"
	"dogeexport/internal/filters"
	"dogeexport/internal/metrics"
	"dogeexport/internal/transformer"
	"dogeexport/internal/writer"
	"dogeexport/pkg/records"
)

type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string][]records.Record
	errs  map[string]error
	calls []string
	opts  []apiclient.FetchOptions
}

func (f *fakeFetcher) Fetch(_ context.Context, endpoint string, opts apiclient.FetchOptions) ([]records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpoint)
	f.opts = append(f.opts, opts)
	if err := f.errs[endpoint]; err != nil {
		return nil, err
	}
	return f.data[endpoint], nil
}

type written struct {
	base, sheet string
	table       transformer.Table
}

type fakeSink struct {
	mu     sync.Mutex
	writes []written
	err    error
}

func (s *fakeSink) Write(_ context.Context, t transformer.Table, base, sheet string, _ writer.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.writes = append(s.writes, written{base, sheet, t})
	return filepath.Join("out", base+".xlsx"), nil
}

func grants() []records.Record {
	return []records.Record{
		records.New("grant_id", "G-1", "agency", "GSA", "savings", "$1,250.50", "date", "2025-02-01"),
		records.New("grant_id", "G-2", "agency", "HHS", "savings", "", "date", ""),
	}
}

func TestNew_UnknownTransformKind(t *testing.T) {
	t.Parallel()

	cats := []config.Category{{Name: "x", Endpoint: "/x", Transforms: map[string]string{"amount": "money"}}}
	if _, err := New(cats, &fakeFetcher{}, &fakeSink{}, nil); err == nil || !strings.Contains(err.Error(), `"amount"`) {
		t.Fatalf("New() err=%v, want unknown kind for amount", err)
	}
}

func TestExportCategory_AppliesTransforms(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{data: map[string][]records.Record{"/savings/grants": grants()}}
	s := &fakeSink{}
	e, err := New(config.DefaultCategories(), f, s, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	res := e.ExportCategory(context.Background(), "grants", filters.Of("agency", "GSA"))
	if res.Err != nil || !res.OK() || res.Records != 2 {
		t.Fatalf("ExportCategory()=%+v", res)
	}
	if len(s.writes) != 1 || s.writes[0].base != "grants_savings" || s.writes[0].sheet != "Grant Savings" {
		t.Fatalf("writes=%+v", s.writes)
	}
	if v, _ := f.opts[0].Params.Get("agency"); v != "GSA" || f.opts[0].Category != "grants" {
		t.Fatalf("fetch opts=%+v", f.opts[0])
	}

	tbl := s.writes[0].table
	si, di := tbl.ColumnIndex("savings"), tbl.ColumnIndex("date")
	if got := tbl.Rows[0][si]; got != 1250.5 {
		t.Fatalf("savings[0]=%v (%T), want 1250.5", got, got)
	}
	if got := tbl.Rows[1][si]; got != 0.0 {
		t.Fatalf("savings[1]=%v, want 0", got)
	}
	if d, ok := tbl.Rows[0][di].(time.Time); !ok || d.Format("2006-01-02") != "2025-02-01" {
		t.Fatalf("date[0]=%v (%T)", tbl.Rows[0][di], tbl.Rows[0][di])
	}
	if tbl.Rows[1][di] != nil {
		t.Fatalf("date[1]=%v, want nil", tbl.Rows[1][di])
	}
}

func TestExportCategory_KeepsRepeatedIDs(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{data: map[string][]records.Record{"/savings/grants": {
		records.New("grant_id", "G-1", "agency", "GSA"),
		records.New("grant_id", "G-1", "agency", "HHS"),
	}}}
	s := &fakeSink{}
	e, _ := New(config.DefaultCategories(), f, s, nil)

	res := e.ExportCategory(context.Background(), "grants", filters.Set{})
	if res.Err != nil || res.Records != 2 {
		t.Fatalf("ExportCategory()=%+v, want 2 records", res)
	}
	tbl := s.writes[0].table
	ai := tbl.ColumnIndex("agency")
	if tbl.Len() != 2 || tbl.Rows[0][ai] != "GSA" || tbl.Rows[1][ai] != "HHS" {
		t.Fatalf("rows=%v, want both GSA and HHS", tbl.Rows)
	}
}

func TestExportCategory_UnknownName(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}
	e, _ := New(config.DefaultCategories(), f, &fakeSink{}, nil)
	res := e.ExportCategory(context.Background(), "payroll", filters.Set{})
	if !errors.Is(res.Err, filters.ErrParam) || res.OK() {
		t.Fatalf("ExportCategory(payroll)=%+v, want ErrParam", res)
	}
	if len(f.calls) != 0 {
		t.Fatalf("fetch called for unknown category")
	}
}

func TestExportCategory_Failures(t *testing.T) {
	t.Parallel()

	badDate := []records.Record{records.New("grant_id", "G-1", "date", "someday")}
	cases := []struct {
		name    string
		fetcher *fakeFetcher
		sink    *fakeSink
		wantErr error
		wantSub string
	}{
		{
			name:    "fetch",
			fetcher: &fakeFetcher{errs: map[string]error{"/savings/grants": apiclient.ErrConnection}},
			sink:    &fakeSink{},
			wantErr: apiclient.ErrConnection,
			wantSub: "fetch",
		},
		{
			name:    "transform",
			fetcher: &fakeFetcher{data: map[string][]records.Record{"/savings/grants": badDate}},
			sink:    &fakeSink{},
			wantSub: `column "date" row 1`,
		},
		{
			name:    "write",
			fetcher: &fakeFetcher{data: map[string][]records.Record{"/savings/grants": grants()}},
			sink:    &fakeSink{err: errors.New("disk full")},
			wantSub: "write: disk full",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, _ := New(config.DefaultCategories(), tc.fetcher, tc.sink, nil)
			res := e.ExportCategory(context.Background(), "grants", filters.Set{})
			if res.OK() || res.Err == nil {
				t.Fatalf("ExportCategory()=%+v, want failure", res)
			}
			if tc.wantErr != nil && !errors.Is(res.Err, tc.wantErr) {
				t.Fatalf("err=%v, want %v", res.Err, tc.wantErr)
			}
			if !strings.Contains(res.Err.Error(), tc.wantSub) {
				t.Fatalf("err=%q, want it to contain %q", res.Err, tc.wantSub)
			}
		})
	}
}

func TestExportCategory_EmptyDataset(t *testing.T) {
	t.Parallel()

	s := &fakeSink{}
	e, _ := New(config.DefaultCategories(), &fakeFetcher{}, s, nil)
	res := e.ExportCategory(context.Background(), "leases", filters.Set{})
	if res.OK() || res.Err != nil {
		t.Fatalf("ExportCategory()=%+v, want empty result without error", res)
	}
	if len(s.writes) != 0 {
		t.Fatalf("sink called for empty dataset")
	}
}

type metricRecorder struct {
	mu       sync.Mutex
	statuses map[string]string
}

func (r *metricRecorder) IncCounter(name string, _ float64, l metrics.Labels) {
	if name != metrics.CategoryTotal {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[l["category"]] = l["status"]
}
func (r *metricRecorder) ObserveHistogram(string, float64, metrics.Labels) {}
func (r *metricRecorder) Flush() error                                     { return nil }

// TestExportAll_Independent swaps the metrics backend, so it does not run in parallel.
func TestExportAll_Independent(t *testing.T) {
	rec := &metricRecorder{statuses: map[string]string{}}
	metrics.SetBackend(rec)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	f := &fakeFetcher{
		data: map[string][]records.Record{
			"/savings/grants": grants(),
			"/savings/leases": {records.New("lease_id", "L-1", "value", "10")},
		},
		errs: map[string]error{
			"/savings/contracts": &apiclient.HTTPError{StatusCode: 500, URL: "https://api.doge.gov/savings/contracts"},
			"/departments":       &apiclient.HTTPError{StatusCode: 404, URL: "https://api.doge.gov/departments"},
		},
	}
	e, _ := New(config.DefaultCategories(), f, &fakeSink{}, nil)

	sum := e.ExportAll(context.Background(), filters.Set{})
	if len(sum.Results) != 8 {
		t.Fatalf("results=%d, want 8", len(sum.Results))
	}
	paths := sum.Paths()
	if paths["grants"] == "" || paths["leases"] == "" {
		t.Fatalf("Paths()=%v, want grants and leases written", paths)
	}
	if paths["contracts"] != "" || paths["departments"] != "" {
		t.Fatalf("Paths()=%v, want contracts and departments empty", paths)
	}
	if sum.Succeeded() != 2 {
		t.Fatalf("Succeeded()=%d, want 2", sum.Succeeded())
	}
	if !errors.Is(sum.FirstErr(), apiclient.ErrHTTPStatus) {
		t.Fatalf("FirstErr()=%v", sum.FirstErr())
	}
	if got := strings.Join(f.calls, ","); !strings.HasPrefix(got, "/savings/grants,/savings/contracts,/savings/leases,/departments") {
		t.Fatalf("fetch order=%s", got)
	}
	if rec.statuses["grants"] != metrics.StatusOK || rec.statuses["contracts"] != metrics.StatusError || rec.statuses["budget"] != metrics.StatusEmpty {
		t.Fatalf("category statuses=%v", rec.statuses)
	}
}

func TestExportAll_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeFetcher{}
	e, _ := New(config.DefaultCategories(), f, &fakeSink{}, nil)
	sum := e.ExportAll(ctx, filters.Set{})
	if len(sum.Results) != 8 || !errors.Is(sum.FirstErr(), context.Canceled) {
		t.Fatalf("ExportAll()=%+v", sum)
	}
	if len(f.calls) != 0 {
		t.Fatalf("fetch called %d times after cancel", len(f.calls))
	}
}

func TestExportCategory_WritesRealFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := writer.New(writer.Config{OutputDir: dir, Engine: writer.EngineCSV})
	f := &fakeFetcher{data: map[string][]records.Record{"/savings/grants": grants()}}
	e, _ := New(config.DefaultCategories(), f, w, nil)

	res := e.ExportCategory(context.Background(), "grants", filters.Set{})
	if res.Err != nil {
		t.Fatalf("ExportCategory() err=%v", res.Err)
	}
	if filepath.Dir(res.Path) != dir || filepath.Base(res.Path) != "grants_savings.csv" {
		t.Fatalf("Path=%q", res.Path)
	}
	raw, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "G-1,GSA,1250.5,2025-02-01") {
		t.Fatalf("file content=%q", raw)
	}
}
