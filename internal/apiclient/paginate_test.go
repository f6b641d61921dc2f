package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"dogeexport/internal/filters"
)

// pagedServer serves `pages` pages of `perPage` grants each. meta controls
// where (if anywhere) the page total is reported.
func pagedServer(t *testing.T, rs *recordingServer, pages, perPage int, meta string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.record(r)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var items []string
		if page >= 1 && page <= pages {
			for i := 0; i < perPage; i++ {
				items = append(items, fmt.Sprintf(`{"grant_id":"G-%d-%d"}`, page, i))
			}
		}
		list := "[" + strings.Join(items, ",") + "]"
		switch meta {
		case "top":
			fmt.Fprintf(w, `{"result":{"grants":%s},"meta":{"pages":%d}}`, list, pages)
		case "result":
			fmt.Fprintf(w, `{"result":{"grants":%s,"meta":{"total_pages":"%d"}}}`, list, pages)
		default:
			fmt.Fprintf(w, `{"result":{"grants":%s}}`, list)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pageParams(queries []string) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		for _, kv := range strings.Split(q, "&") {
			if strings.HasPrefix(kv, "page=") {
				out = append(out, strings.TrimPrefix(kv, "page="))
			}
		}
	}
	return out
}

func TestPaginate_MetaPages(t *testing.T) {
	t.Parallel()

	for _, where := range []string{"top", "result"} {
		where := where
		t.Run(where, func(t *testing.T) {
			t.Parallel()
			rs := &recordingServer{}
			srv := pagedServer(t, rs, 3, 2, where)
			c := newTestClient(t, srv, func(cfg *Config) { cfg.PageSize = 2 })

			recs, err := c.Fetch(context.Background(), "/savings/grants", FetchOptions{})
			if err != nil {
				t.Fatalf("Fetch() err=%v", err)
			}
			if len(recs) != 6 {
				t.Fatalf("records=%d, want 6", len(recs))
			}
			if v, _ := recs[0].Get("grant_id"); v != "G-1-0" {
				t.Fatalf("first=%v, want G-1-0", v)
			}
			if v, _ := recs[5].Get("grant_id"); v != "G-3-1" {
				t.Fatalf("last=%v, want G-3-1", v)
			}
			q, _ := rs.snapshot()
			if got := strings.Join(pageParams(q), ","); got != "1,2,3" {
				t.Fatalf("pages requested=%s, want 1,2,3", got)
			}
			if !strings.Contains(q[0], "per_page=2") {
				t.Fatalf("query=%q, want per_page=2", q[0])
			}
		})
	}
}

func TestPaginate_StopsWithoutTotal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		pageSize  int
		wantPages string
		wantRecs  int
		wantShort bool
	}{
		// Full pages keep going until an empty page.
		{"empty page", 2, "1,2,3", 4, false},
		// A short page ends the walk.
		{"short page", 3, "1", 2, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rs := &recordingServer{}
			srv := pagedServer(t, rs, 2, 2, "")
			var logs bytes.Buffer
			c := newTestClient(t, srv, func(cfg *Config) {
				cfg.PageSize = tc.pageSize
				cfg.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
			})

			recs, err := c.Fetch(context.Background(), "/savings/grants", FetchOptions{})
			if err != nil {
				t.Fatalf("Fetch() err=%v", err)
			}
			q, _ := rs.snapshot()
			if got := strings.Join(pageParams(q), ","); got != tc.wantPages || len(recs) != tc.wantRecs {
				t.Fatalf("pages=%s records=%d, want %s and %d", got, len(recs), tc.wantPages, tc.wantRecs)
			}
			if got := strings.Contains(logs.String(), "short page without total"); got != tc.wantShort {
				t.Fatalf("short page logged=%t, want %t; logs=%s", got, tc.wantShort, logs.String())
			}
		})
	}
}

func TestPaginate_MaxPages(t *testing.T) {
	t.Parallel()

	rs := &recordingServer{}
	srv := pagedServer(t, rs, 10, 2, "top")
	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.PageSize = 2
		cfg.MaxPages = 4
	})

	recs, err := c.Fetch(context.Background(), "/savings/grants", FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if len(recs) != 8 {
		t.Fatalf("records=%d, want 8", len(recs))
	}
}

func TestPaginate_CallerParams(t *testing.T) {
	t.Parallel()

	rs := &recordingServer{}
	srv := pagedServer(t, rs, 3, 5, "top")
	c := newTestClient(t, srv, func(cfg *Config) { cfg.PageSize = 100 })

	params := filters.Of("agency", "GSA", "page", "2", "per_page", "5")
	recs, err := c.Fetch(context.Background(), "/savings/grants", FetchOptions{Params: params})
	if err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if len(recs) != 10 {
		t.Fatalf("records=%d, want 10 (pages 2 and 3)", len(recs))
	}
	q, _ := rs.snapshot()
	if q[0] != "agency=GSA&page=2&per_page=5" || q[1] != "agency=GSA&page=3&per_page=5" {
		t.Fatalf("queries=%v", q)
	}
	if v, _ := params.Get("page"); v != "2" {
		t.Fatalf("caller params mutated: page=%s", v)
	}
}

func TestPaginate_InvalidPage(t *testing.T) {
	t.Parallel()

	rs := &recordingServer{}
	srv := pagedServer(t, rs, 1, 1, "")
	c := newTestClient(t, srv, nil)

	_, err := c.Fetch(context.Background(), "/savings/grants", FetchOptions{Params: filters.Of("page", "first")})
	if !errors.Is(err, filters.ErrParam) {
		t.Fatalf("Fetch() err=%v, want ErrParam", err)
	}
}

func TestPaginate_DisabledSendsNoPageParams(t *testing.T) {
	t.Parallel()

	rs := &recordingServer{}
	srv := pagedServer(t, rs, 3, 2, "top")
	c := newTestClient(t, srv, func(cfg *Config) { cfg.PageSize = 2 })

	_, err := c.Fetch(context.Background(), "/savings/grants", FetchOptions{NoPaginate: true})
	if err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	q, _ := rs.snapshot()
	if len(q) != 1 || q[0] != "" {
		t.Fatalf("queries=%v, want one bare request", q)
	}
}

func TestPaginate_ErrorMidway(t *testing.T) {
	t.Parallel()

	rs := &recordingServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rs.record(r) == 1 {
			_, _ = io.WriteString(w, `{"data":[{"id":1}],"meta":{"pages":2}}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	recs, err := c.Fetch(context.Background(), "/budget", FetchOptions{})
	if !errors.Is(err, ErrHTTPStatus) || recs != nil {
		t.Fatalf("Fetch()=(%d records, %v), want ErrHTTPStatus and no records", len(recs), err)
	}
}
