package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dogeexport/internal/filters"
	"dogeexport/internal/metrics"
	"dogeexport/pkg/records"
)

func (c *Client) paginate(ctx context.Context, method, endpoint string, opts FetchOptions) ([]records.Record, error) {
	params := opts.Params.Clone()

	page := 1
	if v, ok := params.Get("page"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("apiclient: %w: page %q must be a positive integer", filters.ErrParam, v)
		}
		page = n
	}

	perPage := c.cfg.PageSize
	if v, ok := params.Get("per_page"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			perPage = n
		}
	} else if perPage > 0 {
		params.Set("per_page", strconv.Itoa(perPage))
	}

	var out []records.Record
	total := 0
	for fetched := 0; ; fetched++ {
		if c.cfg.MaxPages > 0 && fetched >= c.cfg.MaxPages {
			c.log.Warn("page limit reached; result may be incomplete",
				"endpoint", endpoint, "max_pages", c.cfg.MaxPages, "records", len(out))
			break
		}

		params.Set("page", strconv.Itoa(page))
		body, err := c.do(ctx, method, endpoint, params, opts.Body)
		if err != nil {
			return nil, err
		}
		metrics.RecordPage(opts.Category)

		items := Extract(endpoint, body, c.log)
		if len(items) == 0 {
			break
		}
		out = append(out, items...)

		if n, ok := totalPages(body); ok {
			total = n
		}
		c.log.Debug("page fetched", "endpoint", endpoint, "page", page, "total_pages", total, "items", len(items))

		if total > 0 {
			if page >= total {
				break
			}
		} else if perPage > 0 && len(items) < perPage {
			// Without a total a short page is taken as the last one. A server
			// that caps per_page below the requested size and sends no meta
			// loses its later pages here.
			c.log.Debug("short page without total; stopping",
				"endpoint", endpoint, "page", page, "items", len(items), "per_page", perPage)
			break
		}
		page++
	}
	return out, nil
}

// totalPages reads meta.pages or meta.total_pages, looking at the top-level
// meta first and result.meta second.
func totalPages(body any) (int, bool) {
	root, ok := body.(records.Record)
	if !ok {
		return 0, false
	}
	if n, ok := pagesIn(root); ok {
		return n, true
	}
	if res, ok := root.Get("result"); ok {
		if r, ok := res.(records.Record); ok {
			return pagesIn(r)
		}
	}
	return 0, false
}

func pagesIn(r records.Record) (int, bool) {
	m, ok := r.Get("meta")
	if !ok {
		return 0, false
	}
	meta, ok := m.(records.Record)
	if !ok {
		return 0, false
	}
	for _, k := range []string{"pages", "total_pages"} {
		v, ok := meta.Get(k)
		if !ok {
			continue
		}
		if n, ok := asInt(v); ok && n > 0 {
			return n, true
		}
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), true
		}
		if f, err := x.Float64(); err == nil && f == float64(int(f)) {
			return int(f), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n, true
		}
	case float64:
		return int(x), true
	}
	return 0, false
}
