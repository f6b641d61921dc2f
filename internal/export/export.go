// Package export runs the per-category pipeline: fetch from the API, transform
// into a table, write the table to a file.
//
// Categories are independent. A failure in one is logged, counted and recorded
// in its Result; it never stops the others.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dogeexport/internal/apiclient"
	"dogeexport/internal/config"
	"dogeexport/internal/filters"
	"dogeexport/internal/logging"
	"dogeexport/internal/metrics"
	"dogeexport/internal/transformer"
	"dogeexport/internal/transformer/builtin"
	"dogeexport/internal/writer"
	"dogeexport/pkg/records"
)

// Fetcher retrieves records for an endpoint. *apiclient.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, opts apiclient.FetchOptions) ([]records.Record, error)
}

// Sink persists a table and returns the written path, "" when nothing was
// written. *writer.Writer implements it.
type Sink interface {
	Write(ctx context.Context, t transformer.Table, base, sheet string, opts writer.Options) (string, error)
}

// Result is the outcome of one category export.
type Result struct {
	Category string
	// Path is the written file; "" means the export failed or had no data.
	Path    string
	Records int
	// Err is the failure reason. It is nil for an empty dataset.
	Err      error
	Duration time.Duration
}

// OK reports whether a file was written.
func (r Result) OK() bool { return r.Path != "" }

// Summary holds the results of ExportAll in category order.
type Summary struct {
	Results []Result
}

// Paths maps category name to written path ("" on failure).
func (s Summary) Paths() map[string]string {
	out := make(map[string]string, len(s.Results))
	for _, r := range s.Results {
		out[r.Category] = r.Path
	}
	return out
}

// Succeeded counts categories that produced a file.
func (s Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// FirstErr returns the first recorded failure reason, or nil.
func (s Summary) FirstErr() error {
	for _, r := range s.Results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Exporter wires the client, transformer and writer together.
type Exporter struct {
	categories []config.Category
	transforms map[string]map[string]transformer.Func
	fetch      Fetcher
	sink       Sink
	log        *slog.Logger
	now        func() time.Time
}

// New resolves every category's transform table up front.
//
// Errors:
//   - a category names an unknown transform kind
func New(categories []config.Category, f Fetcher, s Sink, log *slog.Logger) (*Exporter, error) {
	e := &Exporter{
		categories: append([]config.Category(nil), categories...),
		transforms: make(map[string]map[string]transformer.Func, len(categories)),
		fetch:      f,
		sink:       s,
		log:        logging.OrDiscard(log),
		now:        time.Now,
	}
	for _, c := range categories {
		fns := make(map[string]transformer.Func, len(c.Transforms))
		for _, col := range c.TransformColumns() {
			fn, err := builtin.Lookup(c.Transforms[col])
			if err != nil {
				return nil, fmt.Errorf("export: category %q column %q: %w", c.Name, col, err)
			}
			fns[col] = fn
		}
		e.transforms[c.Name] = fns
	}
	return e, nil
}

// Categories returns the configured category names in export order.
func (e *Exporter) Categories() []string {
	out := make([]string, 0, len(e.categories))
	for _, c := range e.categories {
		out = append(out, c.Name)
	}
	return out
}

func (e *Exporter) category(name string) (config.Category, bool) {
	for _, c := range e.categories {
		if c.Name == name {
			return c, true
		}
	}
	return config.Category{}, false
}

// ExportCategory exports one category.
//
// Unknown names yield a Result whose Err wraps filters.ErrParam. Every other
// failure (fetch, transform, write) is logged, counted and returned in the Result.
func (e *Exporter) ExportCategory(ctx context.Context, name string, params filters.Set) Result {
	cat, ok := e.category(name)
	if !ok {
		return Result{
			Category: name,
			Err:      fmt.Errorf("export: %w: unknown data type %q (valid: %s)", filters.ErrParam, name, strings.Join(e.Categories(), ", ")),
		}
	}

	start := e.now()
	res := e.run(ctx, cat, params)
	res.Duration = e.now().Sub(start)

	switch {
	case res.OK():
		metrics.RecordCategory(cat.Name, metrics.StatusOK, res.Duration, res.Records)
		e.log.Info("exported category", "category", cat.Name, "path", res.Path, "records", res.Records, "elapsed", res.Duration.Round(time.Millisecond))
	case res.Err == nil:
		metrics.RecordCategory(cat.Name, metrics.StatusEmpty, res.Duration, 0)
		e.log.Warn("no data to export", "category", cat.Name)
	default:
		metrics.RecordCategory(cat.Name, metrics.StatusError, res.Duration, 0)
		if cat.Legacy {
			e.log.Warn("legacy endpoint failed (it may be deprecated)", "category", cat.Name, "endpoint", cat.Endpoint, "err", res.Err)
		} else {
			e.log.Error("export failed", "category", cat.Name, "endpoint", cat.Endpoint, "err", res.Err)
		}
	}
	return res
}

func (e *Exporter) run(ctx context.Context, cat config.Category, params filters.Set) Result {
	res := Result{Category: cat.Name}
	e.log.Info("exporting category", "category", cat.Name, "label", cat.Label, "legacy", cat.Legacy, "filters", params.String())

	recs, err := e.fetch.Fetch(ctx, cat.Endpoint, apiclient.FetchOptions{Params: params, Category: cat.Name})
	if err != nil {
		res.Err = fmt.Errorf("export %s: fetch: %w", cat.Name, err)
		return res
	}
	e.log.Debug("fetched records", "category", cat.Name, "records", len(recs))
	if len(recs) == 0 {
		return res
	}

	table, err := transformer.Transform(recs, e.transforms[cat.Name], transformer.Options{
		IDField: cat.IDField,
		Logger:  e.log.With("category", cat.Name),
	})
	if err != nil {
		res.Err = fmt.Errorf("export %s: transform: %w", cat.Name, err)
		return res
	}

	path, err := e.sink.Write(ctx, table, cat.FileBase, cat.Label, writer.Options{})
	if err != nil {
		res.Err = fmt.Errorf("export %s: write: %w", cat.Name, err)
		return res
	}
	res.Path = path
	res.Records = table.Len()
	return res
}

// ExportAll exports every configured category in order. It always returns a
// result per category; once ctx is done the remaining categories are recorded
// as failed without being attempted.
func (e *Exporter) ExportAll(ctx context.Context, params filters.Set) Summary {
	sum := Summary{Results: make([]Result, 0, len(e.categories))}
	for _, c := range e.categories {
		if err := ctx.Err(); err != nil {
			sum.Results = append(sum.Results, Result{Category: c.Name, Err: fmt.Errorf("export %s: %w", c.Name, err)})
			continue
		}
		sum.Results = append(sum.Results, e.ExportCategory(ctx, c.Name, params))
	}
	e.log.Info("export finished", "categories", len(sum.Results), "succeeded", sum.Succeeded())
	return sum
}
