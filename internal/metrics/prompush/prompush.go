// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// A batch export is too short-lived to be scraped, so metrics accumulate in a
// private registry and Flush pushes the whole registry (HTTP PUT) under the job
// name. Pushing replaces the job's previous group, so repeated flushes are
// idempotent.
package prompush

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"dogeexport/internal/metrics"
)

// Backend implements metrics.Backend on top of a Prometheus registry.
type Backend struct {
	pusher *push.Pusher
	reg    *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labelKeys  map[string][]string
}

// Option customizes the backend.
type Option func(*Backend)

// WithGrouping adds a Pushgateway grouping label (e.g. "instance").
func WithGrouping(name, value string) Option {
	return func(b *Backend) { b.pusher = b.pusher.Grouping(name, value) }
}

// WithClient overrides the HTTP client used for pushes.
func WithClient(c push.HTTPDoer) Option {
	return func(b *Backend) { b.pusher = b.pusher.Client(c) }
}

// NewBackend registers the export metrics and prepares a pusher for gatewayURL.
//
// Errors:
//   - gatewayURL or job is empty
func NewBackend(job, gatewayURL string, opts ...Option) (*Backend, error) {
	if strings.TrimSpace(job) == "" {
		return nil, fmt.Errorf("prompush: empty job name")
	}
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: empty pushgateway URL")
	}

	reg := prometheus.NewRegistry()
	b := &Backend{
		pusher:     push.New(gatewayURL, job).Gatherer(reg),
		reg:        reg,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		labelKeys:  map[string][]string{},
	}

	b.counter(metrics.CategoryTotal, "Category exports by outcome.", "category", "status")
	b.counter(metrics.RecordsTotal, "Records exported per category.", "category")
	b.counter(metrics.PagesTotal, "API pages fetched per category.", "category")
	b.counter(metrics.HTTPRequestsTotal, "HTTP attempts by status.", "status")
	b.counter(metrics.HTTPErrorsTotal, "Failed HTTP attempts by status.", "status")

	b.histogram(metrics.CategoryDurationSeconds, "Wall time per category export.", prometheus.ExponentialBuckets(0.25, 2, 12), "category", "status")
	b.histogram(metrics.HTTPRequestDurationSeconds, "Time to response headers.", prometheus.DefBuckets, "status")
	b.histogram(metrics.HTTPResponseDurationSeconds, "Time to read the response body.", prometheus.DefBuckets, "status")
	b.histogram(metrics.HTTPDownloadBytes, "Response body size.", prometheus.ExponentialBuckets(256, 4, 10), "status")

	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *Backend) counter(name, help string, labels ...string) {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dogeexport_" + strings.TrimPrefix(name, "export_"), Help: help}, labels)
	b.reg.MustRegister(v)
	b.counters[name] = v
	b.labelKeys[name] = labels
}

func (b *Backend) histogram(name, help string, buckets []float64, labels ...string) {
	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "dogeexport_" + strings.TrimPrefix(name, "export_"), Help: help, Buckets: buckets}, labels)
	b.reg.MustRegister(v)
	b.histograms[name] = v
	b.labelKeys[name] = labels
}

func (b *Backend) values(name string, l metrics.Labels) []string {
	keys := b.labelKeys[name]
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = l[k]
		if out[i] == "" {
			out[i] = "unknown"
		}
	}
	return out
}

// IncCounter implements metrics.Backend. Unknown names and non-positive deltas
// are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	v, ok := b.counters[name]
	if !ok {
		return
	}
	v.WithLabelValues(b.values(name, labels)...).Add(delta)
}

// ObserveHistogram implements metrics.Backend. Unknown names and negative values
// are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	v, ok := b.histograms[name]
	if !ok {
		return
	}
	v.WithLabelValues(b.values(name, labels)...).Observe(value)
}

// Flush pushes the registry to the gateway.
func (b *Backend) Flush() error {
	return b.FlushContext(context.Background())
}

// FlushContext is Flush with a caller-controlled deadline.
func (b *Backend) FlushContext(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

// Registry exposes the underlying registry, mainly for tests.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

var _ metrics.Backend = (*Backend)(nil)
