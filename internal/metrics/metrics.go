// Package metrics is the backend-agnostic instrumentation layer.
//
// Code records through the package-level helpers; cmd/dogeexport installs a
// concrete Backend (Datadog or Prometheus Pushgateway) once at startup with
// SetBackend. Until then a no-op backend swallows everything, so tests and
// library callers never need to configure metrics.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names. Backends map these to their own naming schemes and ignore any
// name they do not know.
const (
	CategoryTotal           = "export_category_total"            // labels: category, status
	CategoryDurationSeconds = "export_category_duration_seconds" // labels: category, status
	RecordsTotal            = "export_records_total"             // labels: category
	PagesTotal              = "export_pages_total"               // labels: category

	HTTPRequestsTotal           = "export_http_requests_total"            // labels: status
	HTTPErrorsTotal             = "export_http_errors_total"              // labels: status
	HTTPRequestDurationSeconds  = "export_http_request_duration_seconds"  // labels: status
	HTTPResponseDurationSeconds = "export_http_response_duration_seconds" // labels: status
	HTTPDownloadBytes           = "export_http_download_bytes"            // labels: status
)

// Category outcome label values.
const (
	StatusOK    = "ok"
	StatusEmpty = "empty"
	StatusError = "error"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events.
//
// Implementations must be safe for concurrent use. Flush pushes whatever is
// buffered; backends that stream directly may return nil.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter on the current backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the current backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the current backend.
func Flush() error {
	return current().Flush()
}

// RecordHTTP records one HTTP attempt.
//
// status is the response status code, or 0 when no response arrived. err marks
// the attempt as failed even when a status is present. reqDur is time to
// response headers, respDur the time spent reading the body, size the body
// length in bytes.
func RecordHTTP(status int, err error, reqDur, respDur time.Duration, size int64) {
	b := current()
	l := Labels{"status": statusLabel(status)}

	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status == 0 || status >= 400 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	b.ObserveHistogram(HTTPRequestDurationSeconds, reqDur.Seconds(), l)
	if status != 0 {
		b.ObserveHistogram(HTTPResponseDurationSeconds, respDur.Seconds(), l)
		b.ObserveHistogram(HTTPDownloadBytes, float64(size), l)
	}
}

// RecordCategory records the outcome of one category export.
func RecordCategory(category, status string, dur time.Duration, records int) {
	b := current()
	l := Labels{"category": category, "status": status}
	b.IncCounter(CategoryTotal, 1, l)
	b.ObserveHistogram(CategoryDurationSeconds, dur.Seconds(), l)
	if records > 0 {
		b.IncCounter(RecordsTotal, float64(records), Labels{"category": category})
	}
}

// RecordPage counts one fetched page for a category (or endpoint).
func RecordPage(category string) {
	current().IncCounter(PagesTotal, 1, Labels{"category": category})
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
