// Package apiclient talks to the DOGE government-data API.
//
// A Client issues authenticated JSON requests through a retrying transport,
// walks paginated result sets and pulls the item list out of whichever
// envelope shape the endpoint returns. Every failure is returned to the caller
// wrapped in one of ErrConnection, ErrTimeout, ErrHTTPStatus or ErrRequest.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dogeexport/internal/filters"
	"dogeexport/internal/logging"
	"dogeexport/pkg/records"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "dogeexport/1.0"

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	APIVersion string

	// Timeout bounds each attempt (headers and body). Zero means no limit.
	Timeout time.Duration
	// Policy is applied by the transport. Use DefaultRetryPolicy.
	Policy RetryPolicy

	// PageSize is the per_page value injected while paginating. Zero omits it.
	PageSize int
	// MaxPages caps the pages fetched per call. Zero means no cap.
	MaxPages int

	UserAgent string
	Logger    *slog.Logger

	// Transport is the underlying round tripper, mainly for tests.
	Transport http.RoundTripper
}

// Client is safe for sequential reuse across categories.
type Client struct {
	cfg  Config
	base string
	http *http.Client
	log  *slog.Logger
}

// New validates cfg and builds a Client.
//
// Errors:
//   - BaseURL is not an absolute http(s) URL
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base URL %q", cfg.BaseURL)
	}
	if v := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/"); v != "" {
		base += "/" + v
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	log := logging.OrDiscard(cfg.Logger)

	return &Client{
		cfg:  cfg,
		base: base,
		http: &http.Client{Transport: newRetryTransport(cfg.Transport, cfg.Policy, cfg.Timeout, log)},
		log:  log,
	}, nil
}

// FetchOptions describes one logical fetch.
type FetchOptions struct {
	// Method is GET (default) or POST.
	Method string
	// Params are sent as query parameters, in order.
	Params filters.Set
	// Body is JSON-encoded for POST requests.
	Body any
	// NoPaginate issues a single request without page/per_page injection.
	NoPaginate bool
	// Category labels page metrics; defaults to the endpoint.
	Category string
}

// URL returns the absolute URL for endpoint, without query parameters.
func (c *Client) URL(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.base + endpoint
}

// Fetch retrieves all records behind endpoint.
//
// With pagination (the default) pages are requested until the reported total
// is reached, a page comes back empty or short, or MaxPages is hit. Records
// from all pages are concatenated in page order.
func (c *Client) Fetch(ctx context.Context, endpoint string, opts FetchOptions) ([]records.Record, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, requestError(method, c.URL(endpoint), fmt.Errorf("unsupported HTTP method %q", opts.Method))
	}
	if opts.Category == "" {
		opts.Category = endpoint
	}

	if opts.NoPaginate {
		body, err := c.do(ctx, method, endpoint, opts.Params, opts.Body)
		if err != nil {
			return nil, err
		}
		return Extract(endpoint, body, c.log), nil
	}
	return c.paginate(ctx, method, endpoint, opts)
}

// do performs one logical request (the transport may retry it) and decodes
// the JSON body.
func (c *Client) do(ctx context.Context, method, endpoint string, params filters.Set, body any) (any, error) {
	target := c.URL(endpoint)
	full := target
	if params.Len() > 0 {
		full += "?" + params.Encode()
	}

	var reader io.Reader
	if method == http.MethodPost && body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, requestError(method, target, fmt.Errorf("encode body: %w", err))
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return nil, requestError(method, target, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	c.log.Debug("request", "method", method, "url", target, "params", params.String())
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(method, target, err)
	}
	c.log.Debug("request completed", "method", method, "url", target, "status", resp.StatusCode,
		"bytes", len(raw), "elapsed", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        target,
			Detail:     summarizeBody(resp.Header.Get("Content-Type"), raw),
		}
	}

	decoded, err := records.DecodeBytes(raw)
	if err != nil {
		return nil, requestError(method, target, fmt.Errorf("invalid JSON response: %w", err))
	}
	return decoded, nil
}
