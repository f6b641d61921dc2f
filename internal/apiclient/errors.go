package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Failure classes. Every error returned by Fetch wraps exactly one of them.
var (
	// ErrConnection: the server could not be reached (DNS, refused, reset).
	ErrConnection = errors.New("connection error")
	// ErrTimeout: an attempt ran past the per-request timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrHTTPStatus: the server answered with a non-2xx status. See HTTPError.
	ErrHTTPStatus = errors.New("http status error")
	// ErrRequest: anything else (bad method, unreadable or invalid body, cancellation).
	ErrRequest = errors.New("request error")
)

// maxDetailLen bounds HTTPError.Detail in runes.
const maxDetailLen = 200

// HTTPError is a non-2xx response, after retries.
type HTTPError struct {
	StatusCode int
	URL        string
	// Detail summarises the response body; may be empty.
	Detail string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("apiclient: HTTP %d from %s", e.StatusCode, e.URL)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap makes errors.Is(err, ErrHTTPStatus) hold.
func (e *HTTPError) Unwrap() error { return ErrHTTPStatus }

// classifyTransport maps an error from http.Client.Do or a body read to one of
// the failure classes.
func classifyTransport(method, url string, err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("apiclient: %w: %s %s: %w", ErrRequest, method, url, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return fmt.Errorf("apiclient: %w: %s %s: %w", ErrTimeout, method, url, err)
	default:
		return fmt.Errorf("apiclient: %w: %s %s: %w", ErrConnection, method, url, err)
	}
}

func requestError(method, url string, err error) error {
	return fmt.Errorf("apiclient: %w: %s %s: %w", ErrRequest, method, url, err)
}

// summarizeBody extracts a short human message from an error response.
//
// JSON bodies yield their "message", "error" or "detail" field; HTML bodies
// their <title> or first <h1>; anything else its leading text.
func summarizeBody(contentType string, body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(contentType)

	if mt == "application/json" || strings.HasSuffix(mt, "+json") || body[0] == '{' {
		if s := jsonDetail(body); s != "" {
			return truncateDetail(s)
		}
	}
	if mt == "text/html" || bytes.HasPrefix(bytes.ToLower(body), []byte("<!doctype html")) || bytes.HasPrefix(bytes.ToLower(body), []byte("<html")) {
		if s := htmlDetail(body); s != "" {
			return truncateDetail(s)
		}
	}
	return truncateDetail(string(body))
}

func jsonDetail(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	for _, k := range []string{"message", "error", "detail"} {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s, ok := v["message"].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func htmlDetail(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	if s := strings.TrimSpace(doc.Find("title").First().Text()); s != "" {
		return collapseSpace(s)
	}
	return collapseSpace(strings.TrimSpace(doc.Find("h1").First().Text()))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateDetail(s string) string {
	s = collapseSpace(s)
	r := []rune(s)
	if len(r) <= maxDetailLen {
		return s
	}
	return string(r[:maxDetailLen])
}
