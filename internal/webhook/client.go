// Package webhook builds the HTTP client used to deliver cron and
// one-off event payloads, and captures the classification inputs the
// processor's state machine needs from the response: status code,
// body, Retry-After, and whichever of transport/parse/other failure
// occurred.
package webhook

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/triggerd/engine/internal/requestid"
)

// Synthetic status codes for failures that never produced a real HTTP
// status, per spec: 1000 for transport/client-library errors, 1001
// for response-parsing errors.
const (
	StatusTransportError = 1000
	StatusParseError     = 1001
)

const maxCapturedBody = 32 * 1024

type Client struct {
	http   *http.Client
	logger *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		http: &http.Client{
			// Per-invocation timeouts come from context; this is a safety net.
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger: logger.With("component", "webhook_client"),
	}
}

// Result is what the processor's state machine classifies on.
type Result struct {
	StatusCode int // real status, or one of the synthetic codes above
	Body       []byte
	Headers    map[string]string
	RetryAfter *time.Duration // non-nil only when the header parsed as a bare non-negative integer
	Detail     string         // populated on transport/parse failure
	Duration   time.Duration
}

// Invoke POSTs body to url with headers, under the given timeout, and
// returns a Result classified ready for the processor's retry logic.
// It never returns a Go error: every failure mode becomes a Result
// with a synthetic status code, since the caller always needs to log
// an invocation row regardless of outcome.
func (c *Client) Invoke(ctx context.Context, url string, body []byte, headers map[string]string, timeout time.Duration) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return Result{
			StatusCode: StatusTransportError,
			Detail:     fmt.Sprintf("build request: %v", err),
			Duration:   time.Since(start),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	reqID := requestid.New()
	req.Header.Set("X-Request-ID", reqID)
	ctx = requestid.WithRequestID(ctx, reqID)

	c.logger.DebugContext(ctx, "sending webhook", "url", url)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "webhook transport error", "url", url, "error", err, "duration", time.Since(start))
		return Result{
			StatusCode: StatusTransportError,
			Detail:     err.Error(),
			Duration:   time.Since(start),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
	duration := time.Since(start)
	if err != nil {
		c.logger.WarnContext(ctx, "webhook response read error", "url", url, "error", err, "duration", duration)
		return Result{
			StatusCode: StatusParseError,
			Detail:     err.Error(),
			Duration:   duration,
		}
	}

	out := Result{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    flattenHeaders(resp.Header),
		Duration:   duration,
	}
	if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		out.RetryAfter = &d
	}

	c.logger.DebugContext(ctx, "received webhook response", "url", url, "status", resp.StatusCode, "duration", duration)
	return out
}

// parseRetryAfter accepts only a bare non-negative integer count of
// seconds, matching the engine's narrower contract (HTTP-date and
// other Retry-After forms are not honoured).
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
