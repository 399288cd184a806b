package webhook_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/triggerd/engine/internal/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInvoke_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Custom") != "value" {
			t.Errorf("expected custom header to be forwarded")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := webhook.NewClient(testLogger())
	res := c.Invoke(context.Background(), srv.URL, []byte(`{}`), map[string]string{"X-Custom": "value"}, 5*time.Second)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if string(res.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", res.Body)
	}
	if res.RetryAfter != nil {
		t.Fatalf("expected no Retry-After, got %v", res.RetryAfter)
	}
}

func TestInvoke_RetryAfterParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := webhook.NewClient(testLogger())
	res := c.Invoke(context.Background(), srv.URL, nil, nil, 5*time.Second)

	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.StatusCode)
	}
	if res.RetryAfter == nil || *res.RetryAfter != 30*time.Second {
		t.Fatalf("expected Retry-After 30s, got %v", res.RetryAfter)
	}
}

func TestInvoke_RetryAfterNonIntegerIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "Wed, 21 Oct 2099 07:28:00 GMT")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := webhook.NewClient(testLogger())
	res := c.Invoke(context.Background(), srv.URL, nil, nil, 5*time.Second)

	if res.RetryAfter != nil {
		t.Fatalf("expected HTTP-date Retry-After to be ignored, got %v", res.RetryAfter)
	}
}

func TestInvoke_TransportError(t *testing.T) {
	c := webhook.NewClient(testLogger())
	res := c.Invoke(context.Background(), "http://127.0.0.1:1", nil, nil, 1*time.Second)

	if res.StatusCode != webhook.StatusTransportError {
		t.Fatalf("expected synthetic transport error status, got %d", res.StatusCode)
	}
	if res.Detail == "" {
		t.Fatalf("expected detail to be populated")
	}
}
