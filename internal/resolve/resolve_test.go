package resolve_test

import (
	"errors"
	"testing"

	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/resolve"
)

func TestWebhook_LiteralValue(t *testing.T) {
	url, err := resolve.Webhook(domain.WebhookConf{Value: "https://example.com/hook"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://example.com/hook" {
		t.Fatalf("unexpected url: %s", url)
	}
}

func TestWebhook_FromEnv(t *testing.T) {
	t.Setenv("WEBHOOK_URL_TEST", "https://from-env.example.com")
	url, err := resolve.Webhook(domain.WebhookConf{FromEnv: "WEBHOOK_URL_TEST"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://from-env.example.com" {
		t.Fatalf("unexpected url: %s", url)
	}
}

func TestWebhook_FromEnvMissing(t *testing.T) {
	_, err := resolve.Webhook(domain.WebhookConf{FromEnv: "WEBHOOK_URL_DOES_NOT_EXIST"})
	if !errors.Is(err, resolve.ErrEnvNotSet) {
		t.Fatalf("expected ErrEnvNotSet, got %v", err)
	}
}

func TestHeaders_MixLiteralAndEnv(t *testing.T) {
	t.Setenv("HEADER_TEST_VALUE", "secret-token")

	got, err := resolve.Headers([]domain.HeaderConf{
		{Name: "X-Static", Value: "static-value"},
		{Name: "X-From-Env", FromEnv: "HEADER_TEST_VALUE"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got["X-Static"] != "static-value" {
		t.Fatalf("expected static header preserved, got %v", got)
	}
	if got["X-From-Env"] != "secret-token" {
		t.Fatalf("expected env header resolved, got %v", got)
	}
}

func TestHeaders_MissingEnvFails(t *testing.T) {
	_, err := resolve.Headers([]domain.HeaderConf{
		{Name: "X-Missing", FromEnv: "HEADER_TEST_DOES_NOT_EXIST"},
	})
	if !errors.Is(err, resolve.ErrEnvNotSet) {
		t.Fatalf("expected ErrEnvNotSet, got %v", err)
	}
}
