package handler

import (
	"encoding/json"
	"fmt"

	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/triggerd/engine/internal/domain"
)

// seconds accepts either a bare JSON number (seconds, per spec.md) or
// a human-friendly duration string ("30s", "5m") and unmarshals to an
// integer second count either way.
type seconds int

func (s *seconds) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = seconds(n)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("must be an integer or a duration string: %w", err)
	}
	d, err := str2duration.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", str, err)
	}
	*s = seconds(int(d.Seconds()))
	return nil
}

type retryConfDTO struct {
	NumRetries           int     `json:"num_retries" validate:"min=0"`
	RetryIntervalSeconds seconds `json:"retry_interval_seconds"`
	TimeoutSeconds       seconds `json:"timeout_seconds"`
	ToleranceSeconds     seconds `json:"tolerance_seconds"`
}

func (d retryConfDTO) toDomain() domain.RetryConf {
	return domain.RetryConf{
		NumRetries:           d.NumRetries,
		RetryIntervalSeconds: int(d.RetryIntervalSeconds),
		TimeoutSeconds:       int(d.TimeoutSeconds),
		ToleranceSeconds:     int(d.ToleranceSeconds),
	}
}

func retryConfFromDomain(r domain.RetryConf) retryConfDTO {
	return retryConfDTO{
		NumRetries:           r.NumRetries,
		RetryIntervalSeconds: seconds(r.RetryIntervalSeconds),
		TimeoutSeconds:       seconds(r.TimeoutSeconds),
		ToleranceSeconds:     seconds(r.ToleranceSeconds),
	}
}

type webhookConfDTO struct {
	Value   string `json:"value,omitempty"`
	FromEnv string `json:"from_env,omitempty"`
}

func (d webhookConfDTO) toDomain() domain.WebhookConf {
	return domain.WebhookConf{Value: d.Value, FromEnv: d.FromEnv}
}

func webhookConfFromDomain(w domain.WebhookConf) webhookConfDTO {
	return webhookConfDTO{Value: w.Value, FromEnv: w.FromEnv}
}

type headerConfDTO struct {
	Name    string `json:"name" validate:"required"`
	Value   string `json:"value,omitempty"`
	FromEnv string `json:"from_env,omitempty"`
}

func headersToDomain(in []headerConfDTO) []domain.HeaderConf {
	out := make([]domain.HeaderConf, len(in))
	for i, h := range in {
		out[i] = domain.HeaderConf{Name: h.Name, Value: h.Value, FromEnv: h.FromEnv}
	}
	return out
}

func headersFromDomain(in []domain.HeaderConf) []headerConfDTO {
	out := make([]headerConfDTO, len(in))
	for i, h := range in {
		out[i] = headerConfDTO{Name: h.Name, Value: h.Value, FromEnv: h.FromEnv}
	}
	return out
}
