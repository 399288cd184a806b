package handler

import (
	"encoding/json"
	"testing"
)

func TestSeconds_UnmarshalJSON_BareInteger(t *testing.T) {
	var s seconds
	if err := json.Unmarshal([]byte(`30`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != 30 {
		t.Errorf("seconds = %d, want 30", s)
	}
}

func TestSeconds_UnmarshalJSON_DurationString(t *testing.T) {
	tests := []struct {
		in   string
		want seconds
	}{
		{`"30s"`, 30},
		{`"5m"`, 300},
		{`"1h"`, 3600},
	}
	for _, tt := range tests {
		var s seconds
		if err := json.Unmarshal([]byte(tt.in), &s); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if s != tt.want {
			t.Errorf("seconds(%s) = %d, want %d", tt.in, s, tt.want)
		}
	}
}

func TestSeconds_UnmarshalJSON_InvalidString(t *testing.T) {
	var s seconds
	if err := json.Unmarshal([]byte(`"not-a-duration"`), &s); err == nil {
		t.Fatal("expected error for unparseable duration string")
	}
}

func TestRetryConfDTO_RoundTrip(t *testing.T) {
	raw := `{"num_retries":3,"retry_interval_seconds":"30s","timeout_seconds":60,"tolerance_seconds":"2m"}`
	var dto retryConfDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	conf := dto.toDomain()
	if conf.NumRetries != 3 || conf.RetryIntervalSeconds != 30 || conf.TimeoutSeconds != 60 || conf.ToleranceSeconds != 120 {
		t.Errorf("unexpected domain conf: %+v", conf)
	}

	back := retryConfFromDomain(conf)
	if back.NumRetries != 3 || int(back.RetryIntervalSeconds) != 30 {
		t.Errorf("unexpected round-trip dto: %+v", back)
	}
}
