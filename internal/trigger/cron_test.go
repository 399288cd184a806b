package trigger_test

import (
	"testing"
	"time"

	"github.com/triggerd/engine/internal/trigger"
)

func TestUpcoming_ReturnsExactlyNAscendingMatches(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)

	got, err := trigger.Upcoming(start, 5, "0 * * * *") // top of every hour
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 instants, got %d", len(got))
	}

	want := []time.Time{
		time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC),
	}
	for i, w := range want {
		if !got[i].Equal(w) {
			t.Fatalf("instant %d: want %s got %s", i, w, got[i])
		}
		if !got[i].After(start) {
			t.Fatalf("instant %d is not strictly after start", i)
		}
	}
	for i := 1; i < len(got); i++ {
		if !got[i].After(got[i-1]) {
			t.Fatalf("instants not strictly increasing at %d", i)
		}
	}
}

func TestUpcoming_InvalidExpression(t *testing.T) {
	if _, err := trigger.Upcoming(time.Now(), 1, "not a cron expr"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestUpcoming_DeterministicAcrossCalls(t *testing.T) {
	start := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	a, err := trigger.Upcoming(start, 100, "*/15 * * * *")
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	b, err := trigger.Upcoming(start, 100, "*/15 * * * *")
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("mismatch at %d: %s vs %s", i, a[i], b[i])
		}
	}
}
