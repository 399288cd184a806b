package registry_test

import (
	"sync"
	"testing"

	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/registry"
)

func TestInsertRemoveSnapshot(t *testing.T) {
	r := registry.New()

	r.InsertMany(domain.ClassCron, []string{"a", "b", "c"})
	if got := r.Len(domain.ClassCron); got != 3 {
		t.Fatalf("expected len 3, got %d", got)
	}
	if got := r.Len(domain.ClassOneOff); got != 0 {
		t.Fatalf("expected oneoff len 0, got %d", got)
	}

	r.Remove(domain.ClassCron, "b")
	snap := r.Snapshot(domain.ClassCron)
	if len(snap) != 2 {
		t.Fatalf("expected snapshot len 2, got %d", len(snap))
	}
	seen := map[string]bool{}
	for _, id := range snap {
		seen[id] = true
	}
	if !seen["a"] || !seen["c"] || seen["b"] {
		t.Fatalf("unexpected snapshot contents: %v", snap)
	}
}

func TestConcurrentMutation(t *testing.T) {
	r := registry.New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			r.InsertMany(domain.ClassOneOff, []string{id})
			_ = r.Snapshot(domain.ClassOneOff)
			r.Remove(domain.ClassOneOff, id)
		}(i)
	}
	wg.Wait()

	// No assertion beyond "the race detector doesn't fire and we don't
	// deadlock" — this test exists to be run with -race.
	_ = r.Len(domain.ClassOneOff)
}
