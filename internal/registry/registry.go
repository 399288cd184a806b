// Package registry implements the in-process Locked-Event Registry: a
// guarded set of event IDs this replica currently owns, keyed by event
// class. It is the only shared mutable state between the processor's
// worker goroutines and the shutdown hook.
package registry

import (
	"sync"

	"github.com/triggerd/engine/internal/domain"
)

// Registry tracks the ids this replica has locked, per event class.
type Registry struct {
	mu   sync.Mutex
	sets map[domain.Class]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		sets: map[domain.Class]map[string]struct{}{
			domain.ClassCron:   make(map[string]struct{}),
			domain.ClassOneOff: make(map[string]struct{}),
		},
	}
}

// InsertMany registers ids as locked under class, before any of them
// is handed to a worker — so a shutdown racing the claim always sees
// the full batch, never a partial one.
func (r *Registry) InsertMany(class domain.Class, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.sets[class][id] = struct{}{}
	}
}

// Remove unregisters id once the processor has finished with it after
// an HTTP attempt or a dead classification. Ids the processor abandons
// before an attempt, or whose attempt is cut short by shutdown, are not
// removed: they stay registered (and locked) for the shutdown unlock
// or, failing that, the startup recovery sweep.
func (r *Registry) Remove(class domain.Class, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets[class], id)
}

// Snapshot returns a copy of the ids currently locked under class, for
// the shutdown hook to pass to the store's unlock operation.
func (r *Registry) Snapshot(class domain.Class) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sets[class]))
	for id := range r.sets[class] {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of ids currently locked under class, used to
// drive the LockedEventsGauge metric.
func (r *Registry) Len(class domain.Class) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets[class])
}
