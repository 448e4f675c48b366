package usecase

import (
	"sort"
	"strconv"
	"sync"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
)

type storeKey struct {
	teamID string
	period int
}

func (k storeKey) String() string {
	return k.teamID + "/" + strconv.Itoa(k.period)
}

type registryEntry struct {
	store *LineupStore
	refs  int
}

// StoreRegistry hands out one LineupStore per (team, period) and closes
// it when the last holder releases it.
type StoreRegistry struct {
	deps StoreDeps

	mu     sync.Mutex
	stores map[storeKey]*registryEntry
	closed bool
}

func NewStoreRegistry(deps StoreDeps) *StoreRegistry {
	return &StoreRegistry{
		deps:   deps,
		stores: make(map[storeKey]*registryEntry),
	}
}

// Acquire returns the shared store for the pair. The release func is
// idempotent.
func (r *StoreRegistry) Acquire(teamID string, period int) (*LineupStore, func()) {
	key := storeKey{teamID: teamID, period: period}

	r.mu.Lock()
	entry, ok := r.stores[key]
	if !ok {
		entry = &registryEntry{store: NewLineupStore(teamID, period, r.deps)}
		if !r.closed {
			r.stores[key] = entry
		} else {
			entry.store.Close()
		}
	}
	entry.refs++
	r.mu.Unlock()

	var once sync.Once
	return entry.store, func() {
		once.Do(func() { r.release(key, entry) })
	}
}

func (r *StoreRegistry) release(key storeKey, entry *registryEntry) {
	r.mu.Lock()
	entry.refs--
	last := entry.refs <= 0
	if last && r.stores[key] == entry {
		delete(r.stores, key)
	}
	r.mu.Unlock()

	if last {
		entry.store.Close()
	}
}

// Lookup returns the live store for the pair without taking a reference.
func (r *StoreRegistry) Lookup(teamID string, period int) (*LineupStore, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.stores[storeKey{teamID: teamID, period: period}]
	if !ok {
		return nil, false
	}
	return entry.store, true
}

// ByLineupID finds the live store holding a loaded lineup with this ID.
func (r *StoreRegistry) ByLineupID(lineupID string) (*LineupStore, bool) {
	if lineupID == "" {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.stores {
		if entry.store.LineupID() == lineupID {
			return entry.store, true
		}
	}
	return nil, false
}

// MergeRemoteDelta routes a delta to the store that owns its lineup.
func (r *StoreRegistry) MergeRemoteDelta(delta lineup.Delta) bool {
	store, ok := r.ByLineupID(delta.LineupID)
	if !ok {
		return false
	}
	return store.MergeRemoteDelta(delta)
}

// PendingChanges sums outstanding changes across live stores.
func (r *StoreRegistry) PendingChanges() int {
	r.mu.Lock()
	stores := make([]*LineupStore, 0, len(r.stores))
	for _, entry := range r.stores {
		stores = append(stores, entry.store)
	}
	r.mu.Unlock()

	total := 0
	for _, store := range stores {
		total += store.Snapshot().PendingChanges
	}
	return total
}

// Keys lists live pairs, sorted, for diagnostics.
func (r *StoreRegistry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.stores))
	for key := range r.stores {
		out = append(out, key.String())
	}
	sort.Strings(out)
	return out
}

// Close closes every live store regardless of holders.
func (r *StoreRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := make([]*registryEntry, 0, len(r.stores))
	for key, entry := range r.stores {
		entries = append(entries, entry)
		delete(r.stores, key)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		entry.store.Close()
	}
}
