// Package cache implements the capacity-bounded, metadata-validated mapping
// the engine uses to keep content verdicts coherent with the filesystem.
// Eviction removes the oldest-inserted entries first; this is a FIFO policy,
// deliberately not LRU.
package cache

import (
	"sync"
	"time"
)

// Metadata is the filesystem state an entry was computed against. An entry is
// valid only when the current metadata matches exactly; TrackSize controls
// whether Size participates in the comparison.
type Metadata struct {
	ModTime   time.Time
	Size      int64
	TrackSize bool
}

func (metadata Metadata) matches(other Metadata) bool {
	if !metadata.ModTime.Equal(other.ModTime) {
		return false
	}
	if metadata.TrackSize && metadata.Size != other.Size {
		return false
	}
	return true
}

type entry[V any] struct {
	value    V
	metadata Metadata
}

// Bounded is a fixed-capacity mapping keyed by absolute path. Overwriting an
// existing key keeps its original insertion position, so eviction order is
// the order keys first entered the cache.
type Bounded[V any] struct {
	capacity int
	mutex    sync.Mutex
	entries  map[string]entry[V]
	order    []string
}

// NewBounded constructs a Bounded cache holding at most capacity entries.
func NewBounded[V any](capacity int) *Bounded[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[V]{
		capacity: capacity,
		entries:  make(map[string]entry[V]),
	}
}

// Get returns the cached value for path if the stored metadata matches
// current exactly. A mismatch reports a miss; the stale entry stays in place
// until the caller replaces it.
func (bounded *Bounded[V]) Get(path string, current Metadata) (V, bool) {
	bounded.mutex.Lock()
	defer bounded.mutex.Unlock()
	stored, exists := bounded.entries[path]
	if !exists || !stored.metadata.matches(current) {
		var zero V
		return zero, false
	}
	return stored.value, true
}

// Put stores value for path under metadata, evicting oldest-inserted entries
// down to capacity when the insertion pushes the cache over it.
func (bounded *Bounded[V]) Put(path string, value V, metadata Metadata) {
	bounded.mutex.Lock()
	defer bounded.mutex.Unlock()
	if _, exists := bounded.entries[path]; !exists {
		bounded.order = append(bounded.order, path)
	}
	bounded.entries[path] = entry[V]{value: value, metadata: metadata}
	for len(bounded.entries) > bounded.capacity {
		oldestPath := bounded.order[0]
		bounded.order = bounded.order[1:]
		delete(bounded.entries, oldestPath)
	}
}

// Len reports the number of stored entries.
func (bounded *Bounded[V]) Len() int {
	bounded.mutex.Lock()
	defer bounded.mutex.Unlock()
	return len(bounded.entries)
}

// Contains reports whether path has an entry, valid or not.
func (bounded *Bounded[V]) Contains(path string) bool {
	bounded.mutex.Lock()
	defer bounded.mutex.Unlock()
	_, exists := bounded.entries[path]
	return exists
}
