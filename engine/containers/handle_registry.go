package containers

import (
	"maps"
	"slices"
	"sync"
)

// HandleRegistry maps opaque, never reused, non-zero ids to backend objects.
type HandleRegistry[T any] struct {
	mu    sync.RWMutex
	next  uint64
	items map[uint64]T
}

func NewHandleRegistry[T any]() *HandleRegistry[T] {
	return &HandleRegistry[T]{
		items: make(map[uint64]T),
	}
}

// Insert stores v and returns its id. The first id is 1.
func (r *HandleRegistry[T]) Insert(v T) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.items[r.next] = v
	return r.next
}

func (r *HandleRegistry[T]) Get(id uint64) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.items[id]
	return v, ok
}

// Remove deletes the id and hands back what it pointed to.
func (r *HandleRegistry[T]) Remove(id uint64) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	return v, ok
}

func (r *HandleRegistry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Drain empties the registry, calling fn newest first so that objects are
// released in the reverse of their creation order.
func (r *HandleRegistry[T]) Drain(fn func(id uint64, v T)) {
	r.mu.Lock()
	items := r.items
	r.items = make(map[uint64]T)
	r.mu.Unlock()

	ids := slices.Sorted(maps.Keys(items))
	for i := len(ids) - 1; i >= 0; i-- {
		fn(ids[i], items[ids[i]])
	}
}
