package app

import (
	"cmp"
	"maps"
	"slices"
)

// Registry is a keyed arena addressed by stable ids. Callers only ever see
// copies of the key set; mutation goes through Create, Update and Remove.
// It is confined to the event loop and is not safe for concurrent use.
type Registry[K cmp.Ordered, V any] struct {
	items map[K]V
}

func NewRegistry[K cmp.Ordered, V any]() *Registry[K, V] {
	return &Registry[K, V]{items: make(map[K]V)}
}

// Create stores v under k. It returns false and leaves the entry alone if k exists.
func (r *Registry[K, V]) Create(k K, v V) bool {
	if _, ok := r.items[k]; ok {
		return false
	}
	r.items[k] = v
	return true
}

// Put stores v under k, replacing any existing entry.
func (r *Registry[K, V]) Put(k K, v V) {
	r.items[k] = v
}

// Update applies fn to the entry under k. It returns false if there is none.
func (r *Registry[K, V]) Update(k K, fn func(V) V) bool {
	v, ok := r.items[k]
	if !ok {
		return false
	}
	r.items[k] = fn(v)
	return true
}

func (r *Registry[K, V]) Remove(k K) (V, bool) {
	v, ok := r.items[k]
	if ok {
		delete(r.items, k)
	}
	return v, ok
}

func (r *Registry[K, V]) Get(k K) (V, bool) {
	v, ok := r.items[k]
	return v, ok
}

func (r *Registry[K, V]) Has(k K) bool {
	_, ok := r.items[k]
	return ok
}

func (r *Registry[K, V]) Len() int { return len(r.items) }

// Keys returns the ids in ascending order.
func (r *Registry[K, V]) Keys() []K {
	return slices.Sorted(maps.Keys(r.items))
}

// Each visits entries in key order. fn must not mutate the registry.
func (r *Registry[K, V]) Each(fn func(K, V)) {
	for _, k := range r.Keys() {
		fn(k, r.items[k])
	}
}

// Drain removes every entry and returns them in key order.
func (r *Registry[K, V]) Drain() []V {
	out := make([]V, 0, len(r.items))
	for _, k := range r.Keys() {
		out = append(out, r.items[k])
	}
	clear(r.items)
	return out
}
