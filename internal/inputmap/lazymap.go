package inputmap

import (
	"cmp"
	"slices"
	"sync"
)

// lazyMap is a concurrent map whose values are created on first use.
// Lookups of existing keys take no lock; when several goroutines create
// the same key, the first stored value wins and all of them get it.
type lazyMap[K cmp.Ordered, V any] struct {
	m sync.Map
}

func (l *lazyMap[K, V]) get(key K) (V, bool) {
	v, ok := l.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (l *lazyMap[K, V]) getOrCreate(key K, create func() V) V {
	if v, ok := l.m.Load(key); ok {
		return v.(V)
	}
	v, _ := l.m.LoadOrStore(key, create())
	return v.(V)
}

// keys returns the keys in ascending order
func (l *lazyMap[K, V]) keys() []K {
	var keys []K
	l.m.Range(func(k, _ any) bool {
		keys = append(keys, k.(K))
		return true
	})
	slices.Sort(keys)
	return keys
}

// values returns the values in ascending key order
func (l *lazyMap[K, V]) values() []V {
	keys := l.keys()
	values := make([]V, 0, len(keys))
	for _, k := range keys {
		if v, ok := l.get(k); ok {
			values = append(values, v)
		}
	}
	return values
}

func (l *lazyMap[K, V]) len() int {
	n := 0
	l.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (l *lazyMap[K, V]) clear() {
	l.m.Clear()
}
