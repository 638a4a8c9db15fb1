package feed

import (
	"sort"
	"sync"

	"pricefeed/pkg/binance"
)

// Registry is the desired subscription set: normalized symbol to the stream
// kinds wanted for it. It survives reconnects and manual disconnects.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]map[binance.StreamKind]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[string]map[binance.StreamKind]struct{}),
	}
}

// Add records symbol/kind and reports whether it was not already present.
func (r *Registry) Add(symbol string, kind binance.StreamKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds, ok := r.subs[symbol]
	if !ok {
		kinds = make(map[binance.StreamKind]struct{})
		r.subs[symbol] = kinds
	}
	if _, dup := kinds[kind]; dup {
		return false
	}
	kinds[kind] = struct{}{}
	return true
}

// Remove drops the given kinds for symbol, or all of them when kinds is
// empty, and returns the keys that were actually removed.
func (r *Registry) Remove(symbol string, kinds ...binance.StreamKind) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.subs[symbol]
	if !ok {
		return nil
	}

	var removed []Key
	if len(kinds) == 0 {
		for kind := range current {
			removed = append(removed, Key{Symbol: symbol, Stream: kind})
		}
		delete(r.subs, symbol)
	} else {
		for _, kind := range kinds {
			if _, ok := current[kind]; ok {
				delete(current, kind)
				removed = append(removed, Key{Symbol: symbol, Stream: kind})
			}
		}
		if len(current) == 0 {
			delete(r.subs, symbol)
		}
	}

	sortKeys(removed)
	return removed
}

func (r *Registry) Has(symbol string, kind binance.StreamKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[symbol][kind]
	return ok
}

// Keys returns every registered key ordered by wire name.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.subs))
	for sym, kinds := range r.subs {
		for kind := range kinds {
			keys = append(keys, Key{Symbol: sym, Stream: kind})
		}
	}
	sortKeys(keys)
	return keys
}

// Symbols returns the registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.subs))
	for sym := range r.subs {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, kinds := range r.subs {
		n += len(kinds)
	}
	return n
}

func (r *Registry) Clear() {
	r.mu.Lock()
	r.subs = make(map[string]map[binance.StreamKind]struct{})
	r.mu.Unlock()
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Wire() < keys[j].Wire()
	})
}

func wireNames(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Wire()
	}
	return out
}
