package connection

import (
	"slices"
	"strings"
	"sync"
)

// Registry is the set of subscribed symbols.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]struct{})}
}

// NormalizeSymbols trims and upper-cases symbols and removes duplicates,
// preserving first-seen order. It fails with KindInvalidSubscription on an
// empty list or a blank symbol.
func NormalizeSymbols(symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, &Error{Kind: KindInvalidSubscription, Op: "subscribe"}
	}

	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			return nil, &Error{Kind: KindInvalidSubscription, Op: "subscribe", Symbols: symbols}
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// Add unions symbols into the set and returns how many were new.
func (r *Registry) Add(symbols ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, s := range symbols {
		if _, ok := r.symbols[s]; !ok {
			r.symbols[s] = struct{}{}
			added++
		}
	}
	return added
}

// Remove deletes symbols from the set and returns how many were present.
func (r *Registry) Remove(symbols ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, s := range symbols {
		if _, ok := r.symbols[s]; ok {
			delete(r.symbols, s)
			removed++
		}
	}
	return removed
}

// Contains reports whether symbol is subscribed.
func (r *Registry) Contains(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.symbols[symbol]
	return ok
}

// Symbols returns the set, sorted.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	r.mu.RUnlock()

	slices.Sort(out)
	return out
}

// Len returns the set size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}

// Clear empties the set.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.symbols)
}
