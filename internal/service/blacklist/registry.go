package blacklist

import "sync"

// Registry tracks symbols whose fetches failed permanently. A blacklisted
// symbol is skipped for the rest of the process lifetime or until Clear.
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]struct{})}
}

// IsInvalid reports whether the symbol was marked permanently invalid.
func (r *Registry) IsInvalid(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.symbols[symbol]
	return ok
}

// MarkInvalid adds the symbol to the registry. Idempotent.
func (r *Registry) MarkInvalid(symbol string) {
	r.mu.Lock()
	r.symbols[symbol] = struct{}{}
	r.mu.Unlock()
}

// Clear empties the registry and returns how many symbols it held.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.symbols)
	r.symbols = make(map[string]struct{})
	return n
}

// Len reports the current size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}

// Filter returns the symbols not currently blacklisted, preserving order.
func (r *Registry) Filter(symbols []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, skip := r.symbols[s]; !skip {
			out = append(out, s)
		}
	}
	return out
}
