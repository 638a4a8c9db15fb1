package pricestore

import (
	"sort"
	"sync"
)

// SymbolStore is the set of symbols the collector has subscribed.
type SymbolStore struct {
	mu      sync.Mutex
	symbols map[string]struct{}
}

func NewSymbolStore() *SymbolStore {
	return &SymbolStore{
		symbols: make(map[string]struct{}),
	}
}

// Add reports whether symbol was new.
func (s *SymbolStore) Add(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.symbols[symbol]; ok {
		return false
	}
	s.symbols[symbol] = struct{}{}
	return true
}

// StartWorker drains ch in the background, calling onNew for each symbol
// not seen before. done is closed once ch is closed and drained.
func (s *SymbolStore) StartWorker(ch <-chan string, onNew func(string)) (done <-chan struct{}) {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for symbol := range ch {
			if s.Add(symbol) && onNew != nil {
				onNew(symbol)
			}
		}
	}()
	return finished
}

func (s *SymbolStore) GetAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
