package pricestore

import (
	"sync"

	"pricefeed/internal/binance/stream"
)

// PriceStore keeps the latest merged record per symbol.
type PriceStore struct {
	globalMu sync.RWMutex
	data     map[string]*symbolPrice
}

type symbolPrice struct {
	mu      sync.Mutex
	rec     stream.PriceRecord
	updates int
}

func NewPriceStore() *PriceStore {
	return &PriceStore{
		data: make(map[string]*symbolPrice),
	}
}

// Apply merges rec into the symbol's current record. Only the fields rec is
// authoritative for are overwritten.
func (s *PriceStore) Apply(rec stream.PriceRecord) {
	// Fast path: lock per-symbol entry only
	s.globalMu.RLock()
	entry, ok := s.data[rec.Symbol]
	s.globalMu.RUnlock()

	if !ok {
		s.globalMu.Lock()
		if entry, ok = s.data[rec.Symbol]; !ok {
			entry = &symbolPrice{}
			s.data[rec.Symbol] = entry
		}
		s.globalMu.Unlock()
	}

	entry.mu.Lock()
	entry.rec = stream.Merge(entry.rec, rec)
	entry.updates++
	entry.mu.Unlock()
}

func (s *PriceStore) Get(symbol string) (stream.PriceRecord, bool) {
	s.globalMu.RLock()
	entry, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return stream.PriceRecord{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.rec, true
}

func (s *PriceStore) GetAll() map[string]stream.PriceRecord {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	result := make(map[string]stream.PriceRecord, len(s.data))
	for sym, entry := range s.data {
		entry.mu.Lock()
		result[sym] = entry.rec
		entry.mu.Unlock()
	}
	return result
}

// CountAll returns the number of symbols with at least one record.
func (s *PriceStore) CountAll() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	return len(s.data)
}

// Updates returns how many records have been applied across all symbols.
func (s *PriceStore) Updates() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, entry := range s.data {
		entry.mu.Lock()
		total += entry.updates
		entry.mu.Unlock()
	}
	return total
}
