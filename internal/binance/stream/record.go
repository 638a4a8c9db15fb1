package stream

import (
	"maps"
	"strings"
	"time"
)

// Field flags the values a record is authoritative for. Consumers copy only
// flagged fields, so a trade never zeroes a ticker's change and a kline
// never touches the 24h statistics.
type Field uint16

const (
	FieldPrice Field = 1 << iota
	FieldChange
	FieldChangePercent
	FieldOpen24h
	FieldHigh24h
	FieldLow24h
	FieldVolume24h
	FieldQuantity
	FieldIntervalChange
)

const (
	SourceTrade      = "trade"
	SourceTicker     = "ticker"
	SourceMiniTicker = "miniTicker"
	sourceKline      = "kline-"
)

// KlineSource returns the provenance tag of a closed kline, e.g. "kline-15m".
func KlineSource(interval string) string {
	return sourceKline + interval
}

// IsKlineSource reports whether source was produced by a kline stream.
func IsKlineSource(source string) bool {
	return strings.HasPrefix(source, sourceKline)
}

// PriceRecord is the normalized output of one inbound frame. It is built
// fresh per frame and never mutated after it is published.
type PriceRecord struct {
	Symbol string `json:"symbol"` // exchange form, e.g. "BTCUSDT"

	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Open24h       float64 `json:"open24h"`
	High24h       float64 `json:"high24h"`
	Low24h        float64 `json:"low24h"`
	Volume24h     float64 `json:"volume24h"`
	Quantity      float64 `json:"quantity"` // size of a single trade

	// Interval and IntervalChangePercent describe a single kline frame. Merge
	// folds them into IntervalChanges, keyed by interval, which is shared
	// between merged records and must not be modified.
	Interval              string             `json:"interval,omitempty"`
	IntervalChangePercent float64            `json:"intervalChangePercent,omitempty"`
	IntervalChanges       map[string]float64 `json:"intervalChanges,omitempty"`

	EventTime  time.Time `json:"eventTime"`
	ReceivedAt time.Time `json:"receivedAt"`
	Source     string    `json:"source"`
	Fields     Field     `json:"fields"`
}

// Has reports whether every flag in f is set on the record.
func (r PriceRecord) Has(f Field) bool {
	return r.Fields&f == f
}

// IntervalChange returns the latest closed-kline return for interval.
func (r PriceRecord) IntervalChange(interval string) (float64, bool) {
	if v, ok := r.IntervalChanges[interval]; ok {
		return v, true
	}
	if interval != "" && r.Interval == interval {
		return r.IntervalChangePercent, true
	}
	return 0, false
}

// Latency is the delay between the exchange event time and receipt.
func (r PriceRecord) Latency() time.Duration {
	d := r.ReceivedAt.Sub(r.EventTime)
	if d < 0 {
		return 0
	}
	return d
}

// Merge overlays the fields next is authoritative for onto prev. Provenance
// and timestamps always follow next.
func Merge(prev, next PriceRecord) PriceRecord {
	out := prev
	out.Symbol = next.Symbol
	if next.Has(FieldPrice) {
		out.Price = next.Price
	}
	if next.Has(FieldChange) {
		out.Change = next.Change
	}
	if next.Has(FieldChangePercent) {
		out.ChangePercent = next.ChangePercent
	}
	if next.Has(FieldOpen24h) {
		out.Open24h = next.Open24h
	}
	if next.Has(FieldHigh24h) {
		out.High24h = next.High24h
	}
	if next.Has(FieldLow24h) {
		out.Low24h = next.Low24h
	}
	if next.Has(FieldVolume24h) {
		out.Volume24h = next.Volume24h
	}
	if next.Has(FieldQuantity) {
		out.Quantity = next.Quantity
	}
	if prev.Interval != "" || next.Has(FieldIntervalChange) {
		changes := make(map[string]float64, len(prev.IntervalChanges)+len(next.IntervalChanges)+2)
		foldIntervalChanges(changes, prev)
		if next.Has(FieldIntervalChange) {
			foldIntervalChanges(changes, next)
		}
		out.IntervalChanges = changes
	}
	out.Interval, out.IntervalChangePercent = "", 0
	out.Fields |= next.Fields
	out.EventTime = next.EventTime
	out.ReceivedAt = next.ReceivedAt
	out.Source = next.Source
	return out
}

func foldIntervalChanges(dst map[string]float64, r PriceRecord) {
	maps.Copy(dst, r.IntervalChanges)
	if r.Interval != "" {
		dst[r.Interval] = r.IntervalChangePercent
	}
}
