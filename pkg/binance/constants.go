package binance

import (
	"fmt"
	"strings"
)

// KlineInterval is the interval string used in kline stream names (e.g. "15m").
type KlineInterval string

const (
	Interval1Min    KlineInterval = "1m"
	Interval3Min    KlineInterval = "3m"
	Interval5Min    KlineInterval = "5m"
	Interval15Min   KlineInterval = "15m"
	Interval30Min   KlineInterval = "30m"
	Interval1Hour   KlineInterval = "1h"
	Interval2Hour   KlineInterval = "2h"
	Interval4Hour   KlineInterval = "4h"
	Interval6Hour   KlineInterval = "6h"
	Interval8Hour   KlineInterval = "8h"
	Interval12Hour  KlineInterval = "12h"
	IntervalDaily   KlineInterval = "1d"
	Interval3Day    KlineInterval = "3d"
	IntervalWeekly  KlineInterval = "1w"
	IntervalMonthly KlineInterval = "1M"
)

var validKlineIntervals = map[KlineInterval]struct{}{
	Interval1Min: {}, Interval3Min: {}, Interval5Min: {}, Interval15Min: {}, Interval30Min: {},
	Interval1Hour: {}, Interval2Hour: {}, Interval4Hour: {}, Interval6Hour: {}, Interval8Hour: {},
	Interval12Hour: {}, IntervalDaily: {}, Interval3Day: {}, IntervalWeekly: {}, IntervalMonthly: {},
}

// IsValid checks if the KlineInterval is a valid predefined interval
func (k KlineInterval) IsValid() bool {
	_, ok := validKlineIntervals[k]
	return ok
}

// ParseKlineInterval parses a string into a valid KlineInterval
func ParseKlineInterval(s string) (KlineInterval, error) {
	interval := KlineInterval(s)
	if !interval.IsValid() {
		return "", fmt.Errorf("invalid KlineInterval: %q", s)
	}
	return interval, nil
}

// Kind enumerates the public stream families this client understands.
type Kind uint8

const (
	KindTrade Kind = iota + 1
	KindTicker24h
	KindMiniTicker
	KindKline
	KindDepth
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindTicker24h:
		return "ticker"
	case KindMiniTicker:
		return "miniTicker"
	case KindKline:
		return "kline"
	case KindDepth:
		return "depth"
	}
	return "unknown"
}

// StreamKind is a stream family plus, for klines, its interval. It is
// comparable and safe to use as a map key.
type StreamKind struct {
	Kind     Kind
	Interval KlineInterval
}

func Trade() StreamKind      { return StreamKind{Kind: KindTrade} }
func Ticker24h() StreamKind  { return StreamKind{Kind: KindTicker24h} }
func MiniTicker() StreamKind { return StreamKind{Kind: KindMiniTicker} }
func Depth() StreamKind      { return StreamKind{Kind: KindDepth} }

func Kline(interval KlineInterval) StreamKind {
	return StreamKind{Kind: KindKline, Interval: interval}
}

// Valid reports whether the stream kind can be subscribed.
func (s StreamKind) Valid() bool {
	switch s.Kind {
	case KindTrade, KindTicker24h, KindMiniTicker, KindDepth:
		return s.Interval == ""
	case KindKline:
		return s.Interval.IsValid()
	}
	return false
}

// Suffix returns the part of the stream name after "@", e.g. "kline_15m".
func (s StreamKind) Suffix() string {
	if s.Kind == KindKline {
		return "kline_" + string(s.Interval)
	}
	return s.Kind.String()
}

func (s StreamKind) String() string {
	return s.Suffix()
}

// ParseStreamKind accepts a stream suffix ("ticker", "trade", "kline_15m")
// or the config spelling "kline:15m".
func ParseStreamKind(s string) (StreamKind, error) {
	raw := strings.TrimSpace(s)
	switch raw {
	case "trade":
		return Trade(), nil
	case "ticker", "24hrTicker":
		return Ticker24h(), nil
	case "miniTicker", "24hrMiniTicker":
		return MiniTicker(), nil
	case "depth":
		return Depth(), nil
	}

	for _, prefix := range []string{"kline_", "kline:"} {
		if strings.HasPrefix(raw, prefix) {
			interval, err := ParseKlineInterval(strings.TrimPrefix(raw, prefix))
			if err != nil {
				return StreamKind{}, fmt.Errorf("stream %q: %w", s, err)
			}
			return Kline(interval), nil
		}
	}
	return StreamKind{}, fmt.Errorf("unknown stream kind: %q", s)
}

// StreamName builds "{symbol}@{suffix}". The symbol must already be in the
// lower-case form the exchange expects.
func StreamName(symbol string, kind StreamKind) string {
	return symbol + "@" + kind.Suffix()
}

// SplitStreamName splits "btcusdt@kline_15m" into its symbol and stream kind.
func SplitStreamName(name string) (string, StreamKind, error) {
	symbol, suffix, ok := strings.Cut(name, "@")
	if !ok || symbol == "" {
		return "", StreamKind{}, fmt.Errorf("malformed stream name: %q", name)
	}
	// depth streams carry an update speed, e.g. "depth@100ms"
	if strings.HasPrefix(suffix, "depth") {
		return symbol, Depth(), nil
	}
	kind, err := ParseStreamKind(suffix)
	if err != nil {
		return "", StreamKind{}, err
	}
	return symbol, kind, nil
}

// Event type discriminators carried in the "e" field.
const (
	EventTrade      = "trade"
	EventTicker24h  = "24hrTicker"
	EventMiniTicker = "24hrMiniTicker"
	EventKline      = "kline"
	EventDepth      = "depthUpdate"
)

// Control methods for the combined stream endpoint.
const (
	MethodSubscribe   = "SUBSCRIBE"
	MethodUnsubscribe = "UNSUBSCRIBE"
)
