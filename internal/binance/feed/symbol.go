package feed

import (
	"strings"
	"unicode"

	"pricefeed/pkg/binance"
)

// NormalizeSymbol lower-cases s and drops every rune that is not a letter
// or digit. "BTC/USDT" and "btcusdt" map to the same key. An empty result
// means the input was not a symbol.
func NormalizeSymbol(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Key is one desired subscription.
type Key struct {
	Symbol string // normalized
	Stream binance.StreamKind
}

// Wire returns the stream name sent in control messages, e.g. "btcusdt@ticker".
func (k Key) Wire() string {
	return binance.StreamName(k.Symbol, k.Stream)
}

func (k Key) String() string {
	return k.Wire()
}
