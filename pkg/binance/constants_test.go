package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestParseStreamKind
func TestParseStreamKind(t *testing.T) {
	cases := map[string]StreamKind{
		"ticker":     Ticker24h(),
		"trade":      Trade(),
		"miniTicker": MiniTicker(),
		"depth":      Depth(),
		"kline_15m":  Kline(Interval15Min),
		"kline:1h":   Kline(Interval1Hour),
	}
	for in, want := range cases {
		got, err := ParseStreamKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		assert.True(t, got.Valid(), in)
	}

	for _, bad := range []string{"", "kline_7m", "bookTicker", "kline"} {
		_, err := ParseStreamKind(bad)
		assert.Error(t, err, bad)
	}
}

// go test -v --run TestStreamNameRoundTrip
func TestStreamNameRoundTrip(t *testing.T) {
	name := StreamName("btcusdt", Kline(Interval15Min))
	assert.Equal(t, "btcusdt@kline_15m", name)

	sym, kind, err := SplitStreamName(name)
	require.NoError(t, err)
	assert.Equal(t, "btcusdt", sym)
	assert.Equal(t, Kline(Interval15Min), kind)

	sym, kind, err = SplitStreamName("ethusdt@depth@100ms")
	require.NoError(t, err)
	assert.Equal(t, "ethusdt", sym)
	assert.Equal(t, Depth(), kind)

	_, _, err = SplitStreamName("noseparator")
	assert.Error(t, err)
}

// go test -v --run TestStreamKindValid
func TestStreamKindValid(t *testing.T) {
	assert.False(t, StreamKind{}.Valid())
	assert.False(t, Kline("7m").Valid())
	assert.False(t, StreamKind{Kind: KindTrade, Interval: Interval1Min}.Valid())

	interval, err := ParseKlineInterval("4h")
	require.NoError(t, err)
	assert.Equal(t, Interval4Hour, interval)

	_, err = ParseKlineInterval("4H")
	assert.Error(t, err, "intervals are case-sensitive")

	_, err = ParseStreamKind("kline_90m")
	assert.ErrorContains(t, err, "invalid KlineInterval")
}
