package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(0, func() time.Time { return fixedNow })
}

const tickerFrame = `{"e":"24hrTicker","E":123456,"s":"BTCUSDT","p":"500","P":"1.0","w":"49800","x":"49500",` +
	`"c":"50000","Q":"0.1","b":"49999","B":"2","a":"50001","A":"3","o":"49500","h":"50200","l":"49000",` +
	`"v":"1000","q":"49800000","O":1,"C":2,"F":10,"L":20,"n":11}`

// go test -v --run TestNormalizeTicker
func TestNormalizeTicker(t *testing.T) {
	rec, err := newTestNormalizer().Normalize([]byte(tickerFrame))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, 50000.0, rec.Price)
	assert.Equal(t, 500.0, rec.Change)
	assert.Equal(t, 1.0, rec.ChangePercent)
	assert.Equal(t, 49500.0, rec.Open24h)
	assert.Equal(t, 50200.0, rec.High24h)
	assert.Equal(t, 49000.0, rec.Low24h)
	assert.Equal(t, 1000.0, rec.Volume24h)
	assert.Equal(t, SourceTicker, rec.Source)
	assert.Equal(t, time.UnixMilli(123456), rec.EventTime)
	assert.Equal(t, fixedNow, rec.ReceivedAt)

	// no interval-specific field is fabricated
	assert.False(t, rec.Has(FieldIntervalChange))
	assert.Empty(t, rec.Interval)
	assert.Zero(t, rec.IntervalChangePercent)
}

// go test -v --run TestNormalizeCombinedEnvelope
func TestNormalizeCombinedEnvelope(t *testing.T) {
	frame := `{"stream":"btcusdt@ticker","data":` + tickerFrame + `}`
	rec, err := newTestNormalizer().Normalize([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, 50000.0, rec.Price)
}

// go test -v --run TestNormalizeTickerOutOfBand
func TestNormalizeTickerOutOfBand(t *testing.T) {
	frame := strings.Replace(tickerFrame, `"P":"1.0"`, `"P":"5000"`, 1)
	_, err := newTestNormalizer().Normalize([]byte(frame))
	assert.ErrorIs(t, err, ErrOutOfBand)

	frame = strings.Replace(tickerFrame, `"P":"1.0"`, `"P":"-100.5"`, 1)
	_, err = newTestNormalizer().Normalize([]byte(frame))
	assert.ErrorIs(t, err, ErrOutOfBand)
}

// go test -v --run TestNormalizeTrade
func TestNormalizeTrade(t *testing.T) {
	frame := `{"e":"trade","E":1700000000000,"s":"ETHUSDT","t":12345,"p":"2000.50","q":"0.25","T":1700000000000,"m":true,"M":true}`
	rec, err := newTestNormalizer().Normalize([]byte(frame))
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", rec.Symbol)
	assert.Equal(t, 2000.5, rec.Price)
	assert.Equal(t, 0.25, rec.Quantity)
	assert.Equal(t, SourceTrade, rec.Source)
	assert.Equal(t, FieldPrice|FieldQuantity, rec.Fields)
	assert.False(t, rec.Has(FieldChange))
	assert.False(t, rec.Has(FieldChangePercent))
}

// go test -v --run TestNormalizeKlineProvenance
func TestNormalizeKlineProvenance(t *testing.T) {
	closed := `{"e":"kline","E":1700000000000,"s":"BTCUSDT","k":{"t":1,"T":2,"s":"BTCUSDT","i":"15m","f":1,"L":2,` +
		`"o":"100","c":"110","h":"115","l":"95","v":"10","n":5,"x":true,"q":"1000","V":"5","Q":"500","B":"0"}}`

	rec, err := newTestNormalizer().Normalize([]byte(closed))
	require.NoError(t, err)
	assert.Equal(t, "kline-15m", rec.Source)
	assert.Equal(t, "15m", rec.Interval)
	assert.InDelta(t, 10.0, rec.IntervalChangePercent, 1e-9)
	assert.Equal(t, FieldIntervalChange, rec.Fields)
	assert.Zero(t, rec.Change)
	assert.Zero(t, rec.ChangePercent)

	// merging a kline over a ticker keeps the 24h fields intact
	ticker, err := newTestNormalizer().Normalize([]byte(tickerFrame))
	require.NoError(t, err)
	merged := Merge(ticker, rec)
	assert.Equal(t, 500.0, merged.Change)
	assert.Equal(t, 1.0, merged.ChangePercent)
	assert.Equal(t, 49500.0, merged.Open24h)
	assert.Equal(t, 50000.0, merged.Price)
	change, ok := merged.IntervalChange("15m")
	require.True(t, ok)
	assert.InDelta(t, 10.0, change, 1e-9)
	assert.Empty(t, merged.Interval, "merged records keep returns per interval only")

	open := strings.Replace(closed, `"x":true`, `"x":false`, 1)
	_, err = newTestNormalizer().Normalize([]byte(open))
	assert.ErrorIs(t, err, ErrIgnored)
}

// go test -v --run TestNormalizeMiniTicker
func TestNormalizeMiniTicker(t *testing.T) {
	frame := `{"e":"24hrMiniTicker","E":1700000000000,"s":"SOLUSDT","c":"20.5","o":"19","h":"21","l":"18.5","v":"12345","q":"250000"}`
	rec, err := newTestNormalizer().Normalize([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, SourceMiniTicker, rec.Source)
	assert.Equal(t, 20.5, rec.Price)
	assert.Equal(t, 19.0, rec.Open24h)
	assert.False(t, rec.Has(FieldChangePercent))
}

// go test -v --run TestNormalizeRejects
func TestNormalizeRejects(t *testing.T) {
	n := NewNormalizer(256, func() time.Time { return fixedNow })

	cases := []struct {
		name  string
		frame string
		want  error
	}{
		{"control reply", `{"result":null,"id":7}`, ErrIgnored},
		{"control error", `{"error":{"code":2,"msg":"Invalid request"},"id":7}`, ErrControlRejected},
		{"depth", `{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":1,"u":2,"b":[],"a":[]}`, ErrIgnored},
		{"partial depth", `{"stream":"btcusdt@depth5@100ms","data":{"lastUpdateId":1,"bids":[],"asks":[]}}`, ErrIgnored},
		{"array", `[1,2,3]`, ErrUnexpectedShape},
		{"malformed", `{"e":`, ErrUnexpectedShape},
		{"no discriminator", `{"foo":"bar"}`, ErrUnexpectedShape},
		{"oversized", `{"e":"trade","pad":"` + strings.Repeat("x", 300) + `"}`, ErrFrameTooLarge},
		{"unquoted trade price", `{"e":"trade","s":"BTCUSDT","p":123,"q":"1"}`, ErrUnexpectedShape},
		{"non-numeric ticker price", `{"e":"24hrTicker","s":"BTCUSDT","c":"abc"}`, ErrUnexpectedShape},
		{"mini ticker close as object", `{"e":"24hrMiniTicker","s":"BTCUSDT","c":{}}`, ErrUnexpectedShape},
		{"kline body not an object", `{"e":"kline","s":"BTCUSDT","k":"15m"}`, ErrUnexpectedShape},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize([]byte(tc.frame))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := n.Normalize([]byte(`{"e":"trade","s":"BTCUSDT","p":"abc","q":"1"}`))
	assert.ErrorIs(t, err, ErrUnexpectedShape)
	assert.NotErrorIs(t, err, ErrIgnored)
}

// go test -v --run TestMergeTradeKeepsTickerChange
func TestMergeTradeKeepsTickerChange(t *testing.T) {
	ticker := PriceRecord{Symbol: "BTCUSDT", Price: 100, Change: 5, ChangePercent: 5,
		Source: SourceTicker, Fields: FieldPrice | FieldChange | FieldChangePercent}
	trade := PriceRecord{Symbol: "BTCUSDT", Price: 101, Quantity: 2,
		Source: SourceTrade, Fields: FieldPrice | FieldQuantity}

	merged := Merge(ticker, trade)
	assert.Equal(t, 101.0, merged.Price)
	assert.Equal(t, 5.0, merged.Change)
	assert.Equal(t, 5.0, merged.ChangePercent)
	assert.Equal(t, SourceTrade, merged.Source)
	assert.True(t, merged.Has(FieldChange|FieldQuantity))
	assert.True(t, IsKlineSource(KlineSource("1h")))
}

// go test -v --run TestMergeKeepsEveryInterval
func TestMergeKeepsEveryInterval(t *testing.T) {
	k15 := PriceRecord{Symbol: "BTCUSDT", Interval: "15m", IntervalChangePercent: 10,
		Source: KlineSource("15m"), Fields: FieldIntervalChange}
	k1h := PriceRecord{Symbol: "BTCUSDT", Interval: "1h", IntervalChangePercent: -10,
		Source: KlineSource("1h"), Fields: FieldIntervalChange}

	first := Merge(PriceRecord{}, k15)
	merged := Merge(first, k1h)
	assert.Equal(t, map[string]float64{"15m": 10, "1h": -10}, merged.IntervalChanges)
	assert.Equal(t, map[string]float64{"15m": 10}, first.IntervalChanges, "earlier records are not mutated")

	// a later 15m close replaces only its own horizon
	k15.IntervalChangePercent = 2.5
	merged = Merge(merged, k15)
	assert.Equal(t, map[string]float64{"15m": 2.5, "1h": -10}, merged.IntervalChanges)

	// non-kline updates carry the horizons through
	merged = Merge(merged, PriceRecord{Symbol: "BTCUSDT", Price: 1, Source: SourceTrade, Fields: FieldPrice})
	change, ok := merged.IntervalChange("1h")
	require.True(t, ok)
	assert.Equal(t, -10.0, change)
	_, ok = merged.IntervalChange("4h")
	assert.False(t, ok)
}
