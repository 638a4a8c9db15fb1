package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"pricefeed/internal/binance/stream"
	"pricefeed/pkg/storage/postgres"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDSN returns the DSN of a scratch database, skipping the test when none
// is configured.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PRICEFEED_TEST_DSN")
	if dsn == "" {
		t.Skip("PRICEFEED_TEST_DSN not set")
	}
	return dsn
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=127.0.0.1 port=1 user=fail password=fail dbname=fail sslmode=disable connect_timeout=1"

	_, err := postgres.NewClient(invalidDSN)
	assert.Error(t, err)
}

// go test -v --run ^TestLatestPriceUpsert$
func TestLatestPriceUpsert(t *testing.T) {
	client, err := postgres.NewClient(testDSN(t))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.True(t, client.IsHealthy(ctx))
	require.NoError(t, client.AutoMigrateTables())

	now := time.Now().UTC().Truncate(time.Millisecond)
	ticker := stream.PriceRecord{
		Symbol: "TESTUSDT", Price: 100, Change: 5, ChangePercent: 5.26,
		Source: stream.SourceTicker, EventTime: now,
		Fields: stream.FieldPrice | stream.FieldChange | stream.FieldChangePercent,
	}
	require.NoError(t, client.UpsertLatestPrice(ctx, ticker))

	trade := stream.PriceRecord{
		Symbol: "TESTUSDT", Price: 101, Quantity: 0.2,
		Source: stream.SourceTrade, EventTime: now.Add(time.Second),
		Fields: stream.FieldPrice | stream.FieldQuantity,
	}
	require.NoError(t, client.UpsertLatestPrice(ctx, trade))

	got, err := client.GetLatestPrice(ctx, "TESTUSDT")
	require.NoError(t, err)
	assert.Equal(t, 101.0, got.Price)
	assert.Equal(t, 5.26, got.ChangePercent, "a trade keeps the ticker's change")
	assert.Equal(t, 0.2, got.Quantity)
	assert.Equal(t, stream.SourceTrade, got.Source)

	for _, k := range []stream.PriceRecord{
		{Symbol: "TESTUSDT", Interval: "15m", IntervalChangePercent: 10, Source: stream.KlineSource("15m")},
		{Symbol: "TESTUSDT", Interval: "1h", IntervalChangePercent: -10, Source: stream.KlineSource("1h")},
	} {
		k.EventTime = now
		k.Fields = stream.FieldIntervalChange
		require.NoError(t, client.UpsertLatestPrice(ctx, k))
	}

	got, err = client.GetLatestPrice(ctx, "TESTUSDT")
	require.NoError(t, err)
	assert.Equal(t, stream.SourceTrade, got.Source, "kline returns leave latest_price alone")

	changes, err := client.GetIntervalChanges(ctx, "TESTUSDT")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "15m", changes[0].Interval)
	assert.Equal(t, 10.0, changes[0].ChangePercent)
	assert.Equal(t, "1h", changes[1].Interval)
	assert.Equal(t, -10.0, changes[1].ChangePercent)

	n, err := client.DeleteStalePrices(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(3))
}
