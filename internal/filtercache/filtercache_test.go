package filtercache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asterdex/dn-arb-core/internal/asterr"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

func fakeExchangeInfoFetcher(t *testing.T) HTTPClientFunc {
	t.Helper()
	return func(ctx context.Context, path string, out interface{}) error {
		body := []byte(`{
			"symbols": [
				{
					"symbol": "BTCUSDT",
					"quoteAssetPrecision": 4,
					"filters": [
						{"filterType": "PRICE_FILTER", "tickSize": "0.01"},
						{"filterType": "LOT_SIZE", "stepSize": "0.001", "minQty": "0.001"},
						{"filterType": "MIN_NOTIONAL", "minNotional": "5"}
					]
				},
				{
					"symbol": "ETHUSDT",
					"filters": [
						{"filterType": "PRICE_FILTER", "tickSize": "0.01"},
						{"filterType": "LOT_SIZE", "stepSize": "0.01", "minQty": "0.01"}
					]
				}
			]
		}`)
		return json.Unmarshal(body, out)
	}
}

func TestCache_RefreshAndFormatOrderParams(t *testing.T) {
	c := New(fakeExchangeInfoFetcher(t), nil)
	require.NoError(t, c.RefreshSpot(context.Background()))

	out, err := c.FormatOrderParams("BTCUSDT", venue.MarketSpot, OrderParams{
		Price:    decimal.RequireFromString("60123.4567"),
		Quantity: decimal.RequireFromString("0.0019999"),
	})
	require.NoError(t, err)
	assert.Equal(t, "60123.45", out.Price)
	assert.Equal(t, "0.001", out.Quantity)
}

func TestCache_TruncatesTowardZeroNotNearest(t *testing.T) {
	c := New(fakeExchangeInfoFetcher(t), nil)
	require.NoError(t, c.RefreshSpot(context.Background()))

	out, err := c.FormatOrderParams("BTCUSDT", venue.MarketSpot, OrderParams{
		Price: decimal.RequireFromString("60123.4999"),
	})
	require.NoError(t, err)
	// 4999 would round to .50 but must truncate down to .49
	assert.Equal(t, "60123.49", out.Price)
}

func TestCache_TruncatesQuoteQuantityToQuoteAssetPrecision(t *testing.T) {
	c := New(fakeExchangeInfoFetcher(t), nil)
	require.NoError(t, c.RefreshSpot(context.Background()))

	out, err := c.FormatOrderParams("BTCUSDT", venue.MarketSpot, OrderParams{
		QuoteQuantity: decimal.RequireFromString("600.123456"),
	})
	require.NoError(t, err)
	assert.Equal(t, "600.1234", out.QuoteQuantity)
}

func TestCache_QuoteQuantityDefaultsPrecisionWhenOmitted(t *testing.T) {
	c := New(fakeExchangeInfoFetcher(t), nil)
	require.NoError(t, c.RefreshSpot(context.Background()))

	// ETHUSDT's fixture omits quoteAssetPrecision entirely.
	out, err := c.FormatOrderParams("ETHUSDT", venue.MarketSpot, OrderParams{
		QuoteQuantity: decimal.RequireFromString("600.999"),
	})
	require.NoError(t, err)
	assert.Equal(t, "600.99", out.QuoteQuantity)
}

func TestCache_UnknownSymbolError(t *testing.T) {
	c := New(fakeExchangeInfoFetcher(t), nil)
	require.NoError(t, c.RefreshSpot(context.Background()))

	_, err := c.FormatOrderParams("DOGEUSDT", venue.MarketSpot, OrderParams{
		Quantity: decimal.RequireFromString("10"),
	})
	require.Error(t, err)
	var unknownErr *asterr.UnknownSymbolError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestCache_MissingMinNotionalPassesThroughZeroValue(t *testing.T) {
	c := New(fakeExchangeInfoFetcher(t), nil)
	require.NoError(t, c.RefreshSpot(context.Background()))

	snap := c.Snapshot()
	filter, ok := snap.Filter("ETHUSDT", venue.MarketSpot)
	require.True(t, ok)
	assert.True(t, filter.MinNotional.IsZero())
}

func TestCache_SnapshotIsolatedFromConcurrentRefresh(t *testing.T) {
	c := New(fakeExchangeInfoFetcher(t), nil)
	require.NoError(t, c.RefreshSpot(context.Background()))

	before := c.Snapshot()
	require.NoError(t, c.RefreshPerp(context.Background()))
	after := c.Snapshot()

	// Spot table is untouched by a perp-only refresh, but the snapshot
	// pointer itself was swapped.
	_, beforeOK := before.Filter("BTCUSDT", venue.MarketSpot)
	_, afterOK := after.Filter("BTCUSDT", venue.MarketSpot)
	assert.True(t, beforeOK)
	assert.True(t, afterOK)
}
