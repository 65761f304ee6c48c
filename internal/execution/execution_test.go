package execution

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asterdex/dn-arb-core/internal/filtercache"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

type fakeClient struct {
	lastPath   string
	lastParams url.Values
	response   string
}

func (f *fakeClient) Post(ctx context.Context, path string, params url.Values, out interface{}) error {
	f.lastPath = path
	f.lastParams = params
	if out != nil && f.response != "" {
		return json.Unmarshal([]byte(f.response), out)
	}
	return nil
}

type fakeFormatter struct{}

func (fakeFormatter) FormatOrderParams(symbol string, market venue.Market, params filtercache.OrderParams) (filtercache.FormattedParams, error) {
	out := filtercache.FormattedParams{}
	if !params.Price.IsZero() {
		out.Price = params.Price.Truncate(2).String()
	}
	if !params.Quantity.IsZero() {
		out.Quantity = params.Quantity.Truncate(3).String()
	}
	if !params.QuoteQuantity.IsZero() {
		out.QuoteQuantity = params.QuoteQuantity.String()
	}
	return out, nil
}

func TestPlaceSpotBuyMarket_UsesQuoteOrderQty(t *testing.T) {
	fc := &fakeClient{response: `{"orderId":1,"symbol":"BTCUSDT","executedQty":"0.01","avgPrice":"60000","status":"FILLED"}`}
	api := New(fc, fakeFormatter{}, nil)

	result, err := api.PlaceSpotBuyMarket(context.Background(), "BTCUSDT", decimal.NewFromInt(600))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/order", fc.lastPath)
	assert.Equal(t, "600", fc.lastParams.Get("quoteOrderQty"))
	assert.Equal(t, "BUY", fc.lastParams.Get("side"))
	assert.Equal(t, int64(1), result.OrderID)
}

func TestPlacePerpLimit_SetsGTCAndPrice(t *testing.T) {
	fc := &fakeClient{}
	api := New(fc, fakeFormatter{}, nil)

	_, err := api.PlacePerpLimit(context.Background(), "BTCUSDT", "SELL", decimal.NewFromFloat(60000.125), decimal.NewFromFloat(0.015))
	require.NoError(t, err)
	assert.Equal(t, "/fapi/v3/order", fc.lastPath)
	assert.Equal(t, "GTC", fc.lastParams.Get("timeInForce"))
	assert.Equal(t, "60000.12", fc.lastParams.Get("price"))
	assert.Equal(t, "0.015", fc.lastParams.Get("quantity"))
}

func TestPlaceSpotSellMarketByQty_UsesBaseQuantityNotNotional(t *testing.T) {
	fc := &fakeClient{response: `{"orderId":2,"symbol":"BTCUSDT","executedQty":"0.5","avgPrice":"60000","status":"FILLED"}`}
	api := New(fc, fakeFormatter{}, nil)

	result, err := api.PlaceSpotSellMarketByQty(context.Background(), "BTCUSDT", decimal.NewFromFloat(0.5))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/order", fc.lastPath)
	assert.Equal(t, "SELL", fc.lastParams.Get("side"))
	assert.Equal(t, "MARKET", fc.lastParams.Get("type"))
	assert.Equal(t, "0.5", fc.lastParams.Get("quantity"))
	assert.Empty(t, fc.lastParams.Get("quoteOrderQty"))
	assert.Equal(t, int64(2), result.OrderID)
}

func TestClosePerpPosition_IsReduceOnlyAndPositionSideBoth(t *testing.T) {
	fc := &fakeClient{}
	api := New(fc, fakeFormatter{}, nil)

	_, err := api.ClosePerpPosition(context.Background(), "BTCUSDT", "BUY", decimal.NewFromFloat(0.02))
	require.NoError(t, err)
	assert.Equal(t, "true", fc.lastParams.Get("reduceOnly"))
	assert.Equal(t, "BOTH", fc.lastParams.Get("positionSide"))
	assert.Equal(t, "MARKET", fc.lastParams.Get("type"))
}
