// Package execution implements the Execution API component: spot
// market buy/sell and perp limit/market order placement, plus
// reduce-only position close. Every write request's price/quantity is
// truncated by the Filter Cache & Formatter before it reaches the wire.
package execution

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/asterdex/dn-arb-core/internal/filtercache"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

// Client is the subset of *httpclient.Client this package depends on.
type Client interface {
	Post(ctx context.Context, path string, params url.Values, out interface{}) error
}

// Formatter is the subset of *filtercache.Cache this package depends
// on, narrowed for testability.
type Formatter interface {
	FormatOrderParams(symbol string, market venue.Market, params filtercache.OrderParams) (filtercache.FormattedParams, error)
}

// API implements the Execution API component.
type API struct {
	http      Client
	formatter Formatter
	log       *zap.Logger
}

// New builds an Execution API bound to an already-configured HTTP
// client and filter cache.
func New(client Client, formatter Formatter, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{http: client, formatter: formatter, log: log}
}

// OrderResult is the subset of a venue order acknowledgement every
// caller needs.
type OrderResult struct {
	OrderID       int64
	Symbol        string
	ExecutedQty   decimal.Decimal
	AvgFillPrice  decimal.Decimal
	Status        string
}

type orderWire struct {
	OrderID      int64  `json:"orderId"`
	Symbol       string `json:"symbol"`
	ExecutedQty  string `json:"executedQty"`
	AvgPrice     string `json:"avgPrice"`
	Status       string `json:"status"`
}

func (w orderWire) toDomain() OrderResult {
	return OrderResult{
		OrderID:      w.OrderID,
		Symbol:       w.Symbol,
		ExecutedQty:  parseDecimal(w.ExecutedQty),
		AvgFillPrice: parseDecimal(w.AvgPrice),
		Status:       w.Status,
	}
}

// PlaceSpotBuyMarket buys quoteQuantity worth of symbol at market on
// the spot book (quoteOrderQty-based sizing).
func (a *API) PlaceSpotBuyMarket(ctx context.Context, symbol string, quoteQuantity decimal.Decimal) (OrderResult, error) {
	return a.spotMarket(ctx, symbol, "BUY", quoteQuantity)
}

// PlaceSpotSellMarket sells quoteQuantity worth of symbol at market on
// the spot book.
func (a *API) PlaceSpotSellMarket(ctx context.Context, symbol string, quoteQuantity decimal.Decimal) (OrderResult, error) {
	return a.spotMarket(ctx, symbol, "SELL", quoteQuantity)
}

// PlaceSpotSellMarketByQty sells an exact base-asset quantity of symbol
// at market, rather than sizing by quote notional. Used to liquidate an
// entire spot holding where the exact base quantity (not its USD value)
// is already known.
func (a *API) PlaceSpotSellMarketByQty(ctx context.Context, symbol string, quantity decimal.Decimal) (OrderResult, error) {
	formatted, err := a.formatter.FormatOrderParams(symbol, venue.MarketSpot, filtercache.OrderParams{Quantity: quantity})
	if err != nil {
		return OrderResult{}, err
	}

	params := url.Values{
		"symbol":   {symbol},
		"side":     {"SELL"},
		"type":     {"MARKET"},
		"quantity": {formatted.Quantity},
	}

	var wire orderWire
	if err := a.http.Post(ctx, "/api/v1/order", params, &wire); err != nil {
		return OrderResult{}, errors.Wrapf(err, "execution: placing spot SELL market order by quantity for %s", symbol)
	}
	return wire.toDomain(), nil
}

func (a *API) spotMarket(ctx context.Context, symbol, side string, quoteQuantity decimal.Decimal) (OrderResult, error) {
	formatted, err := a.formatter.FormatOrderParams(symbol, venue.MarketSpot, filtercache.OrderParams{QuoteQuantity: quoteQuantity})
	if err != nil {
		return OrderResult{}, err
	}

	params := url.Values{
		"symbol":        {symbol},
		"side":          {side},
		"type":          {"MARKET"},
		"quoteOrderQty": {formatted.QuoteQuantity},
	}

	var wire orderWire
	if err := a.http.Post(ctx, "/api/v1/order", params, &wire); err != nil {
		return OrderResult{}, errors.Wrapf(err, "execution: placing spot %s market order for %s", side, symbol)
	}
	return wire.toDomain(), nil
}

// PlacePerpLimit places a GTC limit order on the perp book.
func (a *API) PlacePerpLimit(ctx context.Context, symbol, side string, price, quantity decimal.Decimal) (OrderResult, error) {
	formatted, err := a.formatter.FormatOrderParams(symbol, venue.MarketPerp, filtercache.OrderParams{Price: price, Quantity: quantity})
	if err != nil {
		return OrderResult{}, err
	}

	params := url.Values{
		"symbol":      {symbol},
		"side":        {side},
		"type":        {"LIMIT"},
		"timeInForce": {"GTC"},
		"price":       {formatted.Price},
		"quantity":    {formatted.Quantity},
	}

	var wire orderWire
	if err := a.http.Post(ctx, "/fapi/v3/order", params, &wire); err != nil {
		return OrderResult{}, errors.Wrapf(err, "execution: placing perp limit order for %s", symbol)
	}
	return wire.toDomain(), nil
}

// PlacePerpMarket places a market order on the perp book.
func (a *API) PlacePerpMarket(ctx context.Context, symbol, side string, quantity decimal.Decimal) (OrderResult, error) {
	formatted, err := a.formatter.FormatOrderParams(symbol, venue.MarketPerp, filtercache.OrderParams{Quantity: quantity})
	if err != nil {
		return OrderResult{}, err
	}

	params := url.Values{
		"symbol":   {symbol},
		"side":     {side},
		"type":     {"MARKET"},
		"quantity": {formatted.Quantity},
	}

	var wire orderWire
	if err := a.http.Post(ctx, "/fapi/v3/order", params, &wire); err != nil {
		return OrderResult{}, errors.Wrapf(err, "execution: placing perp market order for %s", symbol)
	}
	return wire.toDomain(), nil
}

// ClosePerpPosition closes an open perp position with a reduce-only
// MARKET order against positionSide BOTH. side is the order side
// needed to flatten the position (SELL to close a long, BUY to close a
// short) — callers derive it from the position's signed quantity.
func (a *API) ClosePerpPosition(ctx context.Context, symbol, side string, quantity decimal.Decimal) (OrderResult, error) {
	formatted, err := a.formatter.FormatOrderParams(symbol, venue.MarketPerp, filtercache.OrderParams{Quantity: quantity})
	if err != nil {
		return OrderResult{}, err
	}

	params := url.Values{
		"symbol":       {symbol},
		"side":         {side},
		"type":         {"MARKET"},
		"quantity":     {formatted.Quantity},
		"reduceOnly":   {"true"},
		"positionSide": {"BOTH"},
	}

	var wire orderWire
	if err := a.http.Post(ctx, "/fapi/v3/order", params, &wire); err != nil {
		return OrderResult{}, errors.Wrapf(err, "execution: closing perp position for %s", symbol)
	}
	return wire.toDomain(), nil
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
