// Package marketdata implements AsterDex's public and account-scoped
// read endpoints: book tickers, funding-rate history, available
// symbol lists, delta-neutral pair discovery, and the signed
// income/trade history used for funding-analysis reconciliation.
package marketdata

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/asterdex/dn-arb-core/internal/venue"
)

// Client is the subset of *httpclient.Client this package depends on.
type Client interface {
	Get(ctx context.Context, path string, params url.Values, out interface{}, suppressErrors bool) error
}

// API implements the Market Data API component.
type API struct {
	http Client
	log  *zap.Logger
}

// New builds a Market Data API bound to an already-configured HTTP
// client.
func New(client Client, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{http: client, log: log}
}

type bookTickerWire struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

func (w bookTickerWire) toDomain() venue.BookTicker {
	return venue.BookTicker{
		Symbol:   w.Symbol,
		BidPrice: parseDecimal(w.BidPrice),
		AskPrice: parseDecimal(w.AskPrice),
	}
}

// GetSpotBookTicker fetches the current best bid/ask for symbol on the
// spot market.
func (a *API) GetSpotBookTicker(ctx context.Context, symbol string) (venue.BookTicker, error) {
	return a.bookTicker(ctx, "/api/v1/ticker/bookTicker", symbol)
}

// GetPerpBookTicker fetches the current best bid/ask for symbol on the
// perp market.
func (a *API) GetPerpBookTicker(ctx context.Context, symbol string) (venue.BookTicker, error) {
	return a.bookTicker(ctx, "/fapi/v1/ticker/bookTicker", symbol)
}

func (a *API) bookTicker(ctx context.Context, path, symbol string) (venue.BookTicker, error) {
	var wire bookTickerWire
	params := url.Values{"symbol": {symbol}}
	if err := a.http.Get(ctx, path, params, &wire, false); err != nil {
		return venue.BookTicker{}, errors.Wrapf(err, "marketdata: fetching book ticker for %s", symbol)
	}
	return wire.toDomain(), nil
}

type fundingRateWire struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"`
}

// GetFundingRateHistory fetches up to limit historical funding
// settlements for a perp symbol.
func (a *API) GetFundingRateHistory(ctx context.Context, symbol string, limit int) ([]venue.FundingRateRecord, error) {
	var wire []fundingRateWire
	params := url.Values{"symbol": {symbol}, "limit": {fmt.Sprintf("%d", limit)}}
	if err := a.http.Get(ctx, "/fapi/v1/fundingRate", params, &wire, false); err != nil {
		return nil, errors.Wrapf(err, "marketdata: fetching funding rate history for %s", symbol)
	}

	out := make([]venue.FundingRateRecord, 0, len(wire))
	for _, w := range wire {
		out = append(out, venue.FundingRateRecord{
			Symbol:      w.Symbol,
			FundingRate: parseDecimal(w.FundingRate),
			FundingTime: w.FundingTime,
		})
	}
	return out, nil
}

type symbolInfoWire struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

// GetAvailableSpotSymbols lists every actively-tradable spot symbol.
func (a *API) GetAvailableSpotSymbols(ctx context.Context) ([]string, error) {
	return a.availableSymbols(ctx, "/api/v1/exchangeInfo")
}

// GetAvailablePerpSymbols lists every actively-tradable perp symbol.
func (a *API) GetAvailablePerpSymbols(ctx context.Context) ([]string, error) {
	return a.availableSymbols(ctx, "/fapi/v1/exchangeInfo")
}

func (a *API) availableSymbols(ctx context.Context, path string) ([]string, error) {
	var wire symbolInfoWire
	if err := a.http.Get(ctx, path, nil, &wire, false); err != nil {
		return nil, errors.Wrap(err, "marketdata: fetching exchange info for symbol discovery")
	}

	out := make([]string, 0, len(wire.Symbols))
	for _, s := range wire.Symbols {
		if s.Status == "TRADING" {
			out = append(out, s.Symbol)
		}
	}
	return out, nil
}

// DiscoverDeltaNeutralPairs returns every symbol tradable on both the
// spot and perp markets, in the order the spot listing returns them.
func (a *API) DiscoverDeltaNeutralPairs(ctx context.Context) ([]string, error) {
	spotSymbols, err := a.GetAvailableSpotSymbols(ctx)
	if err != nil {
		return nil, err
	}
	perpSymbols, err := a.GetAvailablePerpSymbols(ctx)
	if err != nil {
		return nil, err
	}

	perpSet := make(map[string]struct{}, len(perpSymbols))
	for _, s := range perpSymbols {
		perpSet[s] = struct{}{}
	}

	var pairs []string
	for _, s := range spotSymbols {
		if _, ok := perpSet[s]; ok {
			pairs = append(pairs, s)
		}
	}
	return pairs, nil
}

type incomeRecordWire struct {
	Symbol     string `json:"symbol"`
	IncomeType string `json:"incomeType"`
	Income     string `json:"income"`
	Time       int64  `json:"time"`
	TranID     int64  `json:"tranId"`
}

// GetIncomeHistory fetches signed income-ledger entries (funding
// payments, realized PnL, commission, transfers) for symbol between
// startTime and endTime (unix millis; zero means unbounded).
func (a *API) GetIncomeHistory(ctx context.Context, symbol string, startTime, endTime int64, limit int) ([]venue.IncomeRecord, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	if startTime > 0 {
		params.Set("startTime", fmt.Sprintf("%d", startTime))
	}
	if endTime > 0 {
		params.Set("endTime", fmt.Sprintf("%d", endTime))
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var wire []incomeRecordWire
	if err := a.http.Get(ctx, "/fapi/v1/income", params, &wire, false); err != nil {
		return nil, errors.Wrap(err, "marketdata: fetching income history")
	}

	out := make([]venue.IncomeRecord, 0, len(wire))
	for _, w := range wire {
		out = append(out, venue.IncomeRecord{
			Symbol:     w.Symbol,
			IncomeType: w.IncomeType,
			Income:     parseDecimal(w.Income),
			Time:       w.Time,
			TranID:     w.TranID,
		})
	}
	return out, nil
}

type userTradeWire struct {
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`
	Qty      string `json:"qty"`
	Time     int64  `json:"time"`
	IsBuyer  bool   `json:"isBuyer"`
	Commission string `json:"commission"`
}

// UserTrade is one fill from the signed user-trades endpoint.
type UserTrade struct {
	Symbol     string
	Price      decimal.Decimal
	Qty        decimal.Decimal
	Time       int64
	IsBuyer    bool
	Commission decimal.Decimal
}

// GetUserTrades fetches the signed fill history for symbol.
func (a *API) GetUserTrades(ctx context.Context, symbol string, limit int) ([]UserTrade, error) {
	params := url.Values{"symbol": {symbol}}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var wire []userTradeWire
	if err := a.http.Get(ctx, "/fapi/v1/userTrades", params, &wire, false); err != nil {
		return nil, errors.Wrapf(err, "marketdata: fetching user trades for %s", symbol)
	}

	out := make([]UserTrade, 0, len(wire))
	for _, w := range wire {
		out = append(out, UserTrade{
			Symbol:     w.Symbol,
			Price:      parseDecimal(w.Price),
			Qty:        parseDecimal(w.Qty),
			Time:       w.Time,
			IsBuyer:    w.IsBuyer,
			Commission: parseDecimal(w.Commission),
		})
	}
	return out, nil
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
