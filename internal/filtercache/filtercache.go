// Package filtercache owns AsterDex's per-symbol LOT_SIZE,
// PRICE_FILTER, and MIN_NOTIONAL exchange filters and formats order
// parameters against them. It is the one place that
// understands exchange-filter truncation; every other component routes
// price/quantity formatting through it rather than re-implementing
// the arithmetic.
package filtercache

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/asterdex/dn-arb-core/internal/asterr"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

// Snapshot is an immutable, read-through view of both markets'
// exchange filters at one point in time. Callers hold a Snapshot for
// the duration of a logical operation (e.g. one order placement) so a
// concurrent refresh never produces an inconsistent partial read
// (no shared mutable maps).
type Snapshot struct {
	spot map[string]venue.ExchangeFilter
	perp map[string]venue.ExchangeFilter
}

// Filter looks up the exchange filter for symbol on market.
func (s *Snapshot) Filter(symbol string, market venue.Market) (venue.ExchangeFilter, bool) {
	table := s.spot
	if market == venue.MarketPerp {
		table = s.perp
	}
	f, ok := table[symbol]
	return f, ok
}

// OrderParams are the optional fields FormatOrderParams truncates.
// Fields left as the zero decimal.Decimal are not formatted.
type OrderParams struct {
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	QuoteQuantity decimal.Decimal
}

// FormattedParams mirrors OrderParams with values truncated to the
// symbol's filters and rendered as wire-ready strings.
type FormattedParams struct {
	Price         string
	Quantity      string
	QuoteQuantity string
}

// Cache holds both markets' filter tables behind an atomically swapped
// pointer, so Snapshot() never blocks on a Refresh() in progress and a
// Refresh() never blocks concurrent readers.
type Cache struct {
	current atomic.Pointer[Snapshot]
	client  *genericClient
	log     *zap.Logger
}

// New builds an empty Cache; call RefreshSpot and RefreshPerp before
// the first FormatOrderParams call.
func New(client HTTPClientFunc, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{client: &genericClient{get: client}, log: log}
	c.current.Store(&Snapshot{spot: map[string]venue.ExchangeFilter{}, perp: map[string]venue.ExchangeFilter{}})
	return c
}

// HTTPClientFunc adapts any HTTP client's signed/unsigned GET method
// into the single function shape this package needs, decoupling it
// from httpclient.Client's concrete type for testability.
type HTTPClientFunc func(ctx context.Context, path string, out interface{}) error

type genericClient struct {
	get HTTPClientFunc
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol              string            `json:"symbol"`
		QuoteAssetPrecision int               `json:"quoteAssetPrecision"`
		Filters             []json.RawMessage `json:"filters"`
	} `json:"symbols"`
}

// defaultQuoteAssetPrecision matches the venue's own fallback when a
// symbol's exchangeInfo entry omits quoteAssetPrecision.
const defaultQuoteAssetPrecision = 2

type rawFilter struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize"`
	StepSize    string `json:"stepSize"`
	MinQty      string `json:"minQty"`
	MinNotional string `json:"minNotional"`
	Notional    string `json:"notional"`
}

// Snapshot returns the currently active, immutable filter table.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// RefreshSpot re-fetches the spot exchange info and atomically swaps
// the spot half of the snapshot in, leaving perp untouched.
func (c *Cache) RefreshSpot(ctx context.Context) error {
	return c.refresh(ctx, "/api/v1/exchangeInfo", venue.MarketSpot)
}

// RefreshPerp re-fetches the perp exchange info and atomically swaps
// the perp half of the snapshot in, leaving spot untouched.
func (c *Cache) RefreshPerp(ctx context.Context) error {
	return c.refresh(ctx, "/fapi/v1/exchangeInfo", venue.MarketPerp)
}

func (c *Cache) refresh(ctx context.Context, path string, market venue.Market) error {
	var resp exchangeInfoResponse
	if err := c.client.get(ctx, path, &resp); err != nil {
		return errors.Wrapf(err, "filtercache: fetching %s exchange info", market)
	}

	table := make(map[string]venue.ExchangeFilter, len(resp.Symbols))
	for _, s := range resp.Symbols {
		precision := s.QuoteAssetPrecision
		if precision <= 0 {
			precision = defaultQuoteAssetPrecision
		}
		filter := venue.ExchangeFilter{Symbol: s.Symbol, QuoteAssetPrecision: precision}
		for _, raw := range s.Filters {
			var f rawFilter
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			switch f.FilterType {
			case "PRICE_FILTER":
				filter.TickSize = parseDecimalOrZero(f.TickSize)
			case "LOT_SIZE":
				filter.StepSize = parseDecimalOrZero(f.StepSize)
				filter.MinQty = parseDecimalOrZero(f.MinQty)
			case "MIN_NOTIONAL", "NOTIONAL":
				if f.MinNotional != "" {
					filter.MinNotional = parseDecimalOrZero(f.MinNotional)
				} else {
					filter.MinNotional = parseDecimalOrZero(f.Notional)
				}
			}
		}
		table[s.Symbol] = filter
	}

	for {
		prev := c.current.Load()
		next := &Snapshot{spot: prev.spot, perp: prev.perp}
		if market == venue.MarketPerp {
			next.perp = table
		} else {
			next.spot = table
		}
		if c.current.CompareAndSwap(prev, next) {
			break
		}
	}

	c.log.Info("filter cache refreshed", zap.String("market", string(market)), zap.Int("symbols", len(table)))
	return nil
}

func parseDecimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatOrderParams truncates (never rounds) price and quantity to the
// symbol's tickSize/stepSize, and a spot quoteQuantity to the symbol's
// quoteAssetPrecision, rendering each as a decimal string. A field left
// zero in params is omitted from the result. A symbol absent from
// market's filter table raises UnknownSymbolError; a present symbol
// missing a particular filter (e.g. no PRICE_FILTER, so no tickSize)
// passes the matching field through unformatted.
func (c *Cache) FormatOrderParams(symbol string, market venue.Market, params OrderParams) (FormattedParams, error) {
	filter, ok := c.Snapshot().Filter(symbol, market)
	if !ok {
		return FormattedParams{}, asterr.NewUnknownSymbolError(symbol, string(market))
	}

	var out FormattedParams
	if !params.Price.IsZero() {
		if filter.TickSize.IsZero() {
			out.Price = params.Price.String()
		} else {
			out.Price = truncateToStep(params.Price, filter.TickSize).String()
		}
	}
	if !params.Quantity.IsZero() {
		if filter.StepSize.IsZero() {
			out.Quantity = params.Quantity.String()
		} else {
			out.Quantity = truncateToStep(params.Quantity, filter.StepSize).String()
		}
	}
	if !params.QuoteQuantity.IsZero() {
		if market == venue.MarketSpot {
			// quoteOrderQty is rejected by the venue if it carries more
			// fractional digits than the quote asset's own precision.
			out.QuoteQuantity = params.QuoteQuantity.Truncate(int32(filter.QuoteAssetPrecision)).String()
		} else {
			out.QuoteQuantity = params.QuoteQuantity.String()
		}
	}
	return out, nil
}

// truncateToStep floors value to the nearest multiple of step,
// rounding toward zero rather than to the nearest multiple — exchange
// filters reject an order that rounds up past the true available
// balance or notional.
func truncateToStep(value, step decimal.Decimal) decimal.Decimal {
	quotient := value.DivRound(step, 12).Truncate(0)
	return quotient.Mul(step)
}
