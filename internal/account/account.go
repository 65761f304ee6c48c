// Package account implements the Account API component: spot balance
// snapshots, perp account/position info, leverage configuration, and
// the internal spot<->perp transfer used by rebalancing.
package account

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/asterdex/dn-arb-core/internal/asterr"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

// Client is the subset of *httpclient.Client this package depends on.
type Client interface {
	Get(ctx context.Context, path string, params url.Values, out interface{}, suppressErrors bool) error
	Post(ctx context.Context, path string, params url.Values, out interface{}) error
}

// API implements the Account API component.
type API struct {
	http Client
	log  *zap.Logger
}

// New builds an Account API bound to an already-configured HTTP client.
func New(client Client, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{http: client, log: log}
}

type spotBalanceWire struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type spotAccountWire struct {
	Balances []spotBalanceWire `json:"balances"`
}

// GetSpotAccountBalances fetches every asset balance line on the spot
// account.
func (a *API) GetSpotAccountBalances(ctx context.Context) ([]venue.SpotBalance, error) {
	var wire spotAccountWire
	if err := a.http.Get(ctx, "/api/v1/account", nil, &wire, false); err != nil {
		return nil, errors.Wrap(err, "account: fetching spot balances")
	}

	out := make([]venue.SpotBalance, 0, len(wire.Balances))
	for _, b := range wire.Balances {
		out = append(out, venue.SpotBalance{
			Asset:  b.Asset,
			Free:   parseDecimal(b.Free),
			Locked: parseDecimal(b.Locked),
		})
	}
	return out, nil
}

type perpPositionWire struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnrealizedProfit string `json:"unrealizedProfit"`
	Leverage         string `json:"leverage"`
	LiquidationPrice string `json:"liquidationPrice"`
	PositionSide     string `json:"positionSide"`
}

type perpAssetWire struct {
	Asset         string `json:"asset"`
	WalletBalance string `json:"walletBalance"`
}

type perpAccountWire struct {
	Assets    []perpAssetWire    `json:"assets"`
	Positions []perpPositionWire `json:"positions"`
}

// GetPerpAccountInfo fetches every perp position (open or flat) on the
// account.
func (a *API) GetPerpAccountInfo(ctx context.Context) ([]venue.PerpPosition, error) {
	var wire perpAccountWire
	if err := a.http.Get(ctx, "/fapi/v3/account", nil, &wire, false); err != nil {
		return nil, errors.Wrap(err, "account: fetching perp account info")
	}

	out := make([]venue.PerpPosition, 0, len(wire.Positions))
	for _, p := range wire.Positions {
		out = append(out, venue.PerpPosition{
			Symbol:           p.Symbol,
			PositionAmt:      parseDecimal(p.PositionAmt),
			EntryPrice:       parseDecimal(p.EntryPrice),
			MarkPrice:        parseDecimal(p.MarkPrice),
			UnrealizedProfit: parseDecimal(p.UnrealizedProfit),
			Leverage:         parseDecimal(p.Leverage),
			LiquidationPrice: parseDecimal(p.LiquidationPrice),
			PositionSide:     p.PositionSide,
		})
	}
	return out, nil
}

// GetPerpWalletBalance fetches the perp margin wallet's balance for
// asset (e.g. "USDT"), returning zero if the account carries no line
// for it.
func (a *API) GetPerpWalletBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	var wire perpAccountWire
	if err := a.http.Get(ctx, "/fapi/v3/account", nil, &wire, false); err != nil {
		return decimal.Zero, errors.Wrap(err, "account: fetching perp wallet balance")
	}
	for _, a := range wire.Assets {
		if a.Asset == asset {
			return parseDecimal(a.WalletBalance), nil
		}
	}
	return decimal.Zero, nil
}

type leverageWire struct {
	Symbol   string `json:"symbol"`
	Leverage int    `json:"leverage"`
}

// GetPerpLeverage fetches the currently configured leverage for symbol.
func (a *API) GetPerpLeverage(ctx context.Context, symbol string) (int, error) {
	positions, err := a.GetPerpAccountInfo(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			lev, _ := p.Leverage.Float64()
			return int(lev), nil
		}
	}
	return 0, asterr.NewUnknownSymbolError(symbol, string(venue.MarketPerp))
}

// SetPerpLeverage sets symbol's leverage. It returns true only if the
// venue's response confirms the requested leverage was actually
// applied — callers must not proceed to open a position on an unconfirmed
// leverage change.
func (a *API) SetPerpLeverage(ctx context.Context, symbol string, leverage int) (bool, error) {
	params := url.Values{
		"symbol":   {symbol},
		"leverage": {fmt.Sprintf("%d", leverage)},
	}

	var resp leverageWire
	if err := a.http.Post(ctx, "/fapi/v1/leverage", params, &resp); err != nil {
		return false, errors.Wrapf(err, "account: setting leverage for %s", symbol)
	}
	return resp.Leverage == leverage, nil
}

// TransferDirection identifies which way funds move between the spot
// and perp wallets.
type TransferDirection string

const (
	// TransferSpotToPerp moves funds from the spot wallet to the perp
	// margin wallet.
	TransferSpotToPerp TransferDirection = "SPOT_TO_PERP"
	// TransferPerpToSpot moves funds from the perp margin wallet to the
	// spot wallet.
	TransferPerpToSpot TransferDirection = "PERP_TO_SPOT"
)

type transferWire struct {
	TranID int64 `json:"tranId"`
}

// TransferBetweenSpotAndPerp moves asset between the two wallets.
// direction must be one of TransferSpotToPerp/TransferPerpToSpot;
// anything else raises ValidationError before any request is sent.
// Every call generates a fresh clientTranId of the form
// "transfer_<unix_micros>", so calling it again submits a new transfer
// rather than repeating the previous one.
func (a *API) TransferBetweenSpotAndPerp(ctx context.Context, asset string, amount decimal.Decimal, direction TransferDirection) (int64, error) {
	if direction != TransferSpotToPerp && direction != TransferPerpToSpot {
		return 0, asterr.NewValidationError("direction", fmt.Sprintf("unknown transfer direction %q", direction))
	}

	clientTranID := fmt.Sprintf("transfer_%d", time.Now().UnixMicro())
	params := url.Values{
		"asset":         {asset},
		"amount":        {amount.String()},
		"kindType":      {string(direction)},
		"clientTranId":  {clientTranID},
	}

	var resp transferWire
	if err := a.http.Post(ctx, "/fapi/v3/asset/wallet/transfer", params, &resp); err != nil {
		return 0, errors.Wrapf(err, "account: transferring %s %s", amount.String(), asset)
	}
	return resp.TranID, nil
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
