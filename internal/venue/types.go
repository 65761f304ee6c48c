// Package venue holds the wire-level data transfer objects and the
// route table shared by every component that talks to AsterDex's spot
// and perp REST surfaces. Nothing in this package
// performs I/O or signing; it is the vocabulary the HTTP client,
// market-data, account, and execution packages share.
package venue

import "github.com/shopspring/decimal"

// Market distinguishes AsterDex's two parallel order books.
type Market string

const (
	MarketSpot Market = "spot"
	MarketPerp Market = "perp"
)

// Symbol identifies one tradable instrument on one market, e.g.
// "BTCUSDT" on MarketSpot and the same string on MarketPerp denoting
// the linear USDT-margined perpetual.
type Symbol struct {
	Name   string
	Market Market
}

// ExchangeFilter captures the three filter kinds the Filter Cache &
// Formatter truncates order parameters against.
type ExchangeFilter struct {
	Symbol              string
	StepSize            decimal.Decimal // LOT_SIZE
	MinQty              decimal.Decimal // LOT_SIZE
	TickSize            decimal.Decimal // PRICE_FILTER
	MinNotional         decimal.Decimal // MIN_NOTIONAL, zero if the venue omits it
	QuoteAssetPrecision int             // spot only; decimal places for quoteOrderQty
}

// SpotBalance is one asset line from the spot account snapshot.
type SpotBalance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// PerpPosition is one open (or flat) perpetual position.
type PerpPosition struct {
	Symbol           string
	PositionAmt      decimal.Decimal // signed: positive = long, negative = short
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	UnrealizedProfit decimal.Decimal
	Leverage         decimal.Decimal
	LiquidationPrice decimal.Decimal
	PositionSide     string
}

// BookTicker is the best bid/ask snapshot for a symbol on one market.
type BookTicker struct {
	Symbol   string
	BidPrice decimal.Decimal
	AskPrice decimal.Decimal
}

// MidPrice returns the midpoint of bid and ask.
func (b BookTicker) MidPrice() decimal.Decimal {
	return b.BidPrice.Add(b.AskPrice).Div(decimal.NewFromInt(2))
}

// FundingRateRecord is one historical funding settlement for a perp
// symbol.
type FundingRateRecord struct {
	Symbol      string
	FundingRate decimal.Decimal
	FundingTime int64 // unix millis
}

// IncomeRecord is one ledger entry from the perp income-history
// endpoint (funding payments, realized PnL, commission, transfers).
type IncomeRecord struct {
	Symbol     string
	IncomeType string
	Income     decimal.Decimal
	Time       int64 // unix millis
	TranID     int64
}

// AnalyzedPosition is the Strategy Engine's enriched view of one
// delta-neutral pair: a perp position matched against its spot
// holding, plus the derived classification fields that decide whether
// the pair is still delta-neutral.
type AnalyzedPosition struct {
	Symbol           string
	SpotQty          decimal.Decimal
	PerpQty          decimal.Decimal // signed, positive = long, negative = short
	NetDelta         decimal.Decimal // spotQty + perpQty
	TotalSize        decimal.Decimal // max(|spotQty|, |perpQty|)
	ImbalancePct     decimal.Decimal // |netDelta| / totalSize * 100
	IsDeltaNeutral   bool            // imbalancePct <= ImbalanceThresholdPct
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	LiquidationPrice decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	PositionValueUSD decimal.Decimal // |perpQty| * markPrice
	FundingRate      decimal.Decimal
	CurrentApr       decimal.Decimal // fundingRate * AprMultiplier
}

// LiquidationRisk is checkPositionHealth's coarse risk banding.
type LiquidationRisk string

const (
	RiskNone     LiquidationRisk = "NONE"
	RiskLow      LiquidationRisk = "LOW"
	RiskMedium   LiquidationRisk = "MEDIUM"
	RiskHigh     LiquidationRisk = "HIGH"
	RiskCritical LiquidationRisk = "CRITICAL"
)

// HealthVerdict is the Strategy Engine's checkPositionHealth output:
// an overall status plus the specific conditions that produced it.
type HealthVerdict struct {
	Symbol               string
	Kind                 string // "OK", "WARN", "CRITICAL"
	Reasons              []string
	ImbalancePct         decimal.Decimal
	LiquidationBufferPct decimal.Decimal
	LiquidationRisk      LiquidationRisk
}

// PositionSizePlan is calculatePositionSize's output: how much new
// spot capital to deploy and the resulting perp short size, given
// capital already committed to an existing spot holding.
type PositionSizePlan struct {
	SpotQuantityToBuy        decimal.Decimal
	NewSpotCapitalRequired   decimal.Decimal
	TotalPerpQuantityToShort decimal.Decimal
	ExistingSpotUsdUtilized  decimal.Decimal
	PerpCapitalRequired      decimal.Decimal
}

// TradePlan is the Portfolio Orchestrator's opening-a-DN-pair plan:
// the ideal perp size from PositionSizePlan truncated to the venue's
// lot step, plus the spot purchase needed to match it.
type TradePlan struct {
	Symbol           string
	SpotPrice        decimal.Decimal
	IdealPerpQty     decimal.Decimal
	FinalPerpQty     decimal.Decimal // truncate(idealPerpQty, stepSize)
	ExistingSpotQty  decimal.Decimal
	SpotQtyToBuy     decimal.Decimal
	SpotCapitalToBuy decimal.Decimal
}
