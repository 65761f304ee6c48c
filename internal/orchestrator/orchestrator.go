// Package orchestrator implements the Portfolio Orchestrator
// component: the high-level transactions composed from the Account,
// Market Data, Execution, and Strategy layers — the comprehensive
// portfolio snapshot, opening/closing a delta-neutral pair, 50/50
// stablecoin rebalancing, and funding-income analysis. Every
// multi-request fetch fans out concurrently. The portfolio snapshot
// keeps going past a failed branch and returns partial data; opening,
// closing, rebalancing, and funding analysis fail as a whole when one
// of their input fetches fails, and report each order leg's outcome
// separately.
package orchestrator

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/asterdex/dn-arb-core/internal/account"
	"github.com/asterdex/dn-arb-core/internal/execution"
	"github.com/asterdex/dn-arb-core/internal/filtercache"
	"github.com/asterdex/dn-arb-core/internal/marketdata"
	"github.com/asterdex/dn-arb-core/internal/strategy"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

// stablecoins are valued at 1.0 USD without a book-ticker probe.
var stablecoins = map[string]struct{}{
	"USDT":  {},
	"USDC":  {},
	"BUSD":  {},
	"FDUSD": {},
}

// Result is the structured outcome every public operation returns.
// Transport and venue errors are captured here as Success=false rather
// than propagated across the boundary; only programming errors
// (ValidationError, UnknownSymbolError) escape as a Go error.
type Result struct {
	Success bool
	Message string
	Details interface{}
}

// MarketData is the subset of *marketdata.API this package depends on.
type MarketData interface {
	GetSpotBookTicker(ctx context.Context, symbol string) (venue.BookTicker, error)
	GetPerpBookTicker(ctx context.Context, symbol string) (venue.BookTicker, error)
	GetFundingRateHistory(ctx context.Context, symbol string, limit int) ([]venue.FundingRateRecord, error)
	DiscoverDeltaNeutralPairs(ctx context.Context) ([]string, error)
	GetIncomeHistory(ctx context.Context, symbol string, startTime, endTime int64, limit int) ([]venue.IncomeRecord, error)
	GetUserTrades(ctx context.Context, symbol string, limit int) ([]marketdata.UserTrade, error)
}

// Account is the subset of *account.API this package depends on.
type Account interface {
	GetSpotAccountBalances(ctx context.Context) ([]venue.SpotBalance, error)
	GetPerpAccountInfo(ctx context.Context) ([]venue.PerpPosition, error)
	GetPerpWalletBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	SetPerpLeverage(ctx context.Context, symbol string, leverage int) (bool, error)
	TransferBetweenSpotAndPerp(ctx context.Context, asset string, amount decimal.Decimal, direction account.TransferDirection) (int64, error)
}

// Execution is the subset of *execution.API this package depends on.
type Execution interface {
	PlaceSpotBuyMarket(ctx context.Context, symbol string, quoteQuantity decimal.Decimal) (execution.OrderResult, error)
	PlaceSpotSellMarketByQty(ctx context.Context, symbol string, quantity decimal.Decimal) (execution.OrderResult, error)
	PlacePerpMarket(ctx context.Context, symbol, side string, quantity decimal.Decimal) (execution.OrderResult, error)
	ClosePerpPosition(ctx context.Context, symbol, side string, quantity decimal.Decimal) (execution.OrderResult, error)
}

// Filters is the subset of *filtercache.Cache this package depends on.
type Filters interface {
	FormatOrderParams(symbol string, market venue.Market, params filtercache.OrderParams) (filtercache.FormattedParams, error)
	RefreshSpot(ctx context.Context) error
	RefreshPerp(ctx context.Context) error
}

// Orchestrator composes the Account, Market Data, Execution, and
// Filter layers into the high-level operations the CLI drives.
type Orchestrator struct {
	market  MarketData
	acct    Account
	exec    Execution
	filters Filters
	log     *zap.Logger
}

// New builds a Portfolio Orchestrator over already-configured
// component APIs.
func New(market MarketData, acct Account, exec Execution, filters Filters, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{market: market, acct: acct, exec: exec, filters: filters, log: log}
}

func baseAsset(symbol string) string {
	return strings.TrimSuffix(symbol, "USDT")
}

// withRetry runs fn once, and if it fails retries exactly once more.
// It exists for transient 5xx responses on orchestrator-level branch
// fetches; the HTTP client itself never retries.
func withRetry(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	return fn()
}

// EnrichedSpotBalance is a non-zero spot balance annotated with its
// USD value.
type EnrichedSpotBalance struct {
	venue.SpotBalance
	ValueUSD decimal.Decimal
}

// PortfolioSnapshot is getComprehensivePortfolioData's canonical
// dashboard payload.
type PortfolioSnapshot struct {
	PerpAccountInfo   []venue.PerpPosition
	RawPerpPositions  []venue.PerpPosition // active only: |positionAmt| > 0
	SpotBalances      []EnrichedSpotBalance
	AnalyzedPositions []venue.AnalyzedPosition
}

// GetComprehensivePortfolioData returns the canonical dashboard
// snapshot: perp account info, active perp positions, non-zero spot
// balances enriched with USD value, and Strategy-analyzed positions.
func (o *Orchestrator) GetComprehensivePortfolioData(ctx context.Context) (PortfolioSnapshot, error) {
	var perpPositions []venue.PerpPosition
	var spotBalances []venue.SpotBalance

	// A plain Group (no shared context) so one failing branch does not
	// cancel its siblings.
	var g errgroup.Group
	g.Go(func() error {
		var err error
		perpPositions, err = o.acct.GetPerpAccountInfo(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		spotBalances, err = o.acct.GetSpotAccountBalances(ctx)
		return err
	})
	g.Go(func() error {
		return o.filters.RefreshSpot(ctx)
	})
	g.Go(func() error {
		return o.filters.RefreshPerp(ctx)
	})
	if err := g.Wait(); err != nil {
		o.log.Warn("comprehensive snapshot: a branch failed, returning partial data", zap.Error(err))
	}

	var active []venue.PerpPosition
	for _, p := range perpPositions {
		if !p.PositionAmt.IsZero() {
			active = append(active, p)
		}
	}

	// Refresh each active position's markPrice with the current mid-price.
	refreshed := make([]venue.PerpPosition, len(active))
	copy(refreshed, active)
	{
		g, gctx := errgroup.WithContext(ctx)
		for i := range refreshed {
			i := i
			g.Go(func() error {
				ticker, err := o.market.GetPerpBookTicker(gctx, refreshed[i].Symbol)
				if err != nil {
					return nil // branch failure: keep the stale markPrice
				}
				refreshed[i].MarkPrice = ticker.MidPrice()
				return nil
			})
		}
		_ = g.Wait()
	}

	var enriched []EnrichedSpotBalance
	{
		nonZero := make([]venue.SpotBalance, 0, len(spotBalances))
		for _, b := range spotBalances {
			if !b.Free.Add(b.Locked).IsZero() {
				nonZero = append(nonZero, b)
			}
		}
		values := make([]decimal.Decimal, len(nonZero))
		g, gctx := errgroup.WithContext(ctx)
		for i := range nonZero {
			i := i
			asset := nonZero[i].Asset
			if _, ok := stablecoins[asset]; ok {
				values[i] = decimal.NewFromInt(1).Mul(nonZero[i].Free.Add(nonZero[i].Locked))
				continue
			}
			g.Go(func() error {
				ticker, err := o.market.GetSpotBookTicker(gctx, asset+"USDT")
				if err != nil {
					values[i] = decimal.Zero
					return nil
				}
				values[i] = ticker.MidPrice().Mul(nonZero[i].Free.Add(nonZero[i].Locked))
				return nil
			})
		}
		_ = g.Wait()
		for i, b := range nonZero {
			enriched = append(enriched, EnrichedSpotBalance{SpotBalance: b, ValueUSD: values[i]})
		}
	}

	spotQtyByAsset := make(map[string]decimal.Decimal, len(enriched))
	for _, b := range enriched {
		spotQtyByAsset[b.Asset] = b.Free.Add(b.Locked)
	}

	analyzed := make([]venue.AnalyzedPosition, 0, len(refreshed))
	covered := make(map[string]struct{}, len(refreshed))
	for _, p := range refreshed {
		spotQty := spotQtyByAsset[baseAsset(p.Symbol)]
		pos, err := strategy.AnalyzePositionData(p.Symbol, p, spotQty, decimal.Zero)
		if err != nil {
			continue
		}
		analyzed = append(analyzed, pos)
		covered[baseAsset(p.Symbol)] = struct{}{}
	}

	// A spot holding with no matching perp position is still reported,
	// fully imbalanced by definition: there is no short leg to net
	// against it.
	for _, b := range enriched {
		if _, ok := covered[b.Asset]; ok {
			continue
		}
		qty := b.Free.Add(b.Locked)
		if qty.IsZero() {
			continue
		}
		var markPrice decimal.Decimal
		if !qty.IsZero() {
			markPrice = b.ValueUSD.Div(qty)
		}
		analyzed = append(analyzed, venue.AnalyzedPosition{
			Symbol:         b.Asset + "USDT",
			SpotQty:        qty,
			PerpQty:        decimal.Zero,
			NetDelta:       qty,
			TotalSize:      qty,
			ImbalancePct:   decimal.NewFromInt(100),
			IsDeltaNeutral: false,
			MarkPrice:      markPrice,
		})
	}

	// For each delta-neutral position, annotate the current funding APR.
	{
		g, gctx := errgroup.WithContext(ctx)
		for i := range analyzed {
			if !analyzed[i].IsDeltaNeutral {
				continue
			}
			i := i
			g.Go(func() error {
				records, err := o.market.GetFundingRateHistory(gctx, analyzed[i].Symbol, 1)
				if err != nil || len(records) == 0 {
					return nil
				}
				rate := records[0].FundingRate
				analyzed[i].FundingRate = rate
				analyzed[i].CurrentApr = rate.Mul(strategy.AprMultiplier)
				return nil
			})
		}
		_ = g.Wait()
	}

	return PortfolioSnapshot{
		PerpAccountInfo:   perpPositions,
		RawPerpPositions:  active,
		SpotBalances:      enriched,
		AnalyzedPositions: analyzed,
	}, nil
}

// FundingRateInfo is one entry of GetAllFundingRates's output.
type FundingRateInfo struct {
	Symbol      string
	FundingRate decimal.Decimal
	Apr         decimal.Decimal
}

// GetAllFundingRates discovers delta-neutral-capable pairs, fetches
// each one's latest funding rate in parallel, and returns them sorted
// by descending APR.
func (o *Orchestrator) GetAllFundingRates(ctx context.Context) ([]FundingRateInfo, error) {
	pairs, err := o.market.DiscoverDeltaNeutralPairs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "orchestrator: discovering delta-neutral pairs")
	}

	out := make([]FundingRateInfo, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range pairs {
		i, symbol := i, symbol
		out[i].Symbol = symbol
		g.Go(func() error {
			var records []venue.FundingRateRecord
			err := withRetry(func() error {
				var err error
				records, err = o.market.GetFundingRateHistory(gctx, symbol, 1)
				return err
			})
			if err != nil || len(records) == 0 {
				return nil
			}
			out[i].FundingRate = records[0].FundingRate
			out[i].Apr = records[0].FundingRate.Mul(strategy.AprMultiplier)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].Apr.GreaterThan(out[j].Apr) })
	return out, nil
}

// PrepareAndExecuteDnPosition opens a delta-neutral pair on symbol
// sized to capitalUsd. With dryRun=true it returns the computed
// TradePlan without submitting any order.
func (o *Orchestrator) PrepareAndExecuteDnPosition(ctx context.Context, symbol string, capitalUsd decimal.Decimal, dryRun bool) (Result, error) {
	perpPositions, err := o.acct.GetPerpAccountInfo(ctx)
	if err != nil {
		return Result{Success: false, Message: "failed to fetch perp account info"}, nil
	}
	for _, p := range perpPositions {
		if p.Symbol == symbol && p.PositionAmt.LessThan(decimal.Zero) {
			return Result{Success: false, Message: "already have a short position"}, nil
		}
	}

	confirmed, err := o.acct.SetPerpLeverage(ctx, symbol, 1)
	if err != nil {
		return Result{Success: false, Message: "failed to set leverage to 1x"}, nil
	}
	if !confirmed {
		return Result{Success: false, Message: "leverage change was not confirmed by the venue"}, nil
	}

	var ticker venue.BookTicker
	var spotBalances []venue.SpotBalance

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ticker, err = o.market.GetSpotBookTicker(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		spotBalances, err = o.acct.GetSpotAccountBalances(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{Success: false, Message: "failed to fetch price/balance data"}, nil
	}

	var existingSpotQty decimal.Decimal
	asset := baseAsset(symbol)
	for _, b := range spotBalances {
		if b.Asset == asset {
			existingSpotQty = b.Free.Add(b.Locked)
		}
	}

	spotPrice := ticker.BidPrice
	plan, err := strategy.CalculatePositionSize(capitalUsd, spotPrice, existingSpotQty.Mul(spotPrice))
	if err != nil {
		return Result{}, err
	}

	idealPerpQty := plan.TotalPerpQuantityToShort
	formatted, err := o.filters.FormatOrderParams(symbol, venue.MarketPerp, filtercache.OrderParams{Quantity: idealPerpQty})
	if err != nil {
		return Result{Success: false, Message: "failed to truncate perp quantity to lot size"}, nil
	}
	finalPerpQty, parseErr := decimal.NewFromString(formatted.Quantity)
	if parseErr != nil {
		finalPerpQty = decimal.Zero
	}
	if finalPerpQty.LessThanOrEqual(decimal.Zero) {
		return Result{Success: false, Message: "capital too small to meet the venue's lot size"}, nil
	}

	spotQtyToBuy := decimal.Max(decimal.Zero, finalPerpQty.Sub(existingSpotQty))
	spotCapitalToBuy := spotQtyToBuy.Mul(spotPrice)

	tradePlan := venue.TradePlan{
		Symbol:           symbol,
		SpotPrice:        spotPrice,
		IdealPerpQty:     idealPerpQty,
		FinalPerpQty:     finalPerpQty,
		ExistingSpotQty:  existingSpotQty,
		SpotQtyToBuy:     spotQtyToBuy,
		SpotCapitalToBuy: spotCapitalToBuy,
	}

	if dryRun {
		return Result{Success: true, Message: "dry run: no orders submitted", Details: tradePlan}, nil
	}

	var perpResult, spotResult execution.OrderResult
	var perpErr, spotErr error
	g2, gctx2 := errgroup.WithContext(ctx)
	g2.Go(func() error {
		perpResult, perpErr = o.exec.PlacePerpMarket(gctx2, symbol, "SELL", finalPerpQty)
		return nil
	})
	if spotCapitalToBuy.GreaterThan(decimal.NewFromInt(1)) {
		g2.Go(func() error {
			spotResult, spotErr = o.exec.PlaceSpotBuyMarket(gctx2, symbol, spotCapitalToBuy)
			return nil
		})
	}
	_ = g2.Wait()

	if perpErr != nil || spotErr != nil {
		return Result{
			Success: false,
			Message: "partial execution: perp and/or spot leg failed, no automatic rollback",
			Details: map[string]interface{}{"perpResult": perpResult, "perpErr": errString(perpErr), "spotResult": spotResult, "spotErr": errString(spotErr)},
		}, nil
	}

	return Result{
		Success: true,
		Message: "delta-neutral position opened",
		Details: map[string]interface{}{"tradePlan": tradePlan, "perpResult": perpResult, "spotResult": spotResult},
	}, nil
}

// ExecuteDnPositionClose closes an existing delta-neutral pair on
// symbol: a reduce-only perp close plus a full spot liquidation.
func (o *Orchestrator) ExecuteDnPositionClose(ctx context.Context, symbol string) (Result, error) {
	var perpPositions []venue.PerpPosition
	var spotBalances []venue.SpotBalance

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		perpPositions, err = o.acct.GetPerpAccountInfo(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		spotBalances, err = o.acct.GetSpotAccountBalances(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{Success: false, Message: "failed to fetch current position data"}, nil
	}

	var perpQty decimal.Decimal
	for _, p := range perpPositions {
		if p.Symbol == symbol {
			perpQty = p.PositionAmt
		}
	}

	asset := baseAsset(symbol)
	var spotQty decimal.Decimal
	for _, b := range spotBalances {
		if b.Asset == asset {
			spotQty = b.Free.Add(b.Locked)
		}
	}

	if perpQty.IsZero() || spotQty.IsZero() {
		return Result{Success: false, Message: "not a valid delta-neutral pair"}, nil
	}

	side := "SELL"
	if perpQty.LessThan(decimal.Zero) {
		side = "BUY"
	}

	var perpResult, spotResult execution.OrderResult
	var perpErr, spotErr error
	g2, gctx2 := errgroup.WithContext(ctx)
	g2.Go(func() error {
		perpResult, perpErr = o.exec.ClosePerpPosition(gctx2, symbol, side, perpQty.Abs())
		return nil
	})
	g2.Go(func() error {
		spotResult, spotErr = o.exec.PlaceSpotSellMarketByQty(gctx2, symbol, spotQty)
		return nil
	})
	_ = g2.Wait()

	if perpErr != nil || spotErr != nil {
		return Result{
			Success: false,
			Message: "partial close: perp and/or spot leg failed, no automatic rollback",
			Details: map[string]interface{}{"perpResult": perpResult, "perpErr": errString(perpErr), "spotResult": spotResult, "spotErr": errString(spotErr)},
		}, nil
	}

	return Result{
		Success: true,
		Message: "delta-neutral position closed",
		Details: map[string]interface{}{"perpResult": perpResult, "spotResult": spotResult},
	}, nil
}

// RebalanceRecord is rebalanceUsdt5050's structured decision record.
type RebalanceRecord struct {
	CurrentSpotUsdt decimal.Decimal
	CurrentPerpUsdt decimal.Decimal
	Target          decimal.Decimal
	Delta           decimal.Decimal
	TransferNeeded  bool
	Direction       account.TransferDirection
	Amount          decimal.Decimal
	TranID          int64
}

// RebalanceUsdt5050 equalizes USDT margin across the spot and perp
// wallets. Invoked twice back-to-back, the second call returns
// TransferNeeded=false.
func (o *Orchestrator) RebalanceUsdt5050(ctx context.Context) (Result, error) {
	var spotBalances []venue.SpotBalance
	var perpUsdt decimal.Decimal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		spotBalances, err = o.acct.GetSpotAccountBalances(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		perpUsdt, err = o.acct.GetPerpWalletBalance(gctx, "USDT")
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{Success: false, Message: "failed to fetch wallet balances"}, nil
	}

	var spotUsdt decimal.Decimal
	for _, b := range spotBalances {
		if b.Asset == "USDT" {
			spotUsdt = b.Free.Add(b.Locked)
		}
	}

	target := spotUsdt.Add(perpUsdt).Div(decimal.NewFromInt(2))
	delta := target.Sub(spotUsdt)

	record := RebalanceRecord{
		CurrentSpotUsdt: spotUsdt,
		CurrentPerpUsdt: perpUsdt,
		Target:          target,
		Delta:           delta,
	}

	if delta.Abs().LessThanOrEqual(decimal.NewFromInt(1)) {
		record.TransferNeeded = false
		return Result{Success: true, Message: "wallets already balanced", Details: record}, nil
	}

	record.TransferNeeded = true
	record.Amount = delta.Abs().Round(6)
	if delta.LessThan(decimal.Zero) {
		record.Direction = account.TransferSpotToPerp
	} else {
		record.Direction = account.TransferPerpToSpot
	}

	tranID, err := o.acct.TransferBetweenSpotAndPerp(ctx, "USDT", record.Amount, record.Direction)
	if err != nil {
		return Result{Success: false, Message: "transfer failed", Details: record}, nil
	}
	record.TranID = tranID

	return Result{Success: true, Message: "rebalance transfer submitted", Details: record}, nil
}

// FundingAnalysisReport is performFundingAnalysis's output.
type FundingAnalysisReport struct {
	Symbol              string
	EffectiveValueUSD   decimal.Decimal
	OpeningTime         int64
	TotalFundingIncome  decimal.Decimal
	FundingPct          decimal.Decimal
	FeeCoverageProgress decimal.Decimal
}

const epsilon = "0.000001"

// PerformFundingAnalysis reconstructs symbol's opening time from trade
// history and sums the funding income collected since then against the
// fee-coverage threshold.
//
// The opening-time reconstruction walks every trade from newest to
// oldest accumulating signed quantity and takes the oldest trade at
// which the running total matches the current position amount; it
// assumes no intervening partial close reset the running
// total, so a position with add-ons or partial reductions since
// opening will be misattributed to the wrong window. This is a known,
// preserved limitation rather than a bug: correcting it requires a
// full fill-level position ledger, out of scope here.
func (o *Orchestrator) PerformFundingAnalysis(ctx context.Context, symbol string) (*FundingAnalysisReport, error) {
	perpPositions, err := o.acct.GetPerpAccountInfo(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "orchestrator: fetching perp account info")
	}

	var perpQty decimal.Decimal
	found := false
	for _, p := range perpPositions {
		if p.Symbol == symbol && !p.PositionAmt.IsZero() {
			perpQty = p.PositionAmt
			found = true
		}
	}
	if !found {
		return nil, nil
	}

	var spotBalances []venue.SpotBalance
	var ticker venue.BookTicker
	var unrealizedPnl decimal.Decimal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		spotBalances, err = o.acct.GetSpotAccountBalances(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		ticker, err = o.market.GetPerpBookTicker(gctx, symbol)
		return err
	})
	for _, p := range perpPositions {
		if p.Symbol == symbol {
			unrealizedPnl = p.UnrealizedProfit
		}
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "orchestrator: fetching funding-analysis inputs")
	}

	markPrice := ticker.MidPrice()
	asset := baseAsset(symbol)
	var spotQty decimal.Decimal
	for _, b := range spotBalances {
		if b.Asset == asset {
			spotQty = b.Free.Add(b.Locked)
		}
	}
	spotValueUsd := spotQty.Mul(markPrice)
	perpNotional := perpQty.Abs().Mul(markPrice)
	effectiveValue := spotValueUsd.Add(perpNotional).Add(unrealizedPnl)

	trades, err := o.market.GetUserTrades(ctx, symbol, 1000)
	if err != nil {
		return nil, errors.Wrap(err, "orchestrator: fetching user trades")
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Time < trades[j].Time })

	eps := decimal.RequireFromString(epsilon)
	running := decimal.Zero
	var openingTime int64
	foundBoundary := false
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		signedQty := t.Qty
		if !t.IsBuyer {
			signedQty = signedQty.Neg()
		}
		running = running.Add(signedQty)
		if running.Sub(perpQty).Abs().LessThanOrEqual(eps) {
			openingTime = t.Time
			foundBoundary = true
		}
	}
	if !foundBoundary {
		return nil, nil
	}

	income, err := o.market.GetIncomeHistory(ctx, symbol, openingTime, 0, 1000)
	if err != nil {
		return nil, errors.Wrap(err, "orchestrator: fetching income history")
	}
	totalFunding := decimal.Zero
	for _, rec := range income {
		if rec.IncomeType == "FUNDING_FEE" {
			totalFunding = totalFunding.Add(rec.Income)
		}
	}

	var fundingPct, feeCoverageProgress decimal.Decimal
	if !effectiveValue.IsZero() {
		fundingPct = totalFunding.Div(effectiveValue).Mul(decimal.NewFromInt(100))
	}
	if !strategy.FeeCoverageThresholdPct.IsZero() {
		feeCoverageProgress = fundingPct.Div(strategy.FeeCoverageThresholdPct).Mul(decimal.NewFromInt(100))
	}

	return &FundingAnalysisReport{
		Symbol:              symbol,
		EffectiveValueUSD:   effectiveValue,
		OpeningTime:         openingTime,
		TotalFundingIncome:  totalFunding,
		FundingPct:          fundingPct,
		FeeCoverageProgress: feeCoverageProgress,
	}, nil
}

// HealthCheckReport is performHealthCheckAnalysis's aggregated output.
type HealthCheckReport struct {
	Warnings          []string
	Criticals         []string
	DnPositionCount   int
	PerPositionPnLPct map[string]decimal.Decimal
}

// PerformHealthCheckAnalysis applies the Strategy Engine's health
// rules plus spot-USD-value and PnL thresholds to the current
// snapshot.
func (o *Orchestrator) PerformHealthCheckAnalysis(ctx context.Context) (HealthCheckReport, error) {
	snapshot, err := o.GetComprehensivePortfolioData(ctx)
	if err != nil {
		return HealthCheckReport{}, err
	}

	report := HealthCheckReport{PerPositionPnLPct: make(map[string]decimal.Decimal)}

	for _, pos := range snapshot.AnalyzedPositions {
		if pos.IsDeltaNeutral {
			report.DnPositionCount++
		}

		health := strategy.CheckPositionHealth(pos, decimal.NewFromInt(1))
		for _, reason := range health.Reasons {
			line := pos.Symbol + ": " + reason
			if health.Kind == strategy.HealthCritical {
				report.Criticals = append(report.Criticals, line)
			} else {
				report.Warnings = append(report.Warnings, line)
			}
		}

		var pnlPct decimal.Decimal
		if !pos.PositionValueUSD.IsZero() {
			pnlPct = pos.UnrealizedPnL.Div(pos.PositionValueUSD).Mul(decimal.NewFromInt(100))
		}
		report.PerPositionPnLPct[pos.Symbol] = pnlPct

		spotValueUsd := pos.SpotQty.Mul(pos.MarkPrice)
		switch {
		case spotValueUsd.LessThan(strategy.SpotCriticalUSD):
			report.Criticals = append(report.Criticals, pos.Symbol+": spot leg value below critical floor")
		case spotValueUsd.LessThan(strategy.SpotWarnUSD):
			report.Warnings = append(report.Warnings, pos.Symbol+": spot leg value below warning floor")
		}

		switch {
		case pnlPct.LessThan(strategy.PnLCriticalPct):
			report.Criticals = append(report.Criticals, pos.Symbol+": unrealized PnL below critical threshold")
		case pnlPct.LessThan(strategy.PnLWarnPct):
			report.Warnings = append(report.Warnings, pos.Symbol+": unrealized PnL below warning threshold")
		}
	}

	return report, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
