// Package strategy implements the Strategy Engine component: pure,
// side-effect-free functions that classify a perp position against its
// matching spot holding as delta-neutral or imbalanced, size a new
// position honoring existing inventory, assess liquidation/imbalance
// health, and plan rebalancing. Nothing here performs I/O or holds
// state — every function takes snapshot inputs and returns a fresh
// value, the same shape as the toolkit's pure position/portfolio value
// computations generalized from a single-asset context to a two-market
// delta-neutral pair.
package strategy

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/asterdex/dn-arb-core/internal/asterr"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

// Tunable thresholds governing health checks and funding viability.
var (
	// ImbalanceThresholdPct is the max acceptable percentage gap between
	// a position's net delta and its total size before it is no longer
	// considered delta-neutral.
	ImbalanceThresholdPct = decimal.NewFromFloat(2.0)

	// SpotWarnUSD / SpotCriticalUSD flag a spot leg whose dollar value
	// has drifted low enough that fees would start eating into principal.
	SpotWarnUSD     = decimal.NewFromFloat(10)
	SpotCriticalUSD = decimal.NewFromFloat(5)

	// PnLWarnPct / PnLCriticalPct are unrealized-PnL percentage
	// thresholds below which a position is flagged.
	PnLWarnPct     = decimal.NewFromFloat(-25)
	PnLCriticalPct = decimal.NewFromFloat(-50)

	// FeeCoverageThresholdPct is the round-trip fee target a position's
	// accumulated funding income must clear, expressed as a percentage
	// of the position's effective value.
	FeeCoverageThresholdPct = decimal.NewFromFloat(0.135)

	// FundingPeriodsPerDay is how many funding settlements AsterDex's
	// perp market pays out per day (00:00, 08:00, 16:00 UTC).
	FundingPeriodsPerDay = decimal.NewFromInt(3)

	// AprMultiplier annualizes one funding-rate sample into an APR
	// percentage: periods/day * days/year * 100.
	AprMultiplier = FundingPeriodsPerDay.Mul(decimal.NewFromInt(365)).Mul(decimal.NewFromInt(100))
)

var hundred = decimal.NewFromInt(100)
var one = decimal.NewFromInt(1)

// AnalyzePositionData derives the classification of one perp position
// against its matching spot holding: net delta, total size, imbalance
// percentage, and whether the pair still qualifies as delta-neutral.
func AnalyzePositionData(symbol string, perp venue.PerpPosition, spotQty decimal.Decimal, fundingRate decimal.Decimal) (venue.AnalyzedPosition, error) {
	if perp.MarkPrice.LessThanOrEqual(decimal.Zero) {
		return venue.AnalyzedPosition{}, asterr.NewValidationError("markPrice", "mark price must be positive")
	}

	perpQty := perp.PositionAmt
	netDelta := spotQty.Add(perpQty)
	totalSize := decimal.Max(spotQty.Abs(), perpQty.Abs())

	var imbalancePct decimal.Decimal
	if !totalSize.IsZero() {
		imbalancePct = netDelta.Abs().Div(totalSize).Mul(hundred)
	}

	return venue.AnalyzedPosition{
		Symbol:           symbol,
		SpotQty:          spotQty,
		PerpQty:          perpQty,
		NetDelta:         netDelta,
		TotalSize:        totalSize,
		ImbalancePct:     imbalancePct,
		IsDeltaNeutral:   imbalancePct.LessThanOrEqual(ImbalanceThresholdPct),
		EntryPrice:       perp.EntryPrice,
		MarkPrice:        perp.MarkPrice,
		LiquidationPrice: perp.LiquidationPrice,
		UnrealizedPnL:    perp.UnrealizedProfit,
		PositionValueUSD: perpQty.Abs().Mul(perp.MarkPrice),
		FundingRate:      fundingRate,
		CurrentApr:       fundingRate.Mul(AprMultiplier),
	}, nil
}

// CalculatePositionSize splits totalUsdCapital between the spot and
// perp legs of one delta-neutral unit, honoring capital already
// committed to an existing spot holding. existingSpotUsd+
// newSpotCapitalRequired always equals totalUsdCapital, and the
// resulting perp short quantity equals the total spot quantity the
// operator will hold after the trade. Leverage is advisory only — the
// plan is always sized as if 1x.
func CalculatePositionSize(totalUsdCapital, spotPrice, existingSpotUsd decimal.Decimal) (venue.PositionSizePlan, error) {
	if totalUsdCapital.LessThanOrEqual(decimal.Zero) {
		return venue.PositionSizePlan{}, asterr.NewValidationError("totalUsdCapital", "capital must be positive")
	}
	if spotPrice.LessThanOrEqual(decimal.Zero) {
		return venue.PositionSizePlan{}, asterr.NewValidationError("spotPrice", "spot price must be positive")
	}
	if existingSpotUsd.LessThan(decimal.Zero) {
		return venue.PositionSizePlan{}, asterr.NewValidationError("existingSpotUsd", "existing spot USD cannot be negative")
	}

	newSpotCapitalRequired := totalUsdCapital.Sub(existingSpotUsd)
	spotQuantityToBuy := newSpotCapitalRequired.Div(spotPrice)
	totalPerpQuantityToShort := totalUsdCapital.Div(spotPrice)

	return venue.PositionSizePlan{
		SpotQuantityToBuy:        spotQuantityToBuy,
		NewSpotCapitalRequired:   newSpotCapitalRequired,
		TotalPerpQuantityToShort: totalPerpQuantityToShort,
		ExistingSpotUsdUtilized:  existingSpotUsd,
		PerpCapitalRequired:      totalUsdCapital,
	}, nil
}

// Health status labels.
const (
	HealthOK       = "OK"
	HealthWarn     = "WARN"
	HealthCritical = "CRITICAL"
)

// liquidationBufferBands maps a liquidation buffer percentage to its
// coarse risk band. Bands are this engine's own calibration — spec.md
// leaves the exact cutoffs unspecified beyond the NONE..CRITICAL scale.
var liquidationBufferBands = []struct {
	minBufferPct decimal.Decimal
	risk         venue.LiquidationRisk
}{
	{decimal.NewFromInt(50), venue.RiskNone},
	{decimal.NewFromInt(25), venue.RiskLow},
	{decimal.NewFromInt(10), venue.RiskMedium},
	{decimal.NewFromInt(5), venue.RiskHigh},
}

// CheckPositionHealth computes a position's imbalance, its liquidation
// buffer percentage, and a coarse liquidation risk level. leverage must
// equal 1 under the delta-neutral contract; any other value forces
// CRITICAL regardless of buffer.
func CheckPositionHealth(pos venue.AnalyzedPosition, leverage decimal.Decimal) venue.HealthVerdict {
	if !leverage.Equal(one) {
		return venue.HealthVerdict{
			Symbol:          pos.Symbol,
			Kind:            HealthCritical,
			Reasons:         []string{"leverage violates delta-neutral contract"},
			ImbalancePct:    pos.ImbalancePct,
			LiquidationRisk: venue.RiskCritical,
		}
	}

	bufferPct := liquidationBufferPct(pos)
	risk := liquidationRiskFor(bufferPct)

	var reasons []string
	kind := HealthOK

	if pos.ImbalancePct.GreaterThan(ImbalanceThresholdPct) {
		reasons = append(reasons, "imbalance exceeds threshold")
		kind = HealthWarn
	}

	switch risk {
	case venue.RiskHigh, venue.RiskCritical:
		reasons = append(reasons, "liquidation buffer critically low")
		kind = HealthCritical
	case venue.RiskMedium:
		reasons = append(reasons, "liquidation buffer narrowing")
		if kind != HealthCritical {
			kind = HealthWarn
		}
	}

	return venue.HealthVerdict{
		Symbol:               pos.Symbol,
		Kind:                 kind,
		Reasons:              reasons,
		ImbalancePct:         pos.ImbalancePct,
		LiquidationBufferPct: bufferPct,
		LiquidationRisk:      risk,
	}
}

// liquidationBufferPct is undefined (zero buffer) when markPrice is
// zero or no liquidation price is known.
func liquidationBufferPct(pos venue.AnalyzedPosition) decimal.Decimal {
	if pos.MarkPrice.IsZero() || pos.LiquidationPrice.IsZero() {
		return decimal.Zero
	}
	return pos.MarkPrice.Sub(pos.LiquidationPrice).Abs().Div(pos.MarkPrice).Mul(hundred)
}

func liquidationRiskFor(bufferPct decimal.Decimal) venue.LiquidationRisk {
	for _, band := range liquidationBufferBands {
		if bufferPct.GreaterThanOrEqual(band.minBufferPct) {
			return band.risk
		}
	}
	return venue.RiskCritical
}

// Rebalance actions a caller should take in response to a health
// verdict.
const (
	ActionHold          = "HOLD"
	ActionRebalance     = "REBALANCE"
	ActionClosePosition = "CLOSE_POSITION"
)

// DetermineRebalanceAction decides what to do about a position given
// its health verdict. Liquidation risk takes precedence over
// imbalance: a position already near liquidation is closed outright
// rather than rebalanced.
func DetermineRebalanceAction(health venue.HealthVerdict) string {
	if health.LiquidationRisk == venue.RiskHigh || health.LiquidationRisk == venue.RiskCritical {
		return ActionClosePosition
	}
	if health.ImbalancePct.GreaterThan(ImbalanceThresholdPct) {
		return ActionRebalance
	}
	return ActionHold
}

// FindDeltaNeutralPairs returns the sorted intersection of spotSymbols
// and perpSymbols: every symbol tradable on both markets.
func FindDeltaNeutralPairs(spotSymbols, perpSymbols []string) []string {
	spotSet := make(map[string]struct{}, len(spotSymbols))
	for _, s := range spotSymbols {
		spotSet[s] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{})
	for _, s := range perpSymbols {
		if _, ok := spotSet[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FilterViablePairs keeps only symbols where both the spot and perp
// 24h volumes clear minLiquidityUsd. Symbols missing from either
// volume map are treated as having zero volume and are excluded.
func FilterViablePairs(pairs []string, minLiquidityUsd decimal.Decimal, spotVol24h, perpVol24h map[string]decimal.Decimal) []string {
	var out []string
	for _, symbol := range pairs {
		spotVol := spotVol24h[symbol]
		perpVol := perpVol24h[symbol]
		if spotVol.GreaterThanOrEqual(minLiquidityUsd) && perpVol.GreaterThanOrEqual(minLiquidityUsd) {
			out = append(out, symbol)
		}
	}
	return out
}
