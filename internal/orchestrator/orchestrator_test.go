package orchestrator

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asterdex/dn-arb-core/internal/account"
	"github.com/asterdex/dn-arb-core/internal/execution"
	"github.com/asterdex/dn-arb-core/internal/filtercache"
	"github.com/asterdex/dn-arb-core/internal/marketdata"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeMarket struct {
	spotTickers map[string]venue.BookTicker
	perpTickers map[string]venue.BookTicker
	funding     map[string][]venue.FundingRateRecord
	pairs       []string
	income      []venue.IncomeRecord
	trades      []marketdata.UserTrade
}

func (f *fakeMarket) GetSpotBookTicker(ctx context.Context, symbol string) (venue.BookTicker, error) {
	t, ok := f.spotTickers[symbol]
	if !ok {
		return venue.BookTicker{}, assert.AnError
	}
	return t, nil
}
func (f *fakeMarket) GetPerpBookTicker(ctx context.Context, symbol string) (venue.BookTicker, error) {
	t, ok := f.perpTickers[symbol]
	if !ok {
		return venue.BookTicker{}, assert.AnError
	}
	return t, nil
}
func (f *fakeMarket) GetFundingRateHistory(ctx context.Context, symbol string, limit int) ([]venue.FundingRateRecord, error) {
	return f.funding[symbol], nil
}
func (f *fakeMarket) DiscoverDeltaNeutralPairs(ctx context.Context) ([]string, error) {
	return f.pairs, nil
}
func (f *fakeMarket) GetIncomeHistory(ctx context.Context, symbol string, startTime, endTime int64, limit int) ([]venue.IncomeRecord, error) {
	return f.income, nil
}
func (f *fakeMarket) GetUserTrades(ctx context.Context, symbol string, limit int) ([]marketdata.UserTrade, error) {
	return f.trades, nil
}

type fakeAccount struct {
	spotBalances    []venue.SpotBalance
	perpPositions   []venue.PerpPosition
	perpWalletUSDT  decimal.Decimal
	leverageOK      bool
	leverageErr     error
	transferTranID  int64
	transferErr     error
	lastTransferDir account.TransferDirection
}

func (f *fakeAccount) GetSpotAccountBalances(ctx context.Context) ([]venue.SpotBalance, error) {
	return f.spotBalances, nil
}
func (f *fakeAccount) GetPerpAccountInfo(ctx context.Context) ([]venue.PerpPosition, error) {
	return f.perpPositions, nil
}
func (f *fakeAccount) GetPerpWalletBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return f.perpWalletUSDT, nil
}
func (f *fakeAccount) SetPerpLeverage(ctx context.Context, symbol string, leverage int) (bool, error) {
	return f.leverageOK, f.leverageErr
}
func (f *fakeAccount) TransferBetweenSpotAndPerp(ctx context.Context, asset string, amount decimal.Decimal, direction account.TransferDirection) (int64, error) {
	f.lastTransferDir = direction
	return f.transferTranID, f.transferErr
}

type fakeExecution struct {
	perpResult execution.OrderResult
	spotResult execution.OrderResult
	perpErr    error
	spotErr    error
}

func (f *fakeExecution) PlaceSpotBuyMarket(ctx context.Context, symbol string, quoteQuantity decimal.Decimal) (execution.OrderResult, error) {
	return f.spotResult, f.spotErr
}
func (f *fakeExecution) PlaceSpotSellMarketByQty(ctx context.Context, symbol string, quantity decimal.Decimal) (execution.OrderResult, error) {
	return f.spotResult, f.spotErr
}
func (f *fakeExecution) PlacePerpMarket(ctx context.Context, symbol, side string, quantity decimal.Decimal) (execution.OrderResult, error) {
	return f.perpResult, f.perpErr
}
func (f *fakeExecution) ClosePerpPosition(ctx context.Context, symbol, side string, quantity decimal.Decimal) (execution.OrderResult, error) {
	return f.perpResult, f.perpErr
}

type fakeFilters struct {
	stepSize decimal.Decimal
}

func (f *fakeFilters) FormatOrderParams(symbol string, market venue.Market, params filtercache.OrderParams) (filtercache.FormattedParams, error) {
	out := filtercache.FormattedParams{}
	step := f.stepSize
	if step.IsZero() {
		step = d("0.001")
	}
	if !params.Quantity.IsZero() {
		truncated := params.Quantity.DivRound(step, 12).Truncate(0).Mul(step)
		out.Quantity = truncated.String()
	}
	if !params.Price.IsZero() {
		out.Price = params.Price.String()
	}
	if !params.QuoteQuantity.IsZero() {
		out.QuoteQuantity = params.QuoteQuantity.String()
	}
	return out, nil
}
func (f *fakeFilters) RefreshSpot(ctx context.Context) error { return nil }
func (f *fakeFilters) RefreshPerp(ctx context.Context) error { return nil }

func TestGetComprehensivePortfolioDataBalancedPosition(t *testing.T) {
	market := &fakeMarket{
		perpTickers: map[string]venue.BookTicker{
			"BTCUSDT": {Symbol: "BTCUSDT", BidPrice: d("59999"), AskPrice: d("60001")},
		},
		funding: map[string][]venue.FundingRateRecord{
			"BTCUSDT": {{Symbol: "BTCUSDT", FundingRate: d("0.0001")}},
		},
	}
	acct := &fakeAccount{
		spotBalances: []venue.SpotBalance{{Asset: "BTC", Free: d("0.5")}},
		perpPositions: []venue.PerpPosition{
			{Symbol: "BTCUSDT", PositionAmt: d("-0.5"), MarkPrice: d("60000"), LiquidationPrice: d("90000")},
		},
	}
	o := New(market, acct, &fakeExecution{}, &fakeFilters{}, nil)

	snap, err := o.GetComprehensivePortfolioData(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.AnalyzedPositions, 1)
	pos := snap.AnalyzedPositions[0]
	assert.True(t, pos.IsDeltaNeutral)
	assert.True(t, pos.NetDelta.IsZero())
	assert.True(t, pos.CurrentApr.GreaterThan(decimal.Zero))
}

func TestGetComprehensivePortfolioDataSpotOnlyAssetIsFullyImbalanced(t *testing.T) {
	market := &fakeMarket{
		spotTickers: map[string]venue.BookTicker{
			"LTCUSDT": {Symbol: "LTCUSDT", BidPrice: d("79"), AskPrice: d("81")},
		},
	}
	acct := &fakeAccount{
		spotBalances: []venue.SpotBalance{{Asset: "LTC", Free: d("2")}},
	}
	o := New(market, acct, &fakeExecution{}, &fakeFilters{}, nil)

	snap, err := o.GetComprehensivePortfolioData(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.AnalyzedPositions, 1)
	pos := snap.AnalyzedPositions[0]
	assert.Equal(t, "LTCUSDT", pos.Symbol)
	assert.True(t, pos.PerpQty.IsZero())
	assert.True(t, pos.ImbalancePct.Equal(d("100")))
	assert.False(t, pos.IsDeltaNeutral)
}

func TestGetAllFundingRatesSortedDescending(t *testing.T) {
	market := &fakeMarket{
		pairs: []string{"BTCUSDT", "ETHUSDT"},
		funding: map[string][]venue.FundingRateRecord{
			"BTCUSDT": {{Symbol: "BTCUSDT", FundingRate: d("0.0001")}},
			"ETHUSDT": {{Symbol: "ETHUSDT", FundingRate: d("-0.0002")}},
		},
	}
	o := New(market, &fakeAccount{}, &fakeExecution{}, &fakeFilters{}, nil)

	rates, err := o.GetAllFundingRates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "BTCUSDT", rates[0].Symbol)
	assert.Equal(t, "ETHUSDT", rates[1].Symbol)
}

func TestPrepareAndExecuteDnPositionRefusesExistingShort(t *testing.T) {
	acct := &fakeAccount{
		perpPositions: []venue.PerpPosition{{Symbol: "BTCUSDT", PositionAmt: d("-0.1")}},
	}
	o := New(&fakeMarket{}, acct, &fakeExecution{}, &fakeFilters{}, nil)

	res, err := o.PrepareAndExecuteDnPosition(context.Background(), "BTCUSDT", d("1000"), true)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "already have a short position")
}

func TestPrepareAndExecuteDnPositionAbortsOnUnconfirmedLeverage(t *testing.T) {
	acct := &fakeAccount{leverageOK: false}
	o := New(&fakeMarket{}, acct, &fakeExecution{}, &fakeFilters{}, nil)

	res, err := o.PrepareAndExecuteDnPosition(context.Background(), "BTCUSDT", d("1000"), true)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestPrepareAndExecuteDnPositionDryRunReturnsPlan(t *testing.T) {
	market := &fakeMarket{
		spotTickers: map[string]venue.BookTicker{
			"BTCUSDT": {Symbol: "BTCUSDT", BidPrice: d("50000"), AskPrice: d("50001")},
		},
	}
	acct := &fakeAccount{leverageOK: true}
	o := New(market, acct, &fakeExecution{}, &fakeFilters{stepSize: d("0.001")}, nil)

	res, err := o.PrepareAndExecuteDnPosition(context.Background(), "BTCUSDT", d("1000"), true)
	require.NoError(t, err)
	require.True(t, res.Success)
	plan, ok := res.Details.(venue.TradePlan)
	require.True(t, ok)
	assert.True(t, plan.FinalPerpQty.GreaterThan(decimal.Zero))
}

func TestExecuteDnPositionCloseRefusesWhenNotDeltaNeutral(t *testing.T) {
	acct := &fakeAccount{
		perpPositions: []venue.PerpPosition{{Symbol: "BTCUSDT", PositionAmt: d("-0.5")}},
		spotBalances:  []venue.SpotBalance{},
	}
	o := New(&fakeMarket{}, acct, &fakeExecution{}, &fakeFilters{}, nil)

	res, err := o.ExecuteDnPositionClose(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "not a valid delta-neutral pair")
}

func TestExecuteDnPositionCloseSucceeds(t *testing.T) {
	acct := &fakeAccount{
		perpPositions: []venue.PerpPosition{{Symbol: "BTCUSDT", PositionAmt: d("-0.5")}},
		spotBalances:  []venue.SpotBalance{{Asset: "BTC", Free: d("0.5")}},
	}
	o := New(&fakeMarket{}, acct, &fakeExecution{}, &fakeFilters{}, nil)

	res, err := o.ExecuteDnPositionClose(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRebalanceUsdt5050ComputesSpotToPerpDirection(t *testing.T) {
	acct := &fakeAccount{
		spotBalances:   []venue.SpotBalance{{Asset: "USDT", Free: d("150")}},
		perpWalletUSDT: d("50"),
		transferTranID: 42,
	}
	o := New(&fakeMarket{}, acct, &fakeExecution{}, &fakeFilters{}, nil)

	res, err := o.RebalanceUsdt5050(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)
	record := res.Details.(RebalanceRecord)
	assert.True(t, record.TransferNeeded)
	assert.Equal(t, account.TransferSpotToPerp, record.Direction)
	assert.True(t, record.Amount.Equal(d("50")))
}

func TestRebalanceUsdt5050NoOpWhenAlreadyBalanced(t *testing.T) {
	acct := &fakeAccount{
		spotBalances:   []venue.SpotBalance{{Asset: "USDT", Free: d("100")}},
		perpWalletUSDT: d("100"),
	}
	o := New(&fakeMarket{}, acct, &fakeExecution{}, &fakeFilters{}, nil)

	res, err := o.RebalanceUsdt5050(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)
	record := res.Details.(RebalanceRecord)
	assert.False(t, record.TransferNeeded)
}

func TestPerformFundingAnalysisReturnsNilWithoutOpenPosition(t *testing.T) {
	acct := &fakeAccount{}
	o := New(&fakeMarket{}, acct, &fakeExecution{}, &fakeFilters{}, nil)

	report, err := o.PerformFundingAnalysis(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestPerformFundingAnalysisReconstructsOpeningTimeAndSumsFunding(t *testing.T) {
	acct := &fakeAccount{
		perpPositions: []venue.PerpPosition{{Symbol: "BTCUSDT", PositionAmt: d("-0.5"), UnrealizedProfit: d("10")}},
		spotBalances:  []venue.SpotBalance{{Asset: "BTC", Free: d("0.5")}},
	}
	market := &fakeMarket{
		perpTickers: map[string]venue.BookTicker{
			"BTCUSDT": {Symbol: "BTCUSDT", BidPrice: d("59999"), AskPrice: d("60001")},
		},
		trades: []marketdata.UserTrade{
			{Symbol: "BTCUSDT", Qty: d("0.2"), Time: 1000, IsBuyer: false}, // earliest fill: running reaches -0.5 here
			{Symbol: "BTCUSDT", Qty: d("0.3"), Time: 2000, IsBuyer: false}, // most recent fill, walked first (newest->oldest)
		},
		income: []venue.IncomeRecord{
			{Symbol: "BTCUSDT", IncomeType: "FUNDING_FEE", Income: d("5"), Time: 1500},
			{Symbol: "BTCUSDT", IncomeType: "FUNDING_FEE", Income: d("3"), Time: 2500},
		},
	}
	o := New(market, acct, &fakeExecution{}, &fakeFilters{}, nil)

	report, err := o.PerformFundingAnalysis(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.TotalFundingIncome.Equal(d("8")))
	assert.Equal(t, int64(1000), report.OpeningTime)
}

func TestPerformHealthCheckAnalysisFlagsLowSpotValue(t *testing.T) {
	acct := &fakeAccount{
		spotBalances: []venue.SpotBalance{{Asset: "BTC", Free: d("0.00005")}},
		perpPositions: []venue.PerpPosition{
			{Symbol: "BTCUSDT", PositionAmt: d("-0.00005"), MarkPrice: d("60000"), LiquidationPrice: d("90000")},
		},
	}
	market := &fakeMarket{
		perpTickers: map[string]venue.BookTicker{
			"BTCUSDT": {Symbol: "BTCUSDT", BidPrice: d("59999"), AskPrice: d("60001")},
		},
	}
	o := New(market, acct, &fakeExecution{}, &fakeFilters{}, nil)

	report, err := o.PerformHealthCheckAnalysis(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.DnPositionCount)
	found := false
	for _, c := range report.Criticals {
		if c == "BTCUSDT: spot leg value below critical floor" {
			found = true
		}
	}
	assert.True(t, found)
}
