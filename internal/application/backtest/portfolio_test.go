package backtest_test

import (
	"testing"

	"github.com/alejandrodnm/pmbacktest/internal/application/backtest"
	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prices(market string, yes float64) domain.Prices {
	p := domain.Prices{}
	p.Set(market, domain.OutcomeYes, yes)
	p.Set(market, domain.OutcomeNo, 1-yes)
	return p
}

func TestPortfolio_BuyMarkAndClose(t *testing.T) {
	p := backtest.NewPortfolio(10000)

	fill, ok := p.ExecuteBuy("m1", domain.OutcomeYes, 1000, 0.40, at)
	require.True(t, ok)
	assert.InDelta(t, 2500, fill.Quantity, 1e-9)
	assert.InDelta(t, 9000, p.Cash(), 1e-9)

	pos, ok := p.Position("m1", domain.OutcomeYes)
	require.True(t, ok)
	assert.InDelta(t, 0.40, pos.EntryPrice, 1e-12)

	p.MarkToMarket(prices("m1", 0.50))
	assert.InDelta(t, 250, p.TotalUnrealizedPnL(), 1e-9)
	assert.InDelta(t, 10250, p.TotalEquity(), 1e-9)

	fill, ok = p.ClosePosition("m1", domain.OutcomeYes, 0.55, at)
	require.True(t, ok)
	assert.InDelta(t, 2500, fill.Quantity, 1e-9)
	assert.InDelta(t, 10375, p.Cash(), 1e-9)
	assert.False(t, p.HasOpenPositions())

	trades := p.Trades()
	require.Len(t, trades, 1)
	assert.InDelta(t, 375, trades[0].PnL, 1e-9)
	assert.InDelta(t, 375, p.TotalRealizedPnL(), 1e-9)
}

func TestPortfolio_BuyScalesToCash(t *testing.T) {
	p := backtest.NewPortfolio(100)

	fill, ok := p.ExecuteBuy("m1", domain.OutcomeYes, 500, 0.50, at)
	require.True(t, ok)
	assert.InDelta(t, 200, fill.Quantity, 1e-9)
	assert.Equal(t, 0.0, p.Cash())

	_, ok = p.ExecuteBuy("m1", domain.OutcomeYes, 10, 0.50, at)
	assert.False(t, ok)
	_, ok = p.ExecuteBuy("m1", domain.OutcomeYes, 0, 0.50, at)
	assert.False(t, ok)
}

func TestPortfolio_VWAPEntry(t *testing.T) {
	p := backtest.NewPortfolio(1000)
	_, ok := p.ExecuteBuy("m1", domain.OutcomeYes, 40, 0.40, at)
	require.True(t, ok)
	_, ok = p.ExecuteBuy("m1", domain.OutcomeYes, 60, 0.60, at)
	require.True(t, ok)

	pos, ok := p.Position("m1", domain.OutcomeYes)
	require.True(t, ok)
	assert.InDelta(t, 200, pos.Quantity, 1e-9)
	assert.InDelta(t, 0.50, pos.EntryPrice, 1e-12)
}

func TestPortfolio_PartialSellCapsAtHolding(t *testing.T) {
	p := backtest.NewPortfolio(1000)
	_, ok := p.ExecuteBuy("m1", domain.OutcomeNo, 100, 0.50, at)
	require.True(t, ok)

	fill, ok := p.ExecuteSell("m1", domain.OutcomeNo, 50, 0.50, at)
	require.True(t, ok)
	assert.InDelta(t, 100, fill.Quantity, 1e-9)
	pos, ok := p.Position("m1", domain.OutcomeNo)
	require.True(t, ok)
	assert.InDelta(t, 100, pos.Quantity, 1e-9)

	// pide más de lo que tiene → vende todo
	fill, ok = p.ExecuteSell("m1", domain.OutcomeNo, 1000, 0.40, at)
	require.True(t, ok)
	assert.InDelta(t, 100, fill.Quantity, 1e-9)
	assert.False(t, p.HasOpenPositions())

	trades := p.Trades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 0, trades[0].PnL, 1e-9)
	assert.InDelta(t, -10, trades[1].PnL, 1e-9)
}

func TestPortfolio_SellWithoutPosition(t *testing.T) {
	p := backtest.NewPortfolio(1000)
	_, ok := p.ExecuteSell("m1", domain.OutcomeYes, domain.SellAll, 0.5, at)
	assert.False(t, ok)
	assert.Empty(t, p.Trades())
}

func TestPortfolio_FeesReduceEquity(t *testing.T) {
	p := backtest.NewPortfolio(1000)
	assert.Equal(t, 5.0, p.ChargeFee(5))
	_, ok := p.ExecuteBuy("m1", domain.OutcomeYes, 100, 0.5, at)
	require.True(t, ok)
	p.MarkToMarket(prices("m1", 0.5))

	assert.InDelta(t, 995, p.TotalEquity(), 1e-9)
	assert.Equal(t, 5.0, p.FeesPaid())
	assert.Equal(t, 0.0, p.ChargeFee(-1))
}

func TestPortfolio_StateIsCopy(t *testing.T) {
	p := backtest.NewPortfolio(1000)
	_, ok := p.ExecuteBuy("m1", domain.OutcomeYes, 100, 0.5, at)
	require.True(t, ok)

	state := p.State()
	pos := state.Positions["m1:yes"]
	pos.Quantity = 0
	state.Positions["m1:yes"] = pos
	delete(state.Positions, "m1:yes")

	live, ok := p.Position("m1", domain.OutcomeYes)
	require.True(t, ok)
	assert.InDelta(t, 200, live.Quantity, 1e-9)
	assert.InDelta(t, 900, state.Cash, 1e-9)
}

func TestPortfolio_TradeStats(t *testing.T) {
	p := backtest.NewPortfolio(1000)
	assert.Equal(t, backtest.DefaultTradeStats(), p.TradeStats())

	_, _ = p.ExecuteBuy("m1", domain.OutcomeYes, 100, 0.50, at)
	_, _ = p.ExecuteSell("m1", domain.OutcomeYes, domain.SellAll, 0.60, at)
	_, _ = p.ExecuteBuy("m1", domain.OutcomeYes, 100, 0.50, at)
	_, _ = p.ExecuteSell("m1", domain.OutcomeYes, domain.SellAll, 0.45, at)

	stats := p.TradeStats()
	assert.InDelta(t, 0.5, stats.WinRate, 1e-12)
	assert.InDelta(t, 20, stats.AvgWin, 1e-9)
	assert.InDelta(t, 10, stats.AvgLoss, 1e-9)
}
