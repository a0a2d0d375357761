package backtest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/application/backtest"
	"github.com/alejandrodnm/pmbacktest/internal/application/marketdata"
	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/alejandrodnm/pmbacktest/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

// recorder registra los hooks llamados y delega OnBar en una función.
type recorder struct {
	strategy.Base
	calls []string
	fills []domain.Fill
	onBar func(i int, state domain.MarketState) ([]domain.Signal, error)
	bars  int
}

func newRecorder(onBar func(int, domain.MarketState) ([]domain.Signal, error)) *recorder {
	return &recorder{Base: strategy.NewBase("recorder", nil), onBar: onBar}
}

func (r *recorder) OnInit() error { r.calls = append(r.calls, "init"); return nil }
func (r *recorder) OnEnd() error  { r.calls = append(r.calls, "end"); return nil }

func (r *recorder) OnFill(f domain.Fill) error {
	r.calls = append(r.calls, "fill")
	r.fills = append(r.fills, f)
	return nil
}

func (r *recorder) OnBar(state domain.MarketState) ([]domain.Signal, error) {
	r.calls = append(r.calls, "bar")
	i := r.bars
	r.bars++
	if r.onBar == nil {
		return nil, nil
	}
	return r.onBar(i, state)
}

func feedOf(yes ...float64) *marketdata.SliceFeed {
	points := make([]domain.DataPoint, 0, len(yes))
	for i, p := range yes {
		points = append(points, domain.DataPoint{
			Timestamp: day0.Add(time.Duration(i) * time.Hour),
			Prices:    prices("m1", p),
		})
	}
	return marketdata.NewSliceFeed(points)
}

func noStopConfig() backtest.Config {
	cfg := backtest.DefaultConfig()
	cfg.Risk.EnableStopLoss = false
	return cfg
}

func TestEngine_BuyMarkCloseScenario(t *testing.T) {
	eng, err := backtest.New(noStopConfig())
	require.NoError(t, err)

	rec := newRecorder(func(i int, _ domain.MarketState) ([]domain.Signal, error) {
		switch i {
		case 0:
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideBuy, domain.AutoSize)}, nil
		case 2:
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideSell, domain.SellAll)}, nil
		}
		return nil, nil
	})
	eng.AddStrategy(rec)

	res, err := eng.Run(context.Background(), feedOf(0.40, 0.50, 0.55))
	require.NoError(t, err)

	require.Len(t, rec.fills, 2)
	assert.InDelta(t, 2500, rec.fills[0].Quantity, 1e-9)
	assert.InDelta(t, 0.40, rec.fills[0].Price, 1e-12)
	assert.InDelta(t, 2500, rec.fills[1].Quantity, 1e-6)

	require.Len(t, res.Equity, 3)
	assert.InDelta(t, 10000, res.Equity[0].Equity, 1e-9)
	assert.InDelta(t, 10250, res.Equity[1].Equity, 1e-9)
	assert.InDelta(t, 10375, res.Equity[2].Equity, 1e-6)

	assert.InDelta(t, 10375, res.FinalCapital, 1e-6)
	assert.InDelta(t, 0.0375, res.TotalReturn, 1e-9)
	assert.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 1, res.WinningTrades)
	assert.Equal(t, 1.0, res.WinRate())
	assert.InDelta(t, 375, res.Trades[0].PnL, 1e-6)
	assert.Equal(t, day0, res.Start)
	assert.Equal(t, day0.Add(2*time.Hour), res.End)

	assert.Equal(t, []string{"init", "bar", "fill", "bar", "bar", "fill", "end"}, rec.calls)
	assert.Equal(t, backtest.StateDone, eng.State())

	cached, ok := eng.Result()
	require.True(t, ok)
	assert.Equal(t, res.FinalCapital, cached.FinalCapital)

	rec2 := res.Record("recorder", []string{"m1"}, backtest.ComputeMetrics(res.Equity, res.Trades, 0))
	assert.Empty(t, rec2.ID)
	assert.Equal(t, "recorder", rec2.Strategy)
	assert.InDelta(t, 10375, rec2.FinalCapital, 1e-6)
	assert.Len(t, rec2.Equity, 3)
	assert.Equal(t, 1, rec2.Metrics.TotalTrades)
}

func TestEngine_RunTwiceFails(t *testing.T) {
	eng, err := backtest.New(backtest.DefaultConfig())
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), feedOf(0.5))
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), feedOf(0.5))
	assert.ErrorIs(t, err, domain.ErrEngineState)
}

func TestEngine_StrategyErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	eng, err := backtest.New(backtest.DefaultConfig())
	require.NoError(t, err)
	eng.AddStrategy(newRecorder(func(i int, _ domain.MarketState) ([]domain.Signal, error) {
		if i == 1 {
			return nil, boom
		}
		return nil, nil
	}))

	_, err = eng.Run(context.Background(), feedOf(0.5, 0.5, 0.5))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "recorder")

	_, ok := eng.Result()
	assert.False(t, ok)
}

func TestEngine_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng, err := backtest.New(backtest.DefaultConfig())
	require.NoError(t, err)
	_, err = eng.Run(ctx, feedOf(0.5, 0.5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_StopLossClosesPosition(t *testing.T) {
	eng, err := backtest.New(backtest.DefaultConfig())
	require.NoError(t, err)

	rec := newRecorder(func(i int, _ domain.MarketState) ([]domain.Signal, error) {
		// compra en cada barra; en la segunda el precio cayó un 10%
		return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideBuy, 500)}, nil
	})
	eng.AddStrategy(rec)

	res, err := eng.Run(context.Background(), feedOf(0.50, 0.45))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.InDelta(t, -50, res.Trades[0].PnL, 1e-9)
	assert.False(t, eng.Portfolio().HasOpenPositions())
	assert.InDelta(t, 9950, res.FinalCapital, 1e-9)
	assert.Equal(t, 1, res.LosingTrades)
}

func TestEngine_SignalWithoutPriceIgnored(t *testing.T) {
	eng, err := backtest.New(backtest.DefaultConfig())
	require.NoError(t, err)
	rec := newRecorder(func(int, domain.MarketState) ([]domain.Signal, error) {
		return []domain.Signal{domain.NewMarketSignal("unknown", domain.OutcomeYes, domain.SideBuy, 100)}, nil
	})
	eng.AddStrategy(rec)

	res, err := eng.Run(context.Background(), feedOf(0.5, 0.6))
	require.NoError(t, err)
	assert.Empty(t, rec.fills)
	assert.Equal(t, 10000.0, res.FinalCapital)
}

func TestEngine_FeesAreTheOnlyLeakAtFlatPrices(t *testing.T) {
	cfg := noStopConfig()
	cfg.Fees = backtest.FlatFee
	eng, err := backtest.New(cfg)
	require.NoError(t, err)

	eng.AddStrategy(newRecorder(func(i int, _ domain.MarketState) ([]domain.Signal, error) {
		if i%2 == 0 {
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideBuy, 1000)}, nil
		}
		return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideSell, domain.SellAll)}, nil
	}))

	res, err := eng.Run(context.Background(), feedOf(0.5, 0.5, 0.5, 0.5))
	require.NoError(t, err)

	assert.Greater(t, res.FeesPaid, 0.0)
	assert.InDelta(t, res.InitialCapital-res.FeesPaid, res.FinalCapital, 1e-9)
	// 4 fills de 1000 USDC notional con fee 0.1%
	assert.InDelta(t, 4.0, res.FeesPaid, 1e-9)
}

func TestEngine_StateIsReadOnlyCopy(t *testing.T) {
	eng, err := backtest.New(noStopConfig())
	require.NoError(t, err)

	eng.AddStrategy(newRecorder(func(i int, state domain.MarketState) ([]domain.Signal, error) {
		if i == 0 {
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideBuy, 100)}, nil
		}
		delete(state.Positions, "m1:yes")
		state.Prices.Set("m1", domain.OutcomeYes, 0.99)
		return nil, nil
	}))

	res, err := eng.Run(context.Background(), feedOf(0.5, 0.5))
	require.NoError(t, err)
	assert.True(t, eng.Portfolio().HasOpenPositions())
	assert.InDelta(t, 10000, res.FinalCapital, 1e-9)
}

func TestEngine_MultipleStrategiesShareState(t *testing.T) {
	eng, err := backtest.New(noStopConfig())
	require.NoError(t, err)

	var seenByB []float64
	a := newRecorder(func(i int, _ domain.MarketState) ([]domain.Signal, error) {
		if i == 0 {
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideBuy, 100)}, nil
		}
		return nil, nil
	})
	b := newRecorder(func(_ int, state domain.MarketState) ([]domain.Signal, error) {
		seenByB = append(seenByB, state.Cash)
		return nil, nil
	})
	eng.AddStrategy(a)
	eng.AddStrategy(b)

	_, err = eng.Run(context.Background(), feedOf(0.5))
	require.NoError(t, err)
	// B ve el estado posterior al fill de A
	require.Len(t, seenByB, 1)
	assert.InDelta(t, 9900, seenByB[0], 1e-9)
	// solo la estrategia que emitió la señal recibe el fill
	assert.Len(t, a.fills, 1)
	assert.Empty(t, b.fills)
	assert.NotContains(t, b.calls, "fill")
}

func TestEngine_SellAllClosesGainedPosition(t *testing.T) {
	eng, err := backtest.New(noStopConfig())
	require.NoError(t, err)

	rec := newRecorder(func(i int, _ domain.MarketState) ([]domain.Signal, error) {
		switch i {
		case 0:
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideBuy, 2500)}, nil
		case 1:
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideSell, domain.SellAll)}, nil
		}
		return nil, nil
	})
	eng.AddStrategy(rec)

	// 6250 tokens valen 4062.5 a 0.65, por encima del tope por posición
	res, err := eng.Run(context.Background(), feedOf(0.40, 0.65))
	require.NoError(t, err)

	require.Len(t, rec.fills, 2)
	assert.InDelta(t, 6250, rec.fills[1].Quantity, 1e-9)
	assert.False(t, eng.Portfolio().HasOpenPositions())
	assert.InDelta(t, 11562.5, res.FinalCapital, 1e-9)
}

func TestEngine_ResultIsImmutable(t *testing.T) {
	eng, err := backtest.New(noStopConfig())
	require.NoError(t, err)
	eng.AddStrategy(newRecorder(func(i int, _ domain.MarketState) ([]domain.Signal, error) {
		switch i {
		case 0:
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideBuy, 100)}, nil
		case 1:
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideSell, domain.SellAll)}, nil
		}
		return nil, nil
	}))

	res, err := eng.Run(context.Background(), feedOf(0.5, 0.6))
	require.NoError(t, err)
	require.NotEmpty(t, res.Equity)
	require.NotEmpty(t, res.Trades)

	res.Equity[0].Equity = -1
	res.Trades[0].PnL = -1

	cached, ok := eng.Result()
	require.True(t, ok)
	assert.InDelta(t, 10000, cached.Equity[0].Equity, 1e-9)
	assert.InDelta(t, 20, cached.Trades[0].PnL, 1e-9)

	cached.Equity[0].Equity = -2
	again, _ := eng.Result()
	assert.InDelta(t, 10000, again.Equity[0].Equity, 1e-9)
}

func TestEngine_CashLimitedBuyPaysFeeOnFilledQuantity(t *testing.T) {
	cfg := noStopConfig()
	cfg.InitialCapital = 1000
	cfg.Fees = backtest.FlatFee
	cfg.Risk.MaxPositionPct = 1
	eng, err := backtest.New(cfg)
	require.NoError(t, err)

	rec := newRecorder(func(i int, _ domain.MarketState) ([]domain.Signal, error) {
		if i == 0 {
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideBuy, 5000)}, nil
		}
		return nil, nil
	})
	eng.AddStrategy(rec)

	res, err := eng.Run(context.Background(), feedOf(0.5))
	require.NoError(t, err)

	// 999 USDC de tokens + 0.1% de comisión agotan la caja sin sobrecobrar
	require.Len(t, rec.fills, 1)
	assert.InDelta(t, 1998, rec.fills[0].Quantity, 1e-9)
	assert.InDelta(t, 0.999, rec.fills[0].Commission, 1e-9)
	assert.InDelta(t, 0.999, res.FeesPaid, 1e-9)
	assert.GreaterOrEqual(t, eng.Portfolio().Cash(), 0.0)
	assert.InDelta(t, cfg.InitialCapital-res.FeesPaid, res.FinalCapital, 1e-9)
}

func TestEngine_SlippageShowsInRecordedEquity(t *testing.T) {
	cfg := noStopConfig()
	cfg.SlippagePct = 0.01
	eng, err := backtest.New(cfg)
	require.NoError(t, err)

	eng.AddStrategy(newRecorder(func(i int, _ domain.MarketState) ([]domain.Signal, error) {
		if i == 0 {
			return []domain.Signal{domain.NewMarketSignal("m1", domain.OutcomeYes, domain.SideBuy, 1000)}, nil
		}
		return nil, nil
	}))

	res, err := eng.Run(context.Background(), feedOf(0.5))
	require.NoError(t, err)

	// 1000 / 0.505 tokens marcados a 0.5
	require.Len(t, res.Equity, 1)
	assert.InDelta(t, 9000+1000/0.505*0.5, res.Equity[0].Equity, 1e-9)
	assert.Less(t, res.Equity[0].Equity, 10000.0)
}

func TestEngine_InvalidConfig(t *testing.T) {
	cfg := backtest.DefaultConfig()
	cfg.InitialCapital = 0
	_, err := backtest.New(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
