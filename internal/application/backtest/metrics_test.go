package backtest_test

import (
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/application/backtest"
	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/stretchr/testify/assert"
)

func curve(values ...float64) []domain.EquityPoint {
	out := make([]domain.EquityPoint, 0, len(values))
	for i, v := range values {
		out = append(out, domain.EquityPoint{Timestamp: day0.Add(time.Duration(i) * time.Hour), Equity: v})
	}
	return out
}

func TestComputeMetrics_TooFewPoints(t *testing.T) {
	assert.Equal(t, domain.PerformanceMetrics{}, backtest.ComputeMetrics(curve(100), nil, 0))
	assert.Equal(t, domain.PerformanceMetrics{}, backtest.ComputeMetrics(nil, nil, 0))
}

func TestComputeMetrics_ReturnsAndDrawdown(t *testing.T) {
	m := backtest.ComputeMetrics(curve(100, 110, 99, 120), nil, 0)

	assert.InDelta(t, 0.20, m.TotalReturn, 1e-12)
	assert.InDelta(t, 0.10, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, 2.0, m.CalmarRatio, 1e-9)

	// r = [0.1, -0.1, 0.2121...]
	r := []float64{0.1, -0.1, 21.0 / 99}
	mean := (r[0] + r[1] + r[2]) / 3
	var ss float64
	for _, x := range r {
		ss += (x - mean) * (x - mean)
	}
	sd := math.Sqrt(ss / 3)
	assert.InDelta(t, mean/sd*math.Sqrt(252), m.SharpeRatio, 1e-9)
	// un solo retorno negativo → sin Sortino
	assert.Equal(t, 0.0, m.SortinoRatio)
}

func TestComputeMetrics_FlatCurve(t *testing.T) {
	m := backtest.ComputeMetrics(curve(100, 100, 100), nil, 0.05)
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 0.0, m.CalmarRatio)
}

func TestComputeMetrics_Sortino(t *testing.T) {
	m := backtest.ComputeMetrics(curve(100, 95, 100, 90, 100), nil, 0)
	assert.NotEqual(t, 0.0, m.SortinoRatio)
	assert.False(t, math.IsNaN(m.SortinoRatio))
}

func TestComputeMetrics_TradeStats(t *testing.T) {
	trades := []domain.ClosedTrade{{PnL: 30}, {PnL: -10}, {PnL: 10}, {PnL: -20}, {PnL: 0}}
	m := backtest.ComputeMetrics(curve(100, 110), trades, 0)

	assert.Equal(t, 5, m.TotalTrades)
	assert.InDelta(t, 0.4, m.WinRate, 1e-12)
	assert.InDelta(t, 40.0/30.0, m.ProfitFactor, 1e-12)
	assert.InDelta(t, 2.0, m.AvgTrade, 1e-12)
	assert.InDelta(t, 20, m.AvgWin, 1e-12)
	assert.InDelta(t, -15, m.AvgLoss, 1e-12)
	assert.Equal(t, 30.0, m.LargestWinner)
	assert.Equal(t, -20.0, m.LargestLoser)
}

func TestComputeMetrics_ProfitFactorWithoutLosers(t *testing.T) {
	m := backtest.ComputeMetrics(curve(100, 110), []domain.ClosedTrade{{PnL: 5}, {PnL: 7}}, 0)
	assert.InDelta(t, 12, m.ProfitFactor, 1e-12)
	assert.Equal(t, 0.0, m.AvgLoss)
}
