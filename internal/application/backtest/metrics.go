package backtest

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

const tradingDaysPerYear = 252

// ComputeMetrics derives performance metrics from an equity curve and the
// closed trades. It returns zero metrics with fewer than two equity points.
// riskFreeRate is annual and de-annualized over 252 periods.
func ComputeMetrics(equity []domain.EquityPoint, trades []domain.ClosedTrade, riskFreeRate float64) domain.PerformanceMetrics {
	if len(equity) < 2 {
		return domain.PerformanceMetrics{}
	}

	returns := simpleReturns(equity)
	if len(returns) == 0 {
		return domain.PerformanceMetrics{}
	}

	m := domain.PerformanceMetrics{TotalTrades: len(trades)}
	if first := equity[0].Equity; first > 0 {
		m.TotalReturn = (equity[len(equity)-1].Equity - first) / first
	}

	mean, _ := stats.Mean(returns)
	excess := mean - riskFreeRate/tradingDaysPerYear
	annualize := math.Sqrt(tradingDaysPerYear)

	if len(returns) > 1 {
		if sd, err := stats.StandardDeviationPopulation(returns); err == nil && sd > 0 {
			m.SharpeRatio = excess / sd * annualize
		}
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) > 1 {
		if dsd, err := stats.StandardDeviationPopulation(downside); err == nil && dsd > 0 {
			m.SortinoRatio = excess / dsd * annualize
		}
	}

	m.MaxDrawdown = maxDrawdown(equity)
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = m.TotalReturn / m.MaxDrawdown
	}

	applyTradeStats(&m, trades)
	return m
}

// simpleReturns returns period-over-period returns, dropping non-finite values.
func simpleReturns(equity []domain.EquityPoint) []float64 {
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		r := (equity[i].Equity - prev) / prev
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// maxDrawdown is the largest peak-to-trough decline as a fraction of the peak.
func maxDrawdown(equity []domain.EquityPoint) float64 {
	var peak, worst float64
	for i, p := range equity {
		if i == 0 || p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			worst = max(worst, (peak-p.Equity)/peak)
		}
	}
	return worst
}

func applyTradeStats(m *domain.PerformanceMetrics, trades []domain.ClosedTrade) {
	if len(trades) == 0 {
		return
	}
	var pnls, winners, losers []float64
	for _, t := range trades {
		pnls = append(pnls, t.PnL)
		switch {
		case t.IsWin():
			winners = append(winners, t.PnL)
		case t.IsLoss():
			losers = append(losers, t.PnL)
		}
	}

	m.WinRate = float64(len(winners)) / float64(len(trades))
	m.AvgTrade, _ = stats.Mean(pnls)

	grossProfit, _ := stats.Sum(winners)
	grossLoss := 1.0
	if len(losers) > 0 {
		sum, _ := stats.Sum(losers)
		grossLoss = math.Abs(sum)
	}
	m.ProfitFactor = grossProfit / grossLoss

	if len(winners) > 0 {
		m.AvgWin, _ = stats.Mean(winners)
		m.LargestWinner, _ = stats.Max(winners)
	}
	if len(losers) > 0 {
		m.AvgLoss, _ = stats.Mean(losers)
		m.LargestLoser, _ = stats.Min(losers)
	}
}
