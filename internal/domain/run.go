package domain

import "time"

// PerformanceMetrics resume el rendimiento de un backtest.
// Los ratios son 0 cuando no hay datos suficientes para calcularlos.
type PerformanceMetrics struct {
	TotalReturn   float64
	SharpeRatio   float64
	SortinoRatio  float64
	MaxDrawdown   float64
	CalmarRatio   float64
	WinRate       float64
	ProfitFactor  float64
	AvgTrade      float64
	AvgWin        float64
	AvgLoss       float64
	LargestWinner float64
	LargestLoser  float64
	TotalTrades   int
}

// RunRecord es un backtest persistido: resumen, métricas, curva y trades.
type RunRecord struct {
	ID             string
	CreatedAt      time.Time
	Strategy       string
	Markets        []string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	FinalCapital   float64
	TotalReturn    float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	FeesPaid       float64
	Metrics        PerformanceMetrics
	Equity         []EquityPoint
	Trades         []ClosedTrade
}
