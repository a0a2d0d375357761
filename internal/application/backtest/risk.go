package backtest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// SizingMethod selects how the risk manager sizes auto-sized signals.
type SizingMethod string

const (
	SizingFixedAmount     SizingMethod = "fixed_amount"
	SizingFixedPercent    SizingMethod = "fixed_percent"
	SizingKelly           SizingMethod = "kelly"
	SizingFractionalKelly SizingMethod = "fractional_kelly"
)

// minSignalSize is the smallest order the risk manager lets through, in USDC.
const minSignalSize = 1.0

// RiskConfig holds risk limits and sizing parameters.
type RiskConfig struct {
	PositionSizing  SizingMethod
	FixedAmount     float64
	FixedPercent    float64
	MaxPositionPct  float64
	MaxDailyLossPct float64
	StopLossPct     float64
	EnableStopLoss  bool
	MaxKelly        float64
}

// DefaultRiskConfig returns the default risk limits.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		PositionSizing:  SizingFixedPercent,
		FixedAmount:     100,
		FixedPercent:    0.1,
		MaxPositionPct:  0.25,
		MaxDailyLossPct: 0.1,
		StopLossPct:     0.05,
		EnableStopLoss:  true,
		MaxKelly:        0.25,
	}
}

// Validate checks the limits are usable.
func (c RiskConfig) Validate() error {
	switch c.PositionSizing {
	case SizingFixedAmount, SizingFixedPercent, SizingKelly, SizingFractionalKelly:
	default:
		return fmt.Errorf("%w: position_sizing %q", domain.ErrInvalidConfig, c.PositionSizing)
	}
	switch {
	case c.FixedAmount < 0:
		return fmt.Errorf("%w: fixed_amount must be >= 0", domain.ErrInvalidConfig)
	case c.FixedPercent < 0 || c.FixedPercent > 1:
		return fmt.Errorf("%w: fixed_percent must be in [0, 1]", domain.ErrInvalidConfig)
	case c.MaxPositionPct <= 0 || c.MaxPositionPct > 1:
		return fmt.Errorf("%w: max_position_pct must be in (0, 1]", domain.ErrInvalidConfig)
	case c.MaxDailyLossPct <= 0 || c.MaxDailyLossPct > 1:
		return fmt.Errorf("%w: max_daily_loss_pct must be in (0, 1]", domain.ErrInvalidConfig)
	case c.StopLossPct < 0:
		return fmt.Errorf("%w: stop_loss_pct must be >= 0", domain.ErrInvalidConfig)
	case c.MaxKelly < 0 || c.MaxKelly > 1:
		return fmt.Errorf("%w: max_kelly must be in [0, 1]", domain.ErrInvalidConfig)
	}
	return nil
}

// TradeStats summarises closed trades for Kelly sizing.
type TradeStats struct {
	WinRate float64
	AvgWin  float64
	AvgLoss float64 // positive magnitude
}

// DefaultTradeStats is used when there is no trade history yet.
func DefaultTradeStats() TradeStats {
	return TradeStats{WinRate: 0.5, AvgWin: 1, AvgLoss: 1}
}

// KellyFraction returns the Kelly bet fraction clamped to [0, 1].
// It is 0 when there is no loss history to size against.
func KellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 0
	}
	b := avgWin / avgLoss
	if b <= 0 {
		return 0
	}
	q := 1 - winRate
	kelly := (winRate*b - q) / b
	return max(0, min(1, kelly))
}

// RiskManager sizes signals and enforces position caps, the stop-loss and the
// daily loss kill switch. One instance per backtest run.
type RiskManager struct {
	cfg RiskConfig

	day            int64
	dayStarted     bool
	dayStartEquity float64
	killed         bool
}

// NewRiskManager creates a risk manager.
func NewRiskManager(cfg RiskConfig) *RiskManager {
	return &RiskManager{cfg: cfg}
}

// Config returns the risk configuration.
func (r *RiskManager) Config() RiskConfig { return r.cfg }

// PositionSize returns the USDC size suggested by the sizing method.
func (r *RiskManager) PositionSize(portfolioValue float64, stats TradeStats) float64 {
	switch r.cfg.PositionSizing {
	case SizingFixedAmount:
		return r.cfg.FixedAmount
	case SizingFixedPercent:
		return portfolioValue * r.cfg.FixedPercent
	case SizingKelly:
		return portfolioValue * KellyFraction(stats.WinRate, stats.AvgWin, stats.AvgLoss)
	case SizingFractionalKelly:
		// MaxKelly scales the full Kelly fraction.
		return portfolioValue * KellyFraction(stats.WinRate, stats.AvgWin, stats.AvgLoss) * r.cfg.MaxKelly
	}
	return portfolioValue * r.cfg.FixedPercent
}

// CheckSignal applies the kill switch, the per-position cap on buys and the
// minimum size. It returns an adjusted copy of sig; ok is false if the signal is rejected.
func (r *RiskManager) CheckSignal(sig domain.Signal, portfolioValue float64) (domain.Signal, bool) {
	if r.killed {
		return domain.Signal{}, false
	}
	if r.dayStarted && r.dayStartEquity > 0 {
		dailyLoss := (r.dayStartEquity - portfolioValue) / r.dayStartEquity
		if dailyLoss > r.cfg.MaxDailyLossPct {
			r.killed = true
			slog.Warn("backtest: daily loss limit reached, rejecting signals until next day",
				"daily_loss_pct", dailyLoss,
				"limit_pct", r.cfg.MaxDailyLossPct,
			)
			return domain.Signal{}, false
		}
	}

	size := sig.Size
	// the position cap only limits new exposure
	if sig.Action == domain.SideBuy {
		size = min(size, portfolioValue*r.cfg.MaxPositionPct)
	}
	if size < minSignalSize {
		return domain.Signal{}, false
	}
	return sig.WithSize(size), true
}

// StartNewDay records the equity at the start of a trading day and clears the kill switch.
func (r *RiskManager) StartNewDay(equity float64) {
	r.dayStartEquity = equity
	r.dayStarted = true
	r.killed = false
}

// OnTimestamp starts a new day when at crosses a UTC day boundary.
// It reports whether a new day was started.
func (r *RiskManager) OnTimestamp(at time.Time, equity float64) bool {
	day := dayIndex(at)
	if r.dayStarted && day == r.day {
		return false
	}
	r.day = day
	r.StartNewDay(equity)
	return true
}

// Killed reports whether the kill switch is tripped for the current day.
func (r *RiskManager) Killed() bool { return r.killed }

// ShouldStopOut reports whether the position must be force-closed.
// Long side triggers on a drop of StopLossPct from entry, short side on a rise.
func (r *RiskManager) ShouldStopOut(side domain.Side, entryPrice, currentPrice float64) bool {
	if !r.cfg.EnableStopLoss || entryPrice <= 0 {
		return false
	}
	if side == domain.SideBuy {
		return (entryPrice-currentPrice)/entryPrice >= r.cfg.StopLossPct
	}
	return (currentPrice-entryPrice)/entryPrice >= r.cfg.StopLossPct
}

func dayIndex(t time.Time) int64 {
	s := t.Unix()
	d := s / 86400
	if s%86400 < 0 {
		d--
	}
	return d
}
