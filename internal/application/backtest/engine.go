package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/alejandrodnm/pmbacktest/internal/ports"
	"github.com/alejandrodnm/pmbacktest/internal/strategy"
)

const defaultInitialCapital = 10000

// Config holds the settings of a single backtest run.
type Config struct {
	InitialCapital float64
	SlippagePct    float64
	Fees           FeeCalculator
	Risk           RiskConfig
}

// DefaultConfig returns a config with default capital, no slippage, no fees
// and default risk limits.
func DefaultConfig() Config {
	return Config{
		InitialCapital: defaultInitialCapital,
		Fees:           NoFee,
		Risk:           DefaultRiskConfig(),
	}
}

// Validate checks the run settings.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial_capital must be > 0", domain.ErrInvalidConfig)
	}
	if c.SlippagePct < 0 || c.SlippagePct >= 1 {
		return fmt.Errorf("%w: slippage_pct must be in [0, 1)", domain.ErrInvalidConfig)
	}
	return c.Risk.Validate()
}

// State is the lifecycle state of an Engine.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
)

// Result is the immutable outcome of a run.
type Result struct {
	InitialCapital float64
	FinalCapital   float64
	TotalReturn    float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	FeesPaid       float64
	Equity         []domain.EquityPoint
	Trades         []domain.ClosedTrade
	Config         Config
	Start          time.Time
	End            time.Time
}

// WinRate is winning trades over total trades, 0 without trades.
func (r Result) WinRate() float64 {
	if r.TotalTrades == 0 {
		return 0
	}
	return float64(r.WinningTrades) / float64(r.TotalTrades)
}

// Record converts the result into a persistable run record.
// The record gets no ID; the store assigns one.
func (r Result) Record(strategyName string, markets []string, metrics domain.PerformanceMetrics) domain.RunRecord {
	return domain.RunRecord{
		CreatedAt:      time.Now().UTC(),
		Strategy:       strategyName,
		Markets:        slices.Clone(markets),
		Start:          r.Start,
		End:            r.End,
		InitialCapital: r.InitialCapital,
		FinalCapital:   r.FinalCapital,
		TotalReturn:    r.TotalReturn,
		TotalTrades:    r.TotalTrades,
		WinningTrades:  r.WinningTrades,
		LosingTrades:   r.LosingTrades,
		FeesPaid:       r.FeesPaid,
		Metrics:        metrics,
		Equity:         slices.Clone(r.Equity),
		Trades:         slices.Clone(r.Trades),
	}
}

// Engine drives strategies over a data feed. An Engine runs exactly once.
type Engine struct {
	cfg        Config
	portfolio  *Portfolio
	execution  *ExecutionHandler
	risk       *RiskManager
	strategies []strategy.Strategy

	state  State
	result *Result
}

// New creates an engine with its own portfolio, risk manager and execution handler.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backtest.New: %w", err)
	}
	if cfg.Fees == nil {
		cfg.Fees = NoFee
	}
	return &Engine{
		cfg:       cfg,
		portfolio: NewPortfolio(cfg.InitialCapital),
		execution: NewExecutionHandler(cfg.SlippagePct, cfg.Fees),
		risk:      NewRiskManager(cfg.Risk),
		state:     StateIdle,
	}, nil
}

// AddStrategy registers a strategy. Strategies are called in registration order.
func (e *Engine) AddStrategy(s strategy.Strategy) {
	e.strategies = append(e.strategies, s)
}

// State returns the lifecycle state.
func (e *Engine) State() State { return e.state }

// Portfolio exposes the portfolio for inspection after a run.
func (e *Engine) Portfolio() *Portfolio { return e.portfolio }

// Result returns the cached result; ok is false until the run is done.
func (e *Engine) Result() (Result, bool) {
	if e.result == nil {
		return Result{}, false
	}
	return e.result.clone(), true
}

// Run replays the feed through every strategy. Cancellation is checked
// between data points; a strategy error aborts the run.
func (e *Engine) Run(ctx context.Context, feed ports.DataFeed) (Result, error) {
	if e.state != StateIdle {
		return Result{}, fmt.Errorf("backtest.Run: %w: engine is %s", domain.ErrEngineState, e.state)
	}
	e.state = StateRunning

	slog.Info("backtest: run started",
		"strategies", len(e.strategies),
		"points", feed.Len(),
		"initial_capital", e.cfg.InitialCapital,
	)

	for _, s := range e.strategies {
		if err := s.OnInit(); err != nil {
			return Result{}, e.abort(fmt.Errorf("backtest.Run: %s on_init: %w", s.Name(), err))
		}
	}
	e.risk.StartNewDay(e.portfolio.TotalEquity())

	var (
		first, last time.Time
		lastPrices  domain.Prices
		started     bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, e.abort(fmt.Errorf("backtest.Run: %w", err))
		}
		point, ok := feed.Next()
		if !ok {
			break
		}
		if !started {
			first = point.Timestamp
			started = true
		}
		last = point.Timestamp
		lastPrices = point.Prices

		if err := e.step(point); err != nil {
			return Result{}, e.abort(err)
		}
	}

	e.state = StateFinalizing
	for _, s := range e.strategies {
		if err := s.OnEnd(); err != nil {
			return Result{}, e.abort(fmt.Errorf("backtest.Run: %s on_end: %w", s.Name(), err))
		}
	}
	if lastPrices != nil {
		e.portfolio.MarkToMarket(lastPrices)
	}

	result := e.buildResult(first, last)
	e.result = &result
	e.state = StateDone
	result = result.clone()

	slog.Info("backtest: run finished",
		"final_capital", result.FinalCapital,
		"total_return", result.TotalReturn,
		"trades", result.TotalTrades,
	)
	return result, nil
}

// step processes one data point.
func (e *Engine) step(point domain.DataPoint) error {
	if e.risk.OnTimestamp(point.Timestamp, e.portfolio.TotalEquity()) {
		slog.Debug("backtest: new trading day", "at", point.Timestamp, "equity", e.portfolio.TotalEquity())
	}

	e.portfolio.MarkToMarket(point.Prices)

	for _, s := range e.strategies {
		signals, err := s.OnBar(e.marketState(point))
		if err != nil {
			return fmt.Errorf("backtest.Run: %s on_bar at %s: %w", s.Name(), point.Timestamp.Format(time.RFC3339), err)
		}
		for _, sig := range signals {
			if err := e.executeSignal(s, sig, point); err != nil {
				return err
			}
		}
	}

	// re-mark so fills at slipped prices show up in this point's equity
	e.portfolio.MarkToMarket(point.Prices)
	e.portfolio.RecordEquity(point.Timestamp)
	return nil
}

// marketState builds the read-only view handed to strategies.
func (e *Engine) marketState(point domain.DataPoint) domain.MarketState {
	bars := make(map[string]domain.Bar, len(point.Bars))
	for k, b := range point.Bars {
		bars[k] = b
	}
	return domain.MarketState{
		Timestamp:      point.Timestamp,
		Prices:         point.Prices.Clone(),
		Bars:           bars,
		Positions:      e.portfolio.Positions(),
		Cash:           e.portfolio.Cash(),
		PortfolioValue: e.portfolio.TotalEquity(),
	}
}

// executeSignal runs one signal through stop-loss, sizing, risk, execution
// and the portfolio. Rejections and non-fills are not errors.
func (e *Engine) executeSignal(s strategy.Strategy, sig domain.Signal, point domain.DataPoint) error {
	if err := sig.Validate(); err != nil {
		slog.Debug("backtest: invalid signal dropped", "strategy", s.Name(), "err", err)
		return nil
	}
	current, ok := point.Prices.Get(sig.MarketID, sig.Outcome)
	if !ok || current <= 0 {
		slog.Debug("backtest: no price for signal", "market", sig.MarketID, "outcome", sig.Outcome)
		return nil
	}

	if pos, held := e.portfolio.Position(sig.MarketID, sig.Outcome); held &&
		e.risk.ShouldStopOut(sig.Action, pos.EntryPrice, current) {
		fill, filled := e.portfolio.ClosePosition(sig.MarketID, sig.Outcome, current, point.Timestamp)
		if !filled {
			return nil
		}
		fill.Order = domain.Order{Signal: sig, Status: domain.OrderStatusFilled}
		fill.Commission = e.portfolio.ChargeFee(e.execution.Fees().Fee(fill.Price, fill.Quantity, false))
		slog.Info("backtest: stop loss triggered",
			"market", sig.MarketID,
			"outcome", sig.Outcome,
			"entry", pos.EntryPrice,
			"price", current,
		)
		return e.notifyFill(s, fill)
	}

	sellAll := sig.IsSellAll()
	sig, ok = e.resolveSize(sig, current)
	if !ok {
		return nil
	}

	checked, ok := e.risk.CheckSignal(sig, e.portfolio.TotalEquity())
	if !ok {
		slog.Debug("backtest: signal rejected by risk", "market", sig.MarketID, "size", sig.Size)
		return nil
	}

	execFill, ok := e.execution.Execute(checked, current, point.Timestamp)
	if !ok {
		slog.Debug("backtest: signal not filled", "market", checked.MarketID, "type", checked.Type)
		return nil
	}

	fees := e.execution.Fees()
	var fill domain.Fill
	switch checked.Action {
	case domain.SideBuy:
		cash := e.portfolio.Cash()
		amount := min(checked.Size, cash)
		fee := fees.Fee(execFill.Price, amount/execFill.Price, false)
		if fee >= cash {
			slog.Debug("backtest: insufficient cash for commission", "market", checked.MarketID)
			return nil
		}
		// leave room for the commission on the quantity actually bought
		if amount+fee > cash {
			amount = cash - fee
		}
		fill, ok = e.portfolio.ExecuteBuy(checked.MarketID, checked.Outcome, amount, execFill.Price, point.Timestamp)
		if !ok {
			return nil
		}
		fill.Commission = e.portfolio.ChargeFee(fees.Fee(fill.Price, fill.Quantity, false))
	case domain.SideSell:
		amount := checked.Size
		if sellAll {
			amount = domain.SellAll
		}
		fill, ok = e.portfolio.ExecuteSell(checked.MarketID, checked.Outcome, amount, execFill.Price, point.Timestamp)
		if !ok {
			return nil
		}
		fill.Commission = e.portfolio.ChargeFee(fees.Fee(fill.Price, fill.Quantity, false))
	}
	fill.Order = execFill.Order
	return e.notifyFill(s, fill)
}

// resolveSize fills in auto-sized buys and converts sell-all into a dollar size.
func (e *Engine) resolveSize(sig domain.Signal, current float64) (domain.Signal, bool) {
	switch {
	case sig.IsSellAll():
		pos, held := e.portfolio.Position(sig.MarketID, sig.Outcome)
		if !held {
			return domain.Signal{}, false
		}
		return sig.WithSize(pos.Quantity * current), true
	case sig.Size == domain.AutoSize:
		size := e.risk.PositionSize(e.portfolio.TotalEquity(), e.portfolio.TradeStats())
		return sig.WithSize(size), true
	}
	return sig, true
}

// notifyFill hands the fill to the strategy that emitted the signal.
func (e *Engine) notifyFill(s strategy.Strategy, fill domain.Fill) error {
	if err := s.OnFill(fill); err != nil {
		return fmt.Errorf("backtest.Run: %s on_fill: %w", s.Name(), err)
	}
	return nil
}

// abort marks the engine done without a result.
func (e *Engine) abort(err error) error {
	e.state = StateDone
	slog.Warn("backtest: run aborted", "err", err)
	return err
}

func (r Result) clone() Result {
	r.Equity = slices.Clone(r.Equity)
	r.Trades = slices.Clone(r.Trades)
	return r
}

func (e *Engine) buildResult(first, last time.Time) Result {
	trades := e.portfolio.Trades()
	final := e.portfolio.TotalEquity()

	r := Result{
		InitialCapital: e.cfg.InitialCapital,
		FinalCapital:   final,
		TotalReturn:    (final - e.cfg.InitialCapital) / e.cfg.InitialCapital,
		TotalTrades:    len(trades),
		FeesPaid:       e.portfolio.FeesPaid(),
		Equity:         e.portfolio.EquityHistory(),
		Trades:         trades,
		Config:         e.cfg,
		Start:          first,
		End:            last,
	}
	for _, t := range trades {
		switch {
		case t.IsWin():
			r.WinningTrades++
		case t.IsLoss():
			r.LosingTrades++
		}
	}
	return r
}
