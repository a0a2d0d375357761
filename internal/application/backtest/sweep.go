package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/alejandrodnm/pmbacktest/internal/ports"
	"github.com/alejandrodnm/pmbacktest/internal/strategy"
)

// Variant is one parameter set of a sweep.
type Variant struct {
	Name   string
	Config Config
	Params map[string]float64
}

// FeedFactory returns a fresh feed positioned at its first point.
type FeedFactory func() (ports.DataFeed, error)

// SweepResult is the outcome of one variant.
type SweepResult struct {
	Variant Variant
	Result  Result
	Metrics domain.PerformanceMetrics
	Err     error
}

// Sweep runs every variant on its own engine using a worker pool.
// Each run gets its own feed, strategy, portfolio and risk manager.
// Results keep the order of variants. If workers <= 0 it uses runtime.NumCPU().
func Sweep(
	ctx context.Context,
	variants []Variant,
	newFeed FeedFactory,
	newStrategy strategy.Factory,
	riskFreeRate float64,
	workers int,
) []SweepResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]SweepResult, len(variants))
	workCh := make(chan int, len(variants))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workCh {
				results[idx] = runVariant(ctx, variants[idx], newFeed, newStrategy, riskFreeRate)
			}
		}()
	}

	for i := range variants {
		workCh <- i
	}
	close(workCh)
	wg.Wait()

	slog.Debug("backtest: sweep complete", "variants", len(variants), "workers", workers)
	return results
}

func runVariant(ctx context.Context, v Variant, newFeed FeedFactory, newStrategy strategy.Factory, riskFreeRate float64) SweepResult {
	out := SweepResult{Variant: v}

	eng, err := New(v.Config)
	if err != nil {
		out.Err = fmt.Errorf("backtest.Sweep: %s: %w", v.Name, err)
		return out
	}
	strat, err := newStrategy(v.Params)
	if err != nil {
		out.Err = fmt.Errorf("backtest.Sweep: %s: strategy: %w", v.Name, err)
		return out
	}
	eng.AddStrategy(strat)

	feed, err := newFeed()
	if err != nil {
		out.Err = fmt.Errorf("backtest.Sweep: %s: feed: %w", v.Name, err)
		return out
	}

	res, err := eng.Run(ctx, feed)
	if err != nil {
		out.Err = fmt.Errorf("backtest.Sweep: %s: %w", v.Name, err)
		return out
	}
	out.Result = res
	out.Metrics = ComputeMetrics(res.Equity, res.Trades, riskFreeRate)
	return out
}
