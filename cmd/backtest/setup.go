package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/pmbacktest/config"
	"github.com/alejandrodnm/pmbacktest/internal/application/backtest"
	"github.com/alejandrodnm/pmbacktest/internal/application/marketdata"
	"github.com/alejandrodnm/pmbacktest/internal/synthesis"
)

// defaultWindow es la ventana usada si ni config ni flags fijan start.
const defaultWindow = 7 * 24 * time.Hour

type flagOverrides struct {
	markets  string
	start    string
	end      string
	interval string
	strategy string
	params   string
}

// applyFlags aplica los flags no vacíos sobre la config cargada.
func applyFlags(cfg *config.Config, f flagOverrides) error {
	if f.markets != "" {
		cfg.Backtest.Markets = splitList(f.markets)
	}
	if f.start != "" {
		cfg.Backtest.Start = f.start
	}
	if f.end != "" {
		cfg.Backtest.End = f.end
	}
	if f.interval != "" {
		cfg.Backtest.Interval = f.interval
	}
	if f.strategy != "" {
		cfg.Backtest.Strategy = f.strategy
	}
	if f.params != "" {
		p, err := parseParams(f.params)
		if err != nil {
			return err
		}
		if cfg.Backtest.Params == nil {
			cfg.Backtest.Params = make(map[string]float64, len(p))
		}
		maps.Copy(cfg.Backtest.Params, p)
	}
	return cfg.Validate()
}

// engineConfig traduce la config de fichero a backtest.Config y la valida.
func engineConfig(cfg *config.Config) (backtest.Config, error) {
	fees, err := backtest.NewFeeCalculator(cfg.Backtest.FeeModel)
	if err != nil {
		return backtest.Config{}, err
	}
	out := backtest.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		SlippagePct:    cfg.Backtest.SlippagePct,
		Fees:           fees,
		Risk: backtest.RiskConfig{
			PositionSizing:  backtest.SizingMethod(cfg.Risk.PositionSizing),
			FixedAmount:     cfg.Risk.FixedAmount,
			FixedPercent:    cfg.Risk.FixedPercent,
			MaxPositionPct:  cfg.Risk.MaxPositionPct,
			MaxDailyLossPct: cfg.Risk.MaxDailyLossPct,
			StopLossPct:     cfg.Risk.StopLossPct,
			EnableStopLoss:  cfg.Risk.EnableStopLoss,
			MaxKelly:        cfg.Risk.MaxKelly,
		},
	}
	if err := out.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return out, nil
}

func synthConfig(c config.SynthesisConfig) synthesis.Config {
	return synthesis.Config{
		DepthLevels:      c.DepthLevels,
		SpreadMultiplier: c.SpreadMultiplier,
		MinSpread:        c.MinSpread,
		MaxSpread:        c.MaxSpread,
		BaseDepthUSDC:    c.BaseDepthUSDC,
		LiquidityDecay:   c.LiquidityDecay,
	}
}

// window resuelve la ventana: end vacío → now, start vacío → end - 7d.
func window(cfg *config.Config, now time.Time) (time.Time, time.Time, error) {
	start, end, err := cfg.Window()
	if err != nil {
		return start, end, err
	}
	if end.IsZero() {
		end = now
	}
	if start.IsZero() {
		start = end.Add(-defaultWindow)
	}
	if !end.After(start) {
		return start, end, fmt.Errorf("window end %s must be after start %s", end, start)
	}
	return start, end, nil
}

// parseParams parsea "k=v,k=v" a un map de floats.
func parseParams(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, kv := range splitList(s) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("param %q: expected key=value", kv)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", kv, err)
		}
		out[strings.TrimSpace(k)] = f
	}
	return out, nil
}

// sweepVariants expande "name=v1,v2,v3" en una variante por valor sobre los params base.
func sweepVariants(engCfg backtest.Config, base map[string]float64, arg string) ([]backtest.Variant, error) {
	name, values, ok := strings.Cut(arg, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return nil, fmt.Errorf("sweep %q: expected name=v1,v2,...", arg)
	}

	var variants []backtest.Variant
	for _, raw := range splitList(values) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("sweep %q: %w", arg, err)
		}
		params := maps.Clone(base)
		if params == nil {
			params = make(map[string]float64, 1)
		}
		params[name] = v
		variants = append(variants, backtest.Variant{
			Name:   fmt.Sprintf("%s=%s", name, raw),
			Config: engCfg,
			Params: params,
		})
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("sweep %q: no values", arg)
	}
	return variants, nil
}

// feedMarkets devuelve los markets que aparecen en el feed, ordenados.
func feedMarkets(feed *marketdata.SliceFeed) []string {
	seen := make(map[string]struct{})
	for _, p := range feed.Points() {
		for m := range p.Prices {
			seen[m] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
