package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alejandrodnm/pmbacktest/config"
	"github.com/alejandrodnm/pmbacktest/internal/adapters/notify"
	"github.com/alejandrodnm/pmbacktest/internal/adapters/polymarket"
	"github.com/alejandrodnm/pmbacktest/internal/adapters/storage"
	"github.com/alejandrodnm/pmbacktest/internal/application/backtest"
	"github.com/alejandrodnm/pmbacktest/internal/application/marketdata"
	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/alejandrodnm/pmbacktest/internal/ports"
	"github.com/alejandrodnm/pmbacktest/internal/strategy"
	"github.com/alejandrodnm/pmbacktest/internal/synthesis"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty: defaults)")
	markets := flag.String("markets", "", "comma-separated market ids (overrides config)")
	start := flag.String("start", "", "window start, 2006-01-02 or RFC3339 (overrides config)")
	end := flag.String("end", "", "window end (overrides config)")
	interval := flag.String("interval", "", "bar interval: 1m|5m|15m|1h|6h|1d (overrides config)")
	strategyName := flag.String("strategy", "", "strategy name (overrides config)")
	params := flag.String("params", "", "strategy params k=v,k=v (merged over config)")
	sweep := flag.String("sweep", "", "sweep one param: name=v1,v2,v3")
	mock := flag.Bool("mock", false, "use a deterministic random-walk feed instead of the API")
	mockMarkets := flag.Int("mock-markets", 1, "number of markets in the mock feed")
	book := flag.String("book", "", "print the synthetic order book of this token at window end")
	liveBook := flag.Bool("live-book", false, "with -book, also print the current CLOB book")
	csvDir := flag.String("csv", "", "export equity and trades CSV to this directory")
	noStore := flag.Bool("no-store", false, "do not persist the run")
	listRuns := flag.Int("list-runs", 0, "list the last N stored runs and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if err := applyFlags(cfg, flagOverrides{
		markets:  *markets,
		start:    *start,
		end:      *end,
		interval: *interval,
		strategy: *strategyName,
		params:   *params,
	}); err != nil {
		slog.Error("invalid flags", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console := notify.NewConsole()

	var store *storage.SQLiteStorage
	if !*noStore || *listRuns > 0 || !*mock {
		store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
	}

	if *listRuns > 0 {
		runs, err := store.ListRuns(ctx, *listRuns)
		if err != nil {
			slog.Error("failed to list runs", "err", err)
			os.Exit(1)
		}
		console.Runs(runs)
		return
	}

	engCfg, err := engineConfig(cfg)
	if err != nil {
		slog.Error("invalid backtest config", "err", err)
		os.Exit(1)
	}

	registry := strategy.DefaultRegistry()
	factory, ok := registry.Get(cfg.Backtest.Strategy)
	if !ok {
		slog.Error("unknown strategy", "strategy", cfg.Backtest.Strategy, "available", registry.Names())
		os.Exit(1)
	}

	iv, err := domain.ParseInterval(cfg.Backtest.Interval)
	if err != nil {
		slog.Error("invalid interval", "err", err)
		os.Exit(1)
	}
	winStart, winEnd, err := window(cfg, time.Now().UTC())
	if err != nil {
		slog.Error("invalid window", "err", err)
		os.Exit(1)
	}

	slog.Info("pmbacktest starting",
		"config", *configPath,
		"strategy", cfg.Backtest.Strategy,
		"markets", len(cfg.Backtest.Markets),
		"start", winStart,
		"end", winEnd,
		"interval", iv,
		"mock", *mock,
	)

	var (
		feed *marketdata.SliceFeed
		svc  *marketdata.Service
	)
	if *mock {
		mc := marketdata.DefaultMockConfig()
		mc.NumMarkets = *mockMarkets
		mc.Interval = iv.Duration()
		mc.Start = winStart
		if n := int(winEnd.Sub(winStart) / iv.Duration()); n > 0 {
			mc.NumPoints = n + 1
		}
		feed = marketdata.NewMockFeed(mc)
	} else {
		svc, err = newService(cfg, store)
		if err != nil {
			slog.Error("failed to build market data service", "err", err)
			os.Exit(1)
		}
		feed, err = marketdata.BuildFeed(ctx, svc, cfg.Backtest.Markets, winStart, winEnd, iv)
		if err != nil {
			slog.Error("failed to build feed", "err", err)
			os.Exit(1)
		}
	}
	if feed.Len() == 0 {
		slog.Warn("feed is empty, nothing to backtest")
		return
	}
	marketIDs := feedMarkets(feed)

	if *sweep != "" {
		runSweep(ctx, cfg, engCfg, feed, factory, *sweep, marketIDs, console)
		return
	}

	strat, err := factory(cfg.Backtest.Params)
	if err != nil {
		slog.Error("failed to build strategy", "err", err)
		os.Exit(1)
	}

	eng, err := backtest.New(engCfg)
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		os.Exit(1)
	}
	eng.AddStrategy(strat)

	res, err := eng.Run(ctx, feed)
	if err != nil {
		slog.Error("backtest failed", "err", err)
		os.Exit(1)
	}

	metrics := backtest.ComputeMetrics(res.Equity, res.Trades, cfg.Backtest.RiskFreeRate)
	record := res.Record(strat.Name(), marketIDs, metrics)

	var reporter ports.Reporter = console
	if err := reporter.Report(ctx, record); err != nil {
		slog.Warn("reporter error", "err", err)
	}

	if *csvDir != "" {
		if err := notify.WriteEquityCSV(filepath.Join(*csvDir, "equity.csv"), record.Equity); err != nil {
			slog.Warn("failed to export equity", "err", err)
		}
		if err := notify.WriteTradesCSV(filepath.Join(*csvDir, "trades.csv"), record.Trades); err != nil {
			slog.Warn("failed to export trades", "err", err)
		}
	}

	if *book != "" && svc != nil {
		ob, err := svc.SyntheticOrderBook(ctx, *book, res.End, cfg.Synthesis.TradesLookback)
		if err != nil {
			slog.Warn("failed to synthesize order book", "err", err, "token", *book)
		} else {
			console.OrderBook(ob)
		}
		if *liveBook {
			live, err := svc.LiveOrderBook(ctx, *book)
			if err != nil {
				slog.Warn("failed to fetch live order book", "err", err, "token", *book)
			} else {
				console.OrderBook(live)
			}
		}
	}

	if !*noStore {
		var runs ports.RunStore = store
		if err := runs.SaveRun(ctx, record); err != nil {
			slog.Error("failed to save run", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("pmbacktest done",
		"final_capital", res.FinalCapital,
		"return", res.TotalReturn,
		"trades", res.TotalTrades,
	)
}

// runSweep corre una variante por valor del parámetro y las lista como runs.
func runSweep(
	ctx context.Context,
	cfg *config.Config,
	engCfg backtest.Config,
	feed *marketdata.SliceFeed,
	factory strategy.Factory,
	arg string,
	marketIDs []string,
	console *notify.Console,
) {
	variants, err := sweepVariants(engCfg, cfg.Backtest.Params, arg)
	if err != nil {
		slog.Error("invalid sweep", "err", err)
		os.Exit(1)
	}

	points := feed.Points()
	newFeed := func() (ports.DataFeed, error) {
		return marketdata.NewSliceFeed(points), nil
	}

	results := backtest.Sweep(ctx, variants, newFeed, factory, cfg.Backtest.RiskFreeRate, cfg.Backtest.SweepWorkers)

	records := make([]domain.RunRecord, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			slog.Warn("sweep variant failed", "variant", r.Variant.Name, "err", r.Err)
			continue
		}
		rec := r.Result.Record(r.Variant.Name, marketIDs, r.Metrics)
		rec.ID = r.Variant.Name
		records = append(records, rec)
	}
	console.Runs(records)
}

// newService construye el servicio de datos: API + caches + sintetizador.
func newService(cfg *config.Config, meta ports.MetadataCache) (*marketdata.Service, error) {
	synth, err := synthesis.NewSynthesizer(synthConfig(cfg.Synthesis))
	if err != nil {
		return nil, err
	}
	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.API.DataBase)

	var bars ports.BarCache
	if cfg.Data.UseCache {
		bars = storage.NewParquetBarCache(cfg.Data.CacheDir)
	}
	return marketdata.NewService(client, bars, meta, synth), nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
