// Package marketdata provides cache-first access to Polymarket history and
// builds data feeds for the backtest engine.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/alejandrodnm/pmbacktest/internal/ports"
	"github.com/alejandrodnm/pmbacktest/internal/synthesis"
)

// Provider is the remote source of market data.
type Provider interface {
	ports.MarketProvider
	ports.PriceHistoryProvider
	ports.TradeProvider
	ports.BookProvider
}

// Service wraps a Provider with the bar and metadata caches.
// Either cache may be nil, in which case every call goes to the provider.
type Service struct {
	provider Provider
	bars     ports.BarCache
	meta     ports.MetadataCache
	synth    *synthesis.Synthesizer
}

// NewService creates a Service.
func NewService(provider Provider, bars ports.BarCache, meta ports.MetadataCache, synth *synthesis.Synthesizer) *Service {
	return &Service{provider: provider, bars: bars, meta: meta, synth: synth}
}

// Market returns market metadata, from cache when available.
func (s *Service) Market(ctx context.Context, marketID string) (domain.Market, error) {
	if s.meta != nil {
		m, ok, err := s.meta.LoadMarket(ctx, marketID)
		if err != nil {
			slog.Warn("marketdata: metadata cache read failed", "market", marketID, "err", err)
		} else if ok {
			slog.Debug("marketdata: market cache hit", "market", marketID)
			return m, nil
		}
	}

	m, err := s.provider.FetchMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("marketdata.Market: %w", err)
	}
	if m.ID == "" {
		m.ID = marketID
	}
	if s.meta != nil {
		if err := s.meta.SaveMarket(ctx, m); err != nil {
			slog.Warn("marketdata: metadata cache write failed", "market", marketID, "err", err)
		}
	}
	return m, nil
}

// OHLCV returns bars of a token in [start, end]. Cached bars are used when
// a previous fetch covered the window; otherwise the price history is
// fetched, bucketed and cached.
func (s *Service) OHLCV(ctx context.Context, tokenID string, start, end time.Time, interval domain.Interval) ([]domain.Bar, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("marketdata.OHLCV: %w: %q", domain.ErrUnknownInterval, interval)
	}
	key := barKey(tokenID, interval)

	if bars, ok := s.cachedBars(ctx, key, start, end); ok {
		slog.Debug("marketdata: bar cache hit", "token", tokenID, "interval", interval, "bars", len(bars))
		return bars, nil
	}

	points, err := s.provider.FetchPriceHistory(ctx, tokenID, start, end, fidelityMinutes(interval))
	if err != nil {
		return nil, fmt.Errorf("marketdata.OHLCV: fetch history: %w", err)
	}
	bars, err := synthesis.ComputeOHLCV(points, interval)
	if err != nil {
		return nil, fmt.Errorf("marketdata.OHLCV: %w", err)
	}
	slog.Debug("marketdata: fetched price history", "token", tokenID, "points", len(points), "bars", len(bars))

	s.storeBars(ctx, key, bars, start, end)
	return sliceBars(bars, start, end), nil
}

func (s *Service) cachedBars(ctx context.Context, key string, start, end time.Time) ([]domain.Bar, bool) {
	if s.bars == nil || s.meta == nil || !s.bars.HasBars(key) {
		return nil, false
	}
	info, ok, err := s.meta.LoadFetchInfo(ctx, key)
	if err != nil || !ok || info.Start.After(start) || info.End.Before(end) {
		return nil, false
	}
	bars, err := s.bars.LoadBars(ctx, key, start, end)
	if err != nil {
		slog.Warn("marketdata: bar cache read failed", "key", key, "err", err)
		return nil, false
	}
	if len(bars) == 0 {
		return nil, false
	}
	return bars, true
}

func (s *Service) storeBars(ctx context.Context, key string, bars []domain.Bar, start, end time.Time) {
	if s.bars == nil || len(bars) == 0 {
		return
	}
	if err := s.bars.SaveBars(ctx, key, bars); err != nil {
		slog.Warn("marketdata: bar cache write failed", "key", key, "err", err)
		return
	}
	if s.meta == nil {
		return
	}
	info := ports.FetchInfo{TokenID: key, Start: start, End: end, UpdatedAt: time.Now().UTC()}
	if prev, ok, err := s.meta.LoadFetchInfo(ctx, key); err == nil && ok {
		// solo se extiende el rango si los intervalos se solapan
		if !prev.Start.After(end) && !prev.End.Before(start) {
			info.Start = minTime(prev.Start, start)
			info.End = maxTime(prev.End, end)
		}
	}
	if err := s.meta.SaveFetchInfo(ctx, info); err != nil {
		slog.Warn("marketdata: fetch info write failed", "key", key, "err", err)
	}
}

// Trades returns the trades of a token in [start, end].
func (s *Service) Trades(ctx context.Context, tokenID string, start, end time.Time) ([]domain.Trade, error) {
	trades, err := s.provider.FetchTrades(ctx, tokenID, start, end)
	if err != nil {
		return nil, fmt.Errorf("marketdata.Trades: %w", err)
	}
	return trades, nil
}

// LiveOrderBook returns the current CLOB book of a token.
func (s *Service) LiveOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	books, err := s.provider.FetchOrderBooks(ctx, []string{tokenID})
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("marketdata.LiveOrderBook: %w", err)
	}
	book, ok := books[tokenID]
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("marketdata.LiveOrderBook: %w: no book for %s", domain.ErrNoData, tokenID)
	}
	return book, nil
}

// SyntheticOrderBook reconstructs the book of a token at a past instant from
// the trades and hourly bars of the preceding lookback window.
func (s *Service) SyntheticOrderBook(ctx context.Context, tokenID string, at time.Time, lookback time.Duration) (domain.OrderBook, error) {
	trades, bars, err := s.history(ctx, tokenID, at.Add(-lookback), at)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("marketdata.SyntheticOrderBook: %w", err)
	}
	return s.synth.Synthesize(tokenID, at, trades, bars), nil
}

// SyntheticOrderBooks reconstructs one book per instant without look-ahead.
func (s *Service) SyntheticOrderBooks(ctx context.Context, tokenID string, instants []time.Time, lookback time.Duration) ([]domain.OrderBook, error) {
	if len(instants) == 0 {
		return nil, nil
	}
	first, last := instants[0], instants[0]
	for _, t := range instants[1:] {
		first, last = minTime(first, t), maxTime(last, t)
	}
	trades, bars, err := s.history(ctx, tokenID, first.Add(-lookback), last)
	if err != nil {
		return nil, fmt.Errorf("marketdata.SyntheticOrderBooks: %w", err)
	}
	return s.synth.SynthesizeSeries(tokenID, instants, trades, bars), nil
}

func (s *Service) history(ctx context.Context, tokenID string, start, end time.Time) ([]domain.Trade, []domain.Bar, error) {
	trades, err := s.Trades(ctx, tokenID, start, end)
	if err != nil {
		return nil, nil, err
	}
	bars, err := s.OHLCV(ctx, tokenID, start, end, domain.Interval1h)
	if err != nil && !errors.Is(err, domain.ErrNoData) {
		return nil, nil, err
	}
	return trades, bars, nil
}

// barKey identifica las barras de un token a un intervalo en los caches.
func barKey(tokenID string, interval domain.Interval) string {
	return tokenID + "_" + string(interval)
}

func fidelityMinutes(interval domain.Interval) int {
	return max(1, int(interval.Seconds()/60))
}

func sliceBars(bars []domain.Bar, start, end time.Time) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
