package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// BuildFeed fetches YES-token bars for each market and merges them into one
// feed. Each point carries the last known bar of every market that has
// started trading (forward fill), with NO priced as 1 − YES.
// Markets without a YES token or without bars are skipped with a warning;
// a non-binary market is an error.
func BuildFeed(ctx context.Context, svc *Service, marketIDs []string, start, end time.Time, interval domain.Interval) (*SliceFeed, error) {
	series := make(map[string]map[int64]domain.Bar, len(marketIDs))
	stamps := make(map[int64]time.Time)

	for _, id := range marketIDs {
		m, err := svc.Market(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("marketdata.BuildFeed: %w", err)
		}
		if err := m.ValidateBinary(); err != nil {
			return nil, fmt.Errorf("marketdata.BuildFeed: %w", err)
		}
		yes, ok := m.YesToken()
		if !ok {
			slog.Warn("marketdata: market has no YES token, skipping", "market", id)
			continue
		}
		bars, err := svc.OHLCV(ctx, yes.TokenID, start, end, interval)
		if err != nil {
			return nil, fmt.Errorf("marketdata.BuildFeed: %s: %w", id, err)
		}
		if len(bars) == 0 {
			slog.Warn("marketdata: no price data for market, skipping", "market", id)
			continue
		}

		slog.Debug("marketdata: market loaded",
			"market", id,
			"question", domain.TruncateQuestion(m.Question, m.Key(), 60),
			"bars", len(bars),
			"hours_to_resolution", m.HoursToResolution(),
		)

		byTime := make(map[int64]domain.Bar, len(bars))
		for _, b := range bars {
			k := b.Timestamp.Unix()
			byTime[k] = b
			stamps[k] = b.Timestamp
		}
		series[id] = byTime
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("marketdata.BuildFeed: %w: no market produced bars", domain.ErrNoData)
	}

	keys := make([]int64, 0, len(stamps))
	for k := range stamps {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	last := make(map[string]domain.Bar, len(series))
	feed := &SliceFeed{points: make([]domain.DataPoint, 0, len(keys))}
	for _, k := range keys {
		point := domain.DataPoint{
			Timestamp: stamps[k],
			Prices:    make(domain.Prices, len(series)),
			Bars:      make(map[string]domain.Bar, len(series)),
		}
		for id, byTime := range series {
			if b, ok := byTime[k]; ok {
				last[id] = b
			}
			b, ok := last[id]
			if !ok {
				continue
			}
			point.Prices.Set(id, domain.OutcomeYes, b.Close)
			point.Prices.Set(id, domain.OutcomeNo, 1-b.Close)
			point.Bars[id] = b
		}
		feed.points = append(feed.points, point)
	}

	slog.Info("marketdata: feed built", "markets", len(series), "points", len(feed.points))
	return feed, nil
}
