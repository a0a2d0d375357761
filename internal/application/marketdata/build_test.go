package marketdata_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/application/marketdata"
	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFeed_ForwardFillsAndComplements(t *testing.T) {
	p := &fakeProvider{
		markets: map[string]domain.Market{
			"a": binaryMarket("a", "ya", "na"),
			"b": binaryMarket("b", "yb", "nb"),
		},
		history: map[string][]domain.PricePoint{
			"ya": hourly(t0, 0.40, 0.45, 0.50),
			"yb": hourly(t0.Add(time.Hour), 0.80),
		},
	}
	svc := newService(t, p, nil)

	feed, err := marketdata.BuildFeed(context.Background(), svc, []string{"a", "b"}, t0, t0.Add(3*time.Hour), domain.Interval1h)
	require.NoError(t, err)
	require.Equal(t, 3, feed.Len())

	first, ok := feed.Next()
	require.True(t, ok)
	_, hasB := first.Prices.Get("b", domain.OutcomeYes)
	assert.False(t, hasB, "b no ha empezado a cotizar")

	second, _ := feed.Next()
	yb, ok := second.Prices.Get("b", domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, 0.80, yb)
	nb, _ := second.Prices.Get("b", domain.OutcomeNo)
	assert.InDelta(t, 0.20, nb, 1e-12)

	third, _ := feed.Next()
	yb, ok = third.Prices.Get("b", domain.OutcomeYes)
	require.True(t, ok, "forward fill")
	assert.Equal(t, 0.80, yb)
	ya, _ := third.Prices.Get("a", domain.OutcomeYes)
	assert.Equal(t, 0.50, ya)

	_, ok = feed.Next()
	assert.False(t, ok)
	feed.Reset()
	again, ok := feed.Next()
	require.True(t, ok)
	assert.Equal(t, first.Timestamp, again.Timestamp)
}

func TestBuildFeed_NonBinaryFails(t *testing.T) {
	p := &fakeProvider{markets: map[string]domain.Market{
		"multi": {ID: "multi", Tokens: []domain.Token{{Outcome: "A"}, {Outcome: "B"}, {Outcome: "C"}}},
	}}
	_, err := marketdata.BuildFeed(context.Background(), newService(t, p, nil), []string{"multi"}, t0, t0.Add(time.Hour), domain.Interval1h)
	assert.ErrorIs(t, err, domain.ErrNonBinaryMarket)
}

func TestBuildFeed_SkipsMarketsWithoutData(t *testing.T) {
	p := &fakeProvider{
		markets: map[string]domain.Market{
			"a":     binaryMarket("a", "ya", "na"),
			"empty": binaryMarket("empty", "ye", "ne"),
			"noyes": {ID: "noyes", Tokens: []domain.Token{{TokenID: "x", Outcome: "Up"}, {TokenID: "z", Outcome: "Down"}}},
		},
		history: map[string][]domain.PricePoint{"ya": hourly(t0, 0.5)},
	}
	feed, err := marketdata.BuildFeed(context.Background(), newService(t, p, nil), []string{"a", "empty", "noyes"}, t0, t0.Add(time.Hour), domain.Interval1h)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Len())

	_, err = marketdata.BuildFeed(context.Background(), newService(t, p, nil), []string{"empty"}, t0, t0.Add(time.Hour), domain.Interval1h)
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestMockFeed_DeterministicAndBounded(t *testing.T) {
	cfg := marketdata.DefaultMockConfig()
	cfg.NumMarkets = 2
	cfg.Volatility = 0.2

	a := marketdata.NewMockFeed(cfg)
	b := marketdata.NewMockFeed(cfg)
	require.Equal(t, cfg.NumPoints, a.Len())
	assert.Equal(t, a.Points(), b.Points())

	for _, p := range a.Points() {
		for _, m := range []string{"mock-0", "mock-1"} {
			yes, ok := p.Prices.Get(m, domain.OutcomeYes)
			require.True(t, ok)
			assert.GreaterOrEqual(t, yes, 0.05)
			assert.LessOrEqual(t, yes, 0.95)
			no, _ := p.Prices.Get(m, domain.OutcomeNo)
			assert.InDelta(t, 1.0, yes+no, 1e-12)
		}
	}

	lo, hi, ok := a.PriceRange("mock-0", cfg.Start, cfg.Start.Add(1000*time.Hour))
	require.True(t, ok)
	assert.LessOrEqual(t, lo, hi)
	_, _, ok = a.PriceRange("nope", cfg.Start, cfg.Start.Add(time.Hour))
	assert.False(t, ok)
}

func TestSliceFeed_SortStable(t *testing.T) {
	f := marketdata.NewSliceFeed(nil)
	f.Add(domain.DataPoint{Timestamp: t0.Add(time.Hour)})
	f.Add(domain.DataPoint{Timestamp: t0})
	f.Sort()

	p, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, t0, p.Timestamp)
}
