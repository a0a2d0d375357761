package marketdata

import (
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// SliceFeed is an in-memory data feed.
type SliceFeed struct {
	points []domain.DataPoint
	idx    int
}

// NewSliceFeed creates a feed over points. Call Sort if they are not in time order.
func NewSliceFeed(points []domain.DataPoint) *SliceFeed {
	return &SliceFeed{points: slices.Clone(points)}
}

// Add appends a point.
func (f *SliceFeed) Add(p domain.DataPoint) {
	f.points = append(f.points, p)
}

// Sort orders points by timestamp, keeping insertion order for ties.
func (f *SliceFeed) Sort() {
	slices.SortStableFunc(f.points, func(a, b domain.DataPoint) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// Next implements ports.DataFeed.
func (f *SliceFeed) Next() (domain.DataPoint, bool) {
	if f.idx >= len(f.points) {
		return domain.DataPoint{}, false
	}
	p := f.points[f.idx]
	f.idx++
	return p, true
}

// Len implements ports.DataFeed.
func (f *SliceFeed) Len() int { return len(f.points) }

// Reset implements ports.DataFeed.
func (f *SliceFeed) Reset() { f.idx = 0 }

// Points returns a copy of the points.
func (f *SliceFeed) Points() []domain.DataPoint { return slices.Clone(f.points) }

// PriceRange returns the min and max YES price of a market within [start, end].
// ok is false if the market has no prices in the window.
func (f *SliceFeed) PriceRange(marketID string, start, end time.Time) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range f.points {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		price, found := p.Prices.Get(marketID, domain.OutcomeYes)
		if !found {
			continue
		}
		lo, hi, ok = min(lo, price), max(hi, price), true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// MockConfig parametrizes NewMockFeed.
type MockConfig struct {
	NumPoints  int
	NumMarkets int
	StartPrice float64
	Interval   time.Duration
	Start      time.Time
	Seed       uint64
	Volatility float64
}

// DefaultMockConfig returns a week of hourly points for one market.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		NumPoints:  168,
		NumMarkets: 1,
		StartPrice: 0.5,
		Interval:   time.Hour,
		Start:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:       42,
		Volatility: 0.02,
	}
}

// NewMockFeed builds a deterministic random walk per market, clamped to
// [0.05, 0.95]. Markets are named mock-0, mock-1, ...
func NewMockFeed(cfg MockConfig) *SliceFeed {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.02
	}

	prices := make([]float64, cfg.NumMarkets)
	for i := range prices {
		prices[i] = cfg.StartPrice
	}

	feed := &SliceFeed{points: make([]domain.DataPoint, 0, cfg.NumPoints)}
	for i := 0; i < cfg.NumPoints; i++ {
		at := cfg.Start.Add(time.Duration(i) * cfg.Interval)
		point := domain.DataPoint{
			Timestamp: at,
			Prices:    make(domain.Prices, cfg.NumMarkets),
			Bars:      make(map[string]domain.Bar, cfg.NumMarkets),
		}
		for m := range prices {
			open := prices[m]
			prices[m] = clampMock(open + rng.NormFloat64()*cfg.Volatility)
			id := "mock-" + strconv.Itoa(m)
			point.Prices.Set(id, domain.OutcomeYes, prices[m])
			point.Prices.Set(id, domain.OutcomeNo, 1-prices[m])
			point.Bars[id] = domain.Bar{
				Timestamp: at,
				Open:      open,
				High:      max(open, prices[m]),
				Low:       min(open, prices[m]),
				Close:     prices[m],
				Volume:    1,
			}
		}
		feed.points = append(feed.points, point)
	}
	return feed
}

func clampMock(p float64) float64 {
	return math.Min(0.95, math.Max(0.05, p))
}
