package synthesis_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/alejandrodnm/pmbacktest/internal/synthesis"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newSynth(t *testing.T) *synthesis.Synthesizer {
	t.Helper()
	s, err := synthesis.NewSynthesizer(synthesis.DefaultConfig())
	require.NoError(t, err)
	return s
}

func trade(offset time.Duration, price float64) domain.Trade {
	return domain.Trade{TokenID: "tok", Side: "BUY", Price: price, Size: 10, Timestamp: t0.Add(offset)}
}

func assertBookInvariants(t *testing.T, book domain.OrderBook) {
	t.Helper()
	assert.True(t, book.IsSynthetic)
	assert.True(t, book.IsWellFormed(), "bids=%v asks=%v", book.Bids, book.Asks)
	for _, l := range append(book.Bids, book.Asks...) {
		assert.GreaterOrEqual(t, l.Price, 0.01)
		assert.LessOrEqual(t, l.Price, 0.99)
		assert.Greater(t, l.Size, 0.0)
	}
}

func TestSynthesize_NoData(t *testing.T) {
	book := newSynth(t).Synthesize("tok", t0, nil, nil)

	assertBookInvariants(t, book)
	require.Len(t, book.Bids, 10)
	require.Len(t, book.Asks, 10)
	// mid 0.5, spread crudo 0.02 dentro de [0.01, 0.08] → half 0.01
	assert.InDelta(t, 0.49, book.BestBid(), 1e-9)
	assert.InDelta(t, 0.51, book.BestAsk(), 1e-9)
	// profundidad 5000 × 0.3 / max(0.49, 0.51)
	assert.InDelta(t, 2941.18, book.Bids[0].Size, 0.01)
	assert.Equal(t, "tok", book.TokenID)
	assert.Equal(t, t0, book.Timestamp)
}

func TestSynthesize_MidFromTrades(t *testing.T) {
	trades := []domain.Trade{
		trade(-2*time.Hour, 0.60),
		trade(-time.Hour, 0.62),
		trade(-30*time.Minute, 0.64),
	}
	book := newSynth(t).Synthesize("tok", t0, trades, nil)

	assertBookInvariants(t, book)
	assert.InDelta(t, 0.62, book.Midpoint(), 0.0001)
}

func TestSynthesize_MidFromClosestBar(t *testing.T) {
	bars := []domain.Bar{
		{Timestamp: t0.Add(-3 * time.Hour), Close: 0.30},
		{Timestamp: t0.Add(-time.Hour), Close: 0.35},
	}
	book := newSynth(t).Synthesize("tok", t0, nil, bars)

	assertBookInvariants(t, book)
	assert.InDelta(t, 0.35, book.Midpoint(), 0.0001)
}

func TestSynthesize_ExtremePriceMergesClampedLevels(t *testing.T) {
	trades := []domain.Trade{trade(-time.Minute, 0.02), trade(0, 0.02)}
	book := newSynth(t).Synthesize("tok", t0, trades, nil)

	assertBookInvariants(t, book)
	assert.Less(t, len(book.Bids), 10)
	assert.Equal(t, 0.01, book.Bids[len(book.Bids)-1].Price)
	assert.Len(t, book.Asks, 10)
}

func TestSynthesize_SpreadClampedByConfig(t *testing.T) {
	// precios muy dispersos → spread crudo 0.10 → acotado a max_spread 0.08
	trades := []domain.Trade{
		trade(-4*time.Hour, 0.2), trade(-3*time.Hour, 0.8),
		trade(-2*time.Hour, 0.2), trade(-time.Hour, 0.8),
	}
	book := newSynth(t).Synthesize("tok", t0, trades, nil)

	assertBookInvariants(t, book)
	assert.InDelta(t, 0.08, book.Spread(), 0.0002)
}

func TestSynthesize_StaleTradesReduceDepth(t *testing.T) {
	s := newSynth(t)
	fresh := s.Synthesize("tok", t0, []domain.Trade{trade(0, 0.5), trade(-time.Minute, 0.5)}, nil)
	stale := s.Synthesize("tok", t0, []domain.Trade{trade(-72*time.Hour, 0.5), trade(-73*time.Hour, 0.5)}, nil)

	assert.Greater(t, fresh.Bids[0].Size, stale.Bids[0].Size)
	// trade a distancia 0 → peso 1; mid 0.5, half 0.005
	assert.InDelta(t, 9900.99, fresh.Bids[0].Size, 0.01)
}

func TestSynthesizeSeries_NoLookahead(t *testing.T) {
	trades := []domain.Trade{
		trade(-time.Hour, 0.40),
		trade(time.Hour, 0.90),
	}
	books := newSynth(t).SynthesizeSeries("tok", []time.Time{t0, t0.Add(2 * time.Hour)}, trades, nil)
	require.Len(t, books, 2)

	// en t0 solo se ve el trade a 0.40
	assert.InDelta(t, 0.40, books[0].Midpoint(), 0.0001)
	assert.InDelta(t, 0.65, books[1].Midpoint(), 0.0001)
	for _, b := range books {
		assertBookInvariants(t, b)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := synthesis.DefaultConfig()
	cfg.DepthLevels = 0
	_, err := synthesis.NewSynthesizer(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg = synthesis.DefaultConfig()
	cfg.MaxSpread = 0.001
	assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfig)
}
