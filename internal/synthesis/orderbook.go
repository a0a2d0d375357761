package synthesis

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

const (
	midTradeWindow    = 20   // trades más cercanos usados para el mid
	spreadTradeWindow = 50   // trades recientes usados para la volatilidad
	defaultMid        = 0.5  // mid sin datos
	defaultRawSpread  = 0.02 // spread crudo con menos de 2 trades
	minRawSpread      = 0.005
	maxRawSpread      = 0.10
	noTradeAgeWeight  = 0.3
	minAgeWeight      = 0.1
)

// Config parametriza el orderbook sintético.
type Config struct {
	DepthLevels      int
	SpreadMultiplier float64
	MinSpread        float64
	MaxSpread        float64
	BaseDepthUSDC    float64
	LiquidityDecay   float64
}

// DefaultConfig devuelve la configuración por defecto del sintetizador.
func DefaultConfig() Config {
	return Config{
		DepthLevels:      10,
		SpreadMultiplier: 1.0,
		MinSpread:        0.01,
		MaxSpread:        0.08,
		BaseDepthUSDC:    5000,
		LiquidityDecay:   0.85,
	}
}

// Validate comprueba que la configuración produce books bien formados.
func (c Config) Validate() error {
	switch {
	case c.DepthLevels < 1:
		return fmt.Errorf("%w: depth_levels must be >= 1", domain.ErrInvalidConfig)
	case c.SpreadMultiplier <= 0:
		return fmt.Errorf("%w: spread_multiplier must be > 0", domain.ErrInvalidConfig)
	case c.MinSpread < 0.001:
		return fmt.Errorf("%w: min_spread must be >= 0.001", domain.ErrInvalidConfig)
	case c.MaxSpread < c.MinSpread || c.MaxSpread >= 1:
		return fmt.Errorf("%w: max_spread must be in [min_spread, 1)", domain.ErrInvalidConfig)
	case c.BaseDepthUSDC <= 0:
		return fmt.Errorf("%w: base_depth_usdc must be > 0", domain.ErrInvalidConfig)
	case c.LiquidityDecay <= 0 || c.LiquidityDecay > 1:
		return fmt.Errorf("%w: liquidity_decay must be in (0, 1]", domain.ErrInvalidConfig)
	}
	return nil
}

// Synthesizer reconstruye orderbooks plausibles a partir de trades y barras históricas.
type Synthesizer struct {
	cfg Config
}

// NewSynthesizer crea un Synthesizer con la configuración validada.
func NewSynthesizer(cfg Config) (*Synthesizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("synthesis.NewSynthesizer: %w", err)
	}
	return &Synthesizer{cfg: cfg}, nil
}

// Config devuelve la configuración en uso.
func (s *Synthesizer) Config() Config { return s.cfg }

// Synthesize construye el book del token en el instante at.
// Nunca falla: sin datos usa mid 0.5, spread por defecto y profundidad reducida.
func (s *Synthesizer) Synthesize(tokenID string, at time.Time, trades []domain.Trade, bars []domain.Bar) domain.OrderBook {
	sorted := slices.Clone(trades)
	slices.SortStableFunc(sorted, func(a, b domain.Trade) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return s.synthesizeSorted(tokenID, at, sorted, bars)
}

// SynthesizeSeries construye un book por instante usando solo los datos
// con timestamp <= instante, sin mirar al futuro.
func (s *Synthesizer) SynthesizeSeries(tokenID string, instants []time.Time, trades []domain.Trade, bars []domain.Bar) []domain.OrderBook {
	sortedTrades := slices.Clone(trades)
	slices.SortStableFunc(sortedTrades, func(a, b domain.Trade) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	sortedBars := slices.Clone(bars)
	slices.SortStableFunc(sortedBars, func(a, b domain.Bar) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	books := make([]domain.OrderBook, 0, len(instants))
	for _, at := range instants {
		nt := sort.Search(len(sortedTrades), func(i int) bool { return sortedTrades[i].Timestamp.After(at) })
		nb := sort.Search(len(sortedBars), func(i int) bool { return sortedBars[i].Timestamp.After(at) })
		books = append(books, s.synthesizeSorted(tokenID, at, sortedTrades[:nt], sortedBars[:nb]))
	}
	return books
}

func (s *Synthesizer) synthesizeSorted(tokenID string, at time.Time, trades []domain.Trade, bars []domain.Bar) domain.OrderBook {
	mid := estimateMid(at, trades, bars)
	spread := clamp(rawSpread(trades)*s.cfg.SpreadMultiplier, s.cfg.MinSpread, s.cfg.MaxSpread)
	depth := s.cfg.BaseDepthUSDC * ageWeight(at, trades, s.cfg.LiquidityDecay)

	half := spread / 2
	bids := make([]domain.BookEntry, 0, s.cfg.DepthLevels)
	asks := make([]domain.BookEntry, 0, s.cfg.DepthLevels)
	for i := 0; i < s.cfg.DepthLevels; i++ {
		offset := half * (1 + 0.5*float64(i))
		levelDepth := depth * math.Pow(s.cfg.LiquidityDecay, float64(i))

		bidPrice := round(math.Max(domain.MinPrice, mid-offset), 4)
		askPrice := round(math.Min(domain.MaxPrice, mid+offset), 4)

		bids = appendLevel(bids, bidPrice, round(levelDepth/math.Max(bidPrice, 1-bidPrice), 2))
		asks = appendLevel(asks, askPrice, round(levelDepth/math.Max(askPrice, 1-askPrice), 2))
	}

	return domain.OrderBook{
		TokenID:     tokenID,
		Timestamp:   at,
		Bids:        bids,
		Asks:        asks,
		IsSynthetic: true,
	}
}

// appendLevel añade un nivel o, si el precio coincide con el último
// (suelo 0.01 / techo 0.99), acumula su tamaño para mantener el orden estricto.
func appendLevel(levels []domain.BookEntry, price, size float64) []domain.BookEntry {
	if n := len(levels); n > 0 && levels[n-1].Price == price {
		levels[n-1].Size = round(levels[n-1].Size+size, 2)
		return levels
	}
	return append(levels, domain.BookEntry{Price: price, Size: size})
}

// estimateMid usa la media de los trades más cercanos a at, si no la barra
// más cercana, si no 0.5.
func estimateMid(at time.Time, trades []domain.Trade, bars []domain.Bar) float64 {
	mid := defaultMid
	switch {
	case len(trades) > 0:
		byDistance := slices.Clone(trades)
		slices.SortStableFunc(byDistance, func(a, b domain.Trade) int {
			da, db := absDuration(a.Timestamp.Sub(at)), absDuration(b.Timestamp.Sub(at))
			switch {
			case da < db:
				return -1
			case da > db:
				return 1
			}
			return 0
		})
		n := min(midTradeWindow, len(byDistance))
		prices := make([]float64, 0, n)
		for _, t := range byDistance[:n] {
			prices = append(prices, t.Price)
		}
		if m, err := stats.Mean(prices); err == nil {
			mid = m
		}
	case len(bars) > 0:
		closest := bars[0]
		for _, b := range bars[1:] {
			if absDuration(b.Timestamp.Sub(at)) < absDuration(closest.Timestamp.Sub(at)) {
				closest = b
			}
		}
		mid = closest.Close
	}
	return clamp(mid, domain.MinPrice, domain.MaxPrice)
}

// rawSpread estima el spread como 2× la desviación típica muestral de los
// precios recientes, acotado a [0.005, 0.10].
func rawSpread(trades []domain.Trade) float64 {
	if len(trades) < 2 {
		return defaultRawSpread
	}
	recent := trades[max(0, len(trades)-spreadTradeWindow):]
	prices := make([]float64, 0, len(recent))
	for _, t := range recent {
		prices = append(prices, t.Price)
	}
	sd, err := stats.StandardDeviationSample(prices)
	if err != nil {
		return defaultRawSpread
	}
	return clamp(sd*2, minRawSpread, maxRawSpread)
}

// ageWeight decae con la antigüedad del trade más cercano (en horas).
func ageWeight(at time.Time, trades []domain.Trade, decay float64) float64 {
	if len(trades) == 0 {
		return noTradeAgeWeight
	}
	nearest := absDuration(trades[0].Timestamp.Sub(at))
	for _, t := range trades[1:] {
		nearest = min(nearest, absDuration(t.Timestamp.Sub(at)))
	}
	return math.Max(minAgeWeight, math.Exp(-decay*nearest.Hours()/24))
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
