package domain

import (
	"maps"
	"time"
)

// Prices mapea market id → outcome → precio.
type Prices map[string]map[Outcome]float64

// Get devuelve el precio de un outcome, si existe.
func (p Prices) Get(marketID string, outcome Outcome) (float64, bool) {
	byOutcome, ok := p[marketID]
	if !ok {
		return 0, false
	}
	v, ok := byOutcome[outcome]
	return v, ok
}

// Set fija el precio de un outcome creando el mapa interno si hace falta.
func (p Prices) Set(marketID string, outcome Outcome, price float64) {
	if p[marketID] == nil {
		p[marketID] = make(map[Outcome]float64, 2)
	}
	p[marketID][outcome] = price
}

// Clone devuelve una copia profunda.
func (p Prices) Clone() Prices {
	out := make(Prices, len(p))
	for m, byOutcome := range p {
		out[m] = maps.Clone(byOutcome)
	}
	return out
}

// DataPoint es un paso del data feed: precios y barras de todos los mercados en un instante.
type DataPoint struct {
	Timestamp time.Time
	Prices    Prices
	Bars      map[string]Bar
}

// EquityPoint es un punto de la curva de equity.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// MarketState es la vista de solo lectura que recibe una estrategia en cada bar.
// Todos los mapas son copias; mutarlos no afecta al engine.
type MarketState struct {
	Timestamp      time.Time
	Prices         Prices
	Bars           map[string]Bar
	Positions      map[string]Position
	Cash           float64
	PortfolioValue float64
}

// Price devuelve el precio actual de un outcome.
func (s MarketState) Price(marketID string, outcome Outcome) (float64, bool) {
	return s.Prices.Get(marketID, outcome)
}

// Bar devuelve la barra actual de un mercado.
func (s MarketState) Bar(marketID string) (Bar, bool) {
	b, ok := s.Bars[marketID]
	return b, ok
}

// Position devuelve la posición abierta en market:outcome.
func (s MarketState) Position(marketID string, outcome Outcome) (Position, bool) {
	p, ok := s.Positions[PositionKey(marketID, outcome)]
	return p, ok
}

// HasPosition devuelve true si hay posición abierta en market:outcome.
func (s MarketState) HasPosition(marketID string, outcome Outcome) bool {
	_, ok := s.Positions[PositionKey(marketID, outcome)]
	return ok
}

// Markets devuelve los ids de mercado con precio en este instante.
func (s MarketState) Markets() []string {
	out := make([]string, 0, len(s.Prices))
	for m := range s.Prices {
		out = append(out, m)
	}
	return out
}

// PortfolioState es un snapshot del portfolio.
type PortfolioState struct {
	Cash          float64
	Positions     map[string]Position
	TotalEquity   float64
	UnrealizedPnL float64
	RealizedPnL   float64
	FeesPaid      float64
}
