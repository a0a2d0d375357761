package domain

import "time"

// Position es una posición abierta en un outcome de un mercado.
// Existe solo mientras Quantity > 0.
type Position struct {
	MarketID      string
	Outcome       Outcome
	Quantity      float64 // tokens
	EntryPrice    float64 // precio medio ponderado por volumen
	EntryTime     time.Time
	RealizedPnL   float64
	UnrealizedPnL float64
	MarkPrice     float64 // último precio de mark; 0 si nunca se marcó
}

// PositionKey devuelve la clave compuesta market:outcome.
func PositionKey(marketID string, outcome Outcome) string {
	return marketID + ":" + string(outcome)
}

// Key devuelve la clave de la posición.
func (p Position) Key() string { return PositionKey(p.MarketID, p.Outcome) }

// CostBasis devuelve quantity × entry.
func (p Position) CostBasis() float64 { return p.Quantity * p.EntryPrice }

// MarketValue devuelve el valor a mercado según el último mark.
func (p Position) MarketValue() float64 { return p.CostBasis() + p.UnrealizedPnL }

// MarkToMarket recalcula el PnL no realizado con el precio actual.
func (p *Position) MarkToMarket(price float64) {
	p.MarkPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
}

// AddFill suma tokens a la posición recalculando el precio medio (VWAP) y
// vuelve a marcarla al último precio conocido, o al del fill si no hay mark.
func (p *Position) AddFill(quantity, price float64) {
	total := p.Quantity + quantity
	if total <= 0 {
		return
	}
	p.EntryPrice = (p.Quantity*p.EntryPrice + quantity*price) / total
	p.Quantity = total

	mark := p.MarkPrice
	if mark <= 0 {
		mark = price
	}
	p.MarkToMarket(mark)
}
