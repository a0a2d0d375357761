package strategy

import (
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// EventHandler recibe eventos de mercado de grano fino. El loop por barras
// del engine no los dispara; sirven como punto de extensión para feeds de eventos.
type EventHandler interface {
	OnPriceUpdate(marketID string, outcome domain.Outcome, price float64, at time.Time)
	OnOrderBook(marketID string, book domain.OrderBook, at time.Time)
	OnTrade(marketID string, trade domain.Trade, at time.Time)
}

// EventStrategy acumula órdenes pendientes desde los hooks de eventos y
// las entrega en el siguiente OnBar.
type EventStrategy struct {
	Base
	pending []domain.Signal
}

// NewEventStrategy crea una EventStrategy.
func NewEventStrategy(name string, params map[string]float64) *EventStrategy {
	return &EventStrategy{Base: NewBase(name, params)}
}

func (s *EventStrategy) OnPriceUpdate(string, domain.Outcome, float64, time.Time) {}
func (s *EventStrategy) OnOrderBook(string, domain.OrderBook, time.Time)          {}
func (s *EventStrategy) OnTrade(string, domain.Trade, time.Time)                  {}

// PlaceLimitOrder encola una orden limitada y la devuelve.
func (s *EventStrategy) PlaceLimitOrder(marketID string, outcome domain.Outcome, side domain.Side, size, price float64) domain.Signal {
	sig := domain.NewLimitSignal(marketID, outcome, side, size, price)
	s.pending = append(s.pending, sig)
	return sig
}

// Pending devuelve las órdenes encoladas sin consumirlas.
func (s *EventStrategy) Pending() []domain.Signal {
	out := make([]domain.Signal, len(s.pending))
	copy(out, s.pending)
	return out
}

// OnBar entrega y vacía las órdenes pendientes.
func (s *EventStrategy) OnBar(domain.MarketState) ([]domain.Signal, error) {
	out := s.pending
	s.pending = nil
	return out, nil
}
