package strategy

import "github.com/alejandrodnm/pmbacktest/internal/domain"

// BuyAndHoldName es el nombre registrado de BuyAndHold.
const BuyAndHoldName = "buy_and_hold"

// BuyAndHold compra YES una vez por mercado y mantiene hasta el final.
// Parámetro "size": USDC por compra; 0 deja el tamaño al risk manager.
type BuyAndHold struct {
	Base
	bought map[string]bool
}

// NewBuyAndHold implementa Factory.
func NewBuyAndHold(params map[string]float64) (Strategy, error) {
	return &BuyAndHold{Base: NewBase(BuyAndHoldName, params), bought: make(map[string]bool)}, nil
}

// OnBar implementa Strategy.
func (s *BuyAndHold) OnBar(state domain.MarketState) ([]domain.Signal, error) {
	size := s.Param("size", domain.AutoSize)
	var signals []domain.Signal
	for _, m := range sortedMarkets(state) {
		if s.bought[m] {
			continue
		}
		if _, ok := state.Price(m, domain.OutcomeYes); !ok {
			continue
		}
		s.bought[m] = true
		signals = append(signals, domain.NewMarketSignal(m, domain.OutcomeYes, domain.SideBuy, size))
	}
	return signals, nil
}
