package strategy

import (
	"fmt"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// ThresholdName es el nombre registrado de Threshold.
const ThresholdName = "threshold"

// Threshold compra YES cuando cae por debajo de buy_below y cierra la
// posición cuando supera sell_above.
type Threshold struct {
	Base
	buyBelow  float64
	sellAbove float64
	size      float64
}

// NewThreshold implementa Factory.
// Parámetros: buy_below (0.4), sell_above (0.6), size (0 = risk manager).
func NewThreshold(params map[string]float64) (Strategy, error) {
	b := NewBase(ThresholdName, params)
	s := &Threshold{
		Base:      b,
		buyBelow:  b.Param("buy_below", 0.4),
		sellAbove: b.Param("sell_above", 0.6),
		size:      b.Param("size", domain.AutoSize),
	}
	if s.buyBelow <= 0 || s.sellAbove >= 1 || s.buyBelow >= s.sellAbove {
		return nil, fmt.Errorf("strategy.NewThreshold: %w: need 0 < buy_below < sell_above < 1, got %.3f / %.3f",
			domain.ErrInvalidInput, s.buyBelow, s.sellAbove)
	}
	return s, nil
}

// OnBar implementa Strategy.
func (s *Threshold) OnBar(state domain.MarketState) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, m := range sortedMarkets(state) {
		price, ok := state.Price(m, domain.OutcomeYes)
		if !ok {
			continue
		}
		holding := state.HasPosition(m, domain.OutcomeYes)
		switch {
		case !holding && price < s.buyBelow:
			signals = append(signals, domain.NewMarketSignal(m, domain.OutcomeYes, domain.SideBuy, s.size))
		case holding && price > s.sellAbove:
			signals = append(signals, domain.NewMarketSignal(m, domain.OutcomeYes, domain.SideSell, domain.SellAll))
		}
	}
	return signals, nil
}
