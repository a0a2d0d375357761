package strategy

import (
	"maps"
	"slices"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// Base aporta nombre, parámetros y hooks vacíos. Las estrategias la embeben
// e implementan solo OnBar.
type Base struct {
	name   string
	params map[string]float64
}

// NewBase crea una Base con una copia de los parámetros.
func NewBase(name string, params map[string]float64) Base {
	return Base{name: name, params: maps.Clone(params)}
}

// Name implementa Strategy.
func (b Base) Name() string { return b.name }

// Params devuelve una copia de los parámetros.
func (b Base) Params() map[string]float64 { return maps.Clone(b.params) }

// Param devuelve el parámetro key o def si no está definido.
func (b Base) Param(key string, def float64) float64 {
	if v, ok := b.params[key]; ok {
		return v
	}
	return def
}

func (b Base) OnInit() error            { return nil }
func (b Base) OnFill(domain.Fill) error { return nil }
func (b Base) OnEnd() error             { return nil }

// SignalFunc genera señales a partir del estado del mercado.
type SignalFunc func(state domain.MarketState) ([]domain.Signal, error)

// SignalStrategy es una estrategia definida por una función.
type SignalStrategy struct {
	Base
	generate SignalFunc
}

// NewSignalStrategy crea una estrategia que delega OnBar en fn.
func NewSignalStrategy(name string, params map[string]float64, fn SignalFunc) *SignalStrategy {
	return &SignalStrategy{Base: NewBase(name, params), generate: fn}
}

// OnBar implementa Strategy.
func (s *SignalStrategy) OnBar(state domain.MarketState) ([]domain.Signal, error) {
	if s.generate == nil {
		return nil, nil
	}
	return s.generate(state)
}

// sortedMarkets devuelve los mercados del estado en orden estable.
func sortedMarkets(state domain.MarketState) []string {
	markets := state.Markets()
	slices.Sort(markets)
	return markets
}
