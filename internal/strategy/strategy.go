// Package strategy define el contrato de las estrategias de backtest y las
// estrategias incluidas.
package strategy

import (
	"fmt"
	"slices"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// Strategy define el contrato que el engine invoca durante un backtest.
// Cada hook que devuelve error aborta el run completo.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// OnInit se llama una vez antes del primer punto de datos.
	OnInit() error

	// OnBar recibe una vista de solo lectura del mercado y devuelve señales.
	OnBar(state domain.MarketState) ([]domain.Signal, error)

	// OnFill notifica cada fill aplicado al portfolio.
	OnFill(fill domain.Fill) error

	// OnEnd se llama una vez después del último punto.
	OnEnd() error
}

// Factory construye una instancia nueva de estrategia con los parámetros dados.
// Las estrategias tienen estado, así que cada run necesita la suya.
type Factory func(params map[string]float64) (Strategy, error)

// Registry mantiene las estrategias disponibles indexadas por nombre.
type Registry map[string]Factory

// NewRegistry crea un registry vacío.
func NewRegistry() Registry {
	return make(Registry)
}

// DefaultRegistry devuelve un registry con las estrategias incluidas.
func DefaultRegistry() Registry {
	r := NewRegistry()
	r.Register(BuyAndHoldName, NewBuyAndHold)
	r.Register(ThresholdName, NewThreshold)
	return r
}

// Register añade una estrategia al registry.
func (r Registry) Register(name string, f Factory) {
	r[name] = f
}

// Get devuelve la factory por nombre.
func (r Registry) Get(name string) (Factory, bool) {
	f, ok := r[name]
	return f, ok
}

// New construye la estrategia registrada como name.
func (r Registry) New(name string, params map[string]float64) (Strategy, error) {
	f, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.New: %w: unknown strategy %q (available: %v)", domain.ErrInvalidInput, name, r.Names())
	}
	return f(params)
}

// Names devuelve los nombres registrados ordenados.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
