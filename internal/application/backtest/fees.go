// Package backtest simulates strategies against historical Polymarket prices:
// fee models, execution, risk, portfolio accounting, the event loop and metrics.
package backtest

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// FeeCalculator computes the commission in USDC for a fill.
type FeeCalculator interface {
	Fee(price, quantity float64, isMaker bool) float64
}

// FeeFunc adapts a plain function to FeeCalculator.
type FeeFunc func(price, quantity float64, isMaker bool) float64

// Fee implements FeeCalculator.
func (f FeeFunc) Fee(price, quantity float64, isMaker bool) float64 {
	return f(price, quantity, isMaker)
}

const (
	polymarketTakerRate = 0.02
	flatFeeRate         = 0.001
)

// NoFee charges nothing.
var NoFee = FeeFunc(func(float64, float64, bool) float64 { return 0 })

// FlatFee charges 0.1% of notional regardless of side.
var FlatFee = FeeFunc(func(price, quantity float64, _ bool) float64 {
	return flatFeeRate * price * quantity
})

// PolymarketFee charges takers 2% of notional scaled by p×(1−p), so fees
// vanish near 0 and 1 and peak at 0.5. Makers pay nothing.
var PolymarketFee = FeeFunc(func(price, quantity float64, isMaker bool) float64 {
	if isMaker {
		return 0
	}
	return polymarketTakerRate * price * (1 - price) * price * quantity
})

// FeeModel names a fee calculator in config.
type FeeModel string

const (
	FeeModelNone       FeeModel = "none"
	FeeModelFlat       FeeModel = "flat"
	FeeModelPolymarket FeeModel = "polymarket"
)

// NewFeeCalculator resolves a fee model name. Empty means none.
func NewFeeCalculator(model string) (FeeCalculator, error) {
	switch FeeModel(strings.ToLower(strings.TrimSpace(model))) {
	case "", FeeModelNone:
		return NoFee, nil
	case FeeModelFlat:
		return FlatFee, nil
	case FeeModelPolymarket:
		return PolymarketFee, nil
	}
	return nil, fmt.Errorf("backtest.NewFeeCalculator: %w: fee model %q", domain.ErrInvalidConfig, model)
}
