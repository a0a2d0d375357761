package backtest

import (
	"log/slog"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// ExecutionHandler turns signals into fills at the current price, applying
// slippage, order-type gating and fees. Fills are never partial.
type ExecutionHandler struct {
	slippagePct float64
	fees        FeeCalculator
}

// NewExecutionHandler creates a handler. A nil fee calculator means no fees.
func NewExecutionHandler(slippagePct float64, fees FeeCalculator) *ExecutionHandler {
	if fees == nil {
		fees = NoFee
	}
	return &ExecutionHandler{slippagePct: slippagePct, fees: fees}
}

// Fees returns the fee calculator in use.
func (h *ExecutionHandler) Fees() FeeCalculator { return h.fees }

// FillPrice applies slippage against the trader: buys pay more, sells receive less.
func (h *ExecutionHandler) FillPrice(side domain.Side, price float64) float64 {
	if side == domain.SideBuy {
		return price * (1 + h.slippagePct)
	}
	return price * (1 - h.slippagePct)
}

// Execute fills sig at currentPrice. ok is false when the order does not fill:
// a LIMIT whose slipped price crosses the limit, a STOP whose trigger has not
// been reached, or a size that yields no tokens.
func (h *ExecutionHandler) Execute(sig domain.Signal, currentPrice float64, at time.Time) (domain.Fill, bool) {
	if currentPrice <= 0 {
		return domain.Fill{}, false
	}
	fillPrice := h.FillPrice(sig.Action, currentPrice)

	switch sig.Type {
	case domain.OrderLimit:
		if sig.LimitPrice == nil {
			return domain.Fill{}, false
		}
		limit := *sig.LimitPrice
		if sig.Action == domain.SideBuy && fillPrice > limit {
			slog.Debug("backtest: limit buy not filled", "market", sig.MarketID, "fill_price", fillPrice, "limit", limit)
			return domain.Fill{}, false
		}
		if sig.Action == domain.SideSell && fillPrice < limit {
			slog.Debug("backtest: limit sell not filled", "market", sig.MarketID, "fill_price", fillPrice, "limit", limit)
			return domain.Fill{}, false
		}
	case domain.OrderStop:
		// el trigger se compara contra el precio sin slippage
		if sig.StopPrice == nil {
			return domain.Fill{}, false
		}
		stop := *sig.StopPrice
		if sig.Action == domain.SideBuy && currentPrice < stop {
			return domain.Fill{}, false
		}
		if sig.Action == domain.SideSell && currentPrice > stop {
			return domain.Fill{}, false
		}
	}

	quantity := sig.Size / fillPrice
	if quantity <= 0 {
		return domain.Fill{}, false
	}

	return domain.Fill{
		Order:      domain.Order{Signal: sig, Status: domain.OrderStatusFilled},
		MarketID:   sig.MarketID,
		Outcome:    sig.Outcome,
		Side:       sig.Action,
		Quantity:   quantity,
		Price:      fillPrice,
		Commission: h.fees.Fee(fillPrice, quantity, false),
		Timestamp:  at,
	}, true
}
