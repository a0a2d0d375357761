package backtest

import (
	"slices"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// dustQuantity is the remaining token quantity treated as a fully closed position.
const dustQuantity = 1e-9

// Portfolio tracks cash, open positions, closed trades and the equity curve.
// Cash never goes negative and positions exist only while quantity > 0.
type Portfolio struct {
	initialCash float64
	cash        float64
	feesPaid    float64
	positions   map[string]*domain.Position
	trades      []domain.ClosedTrade
	equity      []domain.EquityPoint
}

// NewPortfolio creates a portfolio funded with initialCash.
func NewPortfolio(initialCash float64) *Portfolio {
	return &Portfolio{
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]*domain.Position),
	}
}

func (p *Portfolio) InitialCash() float64 { return p.initialCash }
func (p *Portfolio) Cash() float64        { return p.cash }
func (p *Portfolio) FeesPaid() float64    { return p.feesPaid }

// Position returns a copy of the open position in market:outcome.
func (p *Portfolio) Position(marketID string, outcome domain.Outcome) (domain.Position, bool) {
	pos, ok := p.positions[domain.PositionKey(marketID, outcome)]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// HasOpenPositions reports whether any position is open.
func (p *Portfolio) HasOpenPositions() bool { return len(p.positions) > 0 }

// Positions returns a copy of all open positions keyed by market:outcome.
func (p *Portfolio) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(p.positions))
	for k, pos := range p.positions {
		out[k] = *pos
	}
	return out
}

// ExecuteBuy spends dollarAmount at price. If dollarAmount exceeds cash the
// buy is scaled down to all remaining cash. Repeated buys average the entry price.
func (p *Portfolio) ExecuteBuy(marketID string, outcome domain.Outcome, dollarAmount, price float64, at time.Time) (domain.Fill, bool) {
	if dollarAmount <= 0 || price <= 0 {
		return domain.Fill{}, false
	}
	cost := min(dollarAmount, p.cash)
	quantity := cost / price
	if quantity <= 0 {
		return domain.Fill{}, false
	}

	key := domain.PositionKey(marketID, outcome)
	pos, ok := p.positions[key]
	if !ok {
		pos = &domain.Position{MarketID: marketID, Outcome: outcome, EntryTime: at}
		p.positions[key] = pos
	}
	pos.AddFill(quantity, price)

	p.cash = max(0, p.cash-cost)

	return domain.Fill{
		Order:     domain.Order{Status: domain.OrderStatusFilled},
		MarketID:  marketID,
		Outcome:   outcome,
		Side:      domain.SideBuy,
		Quantity:  quantity,
		Price:     price,
		Timestamp: at,
	}, true
}

// ExecuteSell sells dollarAmount/price tokens capped at the held quantity.
// domain.SellAll sells the whole position. Each sell appends a ClosedTrade.
func (p *Portfolio) ExecuteSell(marketID string, outcome domain.Outcome, dollarAmount, price float64, at time.Time) (domain.Fill, bool) {
	key := domain.PositionKey(marketID, outcome)
	pos, ok := p.positions[key]
	if !ok || price <= 0 {
		return domain.Fill{}, false
	}

	var quantity float64
	if dollarAmount == domain.SellAll {
		quantity = pos.Quantity
	} else {
		quantity = min(dollarAmount/price, pos.Quantity)
	}
	if quantity <= 0 {
		return domain.Fill{}, false
	}
	if pos.Quantity-quantity < dustQuantity {
		quantity = pos.Quantity
	}

	proceeds := quantity * price
	pnl := proceeds - quantity*pos.EntryPrice

	p.cash += proceeds
	pos.Quantity -= quantity
	pos.RealizedPnL += pnl

	p.trades = append(p.trades, domain.ClosedTrade{
		MarketID:  marketID,
		Outcome:   outcome,
		Side:      domain.SideSell,
		Quantity:  quantity,
		Price:     price,
		Entry:     pos.EntryPrice,
		PnL:       pnl,
		EntryTime: pos.EntryTime,
		ExitTime:  at,
	})

	if pos.Quantity <= 0 {
		delete(p.positions, key)
	} else {
		pos.MarkToMarket(price)
	}

	return domain.Fill{
		Order:     domain.Order{Status: domain.OrderStatusFilled},
		MarketID:  marketID,
		Outcome:   outcome,
		Side:      domain.SideSell,
		Quantity:  quantity,
		Price:     price,
		Timestamp: at,
	}, true
}

// ClosePosition sells the entire position at price.
func (p *Portfolio) ClosePosition(marketID string, outcome domain.Outcome, price float64, at time.Time) (domain.Fill, bool) {
	return p.ExecuteSell(marketID, outcome, domain.SellAll, price, at)
}

// ChargeFee deducts a commission from cash. The fee is capped at available cash.
func (p *Portfolio) ChargeFee(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	charged := min(amount, p.cash)
	p.cash -= charged
	p.feesPaid += charged
	return charged
}

// MarkToMarket updates unrealized PnL for every position with a price.
// Positions without a price keep their previous mark.
func (p *Portfolio) MarkToMarket(prices domain.Prices) {
	for _, pos := range p.positions {
		if price, ok := prices.Get(pos.MarketID, pos.Outcome); ok {
			pos.MarkToMarket(price)
		}
	}
}

// TotalEquity is cash plus cost basis plus unrealized PnL of open positions.
func (p *Portfolio) TotalEquity() float64 {
	equity := p.cash
	for _, pos := range p.positions {
		equity += pos.MarketValue()
	}
	return equity
}

// TotalUnrealizedPnL sums the unrealized PnL of open positions.
func (p *Portfolio) TotalUnrealizedPnL() float64 {
	var total float64
	for _, pos := range p.positions {
		total += pos.UnrealizedPnL
	}
	return total
}

// TotalRealizedPnL sums the PnL of every closed trade, including positions
// that no longer exist.
func (p *Portfolio) TotalRealizedPnL() float64 {
	var total float64
	for _, t := range p.trades {
		total += t.PnL
	}
	return total
}

// RecordEquity appends the current equity to the curve.
func (p *Portfolio) RecordEquity(at time.Time) {
	p.equity = append(p.equity, domain.EquityPoint{Timestamp: at, Equity: p.TotalEquity()})
}

// EquityHistory returns a copy of the equity curve.
func (p *Portfolio) EquityHistory() []domain.EquityPoint { return slices.Clone(p.equity) }

// Trades returns a copy of the closed trade log.
func (p *Portfolio) Trades() []domain.ClosedTrade { return slices.Clone(p.trades) }

// TradeStats summarises the closed trades for Kelly sizing.
func (p *Portfolio) TradeStats() TradeStats {
	var wins, losses int
	var sumWin, sumLoss float64
	for _, t := range p.trades {
		switch {
		case t.IsWin():
			wins++
			sumWin += t.PnL
		case t.IsLoss():
			losses++
			sumLoss += -t.PnL
		}
	}
	if len(p.trades) == 0 {
		return DefaultTradeStats()
	}
	stats := TradeStats{WinRate: float64(wins) / float64(len(p.trades))}
	if wins > 0 {
		stats.AvgWin = sumWin / float64(wins)
	}
	if losses > 0 {
		stats.AvgLoss = sumLoss / float64(losses)
	}
	return stats
}

// State returns a snapshot safe to hand to strategies.
func (p *Portfolio) State() domain.PortfolioState {
	return domain.PortfolioState{
		Cash:          p.cash,
		Positions:     p.Positions(),
		TotalEquity:   p.TotalEquity(),
		UnrealizedPnL: p.TotalUnrealizedPnL(),
		RealizedPnL:   p.TotalRealizedPnL(),
		FeesPaid:      p.feesPaid,
	}
}
