package domain

import "time"

// Trade representa un trade histórico de la API (un print del mercado).
type Trade struct {
	ID        string
	TokenID   string
	Side      string // "BUY" o "SELL"
	Price     float64
	Size      float64
	Timestamp time.Time
}

// ClosedTrade es un round trip cerrado (total o parcialmente) en el portfolio.
// Solo las ventas generan ClosedTrade.
type ClosedTrade struct {
	MarketID  string
	Outcome   Outcome
	Side      Side
	Quantity  float64
	Price     float64 // precio de salida
	Entry     float64 // precio medio de entrada
	PnL       float64
	EntryTime time.Time
	ExitTime  time.Time
}

// IsWin devuelve true si el trade cerró con ganancia.
func (t ClosedTrade) IsWin() bool { return t.PnL > 0 }

// IsLoss devuelve true si el trade cerró con pérdida. PnL == 0 no cuenta en ninguno.
func (t ClosedTrade) IsLoss() bool { return t.PnL < 0 }
