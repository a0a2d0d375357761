package domain

import (
	"fmt"
	"strings"
	"time"
)

// Outcome es uno de los dos lados de un mercado binario.
// Los precios de YES y NO son probabilidades complementarias (suman 1.0).
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Complement devuelve el outcome opuesto.
func (o Outcome) Complement() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// ParseOutcome interpreta una etiqueta de outcome sin distinguir mayúsculas.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return OutcomeYes, nil
	case "no":
		return OutcomeNo, nil
	}
	return "", fmt.Errorf("%w: outcome %q", ErrInvalidInput, s)
}

// Side es la dirección de una orden.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType controla cuándo una señal puede llenarse.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
	OrderStop   OrderType = "STOP"
)

// SellAll es el tamaño sentinel de una venta que cierra la posición completa.
const SellAll = -1.0

// AutoSize marca una señal cuyo tamaño lo decide el risk manager.
const AutoSize = 0.0

// Signal es la intención de trade de una estrategia. Size está en USDC.
type Signal struct {
	MarketID   string
	Outcome    Outcome
	Action     Side
	Size       float64
	Type       OrderType
	LimitPrice *float64
	StopPrice  *float64
}

// NewMarketSignal crea una señal a mercado.
func NewMarketSignal(marketID string, outcome Outcome, action Side, size float64) Signal {
	return Signal{
		MarketID: marketID,
		Outcome:  outcome,
		Action:   action,
		Size:     size,
		Type:     OrderMarket,
	}
}

// NewLimitSignal crea una señal limitada a limitPrice.
func NewLimitSignal(marketID string, outcome Outcome, action Side, size, limitPrice float64) Signal {
	s := NewMarketSignal(marketID, outcome, action, size)
	s.Type = OrderLimit
	s.LimitPrice = &limitPrice
	return s
}

// NewStopSignal crea una señal que se activa cuando el precio cruza stopPrice.
func NewStopSignal(marketID string, outcome Outcome, action Side, size, stopPrice float64) Signal {
	s := NewMarketSignal(marketID, outcome, action, size)
	s.Type = OrderStop
	s.StopPrice = &stopPrice
	return s
}

// WithSize devuelve una copia de la señal con otro tamaño.
// Los punteros de límite/stop se copian por valor para no compartir estado.
func (s Signal) WithSize(size float64) Signal {
	out := s
	out.Size = size
	if s.LimitPrice != nil {
		v := *s.LimitPrice
		out.LimitPrice = &v
	}
	if s.StopPrice != nil {
		v := *s.StopPrice
		out.StopPrice = &v
	}
	return out
}

// IsSellAll indica si la señal pide cerrar la posición completa.
func (s Signal) IsSellAll() bool {
	return s.Action == SideSell && s.Size == SellAll
}

// PositionKey devuelve la clave market:outcome de la posición afectada.
func (s Signal) PositionKey() string {
	return PositionKey(s.MarketID, s.Outcome)
}

// Validate comprueba que la señal está bien formada.
func (s Signal) Validate() error {
	if s.MarketID == "" {
		return fmt.Errorf("%w: signal without market id", ErrInvalidInput)
	}
	if s.Outcome != OutcomeYes && s.Outcome != OutcomeNo {
		return fmt.Errorf("%w: signal outcome %q", ErrInvalidInput, s.Outcome)
	}
	if s.Action != SideBuy && s.Action != SideSell {
		return fmt.Errorf("%w: signal action %q", ErrInvalidInput, s.Action)
	}
	if s.Size < 0 && !s.IsSellAll() {
		return fmt.Errorf("%w: negative signal size %.4f", ErrInvalidInput, s.Size)
	}
	switch s.Type {
	case OrderMarket, "":
	case OrderLimit:
		if s.LimitPrice == nil {
			return fmt.Errorf("%w: limit signal without limit price", ErrInvalidInput)
		}
	case OrderStop:
		if s.StopPrice == nil {
			return fmt.Errorf("%w: stop signal without stop price", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: order type %q", ErrInvalidInput, s.Type)
	}
	return nil
}

// OrderStatus es el estado de una orden durante su ejecución.
type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusUnfilled OrderStatus = "UNFILLED"
)

// Order envuelve una señal mientras se ejecuta. Es efímera.
type Order struct {
	Signal Signal
	Status OrderStatus
}

// Fill es el resultado realizado de ejecutar una orden. Inmutable.
type Fill struct {
	Order      Order
	MarketID   string
	Outcome    Outcome
	Side       Side
	Quantity   float64 // tokens
	Price      float64
	Commission float64 // USDC
	Timestamp  time.Time
}

// Notional devuelve quantity × price.
func (f Fill) Notional() float64 {
	return f.Quantity * f.Price
}
