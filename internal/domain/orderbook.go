package domain

import (
	"strconv"
	"time"
)

// OrderBook representa el libro de órdenes de un token en un instante.
// IsSynthetic es true cuando el book fue reconstruido a partir de trades históricos.
type OrderBook struct {
	TokenID     string
	Timestamp   time.Time
	Bids        []BookEntry // ordenados mayor a menor precio
	Asks        []BookEntry // ordenados menor a mayor precio
	IsSynthetic bool
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve el spread del book (ask - bid).
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// DepthWithin suma el volumen en tokens (bids + asks) a menos de maxSpread del midpoint.
func (ob OrderBook) DepthWithin(maxSpread float64) float64 {
	return ob.depth(maxSpread, func(e BookEntry) float64 { return e.Size })
}

// DepthWithinUSDC es como DepthWithin pero en USDC (size × price).
func (ob OrderBook) DepthWithinUSDC(maxSpread float64) float64 {
	return ob.depth(maxSpread, func(e BookEntry) float64 { return e.Size * e.Price })
}

func (ob OrderBook) depth(maxSpread float64, value func(BookEntry) float64) float64 {
	mid := ob.Midpoint()
	if mid == 0 {
		return 0
	}
	var total float64
	for _, b := range ob.Bids {
		if mid-b.Price <= maxSpread {
			total += value(b)
		}
	}
	for _, a := range ob.Asks {
		if a.Price-mid <= maxSpread {
			total += value(a)
		}
	}
	return total
}

// IsWellFormed comprueba las invariantes del book: bids estrictamente
// descendentes, asks estrictamente ascendentes, best bid < best ask y
// precios dentro de [0.01, 0.99].
func (ob OrderBook) IsWellFormed() bool {
	for i, b := range ob.Bids {
		if b.Price < MinPrice || b.Price > MaxPrice {
			return false
		}
		if i > 0 && b.Price >= ob.Bids[i-1].Price {
			return false
		}
	}
	for i, a := range ob.Asks {
		if a.Price < MinPrice || a.Price > MaxPrice {
			return false
		}
		if i > 0 && a.Price <= ob.Asks[i-1].Price {
			return false
		}
	}
	if len(ob.Bids) > 0 && len(ob.Asks) > 0 && ob.BestBid() >= ob.BestAsk() {
		return false
	}
	return true
}

// Límites de precio de un token de Polymarket.
const (
	MinPrice = 0.01
	MaxPrice = 0.99
)

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
