package domain

import (
	"fmt"
	"strings"
	"time"
)

// PricePoint es una observación (timestamp, precio) de un token.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// Bar es una vela OHLCV alineada al inicio de su bucket.
// Volume es el número de observaciones del bucket, no volumen en USDC.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Interval es un tamaño de bucket soportado.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval6h  Interval = "6h"
	Interval1d  Interval = "1d"
)

var intervalSeconds = map[Interval]int64{
	Interval1m:  60,
	Interval5m:  300,
	Interval15m: 900,
	Interval1h:  3600,
	Interval6h:  21600,
	Interval1d:  86400,
}

// ParseInterval valida una etiqueta de intervalo.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := intervalSeconds[iv]; !ok {
		return "", fmt.Errorf("%w: %q (valid: 1m, 5m, 15m, 1h, 6h, 1d)", ErrUnknownInterval, s)
	}
	return iv, nil
}

// Seconds devuelve la duración del intervalo en segundos, 0 si es desconocido.
func (i Interval) Seconds() int64 {
	return intervalSeconds[i]
}

// Duration devuelve la duración del intervalo.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Seconds()) * time.Second
}

// Valid devuelve true si el intervalo es conocido.
func (i Interval) Valid() bool {
	_, ok := intervalSeconds[i]
	return ok
}
