package ports

import "github.com/alejandrodnm/pmbacktest/internal/domain"

// DataFeed entrega los puntos de datos de un backtest en orden cronológico.
type DataFeed interface {
	// Next devuelve el siguiente punto; ok=false cuando se agota.
	Next() (domain.DataPoint, bool)
	Len() int
	Reset()
}
