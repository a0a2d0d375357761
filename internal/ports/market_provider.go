package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// MarketProvider obtiene la metadata de un mercado.
type MarketProvider interface {
	// FetchMarket acepta el id de Gamma o el condition id (0x...).
	FetchMarket(ctx context.Context, marketID string) (domain.Market, error)
}

// PriceHistoryProvider obtiene la serie histórica de precios de un token.
type PriceHistoryProvider interface {
	// FetchPriceHistory devuelve los puntos en [start, end] ordenados por tiempo.
	// fidelity es la resolución pedida en minutos.
	FetchPriceHistory(ctx context.Context, tokenID string, start, end time.Time, fidelity int) ([]domain.PricePoint, error)
}
