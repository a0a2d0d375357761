package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// TradeProvider obtiene trades históricos de un token.
type TradeProvider interface {
	// FetchTrades devuelve los trades con timestamp en [start, end], más antiguos primero.
	FetchTrades(ctx context.Context, tokenID string, start, end time.Time) ([]domain.Trade, error)
}
