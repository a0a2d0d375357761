package ports

import (
	"context"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// Reporter presenta el resultado de un backtest al usuario.
type Reporter interface {
	// Report muestra resumen, métricas y últimos trades.
	// En la implementación de consola, imprime tablas formateadas.
	Report(ctx context.Context, run domain.RunRecord) error
}
