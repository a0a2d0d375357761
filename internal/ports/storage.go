package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// RunStore persiste los resultados de cada backtest.
type RunStore interface {
	// SaveRun persiste el resumen, la curva de equity y los trades de un run.
	SaveRun(ctx context.Context, run domain.RunRecord) error

	// ListRuns devuelve los últimos runs (sin curva ni trades), más recientes primero.
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// LoadEquity devuelve la curva de equity de un run.
	LoadEquity(ctx context.Context, runID string) ([]domain.EquityPoint, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// FetchInfo registra qué rango de datos se ha descargado para un token.
type FetchInfo struct {
	TokenID   string
	Start     time.Time
	End       time.Time
	UpdatedAt time.Time
}

// MetadataCache guarda metadata de mercados y rangos descargados.
type MetadataCache interface {
	// LoadMarket devuelve el mercado cacheado; ok=false si no existe.
	LoadMarket(ctx context.Context, marketID string) (domain.Market, bool, error)
	SaveMarket(ctx context.Context, market domain.Market) error
	SaveFetchInfo(ctx context.Context, info FetchInfo) error
	LoadFetchInfo(ctx context.Context, tokenID string) (FetchInfo, bool, error)
}

// BarCache guarda barras OHLCV por token.
type BarCache interface {
	// LoadBars devuelve las barras del token con timestamp en [start, end].
	LoadBars(ctx context.Context, tokenID string, start, end time.Time) ([]domain.Bar, error)
	// SaveBars mezcla las barras con las existentes, deduplicando por timestamp.
	SaveBars(ctx context.Context, tokenID string, bars []domain.Bar) error
	HasBars(tokenID string) bool
	DeleteBars(tokenID string) error
}
