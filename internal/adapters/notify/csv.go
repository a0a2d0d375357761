package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

type equityRow struct {
	Timestamp string  `csv:"timestamp"`
	Equity    float64 `csv:"equity"`
}

type tradeRow struct {
	MarketID  string  `csv:"market_id"`
	Outcome   string  `csv:"outcome"`
	Side      string  `csv:"side"`
	Quantity  float64 `csv:"quantity"`
	Entry     float64 `csv:"entry_price"`
	Exit      float64 `csv:"exit_price"`
	PnL       float64 `csv:"pnl"`
	EntryTime string  `csv:"entry_time"`
	ExitTime  string  `csv:"exit_time"`
}

// WriteEquityCSV exporta la curva de equity a path.
func WriteEquityCSV(path string, curve []domain.EquityPoint) error {
	rows := make([]equityRow, len(curve))
	for i, p := range curve {
		rows[i] = equityRow{Timestamp: p.Timestamp.UTC().Format(time.RFC3339), Equity: p.Equity}
	}
	return writeCSV(path, &rows)
}

// WriteTradesCSV exporta los trades cerrados a path.
func WriteTradesCSV(path string, trades []domain.ClosedTrade) error {
	rows := make([]tradeRow, len(trades))
	for i, t := range trades {
		rows[i] = tradeRow{
			MarketID:  t.MarketID,
			Outcome:   string(t.Outcome),
			Side:      string(t.Side),
			Quantity:  t.Quantity,
			Entry:     t.Entry,
			Exit:      t.Price,
			PnL:       t.PnL,
			EntryTime: t.EntryTime.UTC().Format(time.RFC3339),
			ExitTime:  t.ExitTime.UTC().Format(time.RFC3339),
		}
	}
	return writeCSV(path, &rows)
}

func writeCSV(path string, rows any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("notify.writeCSV: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("notify.writeCSV: create %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.Marshal(rows, f); err != nil {
		return fmt.Errorf("notify.writeCSV: marshal %s: %w", path, err)
	}
	return f.Close()
}
