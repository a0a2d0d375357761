package storage

// parquet.go — cache de barras OHLCV en disco.
//
// Un fichero por clave de barras en <dir>/prices/<key>.parquet. Cada escritura
// mezcla con lo existente deduplicando por timestamp (gana la barra nueva).

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/alejandrodnm/pmbacktest/internal/ports"
)

const maxKeyLen = 64

var _ ports.BarCache = (*ParquetBarCache)(nil)

// barRecord es el schema Parquet de una barra.
type barRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ParquetBarCache implementa ports.BarCache con ficheros Parquet.
type ParquetBarCache struct {
	dir string
	mu  sync.Mutex
}

// NewParquetBarCache crea la cache con raíz en dir.
func NewParquetBarCache(dir string) *ParquetBarCache {
	return &ParquetBarCache{dir: dir}
}

// LoadBars devuelve las barras de la clave con timestamp en [start, end].
// Una clave sin fichero devuelve un slice vacío.
func (c *ParquetBarCache) LoadBars(_ context.Context, key string, start, end time.Time) ([]domain.Bar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := readParquetFile[barRecord](c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LoadBars: %s: %w", key, err)
	}

	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		ts := fromMillis(r.Timestamp)
		if ts.Before(start) || ts.After(end) {
			continue
		}
		bars = append(bars, domain.Bar{
			Timestamp: ts,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return bars, nil
}

// SaveBars mezcla las barras con las existentes y reescribe el fichero.
func (c *ParquetBarCache) SaveBars(_ context.Context, key string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := make([]barRecord, len(bars))
	for i, b := range bars {
		incoming[i] = barRecord{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	path := c.path(key)
	existing, err := readParquetFile[barRecord](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage.SaveBars: read %s: %w", key, err)
	}

	if err := writeParquetFile(path, mergeBarRecords(existing, incoming)); err != nil {
		return fmt.Errorf("storage.SaveBars: write %s: %w", key, err)
	}
	return nil
}

// HasBars devuelve true si existe fichero para la clave.
func (c *ParquetBarCache) HasBars(key string) bool {
	_, err := os.Stat(c.path(key))
	return err == nil
}

// DeleteBars borra el fichero de la clave. Borrar una clave inexistente no es error.
func (c *ParquetBarCache) DeleteBars(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage.DeleteBars: %s: %w", key, err)
	}
	return nil
}

func (c *ParquetBarCache) path(key string) string {
	return filepath.Join(c.dir, "prices", sanitizeKey(key)+".parquet")
}

// sanitizeKey deja solo caracteres seguros para un nombre de fichero.
func sanitizeKey(key string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, key)
	if len(clean) > maxKeyLen {
		clean = clean[:maxKeyLen]
	}
	return clean
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplica por timestamp, prefiriendo los registros nuevos.
func mergeBarRecords(existing, incoming []barRecord) []barRecord {
	seen := make(map[int64]barRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]barRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
