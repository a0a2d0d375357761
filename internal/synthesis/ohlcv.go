// Package synthesis construye series OHLCV y orderbooks sintéticos a partir
// de precios y trades históricos.
package synthesis

import (
	"fmt"
	"slices"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// defaultSourceSeconds es el intervalo asumido cuando no se puede inferir.
const defaultSourceSeconds = 60

// maxInferGaps es el número de gaps usados para inferir el intervalo de origen.
const maxInferGaps = 10

// ComputeOHLCV agrupa puntos de precio en barras del intervalo dado.
// Open y Close son el primer y último punto del bucket en el orden de entrada;
// Volume es el número de puntos. Las barras salen ordenadas por bucket.
func ComputeOHLCV(points []domain.PricePoint, interval domain.Interval) ([]domain.Bar, error) {
	secs := interval.Seconds()
	if secs == 0 {
		return nil, fmt.Errorf("synthesis.ComputeOHLCV: %w: %q", domain.ErrUnknownInterval, interval)
	}
	if len(points) == 0 {
		return []domain.Bar{}, nil
	}

	buckets := make(map[int64]*domain.Bar)
	keys := make([]int64, 0)
	for _, p := range points {
		key := bucketStart(p.Timestamp.Unix(), secs)
		bar, ok := buckets[key]
		if !ok {
			buckets[key] = &domain.Bar{
				Timestamp: time.Unix(key, 0).UTC(),
				Open:      p.Price,
				High:      p.Price,
				Low:       p.Price,
				Close:     p.Price,
				Volume:    1,
			}
			keys = append(keys, key)
			continue
		}
		bar.High = max(bar.High, p.Price)
		bar.Low = min(bar.Low, p.Price)
		bar.Close = p.Price
		bar.Volume++
	}

	slices.Sort(keys)
	bars := make([]domain.Bar, 0, len(keys))
	for _, k := range keys {
		bars = append(bars, *buckets[k])
	}
	return bars, nil
}

// ResampleBars agrega barras a un intervalo más grueso.
// El intervalo de origen se infiere como la mediana de los primeros gaps.
func ResampleBars(bars []domain.Bar, target domain.Interval) ([]domain.Bar, error) {
	secs := target.Seconds()
	if secs == 0 {
		return nil, fmt.Errorf("synthesis.ResampleBars: %w: %q", domain.ErrUnknownInterval, target)
	}
	if len(bars) == 0 {
		return []domain.Bar{}, nil
	}

	sorted := slices.Clone(bars)
	slices.SortStableFunc(sorted, func(a, b domain.Bar) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	source := InferIntervalSeconds(sorted)
	if secs < source {
		return nil, fmt.Errorf("synthesis.ResampleBars: %w: source %ds, target %s", domain.ErrFinerResample, source, target)
	}

	out := make([]domain.Bar, 0)
	for _, b := range sorted {
		key := bucketStart(b.Timestamp.Unix(), secs)
		if n := len(out); n > 0 && out[n-1].Timestamp.Unix() == key {
			last := &out[n-1]
			last.High = max(last.High, b.High)
			last.Low = min(last.Low, b.Low)
			last.Close = b.Close
			last.Volume += b.Volume
			continue
		}
		out = append(out, domain.Bar{
			Timestamp: time.Unix(key, 0).UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return out, nil
}

// InferIntervalSeconds devuelve la mediana de los primeros gaps entre barras
// ordenadas, o 60 si hay menos de dos barras o la mediana es 0.
func InferIntervalSeconds(bars []domain.Bar) int64 {
	if len(bars) < 2 {
		return defaultSourceSeconds
	}
	gaps := make([]float64, 0, maxInferGaps)
	for i := 1; i < len(bars) && len(gaps) < maxInferGaps; i++ {
		gaps = append(gaps, bars[i].Timestamp.Sub(bars[i-1].Timestamp).Seconds())
	}
	median, err := stats.Median(gaps)
	if err != nil || median <= 0 {
		return defaultSourceSeconds
	}
	return int64(median)
}

// bucketStart alinea t (unix) al inicio de su bucket, también para t negativos.
func bucketStart(t, secs int64) int64 {
	k := t / secs
	if t%secs < 0 {
		k--
	}
	return k * secs
}
