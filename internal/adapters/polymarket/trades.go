package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

const (
	tradesPerPage  = 500
	tradesMaxPages = 20
)

// FetchTrades obtiene los trades de un token en [start, end] usando la Data API pública.
// La API devuelve los más recientes primero; se pagina hasta pasar start.
// El resultado sale ordenado del más antiguo al más reciente.
func (c *Client) FetchTrades(ctx context.Context, tokenID string, start, end time.Time) ([]domain.Trade, error) {
	var all []domain.Trade

	for page := 0; page < tradesMaxPages; page++ {
		q := url.Values{}
		q.Set("asset", tokenID)
		q.Set("limit", strconv.Itoa(tradesPerPage))
		q.Set("offset", strconv.Itoa(page*tradesPerPage))

		var resp []rawDataTrade
		if err := c.get(ctx, c.dataLimiter, c.dataBase+"/trades?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("data-api.FetchTrades: %w", err)
		}
		if len(resp) == 0 {
			break
		}

		reachedStart := false
		for _, rt := range resp {
			tr := mapTrade(rt, tokenID)
			if tr.Timestamp.Before(start) {
				reachedStart = true
				continue
			}
			if tr.Timestamp.After(end) {
				continue
			}
			all = append(all, tr)
		}

		slog.Debug("polymarket: trades page fetched",
			"token", shortID(tokenID),
			"page", page,
			"count", len(resp),
			"kept", len(all),
		)

		if reachedStart || len(resp) < tradesPerPage {
			break
		}
	}

	slices.SortStableFunc(all, func(a, b domain.Trade) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return all, nil
}

func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	// unix en segundos o milisegundos
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
