package polymarket

// clob.go — adaptador del CLOB de Polymarket: historial de precios y orderbooks.
//
// FetchOrderBooks lanza un goroutine por batch; el rate limiter de doWithRetry
// marca el ritmo, así que no hace falta semáforo explícito.

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

const (
	pricesHistoryPath = "/prices-history"
	booksPath         = "/books"
	batchSize         = 20 // máx token_ids por request a /books
)

// FetchPriceHistory devuelve la serie de precios de un token entre start y end.
// fidelity es la resolución en minutos que se pide al CLOB.
func (c *Client) FetchPriceHistory(ctx context.Context, tokenID string, start, end time.Time, fidelity int) ([]domain.PricePoint, error) {
	q := url.Values{}
	q.Set("market", tokenID)
	q.Set("startTs", strconv.FormatInt(start.Unix(), 10))
	q.Set("endTs", strconv.FormatInt(end.Unix(), 10))
	if fidelity > 0 {
		q.Set("fidelity", strconv.Itoa(fidelity))
	}

	var resp pricesHistoryResponse
	if err := c.get(ctx, c.clobLimiter, c.clobBase+pricesHistoryPath+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("clob.FetchPriceHistory: %w", err)
	}

	points := mapPriceHistory(resp.History, start, end)
	slog.Debug("polymarket: price history fetched",
		"token", shortID(tokenID),
		"points", len(points),
		"fidelity", fidelity,
	)
	return points, nil
}

// FetchOrderBooks obtiene los orderbooks para los token_ids dados usando el endpoint batch.
// Los batches (máx batchSize tokens cada uno) se piden concurrentemente.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitBatches(tokenIDs, batchSize)

	type batchResult struct {
		books map[string]domain.OrderBook
		err   error
		idx   int
	}

	resultCh := make(chan batchResult, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			books, err := c.fetchBooksBatch(ctx, batch)
			resultCh <- batchResult{books: books, err: err, idx: i}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	var firstErr error
	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("clob.FetchOrderBooks batch %d: %w", r.idx, r.err)
			}
			continue
		}
		for k, v := range r.books {
			result[k] = v
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	slog.Debug("polymarket: order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

// splitBatches divide ids en slices de tamaño máximo size.
func splitBatches(ids []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		batches = append(batches, ids[i:min(i+size, len(ids))])
	}
	return batches
}

// fetchBooksBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.post(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}
	return mapOrderBooks(resp), nil
}

func shortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10] + "..."
}
