package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

var t0 = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../../testdata/fixtures/" + name)
	require.NoError(t, err)
	return data
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.URL, srv.URL)
}

func TestFetchMarket_ByID(t *testing.T) {
	body := loadFixture(t, "gamma_market.json")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "512345", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	m, err := c.FetchMarket(context.Background(), "512345")
	require.NoError(t, err)

	assert.Equal(t, "512345", m.ID)
	assert.Equal(t, "0xabc123", m.ConditionID)
	assert.Equal(t, time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC), m.EndDate)
	assert.InDelta(t, 125000.5, m.Volume24h, 1e-9)
	require.NoError(t, m.ValidateBinary())

	yes, ok := m.YesToken()
	require.True(t, ok)
	assert.Equal(t, "111", yes.TokenID)
	assert.InDelta(t, 0.42, yes.Price, 1e-9)

	no, ok := m.TokenFor(domain.OutcomeNo)
	require.True(t, ok)
	assert.Equal(t, "222", no.TokenID)
}

func TestFetchMarket_ByConditionID(t *testing.T) {
	body := loadFixture(t, "gamma_market.json")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xabc123", r.URL.Query().Get("condition_ids"))
		assert.Empty(t, r.URL.Query().Get("id"))
		w.Write(body)
	})

	m, err := c.FetchMarket(context.Background(), "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, "Will the Fed cut rates in June?", m.Question)
}

func TestFetchMarket_EmptyIsNoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})

	_, err := c.FetchMarket(context.Background(), "404404")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestFetchPriceHistory_FiltersAndSorts(t *testing.T) {
	body := loadFixture(t, "prices_history.json")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/prices-history", r.URL.Path)
		assert.Equal(t, "111", q.Get("market"))
		assert.Equal(t, "1", q.Get("fidelity"))
		assert.Equal(t, "1743465600", q.Get("startTs"))
		w.Write(body)
	})

	points, err := c.FetchPriceHistory(context.Background(), "111", t0, t0.Add(30*time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, t0, points[0].Timestamp)
	assert.InDelta(t, 0.42, points[0].Price, 1e-9)
	assert.InDelta(t, 0.425, points[1].Price, 1e-9)
	assert.InDelta(t, 0.43, points[2].Price, 1e-9)
}

func TestFetchOrderBooks_Batch(t *testing.T) {
	body := loadFixture(t, "books.json")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/books", r.URL.Path)

		var req []orderBookRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []orderBookRequest{{TokenID: "111"}}, req)
		w.Write(body)
	})

	books, err := c.FetchOrderBooks(context.Background(), []string{"111"})
	require.NoError(t, err)

	ob, ok := books["111"]
	require.True(t, ok)
	assert.False(t, ob.IsSynthetic)
	assert.Equal(t, t0, ob.Timestamp)

	require.Len(t, ob.Bids, 2, "niveles con precio 0 se descartan")
	assert.Equal(t, 0.41, ob.Bids[0].Price)
	assert.Equal(t, 0.40, ob.Bids[1].Price)
	require.Len(t, ob.Asks, 2)
	assert.Equal(t, 0.43, ob.Asks[0].Price)
	assert.True(t, ob.IsWellFormed())
}

func TestFetchOrderBooks_Empty(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", "")
	books, err := c.FetchOrderBooks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestFetchTrades_WindowAndOrder(t *testing.T) {
	body := loadFixture(t, "data_trades.json")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		assert.Equal(t, "111", r.URL.Query().Get("asset"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		w.Write(body)
	})

	trades, err := c.FetchTrades(context.Background(), "111", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, "t1", trades[0].ID)
	assert.Equal(t, "t2", trades[1].ID)
	assert.Equal(t, "SELL", trades[1].Side)
	assert.True(t, trades[0].Timestamp.Before(trades[1].Timestamp))
}

func TestClient_NotFoundIsNoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.FetchPriceHistory(context.Background(), "111", t0, t0.Add(time.Hour), 60)
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"history":[]}`))
	})

	points, err := c.FetchPriceHistory(context.Background(), "111", t0, t0.Add(time.Hour), 60)
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad market", http.StatusBadRequest)
	})

	_, err := c.FetchPriceHistory(context.Background(), "x", t0, t0.Add(time.Hour), 60)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSplitBatches(t *testing.T) {
	ids := make([]string, 45)
	for i := range ids {
		ids[i] = string(rune('a' + i%26))
	}
	batches := splitBatches(ids, 20)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 20)
	assert.Len(t, batches[2], 5)
}

func TestParseTradeTimestamp(t *testing.T) {
	assert.Equal(t, t0, parseTradeTimestamp(json.Number("1743465600")))
	assert.Equal(t, t0, parseTradeTimestamp(json.Number("1743465600000")))
	assert.True(t, parseTradeTimestamp(json.Number("garbage")).IsZero())
}
