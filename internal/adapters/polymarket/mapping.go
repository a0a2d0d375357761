package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

// mapGammaMarket convierte un gammaMarket DTO a domain.Market.
func mapGammaMarket(gm gammaMarket) (domain.Market, error) {
	m := domain.Market{
		ID:          gm.ID,
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		Active:      gm.Active,
		Closed:      gm.Closed,
	}

	if v, err := gm.Volume24h.Float64(); err == nil {
		m.Volume24h = v
	}

	if gm.EndDateISO != "" {
		// Polymarket usa varios formatos; intentamos los más comunes
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
			if t, err := time.Parse(layout, gm.EndDateISO); err == nil {
				m.EndDate = t.UTC()
				break
			}
		}
	}

	outcomes, err := decodeStringArray(gm.Outcomes)
	if err != nil {
		return domain.Market{}, fmt.Errorf("outcomes: %w", err)
	}
	tokenIDs, err := decodeStringArray(gm.ClobTokenIDs)
	if err != nil {
		return domain.Market{}, fmt.Errorf("clobTokenIds: %w", err)
	}
	prices, _ := decodeStringArray(gm.OutcomePrices)

	for i, outcome := range outcomes {
		tok := domain.Token{Outcome: outcome}
		if i < len(tokenIDs) {
			tok.TokenID = tokenIDs[i]
		}
		if i < len(prices) {
			tok.Price = domain.ParsePrice(prices[i])
		}
		m.Tokens = append(m.Tokens, tok)
	}
	return m, nil
}

// decodeStringArray decodifica un array JSON embebido en un string ("[\"Yes\",\"No\"]").
func decodeStringArray(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mapPriceHistory convierte los puntos raw, descarta los que caen fuera de
// [start, end] y los ordena por tiempo.
func mapPriceHistory(raw []pricePointRaw, start, end time.Time) []domain.PricePoint {
	points := make([]domain.PricePoint, 0, len(raw))
	for _, r := range raw {
		ts := time.Unix(r.T, 0).UTC()
		if ts.Before(start) || ts.After(end) {
			continue
		}
		points = append(points, domain.PricePoint{Timestamp: ts, Price: r.P})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points
}

// mapTrade convierte un trade de la Data API.
func mapTrade(rt rawDataTrade, tokenID string) domain.Trade {
	price, _ := rt.Price.Float64()
	size, _ := rt.Size.Float64()
	id := rt.ID
	if id == "" {
		id = rt.TransactionHash
	}
	asset := rt.Asset
	if asset == "" {
		asset = tokenID
	}
	return domain.Trade{
		ID:        id,
		TokenID:   asset,
		Side:      rt.Side,
		Price:     price,
		Size:      size,
		Timestamp: parseTradeTimestamp(rt.Timestamp),
	}
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		ob := domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
		if r.Timestamp != "" {
			ob.Timestamp = parseTradeTimestamp(r.Timestamp)
		}
		result[r.AssetID] = ob
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})
	return entries
}
