package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
)

const gammaMarketsPath = "/markets"

// FetchMarket obtiene la metadata de un mercado desde Gamma.
// Acepta el id numérico de Gamma o un condition id (prefijo 0x).
func (c *Client) FetchMarket(ctx context.Context, marketID string) (domain.Market, error) {
	q := url.Values{}
	if strings.HasPrefix(marketID, "0x") {
		q.Set("condition_ids", marketID)
	} else {
		q.Set("id", marketID)
	}

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"?"+q.Encode(), &resp); err != nil {
		return domain.Market{}, fmt.Errorf("gamma.FetchMarket: %w", err)
	}
	if len(resp) == 0 {
		return domain.Market{}, fmt.Errorf("gamma.FetchMarket: %w: market %s", domain.ErrNoData, marketID)
	}

	m, err := mapGammaMarket(resp[0])
	if err != nil {
		return domain.Market{}, fmt.Errorf("gamma.FetchMarket: %s: %w", marketID, err)
	}
	return m, nil
}
