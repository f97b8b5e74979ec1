package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
)

const (
	CoinbaseDefaultRestEndpoint = "https://api.exchange.coinbase.com"
	DefaultCandleGranularity    = 60

	userAgent = "coinbase-depth-bridge"
)

// SyncAPI is the stateless REST side of the exchange: product list and historical candles.
type SyncAPI struct {
	endpoint string
	client   *http.Client
}

func NewSyncAPI(endpoint string) *SyncAPI {
	if endpoint == "" {
		endpoint = CoinbaseDefaultRestEndpoint
	}
	return &SyncAPI{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Products returns the exchange products whose id is in allowed. An empty allowed list returns all.
func (api *SyncAPI) Products(ctx context.Context, allowed []string) ([]domain.Product, error) {
	var products []domain.Product
	if err := api.get(ctx, "/products", &products); err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}

	if len(allowed) == 0 {
		return products, nil
	}

	keep := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		keep[id] = struct{}{}
	}

	result := make([]domain.Product, 0, len(allowed))
	for _, p := range products {
		if _, ok := keep[p.ID]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

// Candles returns rows of [time, low, high, open, close, volume] reduced to time, low and high.
func (api *SyncAPI) Candles(ctx context.Context, symbol *domain.MarketSymbol, granularity int) ([]domain.Candle, error) {
	if granularity <= 0 {
		granularity = DefaultCandleGranularity
	}

	var rows [][]decimal.Decimal
	path := fmt.Sprintf("/products/%s/candles?granularity=%s", symbol.ProductID(), strconv.Itoa(granularity))
	if err := api.get(ctx, path, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol.ProductID(), err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			return nil, &domain.ParseError{Field: "candle", Value: fmt.Sprint(row), Err: fmt.Errorf("expected at least 3 columns")}
		}
		candles = append(candles, domain.Candle{
			Timestamp: row[0].IntPart(),
			Low:       row[1],
			High:      row[2],
		})
	}
	return candles, nil
}

func (api *SyncAPI) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.endpoint+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := api.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response body: %w, response: %s", err, string(body))
	}
	return nil
}
