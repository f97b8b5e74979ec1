package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string `json:"id"`
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	Status        string `json:"status"`
}

// Candle is the part of a historical candle the price chart uses.
type Candle struct {
	Timestamp int64           `json:"timestamp"`
	Low       decimal.Decimal `json:"low"`
	High      decimal.Decimal `json:"high"`
}

type ProviderStreamAPI interface {
	TickerStream(ctx context.Context, symbol *MarketSymbol) (*Subscription[TickerSnapshot], error)
	DepthDiffStream(ctx context.Context, symbol *MarketSymbol) (*Subscription[[]PriceChange], error)
}

type ProviderSyncAPI interface {
	Products(ctx context.Context, allowed []string) ([]Product, error)
	Candles(ctx context.Context, symbol *MarketSymbol, granularity int) ([]Candle, error)
}
