package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
)

const (
	DefaultCandleGranularity = 60
	defaultCandleTTL         = time.Minute
)

type cachedCandles struct {
	candles   []domain.Candle
	fetchedAt time.Time
}

// PriceChartUseCase serves historical candles for the price chart.
// Results are cached per product for one granularity period.
type PriceChartUseCase struct {
	syncAPI domain.ProviderSyncAPI
	ttl     time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	cache       sync.Map
	waitingRoom sync.Map
}

func NewPriceChartUseCase(syncAPI domain.ProviderSyncAPI, logger zerolog.Logger) *PriceChartUseCase {
	return &PriceChartUseCase{
		syncAPI: syncAPI,
		ttl:     defaultCandleTTL,
		logger:  logger.With().Str("component", "price-chart").Logger(),
		now:     time.Now,
	}
}

// Candles returns the cached candles while they are fresh. While a refresh for the
// same product is in flight, concurrent callers get the previous copy if there is one.
func (p *PriceChartUseCase) Candles(ctx context.Context, symbol *domain.MarketSymbol) ([]domain.Candle, error) {
	key := symbol.ProductID()

	cached, ok := p.cache.Load(key)
	if ok && p.now().Sub(cached.(cachedCandles).fetchedAt) < p.ttl {
		return cached.(cachedCandles).candles, nil
	}

	if _, loading := p.waitingRoom.LoadOrStore(key, struct{}{}); loading {
		if ok {
			p.logger.Debug().Str("product", key).Msg("candles are refreshing, returning previous copy")
			return cached.(cachedCandles).candles, nil
		}
	} else {
		defer p.waitingRoom.Delete(key)
	}

	candles, err := p.syncAPI.Candles(ctx, symbol, DefaultCandleGranularity)
	if err != nil {
		p.logger.Error().Err(err).Str("product", key).Msg("failed to fetch candles")
		return nil, err
	}

	p.cache.Store(key, cachedCandles{candles: candles, fetchedAt: p.now()})
	return candles, nil
}

// Products returns the products the exchange lists out of allowed.
func (p *PriceChartUseCase) Products(ctx context.Context, allowed []string) ([]domain.Product, error) {
	return p.syncAPI.Products(ctx, allowed)
}
