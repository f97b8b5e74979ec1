package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spooky-finn/coinbase-depth-bridge/config"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	"github.com/spooky-finn/coinbase-depth-bridge/provider/coinbase"
)

const productCheckTimeout = 10 * time.Second

type ConnectionManager struct {
	CoinbaseStreamAPI *coinbase.StreamAPI
	CoinbaseSyncAPI   *coinbase.SyncAPI

	logger zerolog.Logger
}

func NewConnectionManager(cfg config.Config, logger zerolog.Logger) *ConnectionManager {
	connOpts := coinbase.FeedConnectionOpts{
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
		ReadLimit:        cfg.Feed.ReadLimit,
		Logger:           logger,
	}

	return &ConnectionManager{
		CoinbaseStreamAPI: coinbase.NewStreamAPI(cfg.Feed.WebsocketURL, cfg.Feed.BatchInterval, connOpts),
		CoinbaseSyncAPI:   coinbase.NewSyncAPI(cfg.Feed.RestURL),
		logger:            logger.With().Str("component", "conn-manager").Logger(),
	}
}

func (cm *ConnectionManager) StreamAPI() domain.ProviderStreamAPI {
	return cm.CoinbaseStreamAPI
}

func (cm *ConnectionManager) SyncAPI() domain.ProviderSyncAPI {
	return cm.CoinbaseSyncAPI
}

// AvailableProducts narrows the configured products to the ones the exchange lists as online.
// When the exchange cannot be reached the configured list is used as is.
func (cm *ConnectionManager) AvailableProducts(ctx context.Context, configured []string) []string {
	ctx, cancel := context.WithTimeout(ctx, productCheckTimeout)
	defer cancel()

	products, err := cm.SyncAPI().Products(ctx, configured)
	if err != nil {
		cm.logger.Warn().Err(err).Msg("failed to fetch products, using configured list")
		return configured
	}

	var available []string
	for _, p := range products {
		if p.Status != "" && p.Status != "online" {
			cm.logger.Warn().Str("product", p.ID).Str("status", p.Status).Msg("product is not online")
			continue
		}
		available = append(available, p.ID)
	}
	if len(available) == 0 {
		cm.logger.Warn().Strs("configured", configured).Msg("none of the configured products is listed, using configured list")
		return configured
	}
	return available
}
