package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spooky-finn/coinbase-depth-bridge/config"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	"github.com/spooky-finn/coinbase-depth-bridge/infrastructure/logger"
	promclient "github.com/spooky-finn/coinbase-depth-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/coinbase-depth-bridge/provider"
	"github.com/spooky-finn/coinbase-depth-bridge/rpc"
	"github.com/spooky-finn/coinbase-depth-bridge/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	l := logger.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := promclient.NewRegistry()
	go func() {
		if err := promclient.StartPromClientServer(cfg.Server.MetricsAddr, reg, l); err != nil {
			l.Error().Err(err).Msg("prometheus server failed")
		}
	}()

	connManager := provider.NewConnectionManager(cfg, l)
	products := connManager.AvailableProducts(ctx, cfg.Feed.Products)
	l.Info().Strs("products", products).Msg("available products")

	params, err := domain.ParseViewParams(cfg.View.Aggregation, cfg.View.Depth)
	if err != nil {
		l.Fatal().Err(err).Msg("invalid view config")
	}

	marketView := usecase.NewMarketViewUseCase(connManager.StreamAPI(), usecase.MarketViewOpts{
		Params: params,
		Sink:   newLogViewSink(logger.Component(l, "view")),
		Logger: l,
	})
	priceChart := usecase.NewPriceChartUseCase(connManager.SyncAPI(), l)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		marketView.Run(ctx)
	}()

	defaultProduct, err := domain.NewMarketSymbolFromProductID(cfg.Feed.DefaultProduct)
	if err != nil {
		l.Fatal().Err(err).Str("product", cfg.Feed.DefaultProduct).Msg("invalid default product")
	}
	if err := marketView.SelectProduct(ctx, defaultProduct); err != nil {
		l.Error().Err(err).Msg("failed to select default product")
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		l.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("failed to listen")
	}

	srv := rpc.NewServer(marketView, priceChart, &rpc.ValidationServiceConfig{AvailableProducts: products}, l)
	if err := rpc.Serve(ctx, lis, srv, l); err != nil {
		l.Error().Err(err).Msg("grpc server failed")
		stop()
	}

	wg.Wait()
	l.Info().Msg("shutdown complete")
}
