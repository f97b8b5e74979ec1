package rpc

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	"github.com/spooky-finn/coinbase-depth-bridge/usecase"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type MarketView interface {
	OrderBookView() *domain.OrderBookView
	Ticker() usecase.TickerView
	ViewParams() domain.ViewParams
	SelectProduct(ctx context.Context, symbol *domain.MarketSymbol) error
	SetViewParams(ctx context.Context, params domain.ViewParams) error
}

type PriceChart interface {
	Candles(ctx context.Context, symbol *domain.MarketSymbol) ([]domain.Candle, error)
	Products(ctx context.Context, allowed []string) ([]domain.Product, error)
}

type server struct {
	marketView        MarketView
	priceChart        PriceChart
	validationService *ValidationService
	logger            zerolog.Logger
}

func NewServer(marketView MarketView, priceChart PriceChart, conf *ValidationServiceConfig, logger zerolog.Logger) *server {
	return &server{
		marketView:        marketView,
		priceChart:        priceChart,
		validationService: NewValidationService(conf),
		logger:            logger.With().Str("component", "rpc").Logger(),
	}
}

// Serve registers the service on a new grpc.Server and blocks until ctx is done or serving fails.
func Serve(ctx context.Context, lis net.Listener, srv MarketDataServiceServer, logger zerolog.Logger) error {
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(logger)))
	RegisterMarketDataServiceServer(grpcServer, srv)

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logger.Info().Str("addr", lis.Addr().String()).Msg("grpc server listening")
	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func loggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn().Err(err).Str("method", info.FullMethod).Msg("rpc failed")
		}
		return resp, err
	}
}

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrUnsupportedProduct),
		errors.Is(err, domain.ErrInvalidViewParams),
		errors.Is(err, domain.ErrInvalidSubscription),
		errors.Is(err, domain.ErrParse):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, usecase.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, domain.ErrTransport):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
