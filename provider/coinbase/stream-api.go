package coinbase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	promclient "github.com/spooky-finn/coinbase-depth-bridge/infrastructure/prometheus"
)

type StreamAPI struct {
	endpoint      string
	batchInterval time.Duration
	connOpts      FeedConnectionOpts
	logger        zerolog.Logger
}

type TickerSubscription = domain.Subscription[domain.TickerSnapshot]
type DepthDiffSubscription = domain.Subscription[[]domain.PriceChange]

func NewStreamAPI(endpoint string, batchInterval time.Duration, connOpts FeedConnectionOpts) *StreamAPI {
	if endpoint == "" {
		endpoint = CoinbaseDefaultWebsocketEndpoint
	}
	return &StreamAPI{
		endpoint:      endpoint,
		batchInterval: batchInterval,
		connOpts:      connOpts,
		logger:        connOpts.Logger.With().Str("component", "stream-api").Logger(),
	}
}

// TickerStream opens a ticker connection for the symbol. Every well formed ticker message
// is a full snapshot, so a slow reader only ever gets the latest one.
func (s *StreamAPI) TickerStream(ctx context.Context, symbol *domain.MarketSymbol) (*TickerSubscription, error) {
	h := &tickerHandler{
		out:    make(chan domain.TickerSnapshot, 1),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		logger: s.logger,
	}

	conn, err := s.open(ctx, symbol, domain.Channel_Ticker, h)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return &TickerSubscription{
		Stream: h.out,
		Err:    h.errs,
		Topic:  topic(symbol, domain.Channel_Ticker),
		Unsubscribe: func() {
			once.Do(func() {
				close(h.done)
				if err := conn.Close(); err != nil {
					s.logger.Warn().Err(err).Str("product", symbol.ProductID()).Msg("ticker unsubscribe failed")
				}
			})
		},
	}, nil
}

// DepthDiffStream opens a level2_batch connection for the symbol. Changes are buffered by a
// DiffBatcher and delivered as one batch per interval.
func (s *StreamAPI) DepthDiffStream(ctx context.Context, symbol *domain.MarketSymbol) (*DepthDiffSubscription, error) {
	out := make(chan []domain.PriceChange, 1)
	done := make(chan struct{})

	batcher := domain.NewDiffBatcher(s.batchInterval, func(batch []domain.PriceChange) {
		promclient.BatchesFlushedTotal.Inc()
		promclient.BatchSizeHistogram.Observe(float64(len(batch)))

		select {
		case out <- batch:
		case <-done:
		}
	})

	h := &depthHandler{
		batcher: batcher,
		errs:    make(chan error, 1),
		logger:  s.logger,
	}

	conn, err := s.open(ctx, symbol, domain.Channel_Level2Batch, h)
	if err != nil {
		return nil, err
	}
	batcher.Start()

	var once sync.Once
	return &DepthDiffSubscription{
		Stream: out,
		Err:    h.errs,
		Topic:  topic(symbol, domain.Channel_Level2Batch),
		Unsubscribe: func() {
			once.Do(func() {
				close(done)
				batcher.Stop()
				if err := conn.Close(); err != nil {
					s.logger.Warn().Err(err).Str("product", symbol.ProductID()).Msg("level2 unsubscribe failed")
				}
			})
		},
	}, nil
}

func (s *StreamAPI) open(ctx context.Context, symbol *domain.MarketSymbol, channel domain.Channel, h FeedHandler) (*FeedConnection, error) {
	if symbol == nil {
		return nil, fmt.Errorf("%w: symbol must not be nil", domain.ErrInvalidSubscription)
	}

	conn, err := NewFeedConnection(s.endpoint, []string{symbol.ProductID()}, channel, h, s.connOpts)
	if err != nil {
		return nil, err
	}
	if err := conn.Open(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

func topic(symbol *domain.MarketSymbol, channel domain.Channel) string {
	return fmt.Sprintf("%s:%s", channel, symbol.ProductID())
}

type tickerHandler struct {
	out    chan domain.TickerSnapshot
	errs   chan error
	done   chan struct{}
	logger zerolog.Logger
}

func (h *tickerHandler) OnMessage(msg []byte) {
	snapshot, err := DecodeTicker(msg)
	if err != nil {
		promclient.DroppedItemsTotal.WithLabelValues(string(domain.Channel_Ticker)).Inc()
		h.logger.Warn().Err(err).Msg("dropped ticker message")
		return
	}

	// the socket reader never waits on the consumer, an unread snapshot is replaced
	for {
		select {
		case h.out <- snapshot:
			return
		case <-h.done:
			return
		default:
		}

		select {
		case <-h.out:
			promclient.DroppedItemsTotal.WithLabelValues(string(domain.Channel_Ticker)).Inc()
		default:
		}
	}
}

func (h *tickerHandler) OnError(err error) {
	select {
	case h.errs <- err:
	default:
	}
}

type depthHandler struct {
	batcher *domain.DiffBatcher
	errs    chan error
	logger  zerolog.Logger
}

func (h *depthHandler) OnMessage(msg []byte) {
	changes, dropped := DecodeL2Update(msg)
	for _, err := range dropped {
		promclient.DroppedItemsTotal.WithLabelValues(string(domain.Channel_Level2Batch)).Inc()
		h.logger.Warn().Err(err).Msg("dropped l2 change")
	}
	if len(changes) > 0 {
		h.batcher.Add(changes...)
	}
}

func (h *depthHandler) OnError(err error) {
	select {
	case h.errs <- err:
	default:
	}
}
