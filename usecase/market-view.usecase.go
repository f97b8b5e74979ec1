package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spooky-finn/coinbase-depth-bridge/config"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	promclient "github.com/spooky-finn/coinbase-depth-bridge/infrastructure/prometheus"
)

var ErrStopped = errors.New("market view is not running")

// ViewSink is the rendering side. It is called from the consumer loop and must not block.
type ViewSink interface {
	OnOrderBookView(view *domain.OrderBookView)
	OnTicker(view TickerView)
}

type TickerView struct {
	ProductID string
	Snapshot  domain.TickerSnapshot
	Received  bool
	Stale     bool
	Err       string
}

type Status struct {
	ProductID   string
	BookStale   bool
	BookErr     string
	TickerStale bool
	TickerErr   string
}

type MarketViewOpts struct {
	Params domain.ViewParams
	Sink   ViewSink
	Logger zerolog.Logger
}

// MarketViewUseCase owns the subscription lifecycle of the selected product.
// All book and ticker mutations happen on the goroutine running Run, readers get copies.
type MarketViewUseCase struct {
	streamAPI domain.ProviderStreamAPI
	sink      ViewSink
	logger    zerolog.Logger

	commands chan command
	stopped  chan struct{}
	ctx      context.Context

	// owned by the loop
	session *session
	params  domain.ViewParams

	mu         sync.RWMutex
	view       *domain.OrderBookView
	tickerView TickerView
}

type command struct {
	apply func() error
	reply chan error
}

type session struct {
	id        string
	symbol    *domain.MarketSymbol
	book      *domain.OrderBook
	ticker    *domain.TickerStore
	tickerSub *domain.Subscription[domain.TickerSnapshot]
	depthSub  *domain.Subscription[[]domain.PriceChange]
	tickerErr error
	depthErr  error
}

func NewMarketViewUseCase(streamAPI domain.ProviderStreamAPI, opts MarketViewOpts) *MarketViewUseCase {
	params := opts.Params
	if params.Depth <= 0 {
		params = domain.DefaultViewParams()
	}

	return &MarketViewUseCase{
		streamAPI: streamAPI,
		sink:      opts.Sink,
		logger:    opts.Logger.With().Str("component", "market-view").Logger(),
		commands:  make(chan command),
		stopped:   make(chan struct{}),
		params:    params,
		view:      &domain.OrderBookView{Params: params},
	}
}

// Run is the single consumer loop. It returns when ctx is done, after tearing down the subscription.
func (u *MarketViewUseCase) Run(ctx context.Context) error {
	u.ctx = ctx
	defer close(u.stopped)

	for {
		var (
			tickerCh    <-chan domain.TickerSnapshot
			depthCh     <-chan []domain.PriceChange
			tickerErrCh <-chan error
			depthErrCh  <-chan error
		)
		if s := u.session; s != nil {
			if s.tickerSub != nil {
				tickerCh, tickerErrCh = s.tickerSub.Stream, s.tickerSub.Err
			}
			if s.depthSub != nil {
				depthCh, depthErrCh = s.depthSub.Stream, s.depthSub.Err
			}
		}

		select {
		case <-ctx.Done():
			u.teardown()
			return ctx.Err()
		case cmd := <-u.commands:
			cmd.reply <- cmd.apply()
		case snapshot := <-tickerCh:
			u.onTicker(snapshot)
		case batch := <-depthCh:
			u.onBatch(batch)
		case err := <-tickerErrCh:
			u.onTickerError(err)
		case err := <-depthErrCh:
			u.onDepthError(err)
		}
	}
}

// SelectProduct drops the current subscription and its state, then subscribes to symbol.
// Readers never observe the new product together with the old book.
func (u *MarketViewUseCase) SelectProduct(ctx context.Context, symbol *domain.MarketSymbol) error {
	if symbol == nil {
		return fmt.Errorf("%w: symbol must not be nil", domain.ErrInvalidSubscription)
	}
	return u.do(ctx, func() error {
		return u.switchProduct(symbol)
	})
}

// SetViewParams re-projects the resident book. Levels already stored keep their bucket.
func (u *MarketViewUseCase) SetViewParams(ctx context.Context, params domain.ViewParams) error {
	if _, err := domain.NewViewParams(params.Bucket, params.Depth); err != nil {
		return err
	}
	return u.do(ctx, func() error {
		u.params = params
		if u.session == nil {
			u.mu.Lock()
			u.view.Params = params
			u.mu.Unlock()
			return nil
		}
		u.reproject()
		return nil
	})
}

// Unsubscribe tears down the current subscription and discards its state.
func (u *MarketViewUseCase) Unsubscribe(ctx context.Context) error {
	return u.do(ctx, func() error {
		u.teardown()
		u.publish(&domain.OrderBookView{Params: u.params}, TickerView{})
		return nil
	})
}

func (u *MarketViewUseCase) OrderBookView() *domain.OrderBookView {
	u.mu.RLock()
	defer u.mu.RUnlock()

	view := *u.view
	view.Bids = append([]domain.PriceLevel(nil), u.view.Bids...)
	view.Asks = append([]domain.PriceLevel(nil), u.view.Asks...)
	return &view
}

func (u *MarketViewUseCase) Ticker() TickerView {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.tickerView
}

func (u *MarketViewUseCase) Status() Status {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return Status{
		ProductID:   u.view.ProductID,
		BookStale:   u.view.Stale,
		BookErr:     u.view.Err,
		TickerStale: u.tickerView.Stale,
		TickerErr:   u.tickerView.Err,
	}
}

func (u *MarketViewUseCase) ViewParams() domain.ViewParams {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.view.Params
}

func (u *MarketViewUseCase) do(ctx context.Context, apply func() error) error {
	cmd := command{apply: apply, reply: make(chan error, 1)}

	select {
	case u.commands <- cmd:
	case <-u.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *MarketViewUseCase) switchProduct(symbol *domain.MarketSymbol) error {
	u.teardown()
	promclient.ProductSwitchesTotal.Inc()

	s := &session{
		id:     uuid.NewString(),
		symbol: symbol,
		book:   domain.NewOrderBook(symbol),
		ticker: domain.NewTickerStore(),
	}
	u.session = s
	u.publish(
		&domain.OrderBookView{ProductID: symbol.ProductID(), Params: u.params},
		TickerView{ProductID: symbol.ProductID()},
	)

	log := u.logger.With().Str("session", s.id).Str("product", symbol.ProductID()).Logger()
	if config.DebugMode {
		log.Debug().Msg("switching product")
	}

	var errs []error

	tickerSub, err := u.streamAPI.TickerStream(u.ctx, symbol)
	if err != nil {
		s.tickerErr = err
		errs = append(errs, fmt.Errorf("ticker subscription: %w", err))
	}
	s.tickerSub = tickerSub

	depthSub, err := u.streamAPI.DepthDiffStream(u.ctx, symbol)
	if err != nil {
		s.depthErr = err
		errs = append(errs, fmt.Errorf("level2 subscription: %w", err))
	}
	s.depthSub = depthSub

	if len(errs) > 0 {
		u.reproject()
		u.publishTicker()
		log.Error().Errs("errors", errs).Msg("subscription failed")
		return errors.Join(errs...)
	}

	log.Info().Msg("subscribed to product")
	return nil
}

// teardown stops the batcher, unsubscribes both channels and releases the sockets.
func (u *MarketViewUseCase) teardown() {
	s := u.session
	if s == nil {
		return
	}
	u.session = nil

	if s.depthSub != nil {
		s.depthSub.Unsubscribe()
	}
	if s.tickerSub != nil {
		s.tickerSub.Unsubscribe()
	}
	s.book.Clear()
	s.ticker.Reset()

	promclient.OrderBookLevelsGauge.WithLabelValues(string(domain.Side_Bid)).Set(0)
	promclient.OrderBookLevelsGauge.WithLabelValues(string(domain.Side_Ask)).Set(0)
	u.logger.Info().Str("session", s.id).Str("product", s.symbol.ProductID()).Msg("unsubscribed from product")
}

func (u *MarketViewUseCase) onBatch(batch []domain.PriceChange) {
	s := u.session
	applied, dropped := s.book.ApplyBatch(batch, u.params.Bucket)

	if len(dropped) > 0 {
		promclient.DroppedItemsTotal.WithLabelValues(string(domain.Channel_Level2Batch)).Add(float64(len(dropped)))
		u.logger.Warn().Errs("errors", dropped).Int("applied", applied).Msg("dropped malformed changes")
	}

	promclient.OrderBookLevelsGauge.WithLabelValues(string(domain.Side_Bid)).Set(float64(s.book.Len(domain.Side_Bid)))
	promclient.OrderBookLevelsGauge.WithLabelValues(string(domain.Side_Ask)).Set(float64(s.book.Len(domain.Side_Ask)))

	u.reproject()
}

func (u *MarketViewUseCase) onTicker(snapshot domain.TickerSnapshot) {
	u.session.ticker.Set(snapshot)
	u.publishTicker()
}

func (u *MarketViewUseCase) onTickerError(err error) {
	s := u.session
	s.tickerErr = err
	// the channel is dead, stop selecting on it
	s.tickerSub = &domain.Subscription[domain.TickerSnapshot]{Unsubscribe: s.tickerSub.Unsubscribe, Topic: s.tickerSub.Topic}
	u.logger.Error().Err(err).Str("session", s.id).Msg("ticker feed failed, panel is stale")
	u.publishTicker()
}

func (u *MarketViewUseCase) onDepthError(err error) {
	s := u.session
	s.depthErr = err
	s.depthSub = &domain.Subscription[[]domain.PriceChange]{Unsubscribe: s.depthSub.Unsubscribe, Topic: s.depthSub.Topic}
	u.logger.Error().Err(err).Str("session", s.id).Msg("level2 feed failed, order book is stale")
	u.reproject()
}

func (u *MarketViewUseCase) reproject() {
	s := u.session
	view := domain.ProjectView(s.book, u.params)
	if s.depthErr != nil {
		view.Stale = true
		view.Err = s.depthErr.Error()
	}
	if view.Spread.Valid {
		promclient.SpreadPercentGauge.Set(view.Spread.Decimal.InexactFloat64())
	}

	u.mu.Lock()
	u.view = view
	u.mu.Unlock()

	if u.sink != nil {
		u.sink.OnOrderBookView(u.OrderBookView())
	}
}

func (u *MarketViewUseCase) publishTicker() {
	s := u.session
	tv := TickerView{ProductID: s.symbol.ProductID()}
	tv.Snapshot, tv.Received = s.ticker.Get()
	if s.tickerErr != nil {
		tv.Stale = true
		tv.Err = s.tickerErr.Error()
	}

	u.mu.Lock()
	u.tickerView = tv
	u.mu.Unlock()

	if u.sink != nil {
		u.sink.OnTicker(tv)
	}
}

func (u *MarketViewUseCase) publish(view *domain.OrderBookView, tv TickerView) {
	u.mu.Lock()
	u.view = view
	u.tickerView = tv
	u.mu.Unlock()

	if u.sink != nil {
		u.sink.OnOrderBookView(u.OrderBookView())
		u.sink.OnTicker(tv)
	}
}
