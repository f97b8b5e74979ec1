package main

import (
	"github.com/rs/zerolog"
	"github.com/spooky-finn/coinbase-depth-bridge/config"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	"github.com/spooky-finn/coinbase-depth-bridge/usecase"
)

// logViewSink renders the depth table and ticker panel as log lines.
type logViewSink struct {
	logger zerolog.Logger
}

func newLogViewSink(logger zerolog.Logger) *logViewSink {
	return &logViewSink{logger: logger}
}

func (s *logViewSink) OnOrderBookView(view *domain.OrderBookView) {
	ev := s.logger.Debug()
	if view.Stale {
		ev = s.logger.Warn().Str("error", view.Err)
	}

	ev = ev.Str("product", view.ProductID).
		Str("spread", view.SpreadText()).
		Int("bids", len(view.Bids)).
		Int("asks", len(view.Asks))

	if config.DebugMode {
		ev = ev.Interface("top_bids", view.Bids).Interface("top_asks", view.Asks)
	} else {
		if len(view.Bids) > 0 {
			ev = ev.Str("best_bid", view.Bids[0].Price.String())
		}
		if len(view.Asks) > 0 {
			ev = ev.Str("best_ask", view.Asks[0].Price.String())
		}
	}
	ev.Msg("order book")
}

func (s *logViewSink) OnTicker(view usecase.TickerView) {
	if view.Stale {
		s.logger.Warn().Str("product", view.ProductID).Str("error", view.Err).Msg("ticker is stale")
		return
	}
	if !view.Received {
		return
	}
	s.logger.Debug().
		Str("product", view.ProductID).
		Str("price", view.Snapshot.Price.String()).
		Str("best_bid", view.Snapshot.BestBid.String()).
		Str("best_ask", view.Snapshot.BestAsk.String()).
		Str("volume_24h", view.Snapshot.Volume24h.String()).
		Msg("ticker")
}
