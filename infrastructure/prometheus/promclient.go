package promclient

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var FeedMessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feed_messages_total",
		Help: "data messages forwarded by feed connections",
	},
	[]string{"channel"},
)

var FeedTransportErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feed_transport_errors_total",
		Help: "terminal transport errors by channel",
	},
	[]string{"channel"},
)

var FeedOpenConnectionsGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "feed_open_connections",
		Help: "feed connections in the open state",
	},
	[]string{"channel"},
)

var DroppedItemsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feed_dropped_items_total",
		Help: "changes and messages dropped because they failed to parse",
	},
	[]string{"channel"},
)

var BatchesFlushedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "diff_batches_flushed_total",
		Help: "diff batches handed to the order book",
	},
)

var BatchSizeHistogram = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "diff_batch_size",
		Help:    "changes per flushed diff batch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	},
)

var OrderBookLevelsGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "order_book_levels",
		Help: "stored price levels per side",
	},
	[]string{"side"},
)

var SpreadPercentGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "order_book_spread_percent",
		Help: "last projected spread in percent of mid price",
	},
)

var ProductSwitchesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "product_switches_total",
		Help: "destructive product switches",
	},
)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		FeedMessagesTotal,
		FeedTransportErrorsTotal,
		FeedOpenConnectionsGauge,
		DroppedItemsTotal,
		BatchesFlushedTotal,
		BatchSizeHistogram,
		OrderBookLevelsGauge,
		SpreadPercentGauge,
		ProductSwitchesTotal,
		collectors.NewGoCollector(),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// StartPromClientServer blocks serving /metrics until the server fails.
func StartPromClientServer(addr string, reg *prometheus.Registry, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	logger.Info().Str("addr", addr).Msg("prometheus server listening")

	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
