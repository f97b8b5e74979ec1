package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	promclient "github.com/spooky-finn/coinbase-depth-bridge/infrastructure/prometheus"
)

const (
	CoinbaseDefaultWebsocketEndpoint = "wss://ws-feed.exchange.coinbase.com"

	defaultHandshakeTimeout = 5 * time.Second
	writeTimeout            = 10 * time.Second
)

type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// FeedHandler receives the data messages of one channel, in arrival order.
// OnError is called at most once, after which the connection is closed.
type FeedHandler interface {
	OnMessage(msg []byte)
	OnError(err error)
}

type FeedConnectionOpts struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	Logger           zerolog.Logger
}

// FeedConnection owns one websocket subscribed to one channel for a set of products.
//
// Control messages issued before the socket is open wait in a FIFO queue that is
// drained once, right after the subscribe message, on the open transition.
// The connection never reconnects.
type FeedConnection struct {
	endpoint   string
	productIDs []string
	channel    domain.Channel
	handler    FeedHandler
	opts       FeedConnectionOpts
	logger     zerolog.Logger

	mu             sync.Mutex
	state          ConnState
	conn           *websocket.Conn
	pending        deque.Deque[ControlMessage]
	started        bool
	closeRequested bool
	cancel         context.CancelFunc
	done           chan struct{}
}

func NewFeedConnection(
	endpoint string,
	productIDs []string,
	channel domain.Channel,
	handler FeedHandler,
	opts FeedConnectionOpts,
) (*FeedConnection, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("%w: product ids must not be empty", domain.ErrInvalidSubscription)
	}
	if err := channel.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler must not be nil", domain.ErrInvalidSubscription)
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}

	ids := make([]string, len(productIDs))
	copy(ids, productIDs)

	return &FeedConnection{
		endpoint:   endpoint,
		productIDs: ids,
		channel:    channel,
		handler:    handler,
		opts:       opts,
		logger: opts.Logger.With().
			Str("component", "feed-connection").
			Str("channel", string(channel)).
			Strs("products", ids).
			Logger(),
		state: StateConnecting,
		done:  make(chan struct{}),
	}, nil
}

// Open dials in the background. The connection becomes Open once the handshake
// completes, or Closed if the dial fails or ctx is cancelled.
func (c *FeedConnection) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.state != StateConnecting {
		return fmt.Errorf("%w: connection already opened or closed", domain.ErrInvalidSubscription)
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	return nil
}

// Close unsubscribes and releases the socket. Before the open transition the
// unsubscribe message can only be queued, it is lost if the socket never opens.
func (c *FeedConnection) Close() error {
	c.mu.Lock()
	if c.closeRequested {
		c.mu.Unlock()
		return nil
	}
	c.closeRequested = true

	var err error
	unsubscribe := c.controlMessage(MessageType_Unsubscribe)

	switch c.state {
	case StateOpen:
		err = c.writeLocked(unsubscribe)
		if closeErr := c.conn.Close(); err == nil {
			err = closeErr
		}
		c.logger.Debug().Msg("unsubscribed")
	case StateConnecting:
		c.pending.PushBack(unsubscribe)
		c.logger.Debug().Msg("closed before open, unsubscribe queued")
	}
	c.state = StateClosed

	cancel := c.cancel
	started := c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-c.done
	}

	return err
}

func (c *FeedConnection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *FeedConnection) Channel() domain.Channel {
	return c.channel
}

// Pending returns the control messages still waiting for the open transition.
func (c *FeedConnection) Pending() []ControlMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]ControlMessage, 0, c.pending.Len())
	for i := 0; i < c.pending.Len(); i++ {
		result = append(result, c.pending.At(i))
	}
	return result
}

func (c *FeedConnection) run(ctx context.Context) {
	defer close(c.done)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.opts.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		c.mu.Lock()
		requested := c.closeRequested
		lost := c.pending.Len()
		c.state = StateClosed
		c.mu.Unlock()

		if requested {
			if lost > 0 {
				c.logger.Warn().Int("messages", lost).Msg("connection never opened, queued control messages are lost")
			}
			return
		}
		c.fail(err)
		return
	}

	if c.opts.ReadLimit > 0 {
		conn.SetReadLimit(c.opts.ReadLimit)
	}

	promclient.FeedOpenConnectionsGauge.WithLabelValues(string(c.channel)).Inc()
	defer promclient.FeedOpenConnectionsGauge.WithLabelValues(string(c.channel)).Dec()

	c.mu.Lock()
	c.conn = conn
	closeRequested := c.closeRequested
	if !closeRequested {
		c.state = StateOpen
	}

	err = c.writeLocked(c.controlMessage(MessageType_Subscribe))
	for err == nil && c.pending.Len() > 0 {
		err = c.writeLocked(c.pending.PopFront())
	}
	c.mu.Unlock()

	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		conn.Close()
		if !closeRequested {
			c.fail(err)
		}
		return
	}

	c.logger.Info().Msg("subscribed")

	if closeRequested {
		// Close ran while dialing, the queued unsubscribe has just been delivered.
		conn.Close()
		return
	}

	c.readLoop(conn)
}

func (c *FeedConnection) readLoop(conn *websocket.Conn) {
	dataType := c.channel.DataMessageType()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			requested := c.closeRequested
			c.state = StateClosed
			c.mu.Unlock()

			conn.Close()
			if !requested {
				c.fail(err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			promclient.DroppedItemsTotal.WithLabelValues(string(c.channel)).Inc()
			c.logger.Debug().Err(err).Msg("dropped undecodable message")
			continue
		}

		if env.Type != dataType {
			c.logger.Debug().Str("type", env.Type).Msg("ignored message")
			continue
		}

		promclient.FeedMessagesTotal.WithLabelValues(string(c.channel)).Inc()
		c.handler.OnMessage(msg)
	}
}

func (c *FeedConnection) fail(err error) {
	promclient.FeedTransportErrorsTotal.WithLabelValues(string(c.channel)).Inc()
	c.logger.Error().Err(err).Msg("feed connection failed")
	c.handler.OnError(&domain.TransportError{Channel: c.channel, Err: err})
}

func (c *FeedConnection) writeLocked(msg ControlMessage) error {
	if c.conn == nil {
		return fmt.Errorf("connection is not established")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s msg: %w", msg.Type, err)
	}
	return nil
}

func (c *FeedConnection) controlMessage(msgType string) ControlMessage {
	return ControlMessage{
		Type:       msgType,
		ProductIDs: c.productIDs,
		Channels:   []string{string(c.channel)},
	}
}
