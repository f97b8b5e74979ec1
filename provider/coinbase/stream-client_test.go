package coinbase

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	messages chan []byte
	errs     chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages: make(chan []byte, 16),
		errs:     make(chan error, 1),
	}
}

func (h *recordingHandler) OnMessage(msg []byte) { h.messages <- msg }
func (h *recordingHandler) OnError(err error)    { h.errs <- err }

func createMockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func readControl(t *testing.T, conn *websocket.Conn) ControlMessage {
	t.Helper()
	var msg ControlMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitState(t *testing.T, c *FeedConnection, state ConnState) {
	t.Helper()
	assert.Eventually(t, func() bool { return c.State() == state }, 2*time.Second, 10*time.Millisecond,
		"connection should reach %s", state)
}

func TestNewFeedConnection_Validation(t *testing.T) {
	h := newRecordingHandler()

	_, err := NewFeedConnection("ws://localhost", nil, domain.Channel_Ticker, h, FeedConnectionOpts{})
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)

	_, err = NewFeedConnection("ws://localhost", []string{"BTC-USD"}, domain.Channel("full"), h, FeedConnectionOpts{})
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)

	_, err = NewFeedConnection("ws://localhost", []string{"BTC-USD"}, domain.Channel_Ticker, nil, FeedConnectionOpts{})
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)
}

func TestFeedConnection_SubscribesOnOpenAndForwardsDataMessages(t *testing.T) {
	received := make(chan ControlMessage, 2)
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		received <- readControl(t, conn)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscriptions","channels":[]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ticker","product_id":"BTC-USD"}`))
		received <- readControl(t, conn)
	})
	defer server.Close()

	h := newRecordingHandler()
	c, err := NewFeedConnection(httpToWS(server.URL), []string{"BTC-USD"}, domain.Channel_Ticker, h, FeedConnectionOpts{})
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, c.State())
	assert.Equal(t, domain.Channel_Ticker, c.Channel())

	require.NoError(t, c.Open(context.Background()))

	subscribe := <-received
	assert.Equal(t, ControlMessage{Type: "subscribe", ProductIDs: []string{"BTC-USD"}, Channels: []string{"ticker"}}, subscribe)
	waitState(t, c, StateOpen)

	select {
	case msg := <-h.messages:
		var env envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, "ticker", env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("ticker message was not forwarded")
	}
	assert.Len(t, h.messages, 0, "only messages of the channel type are forwarded")

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())

	select {
	case unsubscribe := <-received:
		assert.Equal(t, ControlMessage{Type: "unsubscribe", ProductIDs: []string{"BTC-USD"}, Channels: []string{"ticker"}}, unsubscribe)
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe was not sent")
	}

	select {
	case err := <-h.errs:
		t.Fatalf("closing on request must not surface an error: %v", err)
	default:
	}

	// idempotent
	assert.NoError(t, c.Close())
}

func TestFeedConnection_Level2ForwardsOnlyL2Updates(t *testing.T) {
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		readControl(t, conn)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"snapshot","bids":[],"asks":[]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"l2update","changes":[["buy","100","1"]]}`))
		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	h := newRecordingHandler()
	c, err := NewFeedConnection(httpToWS(server.URL), []string{"BTC-USD"}, domain.Channel_Level2Batch, h, FeedConnectionOpts{})
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	select {
	case msg := <-h.messages:
		assert.Contains(t, string(msg), "l2update")
	case <-time.After(2 * time.Second):
		t.Fatal("l2update was not forwarded")
	}
}

func TestFeedConnection_CloseBeforeOpenQueuesUnsubscribe(t *testing.T) {
	h := newRecordingHandler()
	c, err := NewFeedConnection("ws://127.0.0.1:1", []string{"ETH-USD"}, domain.Channel_Level2Batch, h, FeedConnectionOpts{})
	require.NoError(t, err)

	require.NoError(t, c.Close())

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, []ControlMessage{
		{Type: "unsubscribe", ProductIDs: []string{"ETH-USD"}, Channels: []string{"level2_batch"}},
	}, c.Pending(), "the unsubscribe waits for an open transition that never happens")
	assert.Error(t, c.Open(context.Background()), "a closed connection cannot be opened")
}

func TestFeedConnection_CloseDuringHandshakeLosesUnsubscribe(t *testing.T) {
	// accepts TCP but never answers the websocket handshake
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	h := newRecordingHandler()
	c, err := NewFeedConnection("ws://"+ln.Addr().String(), []string{"BTC-USD"}, domain.Channel_Ticker, h,
		FeedConnectionOpts{HandshakeTimeout: 500 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))

	var raw net.Conn
	select {
	case raw = <-accepted:
		defer raw.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("dial did not reach the listener")
	}

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Close should not outlive the pending dial")
	}

	assert.Equal(t, StateClosed, c.State())
	assert.Len(t, c.Pending(), 1)
	select {
	case err := <-h.errs:
		t.Fatalf("a requested close is not a transport error: %v", err)
	default:
	}
}

func TestFeedConnection_TransportErrorIsSurfaced(t *testing.T) {
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		readControl(t, conn)
		// handler returns and the socket is dropped without a close frame
	})
	defer server.Close()

	h := newRecordingHandler()
	c, err := NewFeedConnection(httpToWS(server.URL), []string{"BTC-USD"}, domain.Channel_Ticker, h, FeedConnectionOpts{})
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))

	select {
	case err := <-h.errs:
		assert.ErrorIs(t, err, domain.ErrTransport)
		var transportErr *domain.TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, domain.Channel_Ticker, transportErr.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("transport error was not surfaced")
	}

	waitState(t, c, StateClosed)
	assert.NoError(t, c.Close())
}

func TestFeedConnection_DialFailureIsSurfaced(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := httpToWS(server.URL)
	server.Close()

	h := newRecordingHandler()
	c, err := NewFeedConnection(url, []string{"BTC-USD"}, domain.Channel_Ticker, h, FeedConnectionOpts{})
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))

	select {
	case err := <-h.errs:
		assert.ErrorIs(t, err, domain.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("dial failure was not surfaced")
	}
	waitState(t, c, StateClosed)
}

func TestFeedConnection_ContextCancelClosesConnection(t *testing.T) {
	received := make(chan ControlMessage, 2)
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		received <- readControl(t, conn)
		received <- readControl(t, conn)
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	h := newRecordingHandler()
	c, err := NewFeedConnection(httpToWS(server.URL), []string{"BTC-USD"}, domain.Channel_Ticker, h, FeedConnectionOpts{})
	require.NoError(t, err)
	require.NoError(t, c.Open(ctx))

	assert.Equal(t, "subscribe", (<-received).Type)
	waitState(t, c, StateOpen)

	cancel()

	select {
	case msg := <-received:
		assert.Equal(t, "unsubscribe", msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe was not sent on context cancel")
	}
	waitState(t, c, StateClosed)
}

func TestFeedConnection_OpenDrainsPendingAfterSubscribe(t *testing.T) {
	received := make(chan ControlMessage, 3)
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			received <- readControl(t, conn)
		}
		conn.ReadMessage()
	})
	defer server.Close()

	h := newRecordingHandler()
	c, err := NewFeedConnection(httpToWS(server.URL), []string{"BTC-USD"}, domain.Channel_Ticker, h, FeedConnectionOpts{})
	require.NoError(t, err)

	first := ControlMessage{Type: MessageType_Subscribe, ProductIDs: []string{"ETH-USD"}, Channels: []string{"ticker"}}
	second := ControlMessage{Type: MessageType_Unsubscribe, ProductIDs: []string{"ETH-USD"}, Channels: []string{"ticker"}}
	c.mu.Lock()
	c.pending.PushBack(first)
	c.pending.PushBack(second)
	c.mu.Unlock()

	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	var order []ControlMessage
	for i := 0; i < 3; i++ {
		select {
		case msg := <-received:
			order = append(order, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 3 control messages, got %v", order)
		}
	}

	assert.Equal(t, []ControlMessage{
		{Type: MessageType_Subscribe, ProductIDs: []string{"BTC-USD"}, Channels: []string{"ticker"}},
		first,
		second,
	}, order)
	assert.Empty(t, c.Pending(), "the queue is drained exactly once")
}
