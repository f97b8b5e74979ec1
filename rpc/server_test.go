package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	"github.com/spooky-finn/coinbase-depth-bridge/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeMarketView struct {
	view     *domain.OrderBookView
	ticker   usecase.TickerView
	params   domain.ViewParams
	selected *domain.MarketSymbol
	err      error
}

func (f *fakeMarketView) OrderBookView() *domain.OrderBookView { return f.view }
func (f *fakeMarketView) Ticker() usecase.TickerView           { return f.ticker }
func (f *fakeMarketView) ViewParams() domain.ViewParams        { return f.params }

func (f *fakeMarketView) SelectProduct(ctx context.Context, symbol *domain.MarketSymbol) error {
	f.selected = symbol
	return f.err
}

func (f *fakeMarketView) SetViewParams(ctx context.Context, params domain.ViewParams) error {
	f.params = params
	return f.err
}

type fakePriceChart struct {
	err     error
	allowed []string
}

func (f *fakePriceChart) Products(ctx context.Context, allowed []string) ([]domain.Product, error) {
	f.allowed = allowed
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Product{{ID: "BTC-USD", BaseCurrency: "BTC", QuoteCurrency: "USD", Status: "online"}}, nil
}

func (f *fakePriceChart) Candles(ctx context.Context, symbol *domain.MarketSymbol) ([]domain.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Candle{{Timestamp: 1714564800, Low: decimal.RequireFromString("99.5"), High: decimal.RequireFromString("101")}}, nil
}

func startServer(t *testing.T, mv MarketView, pc PriceChart) *MarketDataServiceClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(mv, pc, &ValidationServiceConfig{AvailableProducts: []string{"BTC-USD", "ETH-USD"}}, zerolog.Nop())

	served := make(chan error, 1)
	go func() { served <- Serve(ctx, lis, srv, zerolog.Nop()) }()

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("grpc server did not stop")
		}
	})

	return NewMarketDataServiceClient(conn)
}

func TestServer_GetOrderBook(t *testing.T) {
	mv := &fakeMarketView{view: &domain.OrderBookView{
		ProductID: "BTC-USD",
		Bids:      []domain.PriceLevel{{Price: decimal.NewFromInt(100), Size: decimal.RequireFromString("1.5")}},
		Asks:      []domain.PriceLevel{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(2)}},
		Spread:    decimal.NewNullDecimal(decimal.RequireFromString("0.995")),
		MaxSize:   decimal.NewFromInt(2),
		Params:    domain.DefaultViewParams(),
	}}
	client := startServer(t, mv, &fakePriceChart{})

	out, err := client.GetOrderBook(context.Background())
	require.NoError(t, err)

	m := out.AsMap()
	assert.Equal(t, "BTC-USD", m["product_id"])
	assert.Equal(t, "0.9950%", m["spread"])
	assert.Equal(t, float64(15), m["depth"])
	assert.Equal(t, false, m["stale"])

	bids := m["bids"].([]interface{})
	require.Len(t, bids, 1)
	assert.Equal(t, map[string]interface{}{"price": "100", "size": "1.5"}, bids[0])
}

func TestServer_GetTicker(t *testing.T) {
	mv := &fakeMarketView{ticker: usecase.TickerView{
		ProductID: "BTC-USD",
		Received:  true,
		Snapshot: domain.TickerSnapshot{
			ProductID: "BTC-USD",
			BestBid:   decimal.NewFromInt(100),
			BestAsk:   decimal.RequireFromString("100.456"),
			Volume24h: decimal.NewFromInt(7),
		},
		Stale: true,
		Err:   "transport error",
	}}
	client := startServer(t, mv, &fakePriceChart{})

	out, err := client.GetTicker(context.Background())
	require.NoError(t, err)

	m := out.AsMap()
	assert.Equal(t, "100", m["best_bid"])
	assert.Equal(t, "7", m["volume_24h"])
	assert.Equal(t, "0.46", m["spread"])
	assert.Equal(t, true, m["stale"])
	assert.Equal(t, "transport error", m["error"])
}

func TestServer_SelectProduct(t *testing.T) {
	mv := &fakeMarketView{}
	client := startServer(t, mv, &fakePriceChart{})

	require.NoError(t, client.SelectProduct(context.Background(), "eth-usd"))
	require.NotNil(t, mv.selected)
	assert.Equal(t, "ETH-USD", mv.selected.ProductID())

	err := client.SelectProduct(context.Background(), "DOGE-USD")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	mv.err = usecase.ErrStopped
	err = client.SelectProduct(context.Background(), "BTC-USD")
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestServer_SetViewParams(t *testing.T) {
	mv := &fakeMarketView{params: domain.DefaultViewParams()}
	client := startServer(t, mv, &fakePriceChart{})

	params, err := structpb.NewStruct(map[string]interface{}{"aggregation": "0.05"})
	require.NoError(t, err)
	require.NoError(t, client.SetViewParams(context.Background(), params))

	assert.Equal(t, "0.05", mv.params.Bucket.String())
	assert.Equal(t, domain.DefaultDepth, mv.params.Depth, "missing depth keeps the current value")

	params, err = structpb.NewStruct(map[string]interface{}{"aggregation": 1, "depth": 5})
	require.NoError(t, err)
	require.NoError(t, client.SetViewParams(context.Background(), params))
	assert.Equal(t, "1", mv.params.Bucket.String())
	assert.Equal(t, 5, mv.params.Depth)

	for _, invalid := range []map[string]interface{}{
		{"depth": 0},
		{"depth": 2.5},
		{"aggregation": "-1"},
		{"aggregation": "abc"},
		{"aggregation": true},
	} {
		params, err := structpb.NewStruct(invalid)
		require.NoError(t, err)
		err = client.SetViewParams(context.Background(), params)
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "%v", invalid)
	}
}

func TestServer_GetCandles(t *testing.T) {
	pc := &fakePriceChart{}
	client := startServer(t, &fakeMarketView{}, pc)

	out, err := client.GetCandles(context.Background(), "BTC-USD")
	require.NoError(t, err)

	m := out.AsMap()
	candles := m["candles"].([]interface{})
	require.Len(t, candles, 1)
	assert.Equal(t, map[string]interface{}{"timestamp": float64(1714564800), "low": "99.5", "high": "101"}, candles[0])

	_, err = client.GetCandles(context.Background(), "XRP-USD")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	pc.err = errors.New("upstream 503")
	_, err = client.GetCandles(context.Background(), "BTC-USD")
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestValidationService(t *testing.T) {
	v := NewValidationService(&ValidationServiceConfig{AvailableProducts: []string{"BTC-USD"}})

	assert.True(t, v.IsSupportedProduct("BTC-USD"))
	assert.True(t, v.IsSupportedProduct("btc-usd"))
	assert.False(t, v.IsSupportedProduct("ETH-USD"))
	assert.Equal(t, []string{"BTC-USD"}, v.AvailableProducts())
}

func TestServer_GetTickerBeforeFirstTick(t *testing.T) {
	client := startServer(t, &fakeMarketView{ticker: usecase.TickerView{ProductID: "BTC-USD"}}, &fakePriceChart{})

	out, err := client.GetTicker(context.Background())
	require.NoError(t, err)

	m := out.AsMap()
	assert.Equal(t, false, m["received"])
	assert.NotContains(t, m, "spread")
}

func TestServer_GetProducts(t *testing.T) {
	pc := &fakePriceChart{}
	client := startServer(t, &fakeMarketView{}, pc)

	out, err := client.GetProducts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, pc.allowed, "only supported products are requested")
	products := out.AsMap()["products"].([]interface{})
	require.Len(t, products, 1)
	assert.Equal(t, map[string]interface{}{
		"id": "BTC-USD", "base_currency": "BTC", "quote_currency": "USD", "status": "online",
	}, products[0])

	pc.err = errors.New("upstream 503")
	_, err = client.GetProducts(context.Background())
	assert.Equal(t, codes.Internal, status.Code(err))
}
