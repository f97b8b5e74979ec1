package rpc

import (
	"context"
	"fmt"

	"github.com/spooky-finn/coinbase-depth-bridge/domain"
	"github.com/spooky-finn/coinbase-depth-bridge/usecase"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *server) GetOrderBook(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
	view := s.marketView.OrderBookView()

	out, err := structpb.NewStruct(map[string]interface{}{
		"product_id":  view.ProductID,
		"bids":        levelsToList(view.Bids),
		"asks":        levelsToList(view.Asks),
		"spread":      view.SpreadText(),
		"max_size":    view.MaxSize.String(),
		"aggregation": view.Params.Bucket.String(),
		"depth":       view.Params.Depth,
		"stale":       view.Stale,
		"error":       view.Err,
	})
	return out, toStatus(err)
}

func (s *server) GetTicker(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
	return tickerToStruct(s.marketView.Ticker())
}

func (s *server) SelectProduct(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	symbol, err := s.supportedSymbol(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	if err := s.marketView.SelectProduct(ctx, symbol); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// SetViewParams accepts {"aggregation": "0.05", "depth": 15}. Missing fields keep their current value.
func (s *server) SetViewParams(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	current := s.marketView.ViewParams()
	fields := in.GetFields()

	bucket := current.Bucket.String()
	if v, ok := fields["aggregation"]; ok {
		switch v.GetKind().(type) {
		case *structpb.Value_StringValue:
			bucket = v.GetStringValue()
		case *structpb.Value_NumberValue:
			bucket = fmt.Sprint(v.GetNumberValue())
		default:
			return nil, toStatus(fmt.Errorf("%w: aggregation must be a string or number", domain.ErrInvalidViewParams))
		}
	}

	depth := current.Depth
	if v, ok := fields["depth"]; ok {
		n := v.GetNumberValue()
		if n != float64(int(n)) {
			return nil, toStatus(fmt.Errorf("%w: depth must be an integer", domain.ErrInvalidViewParams))
		}
		depth = int(n)
	}

	params, err := domain.ParseViewParams(bucket, depth)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.marketView.SetViewParams(ctx, params); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *server) GetCandles(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	symbol, err := s.supportedSymbol(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	candles, err := s.priceChart.Candles(ctx, symbol)
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]interface{}, 0, len(candles))
	for _, c := range candles {
		list = append(list, map[string]interface{}{
			"timestamp": c.Timestamp,
			"low":       c.Low.String(),
			"high":      c.High.String(),
		})
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"product_id": symbol.ProductID(),
		"candles":    list,
	})
	return out, toStatus(err)
}

// GetProducts lists the supported products with the exchange's description of each.
func (s *server) GetProducts(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
	products, err := s.priceChart.Products(ctx, s.validationService.AvailableProducts())
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]interface{}, 0, len(products))
	for _, p := range products {
		list = append(list, map[string]interface{}{
			"id":             p.ID,
			"base_currency":  p.BaseCurrency,
			"quote_currency": p.QuoteCurrency,
			"status":         p.Status,
		})
	}

	out, err := structpb.NewStruct(map[string]interface{}{"products": list})
	return out, toStatus(err)
}

func (s *server) supportedSymbol(productID string) (*domain.MarketSymbol, error) {
	if !s.validationService.IsSupportedProduct(productID) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProduct, productID)
	}
	symbol, err := domain.NewMarketSymbolFromProductID(productID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid product id %q, expected BASE-QUOTE", domain.ErrUnsupportedProduct, productID)
	}
	return symbol, nil
}

const tickerSpreadDecimal = 2

func levelsToList(levels []domain.PriceLevel) []interface{} {
	list := make([]interface{}, 0, len(levels))
	for _, l := range levels {
		list = append(list, map[string]interface{}{
			"price": l.Price.String(),
			"size":  l.Size.String(),
		})
	}
	return list
}

func tickerToStruct(tv usecase.TickerView) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"product_id": tv.ProductID,
		"received":   tv.Received,
		"stale":      tv.Stale,
		"error":      tv.Err,
	}
	if tv.Received {
		snap := tv.Snapshot
		fields["price"] = snap.Price.String()
		fields["best_bid"] = snap.BestBid.String()
		fields["best_bid_size"] = snap.BestBidSize.String()
		fields["best_ask"] = snap.BestAsk.String()
		fields["best_ask_size"] = snap.BestAskSize.String()
		fields["volume_24h"] = snap.Volume24h.String()
		fields["spread"] = snap.BestAsk.Sub(snap.BestBid).StringFixed(tickerSpreadDecimal)
		if !snap.Time.IsZero() {
			fields["time"] = snap.Time.Format("2006-01-02T15:04:05.999999Z07:00")
		}
	}

	out, err := structpb.NewStruct(fields)
	return out, toStatus(err)
}
