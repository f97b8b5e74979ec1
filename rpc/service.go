package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "coinbasebridge.MarketDataService"

type MarketDataServiceServer interface {
	GetOrderBook(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetTicker(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SelectProduct(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	SetViewParams(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetCandles(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetProducts(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// The service speaks well-known types only, so there is no generated code.
var MarketDataService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketDataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetOrderBook",
			Handler: unary("GetOrderBook", func(s MarketDataServiceServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.GetOrderBook(ctx, in)
			}),
		},
		{
			MethodName: "GetTicker",
			Handler: unary("GetTicker", func(s MarketDataServiceServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.GetTicker(ctx, in)
			}),
		},
		{
			MethodName: "SelectProduct",
			Handler: unary("SelectProduct", func(s MarketDataServiceServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
				return s.SelectProduct(ctx, in)
			}),
		},
		{
			MethodName: "SetViewParams",
			Handler: unary("SetViewParams", func(s MarketDataServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
				return s.SetViewParams(ctx, in)
			}),
		},
		{
			MethodName: "GetCandles",
			Handler: unary("GetCandles", func(s MarketDataServiceServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
				return s.GetCandles(ctx, in)
			}),
		},
		{
			MethodName: "GetProducts",
			Handler: unary("GetProducts", func(s MarketDataServiceServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.GetProducts(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coinbasebridge/market_data.proto",
}

func RegisterMarketDataServiceServer(s grpc.ServiceRegistrar, srv MarketDataServiceServer) {
	s.RegisterService(&MarketDataService_ServiceDesc, srv)
}

func unary[Req any](
	method string, call func(MarketDataServiceServer, context.Context, *Req) (proto.Message, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + ServiceName + "/" + method

	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MarketDataServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(MarketDataServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type MarketDataServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMarketDataServiceClient(cc grpc.ClientConnInterface) *MarketDataServiceClient {
	return &MarketDataServiceClient{cc: cc}
}

func (c *MarketDataServiceClient) GetOrderBook(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetOrderBook", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MarketDataServiceClient) GetTicker(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetTicker", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MarketDataServiceClient) SelectProduct(ctx context.Context, productID string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/SelectProduct", wrapperspb.String(productID), new(emptypb.Empty), opts...)
}

func (c *MarketDataServiceClient) SetViewParams(ctx context.Context, params *structpb.Struct, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/SetViewParams", params, new(emptypb.Empty), opts...)
}

func (c *MarketDataServiceClient) GetCandles(ctx context.Context, productID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetCandles", wrapperspb.String(productID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MarketDataServiceClient) GetProducts(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetProducts", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
