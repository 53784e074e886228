package stockalerts

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	MarketData_SubscribeQuotes_FullMethodName     = "/stockalerts.MarketData/SubscribeQuotes"
	MarketData_GetWatchlist_FullMethodName        = "/stockalerts.MarketData/GetWatchlist"
	MarketData_AddToWatchlist_FullMethodName      = "/stockalerts.MarketData/AddToWatchlist"
	MarketData_RemoveFromWatchlist_FullMethodName = "/stockalerts.MarketData/RemoveFromWatchlist"
)

type MarketData_SubscribeQuotesServer = grpc.ServerStreamingServer[Quote]

type MarketData_SubscribeQuotesClient = grpc.ServerStreamingClient[Quote]

type MarketDataServer interface {
	SubscribeQuotes(*SubscribeQuotesRequest, MarketData_SubscribeQuotesServer) error
	GetWatchlist(context.Context, *GetWatchlistRequest) (*WatchlistResponse, error)
	AddToWatchlist(context.Context, *WatchlistRequest) (*WatchlistResponse, error)
	RemoveFromWatchlist(context.Context, *WatchlistRequest) (*WatchlistResponse, error)
}

type UnimplementedMarketDataServer struct{}

func (UnimplementedMarketDataServer) SubscribeQuotes(*SubscribeQuotesRequest, MarketData_SubscribeQuotesServer) error {
	return status.Error(codes.Unimplemented, "method SubscribeQuotes not implemented")
}

func (UnimplementedMarketDataServer) GetWatchlist(context.Context, *GetWatchlistRequest) (*WatchlistResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetWatchlist not implemented")
}

func (UnimplementedMarketDataServer) AddToWatchlist(context.Context, *WatchlistRequest) (*WatchlistResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AddToWatchlist not implemented")
}

func (UnimplementedMarketDataServer) RemoveFromWatchlist(context.Context, *WatchlistRequest) (*WatchlistResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveFromWatchlist not implemented")
}

func RegisterMarketDataServer(s grpc.ServiceRegistrar, srv MarketDataServer) {
	s.RegisterService(&MarketData_ServiceDesc, srv)
}

func _MarketData_SubscribeQuotes_Handler(srv any, stream grpc.ServerStream) error {
	m := new(SubscribeQuotesRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MarketDataServer).SubscribeQuotes(m, &grpc.GenericServerStream[SubscribeQuotesRequest, Quote]{ServerStream: stream})
}

func _MarketData_GetWatchlist_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetWatchlistRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketDataServer).GetWatchlist(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MarketData_GetWatchlist_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MarketDataServer).GetWatchlist(ctx, req.(*GetWatchlistRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MarketData_AddToWatchlist_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WatchlistRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketDataServer).AddToWatchlist(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MarketData_AddToWatchlist_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MarketDataServer).AddToWatchlist(ctx, req.(*WatchlistRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _MarketData_RemoveFromWatchlist_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WatchlistRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketDataServer).RemoveFromWatchlist(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MarketData_RemoveFromWatchlist_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MarketDataServer).RemoveFromWatchlist(ctx, req.(*WatchlistRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var MarketData_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "stockalerts.MarketData",
	HandlerType: (*MarketDataServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetWatchlist", Handler: _MarketData_GetWatchlist_Handler},
		{MethodName: "AddToWatchlist", Handler: _MarketData_AddToWatchlist_Handler},
		{MethodName: "RemoveFromWatchlist", Handler: _MarketData_RemoveFromWatchlist_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeQuotes",
			Handler:       _MarketData_SubscribeQuotes_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "stockalerts.proto",
}

type MarketDataClient interface {
	SubscribeQuotes(ctx context.Context, in *SubscribeQuotesRequest, opts ...grpc.CallOption) (MarketData_SubscribeQuotesClient, error)
	GetWatchlist(ctx context.Context, in *GetWatchlistRequest, opts ...grpc.CallOption) (*WatchlistResponse, error)
	AddToWatchlist(ctx context.Context, in *WatchlistRequest, opts ...grpc.CallOption) (*WatchlistResponse, error)
	RemoveFromWatchlist(ctx context.Context, in *WatchlistRequest, opts ...grpc.CallOption) (*WatchlistResponse, error)
}

type marketDataClient struct {
	cc grpc.ClientConnInterface
}

func NewMarketDataClient(cc grpc.ClientConnInterface) MarketDataClient {
	return &marketDataClient{cc}
}

func (c *marketDataClient) SubscribeQuotes(ctx context.Context, in *SubscribeQuotesRequest, opts ...grpc.CallOption) (MarketData_SubscribeQuotesClient, error) {
	stream, err := c.cc.NewStream(ctx, &MarketData_ServiceDesc.Streams[0], MarketData_SubscribeQuotes_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SubscribeQuotesRequest, Quote]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *marketDataClient) GetWatchlist(ctx context.Context, in *GetWatchlistRequest, opts ...grpc.CallOption) (*WatchlistResponse, error) {
	out := new(WatchlistResponse)
	if err := c.cc.Invoke(ctx, MarketData_GetWatchlist_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *marketDataClient) AddToWatchlist(ctx context.Context, in *WatchlistRequest, opts ...grpc.CallOption) (*WatchlistResponse, error) {
	out := new(WatchlistResponse)
	if err := c.cc.Invoke(ctx, MarketData_AddToWatchlist_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *marketDataClient) RemoveFromWatchlist(ctx context.Context, in *WatchlistRequest, opts ...grpc.CallOption) (*WatchlistResponse, error) {
	out := new(WatchlistResponse)
	if err := c.cc.Invoke(ctx, MarketData_RemoveFromWatchlist_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
