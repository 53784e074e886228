package stockalerts

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	AlertService_CreateAlert_FullMethodName     = "/stockalerts.AlertService/CreateAlert"
	AlertService_ListAlerts_FullMethodName      = "/stockalerts.AlertService/ListAlerts"
	AlertService_DeleteAlert_FullMethodName     = "/stockalerts.AlertService/DeleteAlert"
	AlertService_RearmAlert_FullMethodName      = "/stockalerts.AlertService/RearmAlert"
	AlertService_DisarmAlert_FullMethodName     = "/stockalerts.AlertService/DisarmAlert"
	AlertService_SubscribeAlerts_FullMethodName = "/stockalerts.AlertService/SubscribeAlerts"
)

type AlertService_SubscribeAlertsServer = grpc.ServerStreamingServer[AlertEvent]

type AlertService_SubscribeAlertsClient = grpc.ServerStreamingClient[AlertEvent]

type AlertServiceServer interface {
	CreateAlert(context.Context, *CreateAlertRequest) (*AlertResponse, error)
	ListAlerts(context.Context, *ListAlertsRequest) (*ListAlertsResponse, error)
	DeleteAlert(context.Context, *AlertIDRequest) (*DeleteAlertResponse, error)
	RearmAlert(context.Context, *AlertIDRequest) (*AlertResponse, error)
	DisarmAlert(context.Context, *AlertIDRequest) (*AlertResponse, error)
	SubscribeAlerts(*SubscribeAlertsRequest, AlertService_SubscribeAlertsServer) error
}

type UnimplementedAlertServiceServer struct{}

func (UnimplementedAlertServiceServer) CreateAlert(context.Context, *CreateAlertRequest) (*AlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateAlert not implemented")
}

func (UnimplementedAlertServiceServer) ListAlerts(context.Context, *ListAlertsRequest) (*ListAlertsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAlerts not implemented")
}

func (UnimplementedAlertServiceServer) DeleteAlert(context.Context, *AlertIDRequest) (*DeleteAlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteAlert not implemented")
}

func (UnimplementedAlertServiceServer) RearmAlert(context.Context, *AlertIDRequest) (*AlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RearmAlert not implemented")
}

func (UnimplementedAlertServiceServer) DisarmAlert(context.Context, *AlertIDRequest) (*AlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DisarmAlert not implemented")
}

func (UnimplementedAlertServiceServer) SubscribeAlerts(*SubscribeAlertsRequest, AlertService_SubscribeAlertsServer) error {
	return status.Error(codes.Unimplemented, "method SubscribeAlerts not implemented")
}

func RegisterAlertServiceServer(s grpc.ServiceRegistrar, srv AlertServiceServer) {
	s.RegisterService(&AlertService_ServiceDesc, srv)
}

// unaryHandler builds a grpc.MethodDesc handler for a unary method.
func unaryHandler[Req any, Resp any](fullMethod string, call func(AlertServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AlertServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AlertServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func _AlertService_SubscribeAlerts_Handler(srv any, stream grpc.ServerStream) error {
	m := new(SubscribeAlertsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(AlertServiceServer).SubscribeAlerts(m, &grpc.GenericServerStream[SubscribeAlertsRequest, AlertEvent]{ServerStream: stream})
}

var AlertService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "stockalerts.AlertService",
	HandlerType: (*AlertServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateAlert",
			Handler:    unaryHandler(AlertService_CreateAlert_FullMethodName, AlertServiceServer.CreateAlert),
		},
		{
			MethodName: "ListAlerts",
			Handler:    unaryHandler(AlertService_ListAlerts_FullMethodName, AlertServiceServer.ListAlerts),
		},
		{
			MethodName: "DeleteAlert",
			Handler:    unaryHandler(AlertService_DeleteAlert_FullMethodName, AlertServiceServer.DeleteAlert),
		},
		{
			MethodName: "RearmAlert",
			Handler:    unaryHandler(AlertService_RearmAlert_FullMethodName, AlertServiceServer.RearmAlert),
		},
		{
			MethodName: "DisarmAlert",
			Handler:    unaryHandler(AlertService_DisarmAlert_FullMethodName, AlertServiceServer.DisarmAlert),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeAlerts",
			Handler:       _AlertService_SubscribeAlerts_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "stockalerts.proto",
}

type AlertServiceClient interface {
	CreateAlert(ctx context.Context, in *CreateAlertRequest, opts ...grpc.CallOption) (*AlertResponse, error)
	ListAlerts(ctx context.Context, in *ListAlertsRequest, opts ...grpc.CallOption) (*ListAlertsResponse, error)
	DeleteAlert(ctx context.Context, in *AlertIDRequest, opts ...grpc.CallOption) (*DeleteAlertResponse, error)
	RearmAlert(ctx context.Context, in *AlertIDRequest, opts ...grpc.CallOption) (*AlertResponse, error)
	DisarmAlert(ctx context.Context, in *AlertIDRequest, opts ...grpc.CallOption) (*AlertResponse, error)
	SubscribeAlerts(ctx context.Context, in *SubscribeAlertsRequest, opts ...grpc.CallOption) (AlertService_SubscribeAlertsClient, error)
}

type alertServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAlertServiceClient(cc grpc.ClientConnInterface) AlertServiceClient {
	return &alertServiceClient{cc}
}

func (c *alertServiceClient) CreateAlert(ctx context.Context, in *CreateAlertRequest, opts ...grpc.CallOption) (*AlertResponse, error) {
	out := new(AlertResponse)
	if err := c.cc.Invoke(ctx, AlertService_CreateAlert_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *alertServiceClient) ListAlerts(ctx context.Context, in *ListAlertsRequest, opts ...grpc.CallOption) (*ListAlertsResponse, error) {
	out := new(ListAlertsResponse)
	if err := c.cc.Invoke(ctx, AlertService_ListAlerts_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *alertServiceClient) DeleteAlert(ctx context.Context, in *AlertIDRequest, opts ...grpc.CallOption) (*DeleteAlertResponse, error) {
	out := new(DeleteAlertResponse)
	if err := c.cc.Invoke(ctx, AlertService_DeleteAlert_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *alertServiceClient) RearmAlert(ctx context.Context, in *AlertIDRequest, opts ...grpc.CallOption) (*AlertResponse, error) {
	out := new(AlertResponse)
	if err := c.cc.Invoke(ctx, AlertService_RearmAlert_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *alertServiceClient) DisarmAlert(ctx context.Context, in *AlertIDRequest, opts ...grpc.CallOption) (*AlertResponse, error) {
	out := new(AlertResponse)
	if err := c.cc.Invoke(ctx, AlertService_DisarmAlert_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *alertServiceClient) SubscribeAlerts(ctx context.Context, in *SubscribeAlertsRequest, opts ...grpc.CallOption) (AlertService_SubscribeAlertsClient, error) {
	stream, err := c.cc.NewStream(ctx, &AlertService_ServiceDesc.Streams[0], AlertService_SubscribeAlerts_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SubscribeAlertsRequest, AlertEvent]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
