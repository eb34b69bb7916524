package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "worksheets.v1.WorksheetService"

const (
	MethodRegisterUser = "/" + ServiceName + "/RegisterUser"
	MethodGetSalt      = "/" + ServiceName + "/GetSalt"
	MethodLogin        = "/" + ServiceName + "/Login"
	MethodRefreshToken = "/" + ServiceName + "/RefreshToken"
	MethodPing         = "/" + ServiceName + "/Ping"
	MethodFetchAll     = "/" + ServiceName + "/FetchAll"
	MethodSave         = "/" + ServiceName + "/Save"
	MethodSoftDelete   = "/" + ServiceName + "/SoftDelete"
	MethodSubscribe    = "/" + ServiceName + "/Subscribe"
	MethodExport       = "/" + ServiceName + "/Export"
)

// PublicMethods can be called without an access token.
var PublicMethods = map[string]bool{
	MethodRegisterUser: true,
	MethodGetSalt:      true,
	MethodLogin:        true,
	MethodRefreshToken: true,
	MethodPing:         true,
}

// WorksheetServiceServer is the server API for WorksheetService.
type WorksheetServiceServer interface {
	RegisterUser(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetSalt(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshToken(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	FetchAll(context.Context, *wrapperspb.BoolValue) (*structpb.ListValue, error)
	Save(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	SoftDelete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Subscribe(*emptypb.Empty, grpc.ServerStreamingServer[structpb.ListValue]) error
	Export(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// UnimplementedWorksheetServiceServer can be embedded to have forward
// compatible implementations.
type UnimplementedWorksheetServiceServer struct{}

func (UnimplementedWorksheetServiceServer) RegisterUser(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method RegisterUser not implemented")
}
func (UnimplementedWorksheetServiceServer) GetSalt(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSalt not implemented")
}
func (UnimplementedWorksheetServiceServer) Login(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Login not implemented")
}
func (UnimplementedWorksheetServiceServer) RefreshToken(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method RefreshToken not implemented")
}
func (UnimplementedWorksheetServiceServer) Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}
func (UnimplementedWorksheetServiceServer) FetchAll(context.Context, *wrapperspb.BoolValue) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method FetchAll not implemented")
}
func (UnimplementedWorksheetServiceServer) Save(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Save not implemented")
}
func (UnimplementedWorksheetServiceServer) SoftDelete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method SoftDelete not implemented")
}
func (UnimplementedWorksheetServiceServer) Subscribe(*emptypb.Empty, grpc.ServerStreamingServer[structpb.ListValue]) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}
func (UnimplementedWorksheetServiceServer) Export(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Export not implemented")
}

func RegisterWorksheetServiceServer(s grpc.ServiceRegistrar, srv WorksheetServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unaryHandler adapts a typed server method to grpc.MethodHandler.
func unaryHandler[T any](method string, call func(WorksheetServiceServer, context.Context, *T) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(T)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(WorksheetServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*T))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WorksheetServiceServer).Subscribe(in, &grpc.GenericServerStream[emptypb.Empty, structpb.ListValue]{ServerStream: stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorksheetServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RegisterUser",
			Handler: unaryHandler(MethodRegisterUser, func(s WorksheetServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.RegisterUser(ctx, in)
			}),
		},
		{
			MethodName: "GetSalt",
			Handler: unaryHandler(MethodGetSalt, func(s WorksheetServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return s.GetSalt(ctx, in)
			}),
		},
		{
			MethodName: "Login",
			Handler: unaryHandler(MethodLogin, func(s WorksheetServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.Login(ctx, in)
			}),
		},
		{
			MethodName: "RefreshToken",
			Handler: unaryHandler(MethodRefreshToken, func(s WorksheetServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return s.RefreshToken(ctx, in)
			}),
		},
		{
			MethodName: "Ping",
			Handler: unaryHandler(MethodPing, func(s WorksheetServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.Ping(ctx, in)
			}),
		},
		{
			MethodName: "FetchAll",
			Handler: unaryHandler(MethodFetchAll, func(s WorksheetServiceServer, ctx context.Context, in *wrapperspb.BoolValue) (any, error) {
				return s.FetchAll(ctx, in)
			}),
		},
		{
			MethodName: "Save",
			Handler: unaryHandler(MethodSave, func(s WorksheetServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.Save(ctx, in)
			}),
		},
		{
			MethodName: "SoftDelete",
			Handler: unaryHandler(MethodSoftDelete, func(s WorksheetServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return s.SoftDelete(ctx, in)
			}),
		},
		{
			MethodName: "Export",
			Handler: unaryHandler(MethodExport, func(s WorksheetServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.Export(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "worksheets/v1/service",
}

// WorksheetServiceClient is the client API for WorksheetService.
type WorksheetServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewWorksheetServiceClient(cc grpc.ClientConnInterface) *WorksheetServiceClient {
	return &WorksheetServiceClient{cc: cc}
}

func (c *WorksheetServiceClient) RegisterUser(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, MethodRegisterUser, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorksheetServiceClient) GetSalt(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, MethodGetSalt, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorksheetServiceClient) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodLogin, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorksheetServiceClient) RefreshToken(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodRefreshToken, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorksheetServiceClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, MethodPing, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorksheetServiceClient) FetchAll(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, MethodFetchAll, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorksheetServiceClient) Save(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, MethodSave, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorksheetServiceClient) SoftDelete(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, MethodSoftDelete, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorksheetServiceClient) Subscribe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.ListValue], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodSubscribe, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.ListValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *WorksheetServiceClient) Export(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, MethodExport, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
