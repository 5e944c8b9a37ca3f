package grpcnode

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "ipfssimple.storage.grpcnode.v1.Node"

// NodeServer is the server API for the Node gRPC service.
//
// Messages are protobuf well-known types so this package does not require a
// protoc/codegen toolchain. Add options travel as request metadata using the
// gateway's query parameter names (pin, raw-leaves, hash).
type NodeServer interface {
	PinAdd(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	PinRm(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	PinLs(context.Context, *structpb.ListValue) (*structpb.ListValue, error)
	Cat(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Add(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	ObjectStat(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	SwarmConnect(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	ID(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// UnimplementedNodeServer can be embedded to have forward compatible implementations.
type UnimplementedNodeServer struct{}

func (UnimplementedNodeServer) PinAdd(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method PinAdd not implemented")
}
func (UnimplementedNodeServer) PinRm(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method PinRm not implemented")
}
func (UnimplementedNodeServer) PinLs(context.Context, *structpb.ListValue) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method PinLs not implemented")
}
func (UnimplementedNodeServer) Cat(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Cat not implemented")
}
func (UnimplementedNodeServer) Add(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Add not implemented")
}
func (UnimplementedNodeServer) ObjectStat(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ObjectStat not implemented")
}
func (UnimplementedNodeServer) SwarmConnect(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method SwarmConnect not implemented")
}
func (UnimplementedNodeServer) ID(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ID not implemented")
}

// RegisterNodeServer registers the Node service on a gRPC server.
func RegisterNodeServer(s grpc.ServiceRegistrar, srv NodeServer) {
	s.RegisterService(&Node_ServiceDesc, srv)
}

// NodeClient is the client API for the Node gRPC service.
type NodeClient interface {
	PinAdd(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	PinRm(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	PinLs(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Cat(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Add(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	ObjectStat(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	SwarmConnect(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	ID(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type nodeClient struct{ cc grpc.ClientConnInterface }

func NewNodeClient(cc grpc.ClientConnInterface) NodeClient { return &nodeClient{cc: cc} }

func (c *nodeClient) PinAdd(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/PinAdd", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) PinRm(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/PinRm", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) PinLs(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/PinLs", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Cat(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Cat", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Add(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Add", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) ObjectStat(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ObjectStat", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) SwarmConnect(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SwarmConnect", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) ID(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ID", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// methodHandler has the signature grpc.MethodDesc.Handler expects. The alias
// names an unnamed func type, so values of it assign to grpc's unexported
// handler type.
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

// unaryHandler builds a grpc.MethodDesc handler for a NodeServer method.
func unaryHandler[Req any, Resp any](method string, call func(NodeServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(NodeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(NodeServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Node_ServiceDesc is the grpc.ServiceDesc for the Node service.
var Node_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PinAdd", Handler: unaryHandler("PinAdd", NodeServer.PinAdd)},
		{MethodName: "PinRm", Handler: unaryHandler("PinRm", NodeServer.PinRm)},
		{MethodName: "PinLs", Handler: unaryHandler("PinLs", NodeServer.PinLs)},
		{MethodName: "Cat", Handler: unaryHandler("Cat", NodeServer.Cat)},
		{MethodName: "Add", Handler: unaryHandler("Add", NodeServer.Add)},
		{MethodName: "ObjectStat", Handler: unaryHandler("ObjectStat", NodeServer.ObjectStat)},
		{MethodName: "SwarmConnect", Handler: unaryHandler("SwarmConnect", NodeServer.SwarmConnect)},
		{MethodName: "ID", Handler: unaryHandler("ID", NodeServer.ID)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "node.proto",
}
