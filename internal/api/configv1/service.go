// Package configv1 declares the sitecfg.v1.ConfigService gRPC API. Every
// request and response is a google.protobuf.Struct; the field layout of each
// message is documented on the server interface.
package configv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sitecfg.v1.ConfigService"

// Full method names.
const (
	MethodCommit       = "/" + ServiceName + "/Commit"
	MethodGetDocument  = "/" + ServiceName + "/GetDocument"
	MethodListHistory  = "/" + ServiceName + "/ListHistory"
	MethodListRecent   = "/" + ServiceName + "/ListRecent"
	MethodLatestPerKey = "/" + ServiceName + "/LatestPerKey"
	MethodGetRevision  = "/" + ServiceName + "/GetRevision"
	MethodRestore      = "/" + ServiceName + "/Restore"
	MethodDescribe     = "/" + ServiceName + "/Describe"
	MethodVerifyChain  = "/" + ServiceName + "/VerifyChain"
)

// ConfigServiceServer is the server API.
type ConfigServiceServer interface {
	// Commit {key, document, sourcePath?, note?} -> {mode, revision|null}
	Commit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetDocument {key} -> {key, document, updatedAt}
	GetDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListHistory {key, limit?} -> {revisions}
	ListHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListRecent {limit?, pattern?} -> {revisions}
	ListRecent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// LatestPerKey {limit?} -> {revisions}
	LatestPerKey(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetRevision {id} -> revision
	GetRevision(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Restore {key, revisionId, note?} -> {mode, revision|null}
	Restore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Describe {key, path} -> {label}
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// VerifyChain {key, limit?} -> {ok, breaks}
	VerifyChain(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ConfigServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ConfigServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		next := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ConfigServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, next)
	}
}

// ServiceDesc describes ConfigService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConfigServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Commit", Handler: handler(MethodCommit, ConfigServiceServer.Commit)},
		{MethodName: "GetDocument", Handler: handler(MethodGetDocument, ConfigServiceServer.GetDocument)},
		{MethodName: "ListHistory", Handler: handler(MethodListHistory, ConfigServiceServer.ListHistory)},
		{MethodName: "ListRecent", Handler: handler(MethodListRecent, ConfigServiceServer.ListRecent)},
		{MethodName: "LatestPerKey", Handler: handler(MethodLatestPerKey, ConfigServiceServer.LatestPerKey)},
		{MethodName: "GetRevision", Handler: handler(MethodGetRevision, ConfigServiceServer.GetRevision)},
		{MethodName: "Restore", Handler: handler(MethodRestore, ConfigServiceServer.Restore)},
		{MethodName: "Describe", Handler: handler(MethodDescribe, ConfigServiceServer.Describe)},
		{MethodName: "VerifyChain", Handler: handler(MethodVerifyChain, ConfigServiceServer.VerifyChain)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sitecfg/v1/config.proto",
}

// RegisterConfigServiceServer registers srv with s.
func RegisterConfigServiceServer(s grpc.ServiceRegistrar, srv ConfigServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ConfigServiceClient is the client API.
type ConfigServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewConfigServiceClient wraps a client connection.
func NewConfigServiceClient(cc grpc.ClientConnInterface) *ConfigServiceClient {
	return &ConfigServiceClient{cc: cc}
}

// Call invokes a unary method by its full name.
func (c *ConfigServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ConfigServiceClient) Commit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodCommit, in, opts...)
}

func (c *ConfigServiceClient) GetDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodGetDocument, in, opts...)
}

func (c *ConfigServiceClient) ListHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodListHistory, in, opts...)
}

func (c *ConfigServiceClient) ListRecent(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodListRecent, in, opts...)
}

func (c *ConfigServiceClient) LatestPerKey(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodLatestPerKey, in, opts...)
}

func (c *ConfigServiceClient) GetRevision(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodGetRevision, in, opts...)
}

func (c *ConfigServiceClient) Restore(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodRestore, in, opts...)
}

func (c *ConfigServiceClient) Describe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodDescribe, in, opts...)
}

func (c *ConfigServiceClient) VerifyChain(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodVerifyChain, in, opts...)
}
