package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "oration.v1.CommentService"

	countMethod = "/" + ServiceName + "/Count"
	listMethod  = "/" + ServiceName + "/List"
)

// CommentServiceServer is the read API of the comment engine. Both
// methods take the thread URI.
type CommentServiceServer interface {
	Count(ctx context.Context, uri *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	List(ctx context.Context, uri *wrapperspb.StringValue) (*structpb.ListValue, error)
}

// ServiceDesc describes oration.v1.CommentService using well-known
// message types only.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Count", Handler: countHandler},
		{MethodName: "List", Handler: listHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "oration/v1/comments.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv CommentServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func countHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommentServiceServer).Count(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: countMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommentServiceServer).Count(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommentServiceServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommentServiceServer).List(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls oration.v1.CommentService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Count(ctx context.Context, uri string, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, countMethod, wrapperspb.String(uri), out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

func (c *Client) List(ctx context.Context, uri string, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, listMethod, wrapperspb.String(uri), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
