package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/oration/services/comments/internal/fault"
	"github.com/example/oration/services/comments/internal/tree"
)

type fakeCounter struct {
	n   int64
	err error
}

func (f fakeCounter) Count(context.Context, string) (int64, error) { return f.n, f.err }

type fakeTrees struct {
	nodes []*tree.Node
	err   error
}

func (f fakeTrees) List(context.Context, string) ([]*tree.Node, error) { return f.nodes, f.err }

func dial(t *testing.T, svc *CommentService) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestCount(t *testing.T) {
	c := dial(t, &CommentService{Comments: fakeCounter{n: 5}, Trees: fakeTrees{}})
	n, err := c.Count(context.Background(), "/post")
	if err != nil || n != 5 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestCountRequiresURI(t *testing.T) {
	c := dial(t, &CommentService{Comments: fakeCounter{}, Trees: fakeTrees{}})
	_, err := c.Count(context.Background(), " ")
	st, _ := status.FromError(err)
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	var info *errdetails.ErrorInfo
	for _, d := range st.Details() {
		if i, ok := d.(*errdetails.ErrorInfo); ok {
			info = i
		}
	}
	if info == nil || info.Reason != "MISSING_URI" || info.Domain != "oration" {
		t.Fatalf("unexpected details %v", st.Details())
	}
}

func TestListShapesTree(t *testing.T) {
	author := "A"
	nodes := []*tree.Node{{
		ID: 1, Text: "hello", Author: &author, Votes: 2,
		Children: []*tree.Node{{ID: 2, Text: "hi back", Children: []*tree.Node{}}},
	}}
	c := dial(t, &CommentService{Comments: fakeCounter{}, Trees: fakeTrees{nodes: nodes}})

	list, err := c.List(context.Background(), "/post")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.GetValues()) != 1 {
		t.Fatalf("expected one root, got %d", len(list.GetValues()))
	}
	root := list.GetValues()[0].GetStructValue().GetFields()
	if root["text"].GetStringValue() != "hello" || root["votes"].GetNumberValue() != 2 {
		t.Fatalf("unexpected root %v", root)
	}
	children := root["children"].GetListValue().GetValues()
	if len(children) != 1 || children[0].GetStructValue().GetFields()["id"].GetNumberValue() != 2 {
		t.Fatalf("unexpected children %v", children)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{fault.E(fault.KindNotFound, "x", nil), codes.NotFound},
		{fault.E(fault.KindStorageRead, "x", errors.New("down")), codes.Unavailable},
		{errors.New("other"), codes.Internal},
	}
	for _, tc := range cases {
		c := dial(t, &CommentService{Comments: fakeCounter{err: tc.err}, Trees: fakeTrees{}})
		_, err := c.Count(context.Background(), "/post")
		if status.Code(err) != tc.code {
			t.Fatalf("%v: expected %v, got %v", tc.err, tc.code, err)
		}
	}
}
