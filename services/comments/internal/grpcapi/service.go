package grpcapi

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/oration/services/comments/internal/tree"
)

type Counter interface {
	Count(ctx context.Context, uri string) (int64, error)
}

type TreeLister interface {
	List(ctx context.Context, uri string) ([]*tree.Node, error)
}

type CommentService struct {
	Comments Counter
	Trees    TreeLister
	Log      *zap.Logger
}

func (s *CommentService) Count(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	uri := strings.TrimSpace(req.GetValue())
	if uri == "" {
		return nil, errInvalidArgument("MISSING_URI", "uri required")
	}
	n, err := s.Comments.Count(ctx, uri)
	if err != nil {
		return nil, s.fromFault(err)
	}
	return wrapperspb.Int64(n), nil
}

func (s *CommentService) List(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	uri := strings.TrimSpace(req.GetValue())
	if uri == "" {
		return nil, errInvalidArgument("MISSING_URI", "uri required")
	}
	nodes, err := s.Trees.List(ctx, uri)
	if err != nil {
		return nil, s.fromFault(err)
	}
	list, err := toListValue(nodes)
	if err != nil {
		s.log().Error("encode tree", zap.String("uri", uri), zap.Error(err))
		return nil, errInternal("ENCODE_FAILED", "could not encode comments")
	}
	return list, nil
}

// toListValue converts nodes to their JSON shape.
func toListValue(nodes []*tree.Node) (*structpb.ListValue, error) {
	if nodes == nil {
		nodes = []*tree.Node{}
	}
	b, err := json.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	var generic []any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return structpb.NewList(generic)
}

func (s *CommentService) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
