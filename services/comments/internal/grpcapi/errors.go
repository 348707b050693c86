package grpcapi

import (
	"errors"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/oration/services/comments/internal/fault"
)

const errorDomain = "oration"

func withInfo(c codes.Code, reason, msg string) error {
	st := status.New(c, msg)
	st2, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain})
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func errInvalidArgument(reason, msg string) error {
	return withInfo(codes.InvalidArgument, reason, msg)
}

func errInternal(reason, msg string) error {
	return withInfo(codes.Internal, reason, msg)
}

// fromFault maps engine errors to gRPC statuses.
func (s *CommentService) fromFault(err error) error {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return withInfo(codes.NotFound, "NOT_FOUND", "not found")
	case errors.Is(err, fault.ErrStorageRead), errors.Is(err, fault.ErrStorageWrite):
		s.log().Error("storage failure", zap.Error(err))
		return withInfo(codes.Unavailable, "STORAGE", "storage unavailable")
	default:
		s.log().Error("request failed", zap.Error(err))
		return errInternal(fault.KindOf(err).String(), "internal error")
	}
}
