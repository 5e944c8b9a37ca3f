package grpcnode

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/ipfs-simple/storage"
)

// mapRPC converts a client-side RPC error back into the errors storage.Node
// callers branch on.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return &rpcError{msg: st.Message(), cause: storage.ErrNotFound}
	case codes.InvalidArgument:
		if st.Message() == storage.ErrInvalidCID.Error() {
			return storage.ErrInvalidCID
		}
		return errors.New(st.Message())
	case codes.DataLoss:
		return &rpcError{msg: st.Message(), cause: storage.ErrCIDMismatch}
	case codes.DeadlineExceeded:
		return &rpcError{msg: st.Message(), cause: context.DeadlineExceeded}
	case codes.Canceled:
		return &rpcError{msg: st.Message(), cause: context.Canceled}
	default:
		return errors.New(st.Message())
	}
}

// mapErr converts a storage.Node error into a gRPC status on the server side.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// rpcError keeps the server's message while matching a local sentinel.
type rpcError struct {
	msg   string
	cause error
}

func (e *rpcError) Error() string { return e.msg }
func (e *rpcError) Unwrap() error { return e.cause }
