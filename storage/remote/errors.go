package remote

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/void/storage"
)

// mapRPC translates gRPC failures back into storage sentinel errors.
// Transport-level failures become ErrUnavailable so storage.Fallback can
// engage the local store.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return storage.ErrUnavailable
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		return storage.ErrInvalidLocator
	case codes.DataLoss:
		return storage.ErrLocatorMismatch
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return storage.ErrUnavailable
	default:
		// Best-effort: if the server sent a known storage error message, preserve it.
		switch st.Message() {
		case storage.ErrNotFound.Error():
			return storage.ErrNotFound
		case storage.ErrInvalidLocator.Error():
			return storage.ErrInvalidLocator
		case storage.ErrLocatorMismatch.Error():
			return storage.ErrLocatorMismatch
		default:
			return err
		}
	}
}
