package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/zehem/internal/errs"
)

// Error converts a domain error into a Connect error with a matching code.
// It returns nil for a nil error.
func Error(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}
	return connect.NewError(Code(err), err)
}

// Code maps the errs taxonomy onto Connect codes.
func Code(err error) connect.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, errs.ErrForbidden):
		return connect.CodePermissionDenied
	case errors.Is(err, errs.ErrDuplicateMembership), errors.Is(err, errs.ErrAlreadyExists):
		return connect.CodeAlreadyExists
	case errors.Is(err, errs.ErrAdminCapExceeded):
		return connect.CodeResourceExhausted
	case errors.Is(err, errs.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, errs.ErrInvalidArgument):
		return connect.CodeInvalidArgument
	case errors.Is(err, errs.ErrInsufficientFunds):
		return connect.CodeFailedPrecondition
	case errors.Is(err, errs.ErrStoreUnavailable):
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}
