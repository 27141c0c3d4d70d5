package foreign

import (
	"context"
	stderrors "errors"

	"github.com/docbridge/docbridge/pkg/errors"
)

// Wrap converts a dispatch failure into a typed bridge error tagged with
// component and operation. Errors that already are bridge errors pass
// through unchanged.
func Wrap(component, operation string, err error) error {
	if err == nil {
		return nil
	}

	var bridgeErr *errors.BridgeError
	if stderrors.As(err, &bridgeErr) {
		return err
	}

	var exc *Exception
	var code errors.ErrorCode
	switch {
	case stderrors.Is(err, ErrNoSuchClass), stderrors.Is(err, ErrNoSuchMethod):
		code = errors.ErrCodeRuntimeSetup
	case stderrors.Is(err, ErrTypeMismatch), stderrors.Is(err, ErrNullReference):
		code = errors.ErrCodeProtocol
	case stderrors.Is(err, ErrDetached):
		code = errors.ErrCodeAttachFailed
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		code = errors.ErrCodeOperationCanceled
	case stderrors.As(err, &exc):
		code = errors.ErrCodeForeignException
	default:
		code = errors.ErrCodeUnknown
	}

	wrapped := errors.NewError(code, err.Error()).
		WithComponent(component).
		WithOperation(operation).
		WithCause(err)
	if exc != nil && exc.Class != "" {
		wrapped.WithContext("exception", exc.Class)
	}
	return wrapped
}
