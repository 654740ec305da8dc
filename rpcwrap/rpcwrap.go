// Package rpcwrap applies the envelope protocol around call boundaries:
// handle-side adapters catch a handler's error and return a sanitized failure
// envelope, call-side adapters unwrap a response and surface remote failures
// as errors. Plain and context-aware variants share one core; the bindings
// differ only in how the inner operation is invoked.
package rpcwrap

import (
	"context"
	"errors"

	"wrap-rpc/envelope"
)

// Func is a plain wrapped operation.
type Func func() (any, error)

// CtxFunc is a context-aware wrapped operation.
type CtxFunc func(ctx context.Context) (any, error)

// ErrorHandler observes the live error on the handle side before it is
// sanitized, for logging or telemetry. It must not retain the error past the
// call.
type ErrorHandler func(err error)

// HandleCall invokes a handler and wraps its outcome: success envelopes for
// results, sanitized failure envelopes for errors. The handler contract is
// "handlers return, callers raise" — a caught error is always reported via
// onError (when set) and always comes back as an envelope, never as the
// second return value.
//
// Cancellation-class errors are the one exception: they are returned raw and
// no envelope is produced, since the envelope mechanism cannot both notify
// the remote caller and keep the interruption moving.
func HandleCall(onError ErrorHandler, fn Func) (*envelope.Envelope, error) {
	return handle(onError, fn)
}

// HandleCallContext is HandleCall for context-aware handlers.
func HandleCallContext(ctx context.Context, onError ErrorHandler, fn CtxFunc) (*envelope.Envelope, error) {
	return handle(onError, func() (any, error) {
		return fn(ctx)
	})
}

func handle(onError ErrorHandler, invoke Func) (*envelope.Envelope, error) {
	result, err := invoke()
	if err == nil {
		return envelope.WrapResult(result), nil
	}
	if isInterrupt(err) {
		return nil, err
	}
	if onError != nil {
		onError(err)
	}
	return envelope.WrapError(err).Sanitize(), nil
}

// isInterrupt reports cancellation-class errors, which propagate instead of
// being wrapped.
func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Call invokes a remote operation and unwraps its response: plain values
// pass through, success envelopes yield their result, failure envelopes come
// back as an error (a RemoteError once the failure has crossed a process
// boundary).
func Call(fn Func) (any, error) {
	result, err := fn()
	if err != nil {
		return nil, err
	}
	return envelope.Unwrap(result)
}

// CallContext is Call for context-aware operations.
func CallContext(ctx context.Context, fn CtxFunc) (any, error) {
	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	return envelope.Unwrap(result)
}

// WrapHandler returns fn with the handle-side protocol applied: the returned
// function's result is always an envelope (or a raw cancellation error).
// Composition is explicit — callers opt in per function.
func WrapHandler(onError ErrorHandler, fn CtxFunc) CtxFunc {
	return func(ctx context.Context) (any, error) {
		env, err := HandleCallContext(ctx, onError, fn)
		if err != nil {
			return nil, err
		}
		return env, nil
	}
}

// WrapCaller returns fn with the call-side protocol applied: envelopes in the
// result are unwrapped automatically.
func WrapCaller(fn CtxFunc) CtxFunc {
	return func(ctx context.Context) (any, error) {
		return CallContext(ctx, fn)
	}
}
