package middleware

import (
	"context"
	"time"

	"wrap-rpc/message"
)

// TimeOutMiddleware bounds handler execution. On expiry the caller gets a
// strings-only fault envelope; the handler goroutine keeps running until it
// returns on its own (its context is cancelled, so well-behaved handlers
// exit promptly).
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.RPCMessage, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.Fault(req.ServiceMethod, "request timed out")
			}
		}
	}
}
