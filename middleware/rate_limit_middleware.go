package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"wrap-rpc/message"
)

// RateLimitMiddleware rejects calls beyond the token-bucket rate with a
// fault envelope. One limiter is shared across all calls through this
// middleware instance.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			if !limiter.Allow() {
				return message.Fault(req.ServiceMethod, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
