package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wrap-rpc/message"
)

// LoggingMiddleware logs each call's method, duration, and — when the
// response payload is a failure envelope — its first display line.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.ServiceMethod),
				zap.Duration("duration", time.Since(start)),
			}
			if text, failed := message.FaultText(resp); failed {
				logger.Warn("rpc call failed", append(fields, zap.String("error", text))...)
			} else {
				logger.Info("rpc call", fields...)
			}
			return resp
		}
	}
}
