package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"wrap-rpc/message"
)

// RetryMiddleware retries calls whose response is a transient fault
// (timeouts, refused connections) with exponential backoff. Application
// failures carrying a traceback are never retried — the error already
// happened inside the handler.
func RetryMiddleware(logger *zap.Logger, maxRetries int, baseDelay time.Duration) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				text, failed := message.FaultText(resp)
				if !failed {
					return resp
				}
				if !retryable(text) {
					return resp
				}
				logger.Info("retrying call",
					zap.Int("attempt", i+1),
					zap.String("method", req.ServiceMethod),
					zap.String("error", text))
				time.Sleep(baseDelay * time.Duration(1<<i))
				resp = next(ctx, req)
			}
			return resp
		}
	}
}

func retryable(faultText string) bool {
	return strings.Contains(faultText, "timed out") ||
		strings.Contains(faultText, "timeout") ||
		strings.Contains(faultText, "connection refused")
}
