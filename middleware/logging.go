package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gossip-lsp/gutter/jsonrpc"
)

// Logging returns middleware that logs each request's method, duration, and
// errors. Baseline lookups that miss are expected traffic and are logged at
// debug level rather than as failures.
func Logging(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params jsonrpc.RawMessage) (any, error) {
			start := time.Now()
			result, err := next(ctx, method, params)

			attrs := []slog.Attr{
				slog.String("method", method),
				slog.Duration("duration", time.Since(start)),
			}
			if id := RequestID(ctx); id != "" {
				attrs = append(attrs, slog.String("request", id))
			}

			level := slog.LevelDebug
			msg := "request handled"
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				msg = "request failed"
				if jsonrpc.ErrorCode(err) != jsonrpc.CodeBaselineNotFound {
					level = slog.LevelError
				}
			}
			logger.LogAttrs(ctx, level, msg, attrs...)

			return result, err
		}
	}
}
