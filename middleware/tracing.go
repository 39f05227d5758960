package middleware

import (
	"context"

	"github.com/gossip-lsp/gutter/jsonrpc"
)

// Tracing returns middleware that records the method being served in the
// context, so handlers deeper in the chain can recover it with TraceMethod.
// The bridge server always installs it outermost.
func Tracing() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params jsonrpc.RawMessage) (any, error) {
			ctx = context.WithValue(ctx, traceMethodKey{}, method)
			return next(ctx, method, params)
		}
	}
}

type traceMethodKey struct{}

// TraceMethod returns the method set by Tracing, or "" outside a traced call.
func TraceMethod(ctx context.Context) string {
	if v, ok := ctx.Value(traceMethodKey{}).(string); ok {
		return v
	}
	return ""
}
