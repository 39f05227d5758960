package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/gossip-lsp/gutter/jsonrpc"
)

type requestIDKey struct{}

// RequestIDs returns middleware that tags each request's context with a
// fresh random id, picked up by Logging and Recovery.
func RequestIDs() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params jsonrpc.RawMessage) (any, error) {
			ctx = context.WithValue(ctx, requestIDKey{}, uuid.NewString())
			return next(ctx, method, params)
		}
	}
}

// RequestID returns the id set by RequestIDs, or "" if there is none.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
