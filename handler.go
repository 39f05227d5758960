package gutter

import (
	"encoding/json"
)

// RawHandler processes a JSON-RPC request with raw params. Use HandleRequest
// to register these for methods the server does not handle itself.
type RawHandler func(ctx *Context, params json.RawMessage) (any, error)

// RawNotificationHandler processes a JSON-RPC notification with raw params.
// Use HandleNotification to register these.
type RawNotificationHandler func(ctx *Context, params json.RawMessage)
