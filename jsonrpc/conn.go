// Package jsonrpc implements a bidirectional JSON-RPC 2.0 connection over
// Content-Length framed streams, as specified by the LSP base protocol. Both
// the editor-facing gutter server and the baseline service speak it.
package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Call and Notify once the connection is closed.
var ErrClosed = errors.New("jsonrpc: connection closed")

// Handler processes an incoming JSON-RPC request.
type Handler func(ctx context.Context, method string, params RawMessage) (result any, err error)

// NotificationHandler processes an incoming JSON-RPC notification.
type NotificationHandler func(ctx context.Context, method string, params RawMessage)

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithConnLogger sets the logger used for dropped or malformed messages.
func WithConnLogger(l *slog.Logger) ConnOption {
	return func(c *Conn) { c.logger = l }
}

// Conn is a bidirectional JSON-RPC 2.0 connection. Incoming requests are
// each handled on their own goroutine. Notifications are handled one at a
// time in arrival order, so a document change is never applied before the
// open that precedes it.
type Conn struct {
	codec   *Codec
	handler Handler
	notif   NotificationHandler
	logger  *slog.Logger
	notifs  chan *Notification

	pending   sync.Map // id -> chan *Response
	nextID    atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn creates a new JSON-RPC connection using the given codec, request
// handler, and notification handler. Either handler may be nil.
func NewConn(codec *Codec, handler Handler, notif NotificationHandler, opts ...ConnOption) *Conn {
	c := &Conn{
		codec:   codec,
		handler: handler,
		notif:   notif,
		logger:  slog.Default(),
		notifs:  make(chan *Notification, notificationBacklog),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run reads messages from the connection until it is closed, the context is
// cancelled, or a read fails. A read failure closes the connection so that
// pending calls are released.
func (c *Conn) Run(ctx context.Context) error {
	go c.drainNotifications(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		data, err := c.codec.Read()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			c.Close()
			return fmt.Errorf("reading message: %w", err)
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			c.logger.Debug("dropping malformed message", "error", err)
			continue
		}

		switch m := msg.(type) {
		case *Request:
			go c.handleRequest(ctx, m)
		case *Notification:
			select {
			case c.notifs <- m:
			case <-c.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		case *Response:
			c.handleResponse(m)
		}
	}
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) handleRequest(ctx context.Context, req *Request) {
	var (
		result any
		err    error
	)
	if c.handler != nil {
		result, err = c.handler(ctx, req.Method, req.Params)
	} else {
		err = &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
	data, merr := json.Marshal(NewResponse(req.ID, result, err))
	if merr != nil {
		c.logger.Error("marshalling response", "method", req.Method, "error", merr)
		return
	}
	if werr := c.codec.Write(data); werr != nil {
		c.logger.Debug("writing response", "method", req.Method, "error", werr)
	}
}

// notificationBacklog bounds queued notifications before Run stops reading.
const notificationBacklog = 256

func (c *Conn) drainNotifications(ctx context.Context) {
	for {
		select {
		case n := <-c.notifs:
			c.handleNotification(ctx, n)
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) handleNotification(ctx context.Context, notif *Notification) {
	if c.notif != nil {
		c.notif(ctx, notif.Method, notif.Params)
	} else if c.handler != nil {
		_, _ = c.handler(ctx, notif.Method, notif.Params)
	}
}

func (c *Conn) handleResponse(resp *Response) {
	if ch, ok := c.pending.LoadAndDelete(formatID(resp.ID)); ok {
		ch.(chan *Response) <- resp
	}
}

// Call sends a request and waits for a response.
func (c *Conn) Call(ctx context.Context, method string, params any) (*Response, error) {
	id := IntID(c.nextID.Add(1))
	paramsData, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(&Request{JSONRPC: Version, ID: id, Method: method, Params: paramsData})
	if err != nil {
		return nil, err
	}

	ch := make(chan *Response, 1)
	c.pending.Store(formatID(id), ch)
	defer c.pending.Delete(formatID(id))

	if err := c.codec.Write(data); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// CallResult sends a request and decodes the result into result (which may
// be nil). A JSON-RPC error response is returned as *Error.
func (c *Conn) CallResult(ctx context.Context, method string, params, result any) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

// Notify sends a notification (no response expected).
func (c *Conn) Notify(_ context.Context, method string, params any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	paramsData, err := marshalParams(params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(&Notification{JSONRPC: Version, Method: method, Params: paramsData})
	if err != nil {
		return err
	}
	return c.codec.Write(data)
}

// Close terminates the connection.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func marshalParams(v any) (RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func formatID(id ID) string {
	switch v := id.Value().(type) {
	case int64:
		return fmt.Sprintf("n:%d", v)
	case string:
		return fmt.Sprintf("s:%s", v)
	default:
		return "null"
	}
}
