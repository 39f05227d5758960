// Package remote is a baseline.Repository that talks JSON-RPC to a baseline
// service (see package service) over any transport.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/time/rate"

	"github.com/gossip-lsp/gutter/baseline"
	"github.com/gossip-lsp/gutter/jsonrpc"
	"github.com/gossip-lsp/gutter/protocol"
	"github.com/gossip-lsp/gutter/transport"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRateLimit bounds outgoing requests to rps per second with the given
// burst. A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// Client is a baseline.Repository backed by a remote baseline service.
// Transport failures are reported as baseline.ErrServiceUnavailable.
type Client struct {
	t       transport.Transport
	conn    *jsonrpc.Conn
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	subs    map[int]func(baseline.CommitEvent)
	nextSub int

	cancel context.CancelFunc
	done   chan struct{}
}

var _ baseline.Repository = (*Client)(nil)

// New starts a client over an established transport.
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		t:       t,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  slog.Default(),
		subs:    make(map[int]func(baseline.CommitEvent)),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	c.conn = jsonrpc.NewConn(jsonrpc.NewCodec(t, t), nil, c.handleNotification, jsonrpc.WithConnLogger(c.logger))

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.done)
		if err := c.conn.Run(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("baseline service connection lost", "error", err)
		}
	}()
	return c
}

// Dial connects to a baseline service. kind is a transport kind ("tcp",
// "unix" or "ws").
func Dial(ctx context.Context, kind, addr string, opts ...Option) (*Client, error) {
	t, err := transport.Dial(ctx, kind, addr)
	if err != nil {
		return nil, fmt.Errorf("dialing baseline service %s: %w", addr, errors.Join(baseline.ErrServiceUnavailable, err))
	}
	return New(t, opts...), nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.conn.Close()
	c.cancel()
	err := c.t.Close()
	<-c.done
	return err
}

// Done is closed once the connection has terminated.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	err := c.conn.CallResult(ctx, method, params, result)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var rpcErr *jsonrpc.Error
	switch {
	case errors.As(err, &rpcErr) && rpcErr.Code == jsonrpc.CodeBaselineNotFound:
		return fmt.Errorf("%s: %w", rpcErr.Message, baseline.ErrNotFound)
	case errors.As(err, &rpcErr) && rpcErr.Code == jsonrpc.CodeServiceUnavailable:
		return fmt.Errorf("%s: %w", rpcErr.Message, baseline.ErrServiceUnavailable)
	case errors.As(err, &rpcErr):
		return fmt.Errorf("%s: %w", method, err)
	default:
		// Anything below JSON-RPC is a transport failure.
		return fmt.Errorf("%s: %w", method, errors.Join(baseline.ErrServiceUnavailable, err))
	}
}

func (c *Client) ServerPath(ctx context.Context, localPath string) (string, error) {
	var res protocol.ServerPathResult
	if err := c.call(ctx, protocol.MethodBaselineServerPath, &protocol.LocalPathParams{LocalPath: localPath}, &res); err != nil {
		return "", err
	}
	return res.ServerPath, nil
}

func (c *Client) PendingRenames(ctx context.Context, localPath string) ([]baseline.Rename, error) {
	var res []protocol.PendingRename
	if err := c.call(ctx, protocol.MethodBaselinePendingRenames, &protocol.LocalPathParams{LocalPath: localPath}, &res); err != nil {
		return nil, err
	}
	renames := make([]baseline.Rename, len(res))
	for i, r := range res {
		renames[i] = baseline.Rename{SourceServerPath: r.SourceServerPath, TargetServerPath: r.TargetServerPath}
	}
	return renames, nil
}

func (c *Client) Item(ctx context.Context, serverPath string) (*baseline.Item, error) {
	var res protocol.BaselineItem
	if err := c.call(ctx, protocol.MethodBaselineItem, &protocol.ServerPathParams{ServerPath: serverPath}, &res); err != nil {
		return nil, err
	}
	return &baseline.Item{ServerPath: res.ServerPath, Encoding: res.Encoding, CommitTime: res.CommitTime}, nil
}

func (c *Client) Open(ctx context.Context, item *baseline.Item) (io.ReadCloser, error) {
	params := &protocol.BaselineItem{ServerPath: item.ServerPath, Encoding: item.Encoding, CommitTime: item.CommitTime}
	var res protocol.ContentResult
	if err := c.call(ctx, protocol.MethodBaselineContent, params, &res); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(res.Content)), nil
}

func (c *Client) Subscribe(fn func(baseline.CommitEvent)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Client) handleNotification(_ context.Context, method string, params jsonrpc.RawMessage) {
	if method != protocol.MethodBaselineCommitted {
		c.logger.Debug("ignoring notification", "method", method)
		return
	}
	var p protocol.CommittedParams
	if err := json.Unmarshal(params, &p); err != nil {
		c.logger.Warn("malformed commit notification", "error", err)
		return
	}

	c.mu.Lock()
	ids := slices.Sorted(maps.Keys(c.subs))
	fns := make([]func(baseline.CommitEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.mu.Unlock()

	ev := baseline.CommitEvent{ServerPath: p.ServerPath, CommitTime: p.CommitTime}
	for _, fn := range fns {
		fn(ev)
	}
}
