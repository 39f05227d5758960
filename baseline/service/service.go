// Package service exposes a baseline.Repository to remote clients over
// JSON-RPC. Every connection receives baseline/committed notifications for
// commits made in the repository.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gossip-lsp/gutter/baseline"
	"github.com/gossip-lsp/gutter/jsonrpc"
	"github.com/gossip-lsp/gutter/middleware"
	"github.com/gossip-lsp/gutter/protocol"
	"github.com/gossip-lsp/gutter/transport"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMiddleware adds middleware around request handling.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Service) { s.middleware = append(s.middleware, mws...) }
}

// Service serves a baseline.Repository.
type Service struct {
	repo       baseline.Repository
	logger     *slog.Logger
	middleware []middleware.Middleware
	handler    middleware.Handler

	mu    sync.Mutex
	conns map[*jsonrpc.Conn]transport.Transport
	wg    sync.WaitGroup

	unsubscribe func()
}

// New creates a service for repo and starts forwarding its commits.
func New(repo baseline.Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.Default(),
		conns:  make(map[*jsonrpc.Conn]transport.Transport),
	}
	for _, o := range opts {
		o(s)
	}
	s.handler = middleware.Chain(s.middleware...)(s.dispatch)
	s.unsubscribe = repo.Subscribe(s.broadcast)
	return s
}

// Close stops commit forwarding and closes every open connection.
func (s *Service) Close() {
	s.unsubscribe()
	s.mu.Lock()
	for c, t := range s.conns {
		c.Close()
		t.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Serve accepts connections from ln until ctx is cancelled or Accept fails,
// serving each on its own goroutine. The listener is closed on return.
func (s *Service) Serve(ctx context.Context, ln transport.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.logger.Info("baseline service listening", "addr", ln.Addr())
	for {
		t, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting baseline client: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.ServeTransport(ctx, t); err != nil {
				s.logger.Debug("baseline client disconnected", "error", err)
			}
		}()
	}
}

// ServeTransport serves one client until the connection ends.
func (s *Service) ServeTransport(ctx context.Context, t transport.Transport) error {
	defer t.Close()
	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	handler := func(ctx context.Context, method string, params jsonrpc.RawMessage) (any, error) {
		return s.handler(ctx, method, params)
	}
	conn := jsonrpc.NewConn(jsonrpc.NewCodec(t, t), handler, nil, jsonrpc.WithConnLogger(s.logger))

	s.mu.Lock()
	s.conns[conn] = t
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	err := conn.Run(ctx)
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) broadcast(ev baseline.CommitEvent) {
	params := &protocol.CommittedParams{ServerPath: ev.ServerPath, CommitTime: ev.CommitTime}

	s.mu.Lock()
	conns := make([]*jsonrpc.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.Notify(context.Background(), protocol.MethodBaselineCommitted, params); err != nil {
			s.logger.Debug("dropping commit notification", "path", ev.ServerPath, "error", err)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, method string, params jsonrpc.RawMessage) (any, error) {
	switch method {
	case protocol.MethodBaselineServerPath:
		var p protocol.LocalPathParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		sp, err := s.repo.ServerPath(ctx, p.LocalPath)
		if err != nil {
			return nil, toRPCError(err)
		}
		return &protocol.ServerPathResult{ServerPath: sp}, nil

	case protocol.MethodBaselinePendingRenames:
		var p protocol.LocalPathParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		renames, err := s.repo.PendingRenames(ctx, p.LocalPath)
		if err != nil {
			return nil, toRPCError(err)
		}
		out := make([]protocol.PendingRename, len(renames))
		for i, r := range renames {
			out[i] = protocol.PendingRename{SourceServerPath: r.SourceServerPath, TargetServerPath: r.TargetServerPath}
		}
		return out, nil

	case protocol.MethodBaselineItem:
		var p protocol.ServerPathParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		item, err := s.repo.Item(ctx, p.ServerPath)
		if err != nil {
			return nil, toRPCError(err)
		}
		return &protocol.BaselineItem{ServerPath: item.ServerPath, Encoding: item.Encoding, CommitTime: item.CommitTime}, nil

	case protocol.MethodBaselineContent:
		var p protocol.BaselineItem
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		rc, err := s.repo.Open(ctx, &baseline.Item{ServerPath: p.ServerPath, Encoding: p.Encoding, CommitTime: p.CommitTime})
		if err != nil {
			return nil, toRPCError(err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, toRPCError(err)
		}
		return &protocol.ContentResult{Content: content}, nil

	default:
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
	}
}

func decode(params jsonrpc.RawMessage, v any) error {
	if err := json.Unmarshal(params, v); err != nil {
		return &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func toRPCError(err error) error {
	switch {
	case errors.Is(err, baseline.ErrNotFound):
		return &jsonrpc.Error{Code: jsonrpc.CodeBaselineNotFound, Message: err.Error()}
	case errors.Is(err, baseline.ErrServiceUnavailable):
		return &jsonrpc.Error{Code: jsonrpc.CodeServiceUnavailable, Message: err.Error()}
	default:
		return err
	}
}
