package gutter

import (
	"context"
	"errors"
	"fmt"

	"github.com/gossip-lsp/gutter/jsonrpc"
	mw "github.com/gossip-lsp/gutter/middleware"
	"github.com/gossip-lsp/gutter/transport"
)

// Serve runs the server until the editor disconnects or sends exit.
// If no ServeOption is provided, stdio is used.
func Serve(s *Server, opts ...ServeOption) error {
	return ServeContext(context.Background(), s, opts...)
}

// ServeContext is Serve with a context whose cancellation stops the server.
func ServeContext(ctx context.Context, s *Server, opts ...ServeOption) error {
	cfg := &serveConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.transport == nil && cfg.transportFactory != nil {
		var err error
		cfg.transport, err = cfg.transportFactory()
		if err != nil {
			return fmt.Errorf("creating transport: %w", err)
		}
	}
	if cfg.transport == nil {
		cfg.transport = transport.Stdio()
	}
	defer cfg.transport.Close()

	codec := jsonrpc.NewCodec(cfg.transport, cfg.transport)

	chain := mw.Chain(append([]mw.Middleware{mw.Tracing()}, s.middlewares...)...)
	handler := jsonrpc.Handler(chain(mw.Handler(s.dispatch)))
	wrappedNotif := chain(func(ctx context.Context, method string, params jsonrpc.RawMessage) (any, error) {
		return nil, s.dispatchNotification(ctx, method, params)
	})
	notifHandler := func(ctx context.Context, method string, params jsonrpc.RawMessage) {
		_, _ = wrappedNotif(ctx, method, params)
	}

	conn := jsonrpc.NewConn(codec, handler, notifHandler, jsonrpc.WithConnLogger(s.logger))
	s.conn = conn
	client := newClientProxy(conn)
	s.client.Store(client)
	sendCtx, stopSend := context.WithCancel(ctx)
	defer stopSend()
	go client.sendRedraws(sendCtx, s.logger)
	defer s.close()

	s.logger.Info("gutter server starting",
		"name", s.name,
		"version", s.version,
	)

	stop := context.AfterFunc(ctx, conn.Close)
	defer stop()

	err := conn.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case s.shutdown.Load():
		// The editor may drop the connection right after shutdown.
		return nil
	}
	return fmt.Errorf("server error: %w", err)
}
