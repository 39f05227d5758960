package gutter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gossip-lsp/gutter/baseline"
	"github.com/gossip-lsp/gutter/config"
	"github.com/gossip-lsp/gutter/document"
	"github.com/gossip-lsp/gutter/jsonrpc"
	mw "github.com/gossip-lsp/gutter/middleware"
	"github.com/gossip-lsp/gutter/protocol"
)

// DefaultConfigFile is the per-workspace configuration file name.
const DefaultConfigFile = ".gutter.toml"

// Server is the JSON-RPC bridge between an editor and the gutter core. The
// editor drives it with LSP document sync notifications plus the gutter/*
// extension methods, and receives gutter/redraw and gutter/error
// notifications in return.
type Server struct {
	name     string
	version  string
	logger   *slog.Logger
	provider *baseline.Provider

	// connection and client proxy (set during Serve)
	conn   *jsonrpc.Conn
	client atomic.Pointer[ClientProxy]

	docs     *document.Store
	notifier *Notifier
	settings *config.Store[Settings]
	manager  *Manager

	middlewares  []mw.Middleware
	workers      int
	pollInterval time.Duration
	configFile   string
	config       *configBridge
	subs         []*Subscription

	mu               sync.RWMutex
	rawHandlers      map[string]RawHandler
	rawNotifHandlers map[string]RawNotificationHandler
	rootURI          *protocol.DocumentURI
	workspaceFolders []protocol.WorkspaceFolder

	initialized atomic.Bool
	shutdown    atomic.Bool
}

// NewServer creates a bridge server that resolves baselines through
// provider.
func NewServer(name, version string, provider *baseline.Provider, opts ...Option) *Server {
	s := &Server{
		name:             name,
		version:          version,
		provider:         provider,
		logger:           slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		docs:             document.NewStore(),
		notifier:         NewNotifier(),
		settings:         config.NewStore(DefaultSettings()),
		pollInterval:     baseline.DefaultInterval,
		configFile:       DefaultConfigFile,
		rawHandlers:      make(map[string]RawHandler),
		rawNotifHandlers: make(map[string]RawNotificationHandler),
	}
	for _, o := range opts {
		o(s)
	}
	s.subs = append(s.subs,
		s.notifier.SubscribeRedraw(s.forwardRedraw),
		s.notifier.SubscribeErrors(s.forwardError),
	)
	return s
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger { return s.logger }

// Conn returns the JSON-RPC connection, or nil before Serve() is called.
func (s *Server) Conn() *jsonrpc.Conn { return s.conn }

// Documents returns the document store.
func (s *Server) Documents() *document.Store { return s.docs }

// Notifier returns the notifier every controller publishes to.
func (s *Server) Notifier() *Notifier { return s.notifier }

// Settings returns the settings store shared by all controllers.
func (s *Server) Settings() *config.Store[Settings] { return s.settings }

// Manager returns the controller manager, or nil before initialize.
func (s *Server) Manager() *Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager
}

// HandleRequest registers a raw handler for a custom method.
func (s *Server) HandleRequest(method string, h RawHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawHandlers[method] = h
}

// HandleNotification registers a raw handler for a custom notification.
func (s *Server) HandleNotification(method string, h RawNotificationHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawNotifHandlers[method] = h
}

func (s *Server) forwardRedraw(ev RedrawEvent) {
	if client := s.client.Load(); client != nil {
		client.queueRedraw(ev)
	}
}

// forwardError reports the error to the editor, which counts as handling it.
func (s *Server) forwardError(ev *ErrorEvent) {
	client := s.client.Load()
	if client == nil {
		return
	}
	if err := client.Error(context.Background(), ev); err != nil {
		s.logger.Debug("dropping error event", "uri", string(ev.URI), "error", err)
		return
	}
	ev.Handled = true
}

// dispatch is the main JSON-RPC handler callback.
func (s *Server) dispatch(ctx context.Context, method string, params jsonrpc.RawMessage) (any, error) {
	gctx := newContext(ctx, s)

	switch method {
	case protocol.MethodInitialize:
		return s.handleInitialize(gctx, params)
	case protocol.MethodShutdown:
		s.shutdown.Store(true)
		s.logger.Info("server shutting down")
		return nil, nil
	}

	if !s.initialized.Load() {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeServerNotInitialized, Message: "server not initialized"}
	}

	switch method {
	case protocol.MethodLineChanges:
		var p protocol.LineChangesParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return s.lineChanges(&p)
	}

	s.mu.RLock()
	rh, ok := s.rawHandlers[method]
	s.mu.RUnlock()
	if ok {
		return rh(gctx, params)
	}
	return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}

// dispatchNotification handles JSON-RPC notifications.
func (s *Server) dispatchNotification(ctx context.Context, method string, params jsonrpc.RawMessage) error {
	gctx := newContext(ctx, s)

	switch method {
	case protocol.MethodInitialized, protocol.MethodSetTrace:
		return nil
	case protocol.MethodExit:
		s.logger.Info("received exit notification", "clean", s.shutdown.Load())
		if s.conn != nil {
			s.conn.Close()
		}
		return nil
	}

	if !s.initialized.Load() {
		return nil
	}

	m := s.Manager()
	var err error
	switch method {
	case protocol.MethodDidOpen:
		var p protocol.DidOpenTextDocumentParams
		if err = json.Unmarshal(params, &p); err == nil {
			s.docs.Open(&p)
		}
	case protocol.MethodDidChange:
		var p protocol.DidChangeTextDocumentParams
		if err = json.Unmarshal(params, &p); err == nil {
			s.docs.Change(&p)
		}
	case protocol.MethodDidSave:
		var p protocol.DidSaveTextDocumentParams
		if err = json.Unmarshal(params, &p); err == nil {
			s.docs.Save(&p)
		}
	case protocol.MethodDidClose:
		var p protocol.DidCloseTextDocumentParams
		if err = json.Unmarshal(params, &p); err == nil {
			s.docs.Close(&p)
		}
	case protocol.MethodDidChangeConfiguration:
		var p protocol.DidChangeConfigurationParams
		if err = json.Unmarshal(params, &p); err == nil {
			s.applyClientSettings(p.Settings.Gutter)
		}
	case protocol.MethodViewReflowed:
		var p protocol.ViewReflowedParams
		if err = json.Unmarshal(params, &p); err == nil {
			err = m.ViewReflowed(ctx, p.TextDocument.URI, p.HasTextImpact)
		}
	case protocol.MethodZoomChanged:
		var p protocol.DocumentParams
		if err = json.Unmarshal(params, &p); err == nil {
			err = m.ZoomChanged(ctx, p.TextDocument.URI)
		}
	case protocol.MethodFormatMapChanged:
		err = m.FormatMapChanged(ctx)
	case protocol.MethodProjectContextChanged:
		err = m.ProjectContextChanged(ctx)
	case protocol.MethodRefreshBaseline:
		var p protocol.DocumentParams
		if len(params) > 0 {
			err = json.Unmarshal(params, &p)
		}
		if err == nil {
			err = m.RefreshBaseline(ctx, p.TextDocument.URI)
		}
	default:
		s.mu.RLock()
		rh, ok := s.rawNotifHandlers[method]
		s.mu.RUnlock()
		if ok {
			rh(gctx, params)
		}
	}
	if err != nil {
		s.logger.Warn("notification failed", "method", method, "error", err)
	}
	return err
}

func invalidParams(err error) error {
	return &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
}

func (s *Server) handleInitialize(_ *Context, params jsonrpc.RawMessage) (any, error) {
	var p protocol.InitializeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if s.initialized.Load() {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: "server already initialized"}
	}

	s.mu.Lock()
	s.rootURI = p.RootURI
	s.workspaceFolders = p.WorkspaceFolders
	if len(s.workspaceFolders) == 0 && s.rootURI != nil {
		s.workspaceFolders = []protocol.WorkspaceFolder{
			{URI: *s.rootURI, Name: uriBasename(string(*s.rootURI))},
		}
	}
	s.mu.Unlock()

	if root := s.workspaceRoot(); s.configFile != "" && root != "" {
		s.startConfig(root)
	}
	s.applyClientSettings(p.InitializationOptions)

	s.mu.Lock()
	s.manager = NewManager(s.docs, s.provider, s.notifier,
		WithManagerLogger(s.logger),
		WithManagerPool(NewPool(s.workers)),
		WithManagerSettings(s.settings),
		WithManagerPollInterval(s.pollInterval),
	)
	s.mu.Unlock()
	s.initialized.Store(true)

	s.logger.Info("server initialized",
		"name", s.name,
		"version", s.version,
		"workspaceFolders", len(s.workspaceFolders),
		"workers", s.manager.Pool().Size(),
	)

	return &protocol.InitializeResult{
		Capabilities: s.buildCapabilities(),
		ServerInfo: &protocol.ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
	}, nil
}

// applyClientSettings merges settings sent by the editor into the store.
func (s *Server) applyClientSettings(g *protocol.GutterSettings) {
	if g == nil || g.IgnoreLeadingTrailingWhitespace == nil {
		return
	}
	next := *s.settings.Get()
	if next.IgnoreLeadingTrailingWhitespace == *g.IgnoreLeadingTrailingWhitespace {
		return
	}
	next.IgnoreLeadingTrailingWhitespace = *g.IgnoreLeadingTrailingWhitespace
	s.settings.Swap(&next)
	s.logger.Info("settings changed by client", "ignoreLeadingTrailingWhitespace", next.IgnoreLeadingTrailingWhitespace)
}

func (s *Server) lineChanges(p *protocol.LineChangesParams) (any, error) {
	m := s.Manager()
	c := m.Controller(p.TextDocument.URI)
	if c == nil {
		return nil, nil
	}
	cls, err := c.Classification(p.TextDocument.Version)
	if errors.Is(err, ErrStaleSnapshot) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cls == nil {
		return []protocol.LineChange{}, nil
	}
	return LineChanges(cls), nil
}

// workspaceRoot returns the local directory of the primary workspace
// folder, or "" when the editor sent none.
func (s *Server) workspaceRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.workspaceFolders) > 0 {
		return LocalPath(s.workspaceFolders[0].URI)
	}
	return ""
}

// FolderFor returns the workspace folder that contains the given document URI,
// using longest-prefix matching. Returns nil if no folder matches.
func (s *Server) FolderFor(uri protocol.DocumentURI) *protocol.WorkspaceFolder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uriStr := string(uri)
	var best *protocol.WorkspaceFolder
	bestLen := 0
	for i := range s.workspaceFolders {
		prefix := string(s.workspaceFolders[i].URI)
		if strings.HasPrefix(uriStr, prefix) && len(prefix) > bestLen {
			best = &s.workspaceFolders[i]
			bestLen = len(prefix)
		}
	}
	return best
}

func uriBasename(uri string) string {
	s := strings.TrimRight(uri, "/")
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// close releases everything the server started.
func (s *Server) close() {
	if m := s.Manager(); m != nil {
		m.Close()
	}
	if s.config != nil {
		s.config.close()
	}
	s.client.Store(nil)
}
