package gutter

import (
	"context"
	"log/slog"

	"github.com/gossip-lsp/gutter/document"
	mw "github.com/gossip-lsp/gutter/middleware"
	"github.com/gossip-lsp/gutter/protocol"
)

// Context wraps context.Context with accessors for the server's services.
// Raw handlers receive one per message.
type Context struct {
	context.Context

	Client    *ClientProxy
	Documents *document.Store
	server    *Server
}

func newContext(ctx context.Context, s *Server) *Context {
	return &Context{
		Context:   ctx,
		Client:    s.client.Load(),
		Documents: s.docs,
		server:    s,
	}
}

// ServerInfo returns the server's name and version.
func (c *Context) ServerInfo() protocol.ServerInfo {
	return protocol.ServerInfo{
		Name:    c.server.name,
		Version: c.server.version,
	}
}

// Method returns the JSON-RPC method being served.
func (c *Context) Method() string {
	return mw.TraceMethod(c.Context)
}

// Server returns the underlying Server.
func (c *Context) Server() *Server {
	return c.server
}

// Logger returns the server's logger.
func (c *Context) Logger() *slog.Logger {
	return c.server.logger
}

// Manager returns the controller manager.
func (c *Context) Manager() *Manager {
	return c.server.Manager()
}

// Settings returns the current settings.
func (c *Context) Settings() *Settings {
	return c.server.settings.Get()
}

// WorkspaceRoot returns the primary workspace root URI. This is the first
// workspace folder, or the rootURI from InitializeParams if no folders were sent.
func (c *Context) WorkspaceRoot() protocol.DocumentURI {
	c.server.mu.RLock()
	defer c.server.mu.RUnlock()
	if len(c.server.workspaceFolders) > 0 {
		return c.server.workspaceFolders[0].URI
	}
	if c.server.rootURI != nil {
		return *c.server.rootURI
	}
	return ""
}

// FolderFor returns the workspace folder that contains the given document URI.
func (c *Context) FolderFor(uri protocol.DocumentURI) *protocol.WorkspaceFolder {
	return c.server.FolderFor(uri)
}
