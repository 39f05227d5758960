package gutter

import "github.com/gossip-lsp/gutter/protocol"

// buildCapabilities describes what the bridge supports.
func (s *Server) buildCapabilities() protocol.ServerCapabilities {
	reasons := Reasons()
	names := make([]string, len(reasons))
	for i, r := range reasons {
		names[i] = r.String()
	}
	return protocol.ServerCapabilities{
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			OpenClose: true,
			Change:    protocol.SyncIncremental,
			Save:      &protocol.SaveOptions{IncludeText: true},
		},
		Experimental: &protocol.GutterCapabilities{
			LineChangesProvider: true,
			RedrawReasons:       names,
		},
	}
}
