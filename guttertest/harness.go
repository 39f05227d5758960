// Package guttertest provides testing utilities for the gutter bridge
// server. It includes an in-memory editor client that talks to a server
// without network I/O, plus assertion helpers for line classifications.
package guttertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gossip-lsp/gutter"
	"github.com/gossip-lsp/gutter/jsonrpc"
	"github.com/gossip-lsp/gutter/protocol"
	"github.com/gossip-lsp/gutter/transport"
)

// Client is a test editor that communicates with a server over an
// in-memory transport.
type Client struct {
	t    testing.TB
	conn *jsonrpc.Conn
	stop func()

	result *protocol.InitializeResult

	mu            sync.Mutex
	notifications []notification
}

type notification struct {
	Method string
	Params json.RawMessage
}

// NewClient creates a test client connected to the given server and
// initializes it. The init functions may adjust the initialize params.
// The server runs in a background goroutine and is stopped when the test
// completes.
func NewClient(t testing.TB, s *gutter.Server, init ...func(*protocol.InitializeParams)) *Client {
	clientTransport, serverTransport := transport.MemoryPipe()

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		t:    t,
		stop: cancel,
	}

	served := make(chan struct{})
	go func() {
		defer close(served)
		err := gutter.ServeContext(ctx, s, gutter.WithTransport(serverTransport))
		if err != nil && ctx.Err() == nil {
			t.Logf("server error: %v", err)
		}
	}()

	codec := jsonrpc.NewCodec(clientTransport, clientTransport)
	c.conn = jsonrpc.NewConn(codec, nil, func(ctx context.Context, method string, params jsonrpc.RawMessage) {
		c.mu.Lock()
		c.notifications = append(c.notifications, notification{Method: method, Params: params})
		c.mu.Unlock()
	})

	go func() {
		_ = c.conn.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		c.conn.Close()
		clientTransport.Close()
		<-served
	})

	params := &protocol.InitializeParams{}
	for _, fn := range init {
		fn(params)
	}
	c.result = c.Initialize(params)

	return c
}

// InitializeResult returns what the server answered to the initialize
// request sent by NewClient.
func (c *Client) InitializeResult() *protocol.InitializeResult {
	return c.result
}

// Initialize sends the initialize request and initialized notification.
func (c *Client) Initialize(params *protocol.InitializeParams) *protocol.InitializeResult {
	c.t.Helper()
	var result protocol.InitializeResult
	c.call(protocol.MethodInitialize, params, &result)
	c.notify(protocol.MethodInitialized, struct{}{})
	return &result
}

// Open sends a textDocument/didOpen notification with version 1.
func (c *Client) Open(uri string, text string) {
	c.t.Helper()
	c.notify(protocol.MethodDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentURI(uri),
			LanguageID: "plaintext",
			Version:    1,
			Text:       text,
		},
	})
}

// Change sends a textDocument/didChange notification with full content replacement.
func (c *Client) Change(uri string, version int32, text string) {
	c.t.Helper()
	c.notify(protocol.MethodDidChange, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
	})
}

// ChangeIncremental sends a textDocument/didChange notification with an
// incremental edit (range-based replacement) rather than full content.
func (c *Client) ChangeIncremental(uri string, version int32, rng protocol.Range, text string) {
	c.t.Helper()
	c.notify(protocol.MethodDidChange, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Range: &rng, Text: text}},
	})
}

// Save sends a textDocument/didSave notification. A non-nil text reports
// a reload from disk.
func (c *Client) Save(uri string, text *string) {
	c.t.Helper()
	c.notify(protocol.MethodDidSave, &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
		Text:         text,
	})
}

// Close sends a textDocument/didClose notification.
func (c *Client) Close(uri string) {
	c.t.Helper()
	c.notify(protocol.MethodDidClose, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
	})
}

// SetIgnoreWhitespace sends a workspace/didChangeConfiguration notification.
func (c *Client) SetIgnoreWhitespace(ignore bool) {
	c.t.Helper()
	var p protocol.DidChangeConfigurationParams
	p.Settings.Gutter = &protocol.GutterSettings{IgnoreLeadingTrailingWhitespace: &ignore}
	c.notify(protocol.MethodDidChangeConfiguration, &p)
}

// ViewReflowed sends gutter/viewReflowed.
func (c *Client) ViewReflowed(uri string, hasTextImpact bool) {
	c.t.Helper()
	c.notify(protocol.MethodViewReflowed, &protocol.ViewReflowedParams{
		TextDocument:  protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
		HasTextImpact: hasTextImpact,
	})
}

// ZoomChanged sends gutter/zoomChanged.
func (c *Client) ZoomChanged(uri string) {
	c.t.Helper()
	c.notify(protocol.MethodZoomChanged, documentParams(uri))
}

// FormatMapChanged sends gutter/formatMapChanged.
func (c *Client) FormatMapChanged() {
	c.t.Helper()
	c.notify(protocol.MethodFormatMapChanged, nil)
}

// ProjectContextChanged sends gutter/projectContextChanged.
func (c *Client) ProjectContextChanged() {
	c.t.Helper()
	c.notify(protocol.MethodProjectContextChanged, nil)
}

// RefreshBaseline sends gutter/refreshBaseline for uri, or for every
// document when uri is empty.
func (c *Client) RefreshBaseline(uri string) {
	c.t.Helper()
	c.notify(protocol.MethodRefreshBaseline, documentParams(uri))
}

func documentParams(uri string) *protocol.DocumentParams {
	return &protocol.DocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)}}
}

// LineChanges sends gutter/lineChanges. A nil result with a nil error
// means the version is stale or the document unknown.
func (c *Client) LineChanges(uri string, version int32) ([]protocol.LineChange, error) {
	c.t.Helper()
	var result []protocol.LineChange
	err := c.Call(protocol.MethodLineChanges, &protocol.LineChangesParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
			Version:                version,
		},
	}, &result)
	return result, err
}

// Redraws returns all gutter/redraw notifications received so far.
func (c *Client) Redraws() []protocol.RedrawParams {
	c.t.Helper()
	var out []protocol.RedrawParams
	c.each(protocol.MethodRedraw, func(raw json.RawMessage) {
		var p protocol.RedrawParams
		if json.Unmarshal(raw, &p) == nil {
			out = append(out, p)
		}
	})
	return out
}

// Errors returns all gutter/error notifications received so far.
func (c *Client) Errors() []protocol.ErrorParams {
	c.t.Helper()
	var out []protocol.ErrorParams
	c.each(protocol.MethodError, func(raw json.RawMessage) {
		var p protocol.ErrorParams
		if json.Unmarshal(raw, &p) == nil {
			out = append(out, p)
		}
	})
	return out
}

func (c *Client) each(method string, fn func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.notifications {
		if n.Method == method {
			fn(n.Params)
		}
	}
}

// WaitForRedraw polls until a gutter/redraw for uri satisfying match has
// been received, or until the timeout expires. A nil match accepts any
// redraw for uri. It returns the latest matching redraw.
func (c *Client) WaitForRedraw(uri string, timeout time.Duration, match func(protocol.RedrawParams) bool) protocol.RedrawParams {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		redraws := c.Redraws()
		for i := len(redraws) - 1; i >= 0; i-- {
			p := redraws[i]
			if string(p.URI) == uri && (match == nil || match(p)) {
				return p
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.t.Fatalf("timed out waiting for redraw on %s", uri)
	return protocol.RedrawParams{}
}

// WaitForReason waits for a redraw of uri with the given reason and
// document version.
func (c *Client) WaitForReason(uri string, reason string, version int32) protocol.RedrawParams {
	c.t.Helper()
	return c.WaitForRedraw(uri, 2*time.Second, func(p protocol.RedrawParams) bool {
		return p.Reason == reason && p.Version == version
	})
}

// Shutdown sends the shutdown request.
func (c *Client) Shutdown() {
	c.t.Helper()
	c.call(protocol.MethodShutdown, nil, nil)
}

func (c *Client) call(method string, params, result any) {
	c.t.Helper()
	if err := c.Call(method, params, result); err != nil {
		c.t.Fatalf("call %s failed: %v", method, err)
	}
}

// Call sends an arbitrary request and decodes its result into result,
// which may be nil. A JSON-RPC error response is returned as an error.
func (c *Client) Call(method string, params, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.conn.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshalling result: %w", err)
		}
	}
	return nil
}

func (c *Client) notify(method string, params any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Notify(ctx, method, params); err != nil {
		c.t.Fatalf("notify %s failed: %v", method, err)
	}
}
