package gutter

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/gossip-lsp/gutter/classify"
	"github.com/gossip-lsp/gutter/jsonrpc"
	"github.com/gossip-lsp/gutter/linediff"
	"github.com/gossip-lsp/gutter/protocol"
)

// maxQueuedRedraws bounds the redraws waiting for a slow editor. Past it
// the oldest redraw for the same document is dropped, or the oldest overall.
const maxQueuedRedraws = 256

// ClientProxy sends notifications from the server to the editor. Redraws
// published by controllers are queued and written by a single goroutine,
// so a slow editor never holds up a recompute.
type ClientProxy struct {
	conn *jsonrpc.Conn

	mu    sync.Mutex
	queue []RedrawEvent
	wake  chan struct{}
}

func newClientProxy(conn *jsonrpc.Conn) *ClientProxy {
	return &ClientProxy{conn: conn, wake: make(chan struct{}, 1)}
}

// queueRedraw schedules ev for the send loop without blocking.
func (c *ClientProxy) queueRedraw(ev RedrawEvent) {
	c.mu.Lock()
	if len(c.queue) >= maxQueuedRedraws {
		i := slices.IndexFunc(c.queue, func(q RedrawEvent) bool { return q.URI == ev.URI })
		c.queue = slices.Delete(c.queue, max(i, 0), max(i, 0)+1)
	}
	c.queue = append(c.queue, ev)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// sendRedraws writes queued redraws in order until ctx is done.
func (c *ClientProxy) sendRedraws(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			ev := c.queue[0]
			c.queue = slices.Delete(c.queue, 0, 1)
			c.mu.Unlock()

			if err := c.Redraw(ctx, ev); err != nil {
				logger.Debug("dropping redraw", "uri", string(ev.URI), "error", err)
			}
		}
	}
}

// Redraw sends a gutter/redraw notification for ev.
func (c *ClientProxy) Redraw(ctx context.Context, ev RedrawEvent) error {
	return c.conn.Notify(ctx, protocol.MethodRedraw, &protocol.RedrawParams{
		URI:     ev.URI,
		Version: ev.Version,
		Reason:  ev.Reason.String(),
		Changes: LineChanges(ev.Classification),
	})
}

// Error sends a gutter/error notification for ev. Unlike redraws it is
// written synchronously, because a delivered error counts as handled.
func (c *ClientProxy) Error(ctx context.Context, ev *ErrorEvent) error {
	return c.conn.Notify(ctx, protocol.MethodError, &protocol.ErrorParams{
		URI:     ev.URI,
		Op:      ev.Op,
		Message: ev.Err.Error(),
	})
}

// LineChanges converts a classification to its wire form, ordered by line.
func LineChanges(cls *classify.Classification) []protocol.LineChange {
	out := make([]protocol.LineChange, 0, cls.Len())
	for line, lc := range cls.All() {
		out = append(out, protocol.LineChange{
			Line:            uint32(line),
			Kind:            lineChangeKind(lc.Type),
			OriginalStart:   lc.Entry.OriginalStart,
			OriginalLength:  lc.Entry.OriginalLength,
			ModifiedStart:   lc.Entry.ModifiedStart,
			ModifiedLength:  lc.Entry.ModifiedLength,
			AtDocumentStart: lc.AtDocumentStart,
		})
	}
	return out
}

func lineChangeKind(t linediff.Type) protocol.LineChangeKind {
	switch t {
	case linediff.Insert:
		return protocol.LineInserted
	case linediff.Delete:
		return protocol.LineDeleted
	default:
		return protocol.LineChanged
	}
}
