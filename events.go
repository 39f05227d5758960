package gutter

import (
	"errors"
	"fmt"

	"github.com/gossip-lsp/gutter/classify"
	"github.com/gossip-lsp/gutter/protocol"
)

var (
	// ErrStaleSnapshot is returned when a query names a document version or
	// line that no longer matches the current snapshot.
	ErrStaleSnapshot = errors.New("gutter: stale snapshot")

	// ErrDisposed is returned by a Controller after Dispose.
	ErrDisposed = errors.New("gutter: controller disposed")
)

// OpError is an unexpected failure of a controller operation.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("gutter: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// RedrawEvent carries a classification to the rendering layer.
type RedrawEvent struct {
	URI            protocol.DocumentURI
	Version        int32
	Reason         Reason
	Classification *classify.Classification
}

// ErrorEvent reports an unexpected failure. A subscriber that deals with
// the error sets Handled; otherwise the error is returned to whoever
// triggered the failing operation.
type ErrorEvent struct {
	Err     error
	URI     protocol.DocumentURI
	Path    string
	Op      string
	Handled bool
}
