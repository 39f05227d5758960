// Package transport provides pluggable byte-stream transports for the gutter
// server and the baseline service: stdio, Node IPC, TCP and Unix sockets,
// editor pipes, WebSocket, and an in-memory pipe for tests.
package transport

import (
	"context"
	"fmt"
	"io"
)

// Transport provides a bidirectional byte stream for JSON-RPC communication.
// Each implementation wraps a specific communication mechanism (stdio, TCP, etc.)
// and exposes it as a simple reader/writer pair.
type Transport interface {
	io.ReadWriteCloser
}

// Listener accepts transports from remote peers. The baseline service serves
// every accepted transport; the gutter server takes only the first.
type Listener interface {
	Accept() (Transport, error)
	Close() error
	Addr() string
}

// Func produces a Transport on demand, e.g. by dialing or accepting.
type Func func() (Transport, error)

// First accepts a single transport from ln and closes the listener.
func First(ln Listener) (Transport, error) {
	defer ln.Close()
	return ln.Accept()
}

// Network kinds accepted by Listen and Dial.
const (
	KindTCP       = "tcp"
	KindUnix      = "unix"
	KindWebSocket = "ws"
)

// Listen opens a listener of the given kind. An empty kind means TCP.
func Listen(kind, addr string) (Listener, error) {
	switch kind {
	case "", KindTCP:
		return ListenTCP(addr)
	case KindUnix:
		return ListenSocket(addr)
	case KindWebSocket:
		return ListenWebSocket(addr)
	default:
		return nil, fmt.Errorf("transport: unknown kind %q", kind)
	}
}

// Dial connects to a listener of the given kind. For WebSocket, addr is a
// host:port and the connection goes to ws://addr/.
func Dial(ctx context.Context, kind, addr string) (Transport, error) {
	switch kind {
	case "", KindTCP:
		return DialTCP(ctx, addr)
	case KindUnix:
		return DialSocket(ctx, addr)
	case KindWebSocket:
		return DialWebSocket(ctx, "ws://"+addr+"/", "http://"+addr+"/")
	default:
		return nil, fmt.Errorf("transport: unknown kind %q", kind)
	}
}
