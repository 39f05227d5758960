package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

// ListenWebSocket starts an HTTP server with WebSocket upgrade on the given
// address. Every upgraded connection is handed out by Accept.
func ListenWebSocket(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &wsListener{
		ln:     ln,
		conns:  make(chan *wsTransport),
		closed: make(chan struct{}),
	}
	l.srv = &http.Server{Handler: websocket.Handler(l.serve)}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Default().Error("websocket server error", "addr", addr, "error", err)
		}
	}()
	return l, nil
}

type wsListener struct {
	ln        net.Listener
	srv       *http.Server
	conns     chan *wsTransport
	closed    chan struct{}
	closeOnce sync.Once
}

// serve runs for the lifetime of one upgraded connection; the websocket
// package closes the connection when it returns.
func (l *wsListener) serve(ws *websocket.Conn) {
	t := newWSTransport(ws)
	select {
	case l.conns <- t:
	case <-l.closed:
		return
	}
	select {
	case <-t.done:
	case <-l.closed:
	}
}

func (l *wsListener) Accept() (Transport, error) {
	select {
	case t := <-l.conns:
		return t, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Addr() string { return l.ln.Addr().String() }

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url, origin string) (Transport, error) {
	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, err
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return newWSTransport(ws), nil
}

// wsTransport maps the message-oriented websocket onto a byte stream. A
// message larger than the caller's buffer is delivered over several reads.
type wsTransport struct {
	conn *websocket.Conn

	rmu     sync.Mutex
	pending []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newWSTransport(ws *websocket.Conn) *wsTransport {
	return &wsTransport{conn: ws, done: make(chan struct{})}
}

func (w *wsTransport) Read(p []byte) (int, error) {
	w.rmu.Lock()
	defer w.rmu.Unlock()
	if len(w.pending) == 0 {
		var msg []byte
		if err := websocket.Message.Receive(w.conn, &msg); err != nil {
			return 0, err
		}
		w.pending = msg
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsTransport) Write(p []byte) (int, error) {
	if err := websocket.Message.Send(w.conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsTransport) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}
