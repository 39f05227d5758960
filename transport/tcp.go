package transport

import (
	"context"
	"net"
	"os"
)

type netTransport struct {
	conn net.Conn
}

// TCP creates a transport from a stream connection (TCP or Unix).
func TCP(conn net.Conn) Transport {
	return &netTransport{conn: conn}
}

func (t *netTransport) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *netTransport) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t *netTransport) Close() error                { return t.conn.Close() }

type netListener struct {
	ln   net.Listener
	path string // unix socket file removed on Close
}

// ListenTCP starts a TCP listener on addr (e.g. ":9300").
func ListenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &netListener{ln: ln}, nil
}

// ListenSocket starts a Unix domain socket listener at path, replacing a
// stale socket file if one exists.
func ListenSocket(path string) (Listener, error) {
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &netListener{ln: ln, path: path}, nil
}

func (l *netListener) Accept() (Transport, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return TCP(conn), nil
}

func (l *netListener) Addr() string { return l.ln.Addr().String() }

func (l *netListener) Close() error {
	err := l.ln.Close()
	if l.path != "" {
		os.Remove(l.path)
	}
	return err
}

// DialTCP connects to a TCP address.
func DialTCP(ctx context.Context, addr string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return TCP(conn), nil
}

// DialSocket connects to a Unix domain socket.
func DialSocket(ctx context.Context, path string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	return TCP(conn), nil
}
