package transport

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryPipe(t *testing.T) {
	client, server := MemoryPipe()
	defer client.Close()

	go func() {
		client.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("got %q, want %q", buf, "hello")
	}

	server.Close()
	if _, err := client.Read(buf); err != io.EOF {
		t.Errorf("read after close = %v, want EOF", err)
	}
	if _, err := client.Write([]byte("x")); err != io.ErrClosedPipe {
		t.Errorf("write after close = %v, want ErrClosedPipe", err)
	}
}

func TestTCPListenerAcceptsMultiple(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		accepted := make(chan Transport, 1)
		go func() {
			tr, err := ln.Accept()
			if err != nil {
				t.Errorf("accept: %v", err)
				close(accepted)
				return
			}
			accepted <- tr
		}()

		c, err := DialTCP(ctx, ln.Addr())
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		s := <-accepted
		if s == nil {
			t.Fatal("no server transport")
		}
		if _, err := c.Write([]byte("ping")); err != nil {
			t.Fatalf("write: %v", err)
		}
		buf := make([]byte, 4)
		if _, err := io.ReadFull(s, buf); err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(buf) != "ping" {
			t.Errorf("got %q", buf)
		}
		c.Close()
		s.Close()
	}
}

func TestWebSocketLargeMessage(t *testing.T) {
	ln, err := ListenWebSocket("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan Transport, 1)
	go func() {
		tr, err := ln.Accept()
		if err == nil {
			accepted <- tr
		}
	}()

	c, err := DialWebSocket(ctx, "ws://"+ln.Addr()+"/", "http://localhost/")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	var s Transport
	select {
	case s = <-accepted:
	case <-ctx.Done():
		t.Fatal("timed out waiting for accept")
	}
	defer s.Close()

	msg := make([]byte, 100_000)
	for i := range msg {
		msg[i] = byte('a' + i%26)
	}
	if _, err := c.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := make([]byte, len(msg))
	small := make([]byte, 4096)
	n := 0
	for n < len(msg) {
		m, err := s.Read(small)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		n += copy(got[n:], small[:m])
	}
	if string(got) != string(msg) {
		t.Error("message corrupted across partial reads")
	}
}

func TestPipeRoundTrip(t *testing.T) {
	name := filepath.Join(t.TempDir(), "gutter.sock")
	ln, err := ListenPipe(name)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan Transport, 1)
	go func() {
		tr, err := ln.Accept()
		if err == nil {
			accepted <- tr
		}
	}()

	c, err := DialPipe(ctx, name)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	var s Transport
	select {
	case s = <-accepted:
	case <-ctx.Done():
		t.Fatal("timed out waiting for accept")
	}
	defer s.Close()

	if _, err := c.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(s, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("got %q, want %q", buf, "ping")
	}
}

func TestNodeIPCKeepsOutputOpen(t *testing.T) {
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer outR.Close()
	defer outW.Close()
	defer inW.Close()

	tr := newNodeIPC(inR, outW)
	go inW.Write([]byte("in"))
	buf := make([]byte, 2)
	if _, err := io.ReadFull(tr, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "in" {
		t.Errorf("got %q, want %q", buf, "in")
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// stdout stays usable for log output after the transport is gone.
	if _, err := outW.Write([]byte("x")); err != nil {
		t.Errorf("output closed with transport: %v", err)
	}
	if _, err := inR.Read(buf); err == nil {
		t.Error("input still open after Close")
	}
}
