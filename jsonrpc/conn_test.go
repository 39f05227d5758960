package jsonrpc_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gossip-lsp/gutter/jsonrpc"
	"github.com/gossip-lsp/gutter/transport"
)

func pair(t *testing.T, h jsonrpc.Handler, n jsonrpc.NotificationHandler) (*jsonrpc.Conn, *jsonrpc.Conn) {
	t.Helper()
	ct, st := transport.MemoryPipe()
	ctx, cancel := context.WithCancel(context.Background())

	server := jsonrpc.NewConn(jsonrpc.NewCodec(st, st), h, n)
	client := jsonrpc.NewConn(jsonrpc.NewCodec(ct, ct), nil, nil)
	go server.Run(ctx)
	go client.Run(ctx)

	t.Cleanup(func() {
		cancel()
		server.Close()
		client.Close()
		ct.Close()
	})
	return client, server
}

func TestCallResult(t *testing.T) {
	client, _ := pair(t, func(ctx context.Context, method string, params jsonrpc.RawMessage) (any, error) {
		switch method {
		case "echo":
			return map[string]string{"method": method, "params": string(params)}, nil
		case "missing":
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeBaselineNotFound, Message: "no item"}
		case "wrapped":
			return nil, fmt.Errorf("resolve: %w", &jsonrpc.Error{Code: jsonrpc.CodeServiceUnavailable, Message: "down"})
		}
		return nil, errors.New("boom")
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out map[string]string
	if err := client.CallResult(ctx, "echo", []int{1, 2}, &out); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if out["params"] != "[1,2]" {
		t.Errorf("params = %q", out["params"])
	}

	err := client.CallResult(ctx, "missing", nil, nil)
	if code := jsonrpc.ErrorCode(err); code != jsonrpc.CodeBaselineNotFound {
		t.Errorf("missing: code = %d, err = %v", code, err)
	}

	err = client.CallResult(ctx, "wrapped", nil, nil)
	if code := jsonrpc.ErrorCode(err); code != jsonrpc.CodeServiceUnavailable {
		t.Errorf("wrapped: code = %d, err = %v", code, err)
	}
	if err == nil || err.Error() != "resolve: down" {
		t.Errorf("wrapped message = %v", err)
	}

	err = client.CallResult(ctx, "other", nil, nil)
	if code := jsonrpc.ErrorCode(err); code != jsonrpc.CodeInternalError {
		t.Errorf("other: code = %d", code)
	}
}

func TestNotify(t *testing.T) {
	var mu sync.Mutex
	got := make(chan string, 1)
	client, _ := pair(t, nil, func(ctx context.Context, method string, params jsonrpc.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got <- method + " " + string(params)
	})

	if err := client.Notify(context.Background(), "ping", map[string]int{"n": 1}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	select {
	case s := <-got:
		if s != `ping {"n":1}` {
			t.Errorf("got %q", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestCallAfterClose(t *testing.T) {
	ct, st := transport.MemoryPipe()
	defer ct.Close()
	_ = st

	client := jsonrpc.NewConn(jsonrpc.NewCodec(ct, ct), nil, nil)
	client.Close()

	if err := client.Notify(context.Background(), "x", nil); !errors.Is(err, jsonrpc.ErrClosed) {
		t.Errorf("notify after close = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := client.Call(ctx, "x", nil); !errors.Is(err, jsonrpc.ErrClosed) {
		t.Errorf("call after close = %v", err)
	}
}

func TestNotificationsKeepOrder(t *testing.T) {
	const n = 50
	got := make(chan string, n)
	client, _ := pair(t, nil, func(ctx context.Context, method string, params jsonrpc.RawMessage) {
		got <- method
	})

	ctx := context.Background()
	for i := range n {
		if err := client.Notify(ctx, fmt.Sprintf("m%d", i), nil); err != nil {
			t.Fatal(err)
		}
	}
	for i := range n {
		select {
		case m := <-got:
			if want := fmt.Sprintf("m%d", i); m != want {
				t.Fatalf("notification %d = %s, want %s", i, m, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d notifications", i)
		}
	}
}
