package gutter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gossip-lsp/gutter/transport"
)

func TestFromArgsPipeDials(t *testing.T) {
	name := filepath.Join(t.TempDir(), "editor.sock")
	ln, err := transport.ListenPipe(name)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan transport.Transport, 1)
	go func() {
		tr, err := ln.Accept()
		if err == nil {
			accepted <- tr
		}
	}()

	for _, args := range [][]string{{"--pipe=" + name}, {"--pipe", name}} {
		var cfg serveConfig
		fromArgs(args)(&cfg)
		require.Nil(t, cfg.transport, "args %v", args)
		require.NotNil(t, cfg.transportFactory, "args %v", args)

		tr, err := cfg.transportFactory()
		require.NoError(t, err)
		tr.Close()
		(<-accepted).Close()

		go func() {
			tr, err := ln.Accept()
			if err == nil {
				accepted <- tr
			}
		}()
	}
}

func TestFromArgsNodeIPC(t *testing.T) {
	var cfg serveConfig
	fromArgs([]string{"--node-ipc"})(&cfg)
	require.Nil(t, cfg.transport)
	require.NotNil(t, cfg.transportFactory)
}

func TestFromArgsDefaultsToStdio(t *testing.T) {
	var cfg serveConfig
	fromArgs([]string{"--verbose"})(&cfg)
	require.NotNil(t, cfg.transport)
	require.Nil(t, cfg.transportFactory)
}
