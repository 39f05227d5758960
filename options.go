package gutter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gossip-lsp/gutter/middleware"
	"github.com/gossip-lsp/gutter/transport"
)

// Option configures a Server during construction.
type Option func(*Server)

// ServeOption configures how the server is served.
type ServeOption func(*serveConfig)

type serveConfig struct {
	transport        transport.Transport
	transportFactory transport.Func
}

// WithLogger sets a custom slog logger on the server.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMiddleware adds middleware to the server's dispatch chain.
// Middleware is applied in order: the first middleware is outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Server) {
		s.middlewares = append(s.middlewares, mws...)
	}
}

// WithSettings sets the initial settings. A workspace config file and the
// editor's configuration override them.
func WithSettings(settings Settings) Option {
	return func(s *Server) {
		s.settings.Swap(&settings)
	}
}

// WithWorkers bounds how many diffs and baseline polls run at once. Zero
// means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Server) {
		s.workers = n
	}
}

// WithPollInterval sets how often each open document's baseline is polled.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pollInterval = d
	}
}

// WithConfigFile sets the name of the TOML file, relative to the workspace
// root, that is loaded at initialize and watched afterwards. An empty name
// disables file configuration.
func WithConfigFile(name string) Option {
	return func(s *Server) {
		s.configFile = name
	}
}

// WithStdio configures the server to communicate over stdin/stdout.
func WithStdio() ServeOption {
	return func(cfg *serveConfig) {
		cfg.transport = transport.Stdio()
	}
}

// WithTransport configures the server to use a specific transport.
func WithTransport(t transport.Transport) ServeOption {
	return func(cfg *serveConfig) {
		cfg.transport = t
	}
}

// WithNodeIPC configures the server for an editor extension host that
// spawned it with --node-ipc.
func WithNodeIPC() ServeOption {
	return func(cfg *serveConfig) {
		cfg.transportFactory = nodeIPC
	}
}

// WithPipe configures the server to connect to the named pipe the editor
// listens on.
func WithPipe(name string) ServeOption {
	return func(cfg *serveConfig) {
		cfg.transportFactory = dialPipe(name)
	}
}

func nodeIPC() (transport.Transport, error) {
	return transport.NodeIPC(), nil
}

func dialPipe(name string) transport.Func {
	return func() (transport.Transport, error) {
		return transport.DialPipe(context.Background(), name)
	}
}

func listenFirst(kind, addr string) transport.Func {
	return func() (transport.Transport, error) {
		ln, err := transport.Listen(kind, addr)
		if err != nil {
			return nil, err
		}
		return transport.First(ln)
	}
}

// WithTCP configures the server to serve the first connection accepted on a
// TCP address (e.g., ":9257").
func WithTCP(addr string) ServeOption {
	return func(cfg *serveConfig) {
		cfg.transportFactory = listenFirst(transport.KindTCP, addr)
	}
}

// WithSocket configures the server to serve the first connection accepted
// on a Unix domain socket.
func WithSocket(path string) ServeOption {
	return func(cfg *serveConfig) {
		cfg.transportFactory = listenFirst(transport.KindUnix, path)
	}
}

// WithWebSocket configures the server to serve the first WebSocket
// connection accepted on addr.
func WithWebSocket(addr string) ServeOption {
	return func(cfg *serveConfig) {
		cfg.transportFactory = listenFirst(transport.KindWebSocket, addr)
	}
}

// FromArgs parses os.Args to determine the transport. Supported flags:
//
//	--stdio               (default)
//	--node-ipc
//	--pipe NAME
//	--tcp :PORT
//	--socket PATH
//	--ws :PORT
func FromArgs() ServeOption {
	return fromArgs(os.Args[1:])
}

// kindPipe marks --pipe, which dials rather than listens.
const kindPipe = "pipe"

func fromArgs(args []string) ServeOption {
	flags := map[string]string{
		"--tcp":    transport.KindTCP,
		"--socket": transport.KindUnix,
		"--ws":     transport.KindWebSocket,
		"--pipe":   kindPipe,
	}
	return func(cfg *serveConfig) {
		for i := 0; i < len(args); i++ {
			arg := args[i]
			switch arg {
			case "--stdio":
				cfg.transport = transport.Stdio()
				return
			case "--node-ipc":
				cfg.transportFactory = nodeIPC
				return
			}
			name, value, hasValue := strings.Cut(arg, "=")
			kind, ok := flags[name]
			if !ok {
				continue
			}
			if !hasValue && i+1 < len(args) {
				i++
				value = args[i]
			}
			if value == "" {
				fmt.Fprintf(os.Stderr, "gutter: %s requires an address\n", name)
				os.Exit(1)
			}
			if kind == kindPipe {
				cfg.transportFactory = dialPipe(value)
			} else {
				cfg.transportFactory = listenFirst(kind, value)
			}
			return
		}
		cfg.transport = transport.Stdio()
	}
}
