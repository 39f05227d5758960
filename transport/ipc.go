package transport

import (
	"io"
	"os"
)

// NodeIPC returns the transport of an editor extension host that spawned
// the server with --node-ipc: messages arrive on file descriptor 3 and
// leave on stdout. Closing it leaves stdout open.
func NodeIPC() Transport {
	return newNodeIPC(os.NewFile(3, "node-ipc-in"), os.Stdout)
}

func newNodeIPC(in io.ReadCloser, out io.WriteCloser) Transport {
	return &streamTransport{in: in, out: out, keepOut: true}
}
