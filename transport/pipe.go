package transport

import "context"

// ListenPipe listens on the pipe name an editor passes with --pipe. Pipe
// names are Unix domain socket paths.
func ListenPipe(name string) (Listener, error) {
	return ListenSocket(name)
}

// DialPipe connects to a pipe the editor is already listening on, which is
// how --pipe is meant: the editor creates the pipe and the server connects.
func DialPipe(ctx context.Context, name string) (Transport, error) {
	return DialSocket(ctx, name)
}
