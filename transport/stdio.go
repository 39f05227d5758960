package transport

import (
	"io"
	"os"
)

// streamTransport joins a reader and a writer owned by the process.
type streamTransport struct {
	in  io.ReadCloser
	out io.WriteCloser
	// keepOut leaves out open on Close, for streams shared with logging.
	keepOut bool
}

// Stdio returns a Transport backed by os.Stdin and os.Stdout.
func Stdio() Transport {
	return &streamTransport{in: os.Stdin, out: os.Stdout}
}

func (s *streamTransport) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *streamTransport) Write(p []byte) (int, error) { return s.out.Write(p) }

func (s *streamTransport) Close() error {
	err := s.in.Close()
	if s.keepOut {
		return err
	}
	if cerr := s.out.Close(); err == nil {
		err = cerr
	}
	return err
}
