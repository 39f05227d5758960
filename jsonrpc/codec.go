package jsonrpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MaxContentLength bounds a single frame. Baseline content travels inside
// frames, so the limit is generous.
const MaxContentLength = 64 << 20

// ErrFrameTooLarge is returned by Read for frames above MaxContentLength.
var ErrFrameTooLarge = errors.New("jsonrpc: frame exceeds maximum content length")

// Codec reads and writes Content-Length framed JSON-RPC messages
// as specified by the LSP base protocol.
type Codec struct {
	reader *bufio.Reader
	writer io.Writer
	wmu    sync.Mutex
}

// NewCodec creates a new Content-Length framed codec over the given streams.
func NewCodec(r io.Reader, w io.Writer) *Codec {
	return &Codec{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
	}
}

// Read reads a single Content-Length framed message from the stream.
func (c *Codec) Read() ([]byte, error) {
	contentLen, err := c.readHeader()
	if err != nil {
		return nil, err
	}
	body := make([]byte, contentLen)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

func (c *Codec) readHeader() (int, error) {
	contentLen := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("reading header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid Content-Length %q: %w", val, err)
		}
		contentLen = n
	}
	switch {
	case contentLen < 0:
		return 0, errors.New("missing Content-Length header")
	case contentLen > MaxContentLength:
		return 0, ErrFrameTooLarge
	}
	return contentLen, nil
}

// Write writes a Content-Length framed message to the stream. Header and body
// go out in one Write so frames never interleave on message-oriented
// transports.
func (c *Codec) Write(data []byte) error {
	frame := make([]byte, 0, len(data)+32)
	frame = fmt.Appendf(frame, "Content-Length: %d\r\n\r\n", len(data))
	frame = append(frame, data...)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.writer.Write(frame)
	return err
}
