package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gossip-lsp/gutter/protocol"
)

// ErrLineOutOfRange is returned when a line index does not exist in a
// snapshot, typically because the index was computed against another version.
var ErrLineOutOfRange = errors.New("line out of range")

// Snapshot is an immutable version of a document's text. It is safe to share
// between goroutines without locking.
//
// Lines are separated by "\n", "\r\n" or a lone "\r". A document always has
// at least one line; text ending in a line break has an empty last line.
type Snapshot struct {
	uri        protocol.DocumentURI
	languageID string
	version    int32
	text       string
	lineStarts []int
}

// NewSnapshot creates a snapshot of text at the given version.
func NewSnapshot(uri protocol.DocumentURI, languageID string, version int32, text string) *Snapshot {
	return &Snapshot{
		uri:        uri,
		languageID: languageID,
		version:    version,
		text:       text,
		lineStarts: lineStarts(text),
	}
}

func lineStarts(text string) []int {
	starts := make([]int, 1, strings.Count(text, "\n")+1)
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			starts = append(starts, i+1)
		}
	}
	return starts
}

// URI returns the document's URI.
func (s *Snapshot) URI() protocol.DocumentURI { return s.uri }

// LanguageID returns the language identifier the document was opened with.
func (s *Snapshot) LanguageID() string { return s.languageID }

// Version returns the snapshot's version number.
func (s *Snapshot) Version() int32 { return s.version }

// Text returns the full text.
func (s *Snapshot) Text() string { return s.text }

// LineCount returns the number of lines, counting an empty last line.
func (s *Snapshot) LineCount() int { return len(s.lineStarts) }

// LineRange returns the byte range [start, end) of line i, including its
// line break.
func (s *Snapshot) LineRange(i int) (start, end int, err error) {
	if i < 0 || i >= len(s.lineStarts) {
		return 0, 0, fmt.Errorf("line %d of %s@%d: %w", i, s.uri, s.version, ErrLineOutOfRange)
	}
	start = s.lineStarts[i]
	end = len(s.text)
	if i+1 < len(s.lineStarts) {
		end = s.lineStarts[i+1]
	}
	return start, end, nil
}

// Line returns the text of line i without its line break.
func (s *Snapshot) Line(i int) (string, error) {
	start, end, err := s.LineRange(i)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(s.text[start:end], "\r\n"), nil
}

// Position converts a byte offset to an LSP position.
func (s *Snapshot) Position(offset int) protocol.Position {
	return PositionAt(s.text, offset)
}
