package document

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/gossip-lsp/gutter/protocol"
)

// OffsetAt converts an LSP Position (line, UTF-16 character offset) to a byte
// offset in text. Positions past the last line map to len(text); characters
// past the end of a line map to the end of that line's content.
func OffsetAt(text string, pos protocol.Position) int {
	offset := 0
	for l := uint32(0); l < pos.Line; l++ {
		next, ok := nextLineStart(text, offset)
		if !ok {
			return len(text)
		}
		offset = next
	}
	end := lineContentEnd(text, offset)
	return offset + utf16OffsetToBytes(text[offset:end], int(pos.Character))
}

// PositionAt converts a byte offset to an LSP position.
func PositionAt(text string, offset int) protocol.Position {
	offset = clamp(offset, 0, len(text))

	line := uint32(0)
	lineStart := 0
	for {
		next, ok := nextLineStart(text, lineStart)
		if !ok || next > offset {
			break
		}
		line++
		lineStart = next
	}
	return protocol.Position{Line: line, Character: uint32(bytesToUTF16Offset(text[lineStart:offset]))}
}

// nextLineStart returns the offset of the line following the one containing
// from, or false if that line is the last.
func nextLineStart(text string, from int) (int, bool) {
	for i := from; i < len(text); i++ {
		switch text[i] {
		case '\n':
			return i + 1, true
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				return i + 2, true
			}
			return i + 1, true
		}
	}
	return 0, false
}

// lineContentEnd returns the offset of the line break ending the line that
// starts at from, or len(text).
func lineContentEnd(text string, from int) int {
	for i := from; i < len(text); i++ {
		if text[i] == '\n' || text[i] == '\r' {
			return i
		}
	}
	return len(text)
}

// utf16OffsetToBytes converts a UTF-16 character offset within a line to a byte offset.
func utf16OffsetToBytes(line string, utf16Offset int) int {
	u16 := 0
	byteOffset := 0
	for byteOffset < len(line) && u16 < utf16Offset {
		r, size := utf8.DecodeRuneInString(line[byteOffset:])
		u16 += runeUTF16Len(r, size)
		byteOffset += size
	}
	return byteOffset
}

// bytesToUTF16Offset converts a byte-length string to its UTF-16 length.
func bytesToUTF16Offset(s string) int {
	u16 := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		u16 += runeUTF16Len(r, size)
		i += size
	}
	return u16
}

func runeUTF16Len(r rune, size int) int {
	if r == utf8.RuneError && size == 1 {
		return 1
	}
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}
