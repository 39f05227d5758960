// Package linediff computes line-level differences between a baseline and a
// local document. Each decoded line, terminator included, is one diff unit.
package linediff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Type is the kind of a diff entry.
type Type int

const (
	Insert Type = iota + 1
	Delete
	Modify
)

func (t Type) String() string {
	switch t {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Modify:
		return "change"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// TypeOf derives an entry type from its side lengths.
func TypeOf(originalLength, modifiedLength int) Type {
	switch {
	case originalLength == 0:
		return Insert
	case modifiedLength == 0:
		return Delete
	default:
		return Modify
	}
}

// Change is one contiguous difference. Starts are zero-based unit indices on
// the original (baseline) and modified (local) sides.
type Change struct {
	Type           Type
	OriginalStart  int
	OriginalLength int
	ModifiedStart  int
	ModifiedLength int
}

// OriginalEnd returns the index one past the last original unit.
func (c Change) OriginalEnd() int { return c.OriginalStart + c.OriginalLength }

// ModifiedEnd returns the index one past the last modified unit.
func (c Change) ModifiedEnd() int { return c.ModifiedStart + c.ModifiedLength }

func (c Change) String() string {
	return fmt.Sprintf("%s orig[%d+%d] mod[%d+%d]", c.Type,
		c.OriginalStart, c.OriginalLength, c.ModifiedStart, c.ModifiedLength)
}

// Diff compares original against modified, each in its named encoding, and
// returns the differing regions ordered by position. With ignoreWhitespace,
// lines that differ only in leading or trailing white space (terminators
// included) compare equal; alignment stays on line boundaries.
func Diff(original []byte, originalEncoding string, modified []byte, modifiedEncoding string, ignoreWhitespace bool) ([]Change, error) {
	a, err := Decode(original, originalEncoding)
	if err != nil {
		return nil, fmt.Errorf("decoding original: %w", err)
	}
	b, err := Decode(modified, modifiedEncoding)
	if err != nil {
		return nil, fmt.Errorf("decoding modified: %w", err)
	}
	return DiffLines(SplitLines(a), SplitLines(b), ignoreWhitespace), nil
}

// DiffLines diffs two already split unit sequences.
func DiffLines(a, b []string, ignoreWhitespace bool) []Change {
	keysA := keys(a, ignoreWhitespace)
	keysB := keys(b, ignoreWhitespace)
	if ignoreWhitespace {
		// Blank lines at the end of either side are white space too.
		keysA = trimBlankTail(keysA)
		keysB = trimBlankTail(keysB)
	}
	na, nb := len(keysA), len(keysB)

	// A trailing sentinel unit on both sides keeps changes next to a final
	// blank line from being misreported.
	s := sentinel(keysA, keysB)
	keysA = append(keysA, s)
	keysB = append(keysB, s)

	m := difflib.NewMatcherWithJunk(keysA, keysB, false, nil)

	var out []Change
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		i2 := min(op.I2, na)
		j2 := min(op.J2, nb)
		i1 := min(op.I1, i2)
		j1 := min(op.J1, j2)
		origLen, modLen := i2-i1, j2-j1
		if origLen == 0 && modLen == 0 {
			continue
		}
		out = append(out, Change{
			Type:           TypeOf(origLen, modLen),
			OriginalStart:  i1,
			OriginalLength: origLen,
			ModifiedStart:  j1,
			ModifiedLength: modLen,
		})
	}
	return out
}

func keys(units []string, ignoreWhitespace bool) []string {
	k := make([]string, len(units), len(units)+1)
	for i, u := range units {
		if ignoreWhitespace {
			u = strings.TrimSpace(u)
		}
		k[i] = u
	}
	return k
}

func trimBlankTail(k []string) []string {
	n := len(k)
	for n > 0 && k[n-1] == "" {
		n--
	}
	return k[:n]
}

// sentinel returns a non-blank unit that occurs in neither sequence.
func sentinel(a, b []string) string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, k := range a {
		seen[k] = struct{}{}
	}
	for _, k := range b {
		seen[k] = struct{}{}
	}
	s := "\x00eof"
	for {
		if _, ok := seen[s]; !ok {
			return s
		}
		s += "\x00"
	}
}
