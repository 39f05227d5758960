// Package classify turns line diff entries into a per-line change map keyed
// by zero-based line indices of the local document snapshot the diff was
// computed against.
package classify

import (
	"iter"
	"maps"
	"slices"

	"github.com/gossip-lsp/gutter/linediff"
)

// LineChange is the classification of one local line.
type LineChange struct {
	Type linediff.Type
	// Entry is the diff entry that owns the line, merged with any other
	// entries that claimed it.
	Entry linediff.Change
	// AtDocumentStart marks a Delete whose removed lines preceded the first
	// local line. Such deletions are reported on line 0.
	AtDocumentStart bool
}

// Classification is an immutable line -> change map for one snapshot version.
type Classification struct {
	version int32
	lines   map[int]LineChange
	order   []int
}

// Empty returns a classification with no changed lines.
func Empty(version int32) *Classification {
	return &Classification{version: version}
}

// Version returns the snapshot version the classification was computed for.
func (c *Classification) Version() int32 { return c.version }

// Len returns the number of classified lines.
func (c *Classification) Len() int { return len(c.order) }

// Line returns the change recorded for line, if any.
func (c *Classification) Line(line int) (LineChange, bool) {
	lc, ok := c.lines[line]
	return lc, ok
}

// Lines returns the classified line indices in ascending order.
func (c *Classification) Lines() []int { return slices.Clone(c.order) }

// All iterates classified lines in ascending order.
func (c *Classification) All() iter.Seq2[int, LineChange] {
	return func(yield func(int, LineChange) bool) {
		for _, line := range c.order {
			if !yield(line, c.lines[line]) {
				return
			}
		}
	}
}

// Equal reports whether c and other classify the same version identically.
func (c *Classification) Equal(other *Classification) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.version == other.version && maps.Equal(c.lines, other.lines)
}

// Classify maps entries onto the lines of a snapshot with lineCount lines.
//
// Inserted and changed lines are classified individually. A deletion is
// reported on the local line just before the removed range, or on line 0
// with AtDocumentStart set when nothing precedes it. Lines claimed by more
// than one entry carry the Merge of all claimants. Lines at or beyond
// lineCount are dropped.
func Classify(entries []linediff.Change, lineCount int, version int32) *Classification {
	c := &Classification{version: version, lines: make(map[int]LineChange)}

	claim := func(line int, e linediff.Change, atStart bool) {
		if line < 0 || line >= lineCount {
			return
		}
		lc, ok := c.lines[line]
		if !ok {
			c.lines[line] = LineChange{Type: e.Type, Entry: e, AtDocumentStart: atStart}
			return
		}
		merged := Merge(lc.Entry, e)
		c.lines[line] = LineChange{
			Type:            merged.Type,
			Entry:           merged,
			AtDocumentStart: merged.Type == linediff.Delete && (lc.AtDocumentStart || atStart),
		}
	}

	for _, e := range entries {
		e.Type = linediff.TypeOf(e.OriginalLength, e.ModifiedLength)
		switch e.Type {
		case linediff.Delete:
			anchor := e.ModifiedStart - 1
			claim(max(anchor, 0), e, anchor < 0)
		default:
			for line := e.ModifiedStart; line < e.ModifiedEnd(); line++ {
				claim(line, e, false)
			}
		}
	}

	c.order = slices.Sorted(maps.Keys(c.lines))
	return c
}
