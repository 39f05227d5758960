package classify

import "github.com/gossip-lsp/gutter/linediff"

// Merge combines two entries that claim the same line. The result spans the
// union of both entries on each side. Entries of the same type whose ranges
// touch or overlap on both sides keep that type; anything else becomes a
// Modify, which downgrades to Delete when the merged modified range is empty
// and to Insert when the merged original range is empty.
//
// Merge is commutative, associative, and idempotent.
func Merge(a, b linediff.Change) linediff.Change {
	origStart := min(a.OriginalStart, b.OriginalStart)
	origEnd := max(a.OriginalEnd(), b.OriginalEnd())
	modStart := min(a.ModifiedStart, b.ModifiedStart)
	modEnd := max(a.ModifiedEnd(), b.ModifiedEnd())

	m := linediff.Change{
		Type:           linediff.Modify,
		OriginalStart:  origStart,
		OriginalLength: origEnd - origStart,
		ModifiedStart:  modStart,
		ModifiedLength: modEnd - modStart,
	}

	if a.Type == b.Type &&
		touches(a.OriginalStart, a.OriginalEnd(), b.OriginalStart, b.OriginalEnd()) &&
		touches(a.ModifiedStart, a.ModifiedEnd(), b.ModifiedStart, b.ModifiedEnd()) {
		m.Type = a.Type
	}

	switch {
	case m.ModifiedLength == 0:
		m.Type = linediff.Delete
	case m.OriginalLength == 0:
		m.Type = linediff.Insert
	}
	return m
}

func touches(s1, e1, s2, e2 int) bool {
	return s1 <= e2 && s2 <= e1
}
