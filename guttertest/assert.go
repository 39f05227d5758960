package guttertest

import (
	"testing"

	"github.com/gossip-lsp/gutter/protocol"
)

// Kinds maps each changed line to its kind.
func Kinds(changes []protocol.LineChange) map[uint32]protocol.LineChangeKind {
	out := make(map[uint32]protocol.LineChangeKind, len(changes))
	for _, c := range changes {
		out[c.Line] = c.Kind
	}
	return out
}

// AssertLineKinds asserts that changes classify exactly the given lines.
func AssertLineKinds(t testing.TB, changes []protocol.LineChange, want map[uint32]protocol.LineChangeKind) {
	t.Helper()
	got := Kinds(changes)
	if len(got) != len(want) {
		t.Errorf("expected %d changed lines, got %d: %v", len(want), len(got), got)
		return
	}
	for line, kind := range want {
		if got[line] != kind {
			t.Errorf("line %d: expected %q, got %q", line, kind, got[line])
		}
	}
}

// AssertNoChanges asserts that changes is empty.
func AssertNoChanges(t testing.TB, changes []protocol.LineChange) {
	t.Helper()
	if len(changes) != 0 {
		t.Errorf("expected no changed lines, got %v", Kinds(changes))
	}
}

// AssertOrdered asserts that changes are sorted by line with no repeats.
func AssertOrdered(t testing.TB, changes []protocol.LineChange) {
	t.Helper()
	for i := 1; i < len(changes); i++ {
		if changes[i].Line <= changes[i-1].Line {
			t.Errorf("changes out of order at %d: line %d after %d", i, changes[i].Line, changes[i-1].Line)
		}
	}
}
