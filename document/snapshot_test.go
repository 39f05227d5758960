package document

import (
	"errors"
	"testing"

	"github.com/gossip-lsp/gutter/protocol"
)

func TestSnapshotLines(t *testing.T) {
	tests := []struct {
		text  string
		lines []string
	}{
		{"", []string{""}},
		{"a", []string{"a"}},
		{"a\n", []string{"a", ""}},
		{"a\nb\nc\n", []string{"a", "b", "c", ""}},
		{"a\r\nb\rc", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		s := NewSnapshot("file:///x", "plaintext", 1, tt.text)
		if s.LineCount() != len(tt.lines) {
			t.Errorf("%q: LineCount = %d, want %d", tt.text, s.LineCount(), len(tt.lines))
			continue
		}
		for i, want := range tt.lines {
			got, err := s.Line(i)
			if err != nil || got != want {
				t.Errorf("%q: Line(%d) = %q, %v; want %q", tt.text, i, got, err, want)
			}
		}
	}
}

func TestSnapshotLineRange(t *testing.T) {
	s := NewSnapshot("file:///x", "", 3, "ab\r\ncd")
	start, end, err := s.LineRange(0)
	if err != nil || start != 0 || end != 4 {
		t.Errorf("LineRange(0) = %d, %d, %v", start, end, err)
	}
	start, end, err = s.LineRange(1)
	if err != nil || start != 4 || end != 6 {
		t.Errorf("LineRange(1) = %d, %d, %v", start, end, err)
	}
	if _, _, err := s.LineRange(2); !errors.Is(err, ErrLineOutOfRange) {
		t.Errorf("LineRange(2) err = %v, want ErrLineOutOfRange", err)
	}
	if _, err := s.Line(-1); !errors.Is(err, ErrLineOutOfRange) {
		t.Errorf("Line(-1) err = %v, want ErrLineOutOfRange", err)
	}
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()

	var opened, changed, saved []int32
	var closed []protocol.DocumentURI
	store.OnOpen(func(s *Snapshot) { opened = append(opened, s.Version()) })
	store.OnChange(func(s *Snapshot) { changed = append(changed, s.Version()) })
	store.OnSave(func(s *Snapshot) { saved = append(saved, s.Version()) })
	store.OnClose(func(uri protocol.DocumentURI) { closed = append(closed, uri) })

	uri := protocol.DocumentURI("file:///a.txt")
	store.Open(&protocol.DidOpenTextDocumentParams{TextDocument: protocol.TextDocumentItem{URI: uri, Version: 1, Text: "a\n"}})

	change := func(version int32, text string) *Snapshot {
		return store.Change(&protocol.DidChangeTextDocumentParams{
			TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri}, Version: version},
			ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
		})
	}

	before := store.Snapshot(uri)
	if snap := change(2, "a\nb\n"); snap.Version() != 2 || snap.Text() != "a\nb\n" {
		t.Fatalf("change 2 = %d %q", snap.Version(), snap.Text())
	}
	if before.Text() != "a\n" {
		t.Errorf("old snapshot mutated: %q", before.Text())
	}
	if snap := change(2, "stale"); snap.Text() != "a\nb\n" {
		t.Errorf("stale version applied: %q", snap.Text())
	}

	reloaded := "from disk\n"
	if snap := store.Save(&protocol.DidSaveTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}, Text: &reloaded}); snap.Version() != 3 {
		t.Errorf("reload version = %d, want 3", snap.Version())
	}

	store.Close(&protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}})
	store.Close(&protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}})
	if store.Get(uri) != nil {
		t.Error("document still present after close")
	}

	if len(opened) != 1 || len(changed) != 1 || len(saved) != 1 || len(closed) != 1 {
		t.Errorf("callbacks: open=%v change=%v save=%v close=%v", opened, changed, saved, closed)
	}
}
