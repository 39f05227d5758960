package document

import (
	"testing"

	"github.com/gossip-lsp/gutter/protocol"
)

const storeURI = protocol.DocumentURI("file:///x.txt")

func openParams(text string) *protocol.DidOpenTextDocumentParams {
	return &protocol.DidOpenTextDocumentParams{TextDocument: protocol.TextDocumentItem{
		URI: storeURI, LanguageID: "plaintext", Version: 1, Text: text,
	}}
}

func changeParams(version int32, text string) *protocol.DidChangeTextDocumentParams {
	return &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: storeURI},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
	}
}

func TestStoreCallbacks(t *testing.T) {
	s := NewStore()
	var events []string
	s.OnOpen(func(snap *Snapshot) { events = append(events, "open:"+snap.Text()) })
	s.OnChange(func(snap *Snapshot) { events = append(events, "change:"+snap.Text()) })
	s.OnSave(func(snap *Snapshot) { events = append(events, "save:"+snap.Text()) })
	s.OnClose(func(uri protocol.DocumentURI) { events = append(events, "close:"+string(uri)) })

	s.Open(openParams("a"))
	s.Change(changeParams(2, "b"))
	s.Change(changeParams(2, "stale"))
	text := "c"
	s.Save(&protocol.DidSaveTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: storeURI}, Text: &text})
	s.Close(&protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: storeURI}})
	s.Close(&protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: storeURI}})

	want := []string{"open:a", "change:b", "save:c", "close:" + string(storeURI)}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
	if s.Get(storeURI) != nil {
		t.Error("document still present after close")
	}
}

func TestStoreSaveReloadBumpsVersion(t *testing.T) {
	s := NewStore()
	s.Open(openParams("a"))

	same := "a"
	snap := s.Save(&protocol.DidSaveTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: storeURI}, Text: &same})
	if snap.Version() != 1 {
		t.Errorf("unchanged save bumped version to %d", snap.Version())
	}

	reloaded := "b"
	snap = s.Save(&protocol.DidSaveTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: storeURI}, Text: &reloaded})
	if snap.Version() != 2 || snap.Text() != "b" {
		t.Errorf("reload = version %d %q, want version 2 %q", snap.Version(), snap.Text(), "b")
	}
	if got := s.Snapshot(storeURI); got != snap {
		t.Error("store snapshot not updated by reload")
	}
}

func TestStoreUnknownDocument(t *testing.T) {
	s := NewStore()
	if s.Change(changeParams(2, "x")) != nil {
		t.Error("change of unknown document returned a snapshot")
	}
	if len(s.URIs()) != 0 {
		t.Error("unknown document was added")
	}
}
