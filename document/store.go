// Package document provides immutable, versioned document snapshots, a
// thread-safe store of open documents, and LSP position utilities. Documents
// are tracked via didOpen/didChange/didSave/didClose notifications and support
// incremental text synchronization.
package document

import (
	"sync"

	"github.com/gossip-lsp/gutter/protocol"
)

// SnapshotFunc receives a document snapshot.
type SnapshotFunc func(snap *Snapshot)

// URIFunc receives the URI of a closed document.
type URIFunc func(uri protocol.DocumentURI)

// Store is a thread-safe store of open text documents. Callbacks fire outside
// the store lock, in registration order.
type Store struct {
	mu   sync.RWMutex
	docs map[protocol.DocumentURI]*Document

	onOpen   []SnapshotFunc
	onChange []SnapshotFunc
	onSave   []SnapshotFunc
	onClose  []URIFunc
}

// NewStore creates a new empty document store.
func NewStore() *Store {
	return &Store{
		docs: make(map[protocol.DocumentURI]*Document),
	}
}

// OnOpen registers a callback called when a document is opened.
func (s *Store) OnOpen(fn SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = append(s.onOpen, fn)
}

// OnChange registers a callback called with each new snapshot produced by an
// edit.
func (s *Store) OnChange(fn SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnSave registers a callback called when a document is saved or reloaded.
func (s *Store) OnSave(fn SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSave = append(s.onSave, fn)
}

// OnClose registers a callback called when a document is closed.
func (s *Store) OnClose(fn URIFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Get returns the document for the given URI, or nil if not found.
func (s *Store) Get(uri protocol.DocumentURI) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[uri]
}

// Snapshot returns the current snapshot for uri, or nil if not open.
func (s *Store) Snapshot(uri protocol.DocumentURI) *Snapshot {
	if doc := s.Get(uri); doc != nil {
		return doc.Snapshot()
	}
	return nil
}

// URIs returns all open document URIs.
func (s *Store) URIs() []protocol.DocumentURI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uris := make([]protocol.DocumentURI, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	return uris
}

// Open adds a document to the store from a didOpen notification.
func (s *Store) Open(params *protocol.DidOpenTextDocumentParams) *Snapshot {
	doc := New(params.TextDocument)

	s.mu.Lock()
	s.docs[params.TextDocument.URI] = doc
	callbacks := append([]SnapshotFunc(nil), s.onOpen...)
	s.mu.Unlock()

	snap := doc.Snapshot()
	for _, cb := range callbacks {
		cb(snap)
	}
	return snap
}

// Change applies edits from a didChange notification. Unknown documents and
// non-advancing versions are ignored.
func (s *Store) Change(params *protocol.DidChangeTextDocumentParams) *Snapshot {
	doc := s.Get(params.TextDocument.URI)
	if doc == nil {
		return nil
	}
	snap, applied := doc.ApplyChanges(params.TextDocument.Version, params.ContentChanges)
	if !applied {
		return snap
	}

	s.mu.RLock()
	callbacks := append([]SnapshotFunc(nil), s.onChange...)
	s.mu.RUnlock()
	for _, cb := range callbacks {
		cb(snap)
	}
	return snap
}

// Save handles a didSave notification. If the notification carries text, it
// replaces the document content (a reload from disk).
func (s *Store) Save(params *protocol.DidSaveTextDocumentParams) *Snapshot {
	doc := s.Get(params.TextDocument.URI)
	if doc == nil {
		return nil
	}
	snap := doc.Snapshot()
	if params.Text != nil && *params.Text != snap.Text() {
		snap = doc.Replace(*params.Text)
	}

	s.mu.RLock()
	callbacks := append([]SnapshotFunc(nil), s.onSave...)
	s.mu.RUnlock()
	for _, cb := range callbacks {
		cb(snap)
	}
	return snap
}

// Close removes a document from the store.
func (s *Store) Close(params *protocol.DidCloseTextDocumentParams) {
	uri := params.TextDocument.URI

	s.mu.Lock()
	_, ok := s.docs[uri]
	delete(s.docs, uri)
	callbacks := append([]URIFunc(nil), s.onClose...)
	s.mu.Unlock()

	if !ok {
		return
	}
	for _, cb := range callbacks {
		cb(uri)
	}
}
