package document

import (
	"sync"

	"github.com/gossip-lsp/gutter/protocol"
)

// Document is a single managed text document. Each edit produces a new
// immutable Snapshot; readers take the current snapshot and never see a
// partially applied edit.
type Document struct {
	mu       sync.RWMutex
	snapshot *Snapshot
}

// New creates a new Document from an LSP TextDocumentItem.
func New(item protocol.TextDocumentItem) *Document {
	return &Document{
		snapshot: NewSnapshot(item.URI, item.LanguageID, item.Version, item.Text),
	}
}

// Snapshot returns the current snapshot.
func (d *Document) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// URI returns the document's URI.
func (d *Document) URI() protocol.DocumentURI { return d.Snapshot().URI() }

// Version returns the document's current version number.
func (d *Document) Version() int32 { return d.Snapshot().Version() }

// Text returns the full text content of the document.
func (d *Document) Text() string { return d.Snapshot().Text() }

// ApplyChanges applies edits and publishes a snapshot at version. Versions
// that do not advance the document are ignored and the current snapshot is
// returned with applied=false.
func (d *Document) ApplyChanges(version int32, changes []protocol.TextDocumentContentChangeEvent) (snap *Snapshot, applied bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := d.snapshot
	if version <= cur.version {
		return cur, false
	}
	d.snapshot = NewSnapshot(cur.uri, cur.languageID, version, ApplyChanges(cur.text, changes))
	return d.snapshot, true
}

// Replace swaps the whole text (e.g. after a reload from disk) and bumps the
// version by one.
func (d *Document) Replace(text string) *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := d.snapshot
	d.snapshot = NewSnapshot(cur.uri, cur.languageID, cur.version+1, text)
	return d.snapshot
}
