package document

import "github.com/gossip-lsp/gutter/protocol"

// ApplyChanges applies a set of LSP content change events to document text.
// Supports both full and incremental sync. An inverted range is replaced
// as if its ends were given in order.
func ApplyChanges(text string, changes []protocol.TextDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := clamp(OffsetAt(text, change.Range.Start), 0, len(text))
		end := clamp(OffsetAt(text, change.Range.End), 0, len(text))
		if start > end {
			start, end = end, start
		}
		text = text[:start] + change.Text + text[end:]
	}
	return text
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
