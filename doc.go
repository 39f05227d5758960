// Package gutter keeps per-line change markers for open documents in sync
// with a committed baseline. For every open document a Controller diffs the
// current text against the baseline, classifies each local line as inserted,
// changed, or next to a deletion, and publishes the result through a
// Notifier whenever something that affects it changes.
//
// The package also contains a JSON-RPC bridge Server that an editor can
// drive like a language server:
//
//	repo, _ := sqlstore.Open("baseline.db")
//	s := gutter.NewServer("gutter", "0.1.0", baseline.NewProvider(repo))
//	gutter.Serve(s, gutter.WithStdio())
//
// See the examples/ directory for complete servers.
package gutter
