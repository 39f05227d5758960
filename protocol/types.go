// Package protocol contains the wire types exchanged by the gutter bridge
// server, its editor client, and the remote baseline service. Document sync
// types follow LSP 3.17 so an ordinary LSP client can drive the server.
package protocol

import "time"

// DocumentURI represents the URI of a document.
type DocumentURI string

// Position in a text document expressed as zero-based line and character offset.
type Position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

// Range in a text document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextDocumentIdentifier identifies a text document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a versioned text document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int32 `json:"version"`
}

// TextDocumentItem describes a text document with content.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int32       `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentContentChangeEvent describes a content change in a text document.
type TextDocumentContentChangeEvent struct {
	Range       *Range `json:"range,omitempty"`
	RangeLength uint32 `json:"rangeLength,omitempty"`
	Text        string `json:"text"`
}

// --- Lifecycle types ---

// InitializeParams is sent as the first request from client to server.
type InitializeParams struct {
	ProcessID             *int32            `json:"processId"`
	RootURI               *DocumentURI      `json:"rootUri,omitempty"`
	InitializationOptions *GutterSettings   `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder `json:"workspaceFolders,omitempty"`
}

// WorkspaceFolder represents a workspace folder.
type WorkspaceFolder struct {
	URI  DocumentURI `json:"uri"`
	Name string      `json:"name"`
}

// InitializeResult is the response to the initialize request.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo is returned as part of the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerCapabilities defines what the server can do.
type ServerCapabilities struct {
	TextDocumentSync *TextDocumentSyncOptions `json:"textDocumentSync,omitempty"`
	Experimental     *GutterCapabilities      `json:"experimental,omitempty"`
}

// GutterCapabilities advertises the gutter extension methods.
type GutterCapabilities struct {
	LineChangesProvider bool     `json:"lineChangesProvider,omitempty"`
	RedrawReasons       []string `json:"redrawReasons,omitempty"`
}

// TextDocumentSyncKind defines how text documents are synced.
type TextDocumentSyncKind int

const (
	SyncNone        TextDocumentSyncKind = 0
	SyncFull        TextDocumentSyncKind = 1
	SyncIncremental TextDocumentSyncKind = 2
)

type TextDocumentSyncOptions struct {
	OpenClose bool                 `json:"openClose,omitempty"`
	Change    TextDocumentSyncKind `json:"change,omitempty"`
	Save      *SaveOptions         `json:"save,omitempty"`
}

type SaveOptions struct {
	IncludeText bool `json:"includeText,omitempty"`
}

// --- Text document sync ---

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DidSaveTextDocumentParams is sent after a save or a reload from disk.
// When Text is set it replaces the document content.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

// GutterSettings is the "gutter" section of workspace configuration.
type GutterSettings struct {
	IgnoreLeadingTrailingWhitespace *bool `json:"ignoreLeadingTrailingWhitespace,omitempty"`
}

type DidChangeConfigurationParams struct {
	Settings struct {
		Gutter *GutterSettings `json:"gutter,omitempty"`
	} `json:"settings"`
}

// --- Gutter extension ---

// ViewReflowedParams reports a layout change of the view showing a document.
type ViewReflowedParams struct {
	TextDocument  TextDocumentIdentifier `json:"textDocument"`
	HasTextImpact bool                   `json:"hasTextImpact"`
}

// DocumentParams carries only a document identifier.
type DocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// LineChangesParams queries the classification of a document version.
type LineChangesParams struct {
	TextDocument VersionedTextDocumentIdentifier `json:"textDocument"`
}

// LineChangeKind is the wire name of a line change type.
type LineChangeKind string

const (
	LineInserted LineChangeKind = "insert"
	LineDeleted  LineChangeKind = "delete"
	LineChanged  LineChangeKind = "change"
)

// LineChange is one classified line.
type LineChange struct {
	Line            uint32         `json:"line"`
	Kind            LineChangeKind `json:"kind"`
	OriginalStart   int            `json:"originalStart"`
	OriginalLength  int            `json:"originalLength"`
	ModifiedStart   int            `json:"modifiedStart"`
	ModifiedLength  int            `json:"modifiedLength"`
	AtDocumentStart bool           `json:"atDocumentStart,omitempty"`
}

// RedrawParams is published whenever a document's classification is
// (re)published.
type RedrawParams struct {
	URI     DocumentURI  `json:"uri"`
	Version int32        `json:"version"`
	Reason  string       `json:"reason"`
	Changes []LineChange `json:"changes"`
}

// ErrorParams reports an unexpected failure inside the gutter core.
type ErrorParams struct {
	URI     DocumentURI `json:"uri,omitempty"`
	Op      string      `json:"op"`
	Message string      `json:"message"`
}

// --- Baseline service ---

// LocalPathParams names a local file.
type LocalPathParams struct {
	LocalPath string `json:"localPath"`
}

// ServerPathParams names a server item.
type ServerPathParams struct {
	ServerPath string `json:"serverPath"`
}

// ServerPathResult answers baseline/serverPath.
type ServerPathResult struct {
	ServerPath string `json:"serverPath"`
}

// PendingRename is a local rename not yet committed.
type PendingRename struct {
	SourceServerPath string `json:"sourceServerPath"`
	TargetServerPath string `json:"targetServerPath"`
}

// BaselineItem is the metadata of a committed item.
type BaselineItem struct {
	ServerPath string    `json:"serverPath"`
	Encoding   string    `json:"encoding"`
	CommitTime time.Time `json:"commitTime"`
}

// ContentResult carries an item's bytes (base64 on the wire).
type ContentResult struct {
	Content []byte `json:"content"`
}

// CommittedParams is pushed by the baseline service after a commit.
type CommittedParams struct {
	ServerPath string    `json:"serverPath"`
	CommitTime time.Time `json:"commitTime"`
}
