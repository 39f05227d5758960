package protocol

// Method constants.
const (
	// Lifecycle
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodShutdown    = "shutdown"
	MethodExit        = "exit"
	MethodSetTrace    = "$/setTrace"

	// Text document sync
	MethodDidOpen   = "textDocument/didOpen"
	MethodDidChange = "textDocument/didChange"
	MethodDidClose  = "textDocument/didClose"
	MethodDidSave   = "textDocument/didSave"

	// Workspace
	MethodDidChangeConfiguration = "workspace/didChangeConfiguration"

	// Gutter (client -> server)
	MethodLineChanges           = "gutter/lineChanges"
	MethodViewReflowed          = "gutter/viewReflowed"
	MethodZoomChanged           = "gutter/zoomChanged"
	MethodFormatMapChanged      = "gutter/formatMapChanged"
	MethodProjectContextChanged = "gutter/projectContextChanged"
	MethodRefreshBaseline       = "gutter/refreshBaseline"

	// Gutter (server -> client)
	MethodRedraw = "gutter/redraw"
	MethodError  = "gutter/error"

	// Baseline service (client -> service)
	MethodBaselineServerPath     = "baseline/serverPath"
	MethodBaselinePendingRenames = "baseline/pendingRenames"
	MethodBaselineItem           = "baseline/item"
	MethodBaselineContent        = "baseline/content"

	// Baseline service (service -> client)
	MethodBaselineCommitted = "baseline/committed"
)
