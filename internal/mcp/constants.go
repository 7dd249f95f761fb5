package mcp

const (
	// ListTokensDefaultMax bounds list_tokens when the caller gives no max.
	// Whole-project listings easily exceed what a client context can hold.
	ListTokensDefaultMax = 200

	// DiagnosticLogDir is created below the system temp directory.
	DiagnosticLogDir = "ccindex-mcp-logs"
)
