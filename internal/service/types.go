package service

// Request and response types shared by the CLI, the MCP tools and the index
// server. Lines and columns are 1-based.

// PositionRequest names a caret in a file. Text, when set, replaces the file
// content on disk, so unsaved buffers can be queried.
type PositionRequest struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Text   string `json:"text,omitempty"`
}

// CompleteRequest asks for the completion list at a caret.
type CompleteRequest struct {
	PositionRequest
	// Exact matches whole names instead of prefixes.
	Exact         bool `json:"exact,omitempty"`
	CaseSensitive bool `json:"case_sensitive,omitempty"`
	Max           int  `json:"max,omitempty"`
}

// Completion is one completion candidate.
type Completion struct {
	Name    string  `json:"name"`
	Display string  `json:"display"`
	Kind    string  `json:"kind"`
	Scope   string  `json:"scope,omitempty"`
	Type    string  `json:"type,omitempty"`
	File    string  `json:"file,omitempty"`
	Line    int     `json:"line,omitempty"`
	Image   int     `json:"image"`
	Score   float32 `json:"score,omitempty"`
}

type CompleteResponse struct {
	Items []Completion `json:"items"`
	Total int          `json:"total"`
	// Global is set when the expression did not resolve and the list is the
	// global fallback search.
	Global bool `json:"global,omitempty"`
	// Busy is the reason the owning parser could not be queried yet. The
	// response is empty when it is set.
	Busy string `json:"busy,omitempty"`
}

type CallTipResponse struct {
	Tips        []string `json:"tips"`
	TypedCommas int      `json:"typed_commas"`
	Start       int      `json:"start"`
	Busy        string   `json:"busy,omitempty"`
}

type FunctionResponse struct {
	Found     bool   `json:"found"`
	Namespace string `json:"namespace,omitempty"`
	Proc      string `json:"proc,omitempty"`
	Line      int    `json:"line,omitempty"`
	Busy      string `json:"busy,omitempty"`
}

// TokensRequest filters the token list. Kind is a comma separated list such
// as "class,function"; Name matches as a case-insensitive prefix.
type TokensRequest struct {
	File string `json:"file,omitempty"`
	Kind string `json:"kind,omitempty"`
	Name string `json:"name,omitempty"`
	Max  int    `json:"max,omitempty"`
}

type TokenInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Scope    string `json:"scope,omitempty"`
	Args     string `json:"args,omitempty"`
	Type     string `json:"type,omitempty"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	ImplFile string `json:"impl_file,omitempty"`
	ImplLine int    `json:"impl_line,omitempty"`
}

type TokensResponse struct {
	Tokens []TokenInfo `json:"tokens"`
	Total  int         `json:"total"`
	Busy   string      `json:"busy,omitempty"`
}

// BufferRequest is a whole buffer, parsed on its own.
type BufferRequest struct {
	File string `json:"file"`
	Text string `json:"text,omitempty"`
}

type FunctionInfo struct {
	Name      string `json:"name"`
	Scope     string `json:"scope,omitempty"`
	Display   string `json:"display"`
	Kind      string `json:"kind"`
	Line      int    `json:"line"`
	BodyStart int    `json:"body_start"`
	BodyEnd   int    `json:"body_end"`
}

type BufferFunctionsResponse struct {
	Functions []FunctionInfo `json:"functions"`
}

type ReparseResponse struct {
	File      string `json:"file"`
	Scheduled bool   `json:"scheduled"`
}

type EnvironmentResponse struct {
	Project     string   `json:"project,omitempty"`
	IncludeDirs []string `json:"include_dirs"`
	Macros      string   `json:"macros,omitempty"`
}

// Status summarizes the registry.
type Status struct {
	Ready      bool     `json:"ready"`
	Parsers    int      `json:"parsers"`
	Active     string   `json:"active,omitempty"`
	Files      int      `json:"files"`
	Tokens     int      `json:"tokens"`
	Standalone []string `json:"standalone,omitempty"`
	Refreshes  int64    `json:"refreshes"`
	Busy       string   `json:"busy,omitempty"`
}
