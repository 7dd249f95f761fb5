package mcp

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/ccindex/internal/service"
	"github.com/standardbeagle/ccindex/internal/version"
)

// ServerName is announced to MCP clients.
const ServerName = "ccindex-mcp"

// Server exposes a service's completion queries as MCP tools.
type Server struct {
	svc              *service.Service
	server           *mcp.Server
	diagnosticLogger *DiagnosticLogger
}

// NewServer registers every tool against svc. The caller keeps ownership of
// svc and closes it after Shutdown.
func NewServer(svc *service.Service, logger *DiagnosticLogger) *Server {
	if logger == nil {
		// CRITICAL: Use file-based logging for MCP to keep stdio clean
		logger = NewDiagnosticLogger(svc.Config().Project.Root)
	}
	s := &Server{
		svc:              svc,
		diagnosticLogger: logger,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	logger.Printf("MCP server initialized for %s", svc.Config().Project.Root)
	return s
}

func positionSchema(extra map[string]*jsonschema.Schema) *jsonschema.Schema {
	props := map[string]*jsonschema.Schema{
		"file": {
			Type:        "string",
			Description: "Path of the C/C++ file holding the caret",
		},
		"line": {
			Type:        "integer",
			Description: "1-based caret line",
		},
		"column": {
			Type:        "integer",
			Description: "1-based caret column",
		},
		"text": {
			Type:        "string",
			Description: "Unsaved buffer content; the file on disk is read when omitted",
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{"file", "line", "column"},
	}
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "info",
		Description: "Describe the ccindex tools. Use 'info' for an overview or 'info version' for build details.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"tool": {
					Type:        "string",
					Description: "Tool name to describe (e.g., 'complete', 'version')",
				},
			},
		},
	}, s.handleInfo)

	s.server.AddTool(&mcp.Tool{
		Name:        "complete",
		Description: "Scope-aware C/C++ completion at a caret: members after . -> ::, locals, arguments and globals visible at that point.",
		InputSchema: positionSchema(map[string]*jsonschema.Schema{
			"exact": {
				Type:        "boolean",
				Description: "Match whole names instead of prefixes",
			},
			"case_sensitive": {
				Type:        "boolean",
				Description: "Compare names case-sensitively",
			},
			"max": {
				Type:        "integer",
				Description: "Maximum candidates returned",
			},
		}),
	}, s.handleComplete)

	s.server.AddTool(&mcp.Tool{
		Name:        "calltip",
		Description: "Signatures of the function, constructor or macro call enclosing the caret, with the number of arguments already typed.",
		InputSchema: positionSchema(nil),
	}, s.handleCallTip)

	s.server.AddTool(&mcp.Tool{
		Name:        "current_function",
		Description: "Name and scope of the function whose body holds the caret.",
		InputSchema: positionSchema(nil),
	}, s.handleCurrentFunction)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_tokens",
		Description: "List indexed symbols, optionally limited to one file, a kind list and a name prefix.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file": {
					Type:        "string",
					Description: "Only symbols declared in this file",
				},
				"kind": {
					Type:        "string",
					Description: "Comma separated kinds: namespace, class, enum, typedef, function, variable, macro...",
				},
				"name": {
					Type:        "string",
					Description: "Case-insensitive name prefix",
				},
				"max": {
					Type:        "integer",
					Description: "Maximum symbols returned",
				},
			},
		},
	}, s.handleListTokens)

	s.server.AddTool(&mcp.Tool{
		Name:        "buffer_functions",
		Description: "Functions implemented in one buffer with their body line ranges. The index is not modified.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file": {
					Type:        "string",
					Description: "Buffer file name",
				},
				"text": {
					Type:        "string",
					Description: "Buffer content; the file on disk is read when omitted",
				},
			},
			Required: []string{"file"},
		},
	}, s.handleBufferFunctions)

	s.server.AddTool(&mcp.Tool{
		Name:        "reparse",
		Description: "Reparse one file after it changed on disk.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file": {
					Type:        "string",
					Description: "File to reparse",
				},
			},
			Required: []string{"file"},
		},
	}, s.handleReparse)

	s.server.AddTool(&mcp.Tool{
		Name:        "status",
		Description: "Parser registry status: readiness, parser count and size of the active index.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleStatus)

	s.server.AddTool(&mcp.Tool{
		Name:        "environment",
		Description: "Compiler include directories and predefined macros discovered for the active project.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleEnvironment)
}

// recoverFromPanic runs handler, turning panics and errors into tool error
// results so the client can see them.
func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.diagnosticLogger.Printf("PANIC RECOVERED in %s: %v", operation, r)
			s.diagnosticLogger.Printf("Stack trace: %s", debug.Stack())

			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			s.diagnosticLogger.Printf("Memory stats - Alloc: %d KB, Sys: %d KB, NumGC: %d",
				m.Alloc/1024, m.Sys/1024, m.NumGC)
			result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err = handler()
	s.diagnosticLogger.ToolCall(operation, time.Since(start), err)
	if err != nil {
		return createSmartErrorResponse(operation, err, map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"ready":     s.svc.Registry().Done(),
		})
	}
	return result, nil
}

// Start serves MCP over stdio until ctx is done or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.diagnosticLogger.Printf("Starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Shutdown flushes the diagnostic log.
func (s *Server) Shutdown(ctx context.Context) error {
	s.diagnosticLogger.Printf("MCP server shutdown complete")
	return s.diagnosticLogger.Close()
}
