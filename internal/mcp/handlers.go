package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/ccindex/internal/service"
	"github.com/standardbeagle/ccindex/internal/version"
)

// UnknownField represents an unknown field that was passed but not recognized
type UnknownField struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

type InfoParams struct {
	Tool string `json:"tool"`
}

type FileParams struct {
	File string `json:"file"`
}

var (
	positionFields = fieldSet("file", "line", "column", "text")
	completeFields = fieldSet("file", "line", "column", "text", "exact", "case_sensitive", "max")
	tokensFields   = fieldSet("file", "kind", "name", "max")
	bufferFields   = fieldSet("file", "text")
	fileFields     = fieldSet("file")
)

// withWarnings wraps a response when the caller passed fields no tool reads.
type withWarnings struct {
	Result   interface{}    `json:"result"`
	Warnings []UnknownField `json:"warnings"`
}

func respond(data interface{}, warnings []UnknownField) (*mcp.CallToolResult, error) {
	if len(warnings) > 0 {
		return createJSONResponse(withWarnings{Result: data, Warnings: warnings})
	}
	return createJSONResponse(data)
}

var toolHelp = map[string]string{
	"complete":         "Give {file, line, column} of the caret. Optional: text (unsaved buffer), exact, case_sensitive, max.",
	"calltip":          "Give {file, line, column} inside the call's parentheses.",
	"current_function": "Give {file, line, column}; found is false outside any function body.",
	"list_tokens":      "Optional {file, kind, name, max}. kind is a list such as \"class,function\".",
	"buffer_functions": "Give {file} and optionally {text}; lines in the result are 1-based.",
	"reparse":          "Give {file}; the file must be a C/C++ source or header.",
	"status":           "No parameters.",
	"environment":      "No parameters.",
}

func (s *Server) handleInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params InfoParams
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
			return createSmartErrorResponse("info", fmt.Errorf("invalid parameters: %w", err), map[string]interface{}{
				"help": "Use: {\"tool\": \"complete\"} or {\"tool\": \"version\"}",
			})
		}
	}

	tool := strings.ToLower(strings.TrimSpace(params.Tool))
	switch tool {
	case "":
		overview := map[string]interface{}{
			"server": ServerName,
			"root":   s.svc.Config().Project.Root,
			"tools":  toolHelp,
		}
		if path := s.diagnosticLogger.Path(); path != "" {
			overview["log"] = path
		}
		return createJSONResponse(overview)
	case "version":
		return createJSONResponse(map[string]interface{}{
			"server_name":    ServerName,
			"server_version": version.FullInfo(),
			"build_id":       version.BuildID(),
			"go_version":     runtime.Version(),
			"platform":       runtime.GOOS + "/" + runtime.GOARCH,
		})
	}
	help, ok := toolHelp[tool]
	if !ok {
		return createErrorResponse("info", fmt.Errorf("unknown tool %q", params.Tool))
	}
	return createJSONResponse(map[string]interface{}{
		"tool":    tool,
		"help":    help,
		"related": getRelatedOperations(tool),
	})
}

func (s *Server) handleComplete(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("complete", func() (*mcp.CallToolResult, error) {
		var params service.CompleteRequest
		warnings, err := decodeArguments(req.Params.Arguments, completeFields, &params)
		if err != nil {
			return nil, err
		}
		resp, err := s.svc.Complete(ctx, params)
		if err != nil {
			return nil, err
		}
		s.diagnosticLogger.Busy("complete", resp.Busy)
		return respond(resp, warnings)
	})
}

func (s *Server) handleCallTip(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("calltip", func() (*mcp.CallToolResult, error) {
		var params service.PositionRequest
		warnings, err := decodeArguments(req.Params.Arguments, positionFields, &params)
		if err != nil {
			return nil, err
		}
		resp, err := s.svc.CallTip(ctx, params)
		if err != nil {
			return nil, err
		}
		s.diagnosticLogger.Busy("calltip", resp.Busy)
		return respond(resp, warnings)
	})
}

func (s *Server) handleCurrentFunction(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("current_function", func() (*mcp.CallToolResult, error) {
		var params service.PositionRequest
		warnings, err := decodeArguments(req.Params.Arguments, positionFields, &params)
		if err != nil {
			return nil, err
		}
		resp, err := s.svc.CurrentFunction(ctx, params)
		if err != nil {
			return nil, err
		}
		s.diagnosticLogger.Busy("current_function", resp.Busy)
		return respond(resp, warnings)
	})
}

func (s *Server) handleListTokens(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("list_tokens", func() (*mcp.CallToolResult, error) {
		var params service.TokensRequest
		warnings, err := decodeArguments(req.Params.Arguments, tokensFields, &params)
		if err != nil {
			return nil, err
		}
		if params.Max <= 0 {
			params.Max = ListTokensDefaultMax
		}
		resp, err := s.svc.Tokens(ctx, params)
		if err != nil {
			return nil, err
		}
		s.diagnosticLogger.Busy("list_tokens", resp.Busy)
		return respond(resp, warnings)
	})
}

func (s *Server) handleBufferFunctions(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("buffer_functions", func() (*mcp.CallToolResult, error) {
		var params service.BufferRequest
		warnings, err := decodeArguments(req.Params.Arguments, bufferFields, &params)
		if err != nil {
			return nil, err
		}
		resp, err := s.svc.BufferFunctions(ctx, params)
		if err != nil {
			return nil, err
		}
		return respond(resp, warnings)
	})
}

func (s *Server) handleReparse(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("reparse", func() (*mcp.CallToolResult, error) {
		var params FileParams
		warnings, err := decodeArguments(req.Params.Arguments, fileFields, &params)
		if err != nil {
			return nil, err
		}
		resp, err := s.svc.Reparse(ctx, params.File)
		if err != nil {
			return nil, err
		}
		return respond(resp, warnings)
	})
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("status", func() (*mcp.CallToolResult, error) {
		return createJSONResponse(s.svc.Status())
	})
}

func (s *Server) handleEnvironment(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("environment", func() (*mcp.CallToolResult, error) {
		return createJSONResponse(s.svc.Environment(ctx))
	})
}
