package mcp

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/ccindex/internal/errors"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse creates a standardized error response for MCP tools
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}

	// Tool errors belong in the result with IsError set, not in a protocol
	// error, or the model never sees them.
	response.IsError = true
	return response, nil
}

// createSmartErrorResponse creates an enhanced error response with context-aware suggestions
func createSmartErrorResponse(operation string, err error, context map[string]interface{}) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}

	if suggestions := generateErrorSuggestions(operation, err); len(suggestions) > 0 {
		errorData["suggestions"] = suggestions
	}
	if help, ok := toolHelp[operation]; ok {
		errorData["help"] = help
	}
	if related := getRelatedOperations(operation); len(related) > 0 {
		errorData["related_operations"] = related
	}
	if len(context) > 0 {
		errorData["context"] = context
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}

// generateErrorSuggestions generates suggestions for common errors
func generateErrorSuggestions(operation string, err error) []string {
	var suggestions []string
	var fe *errors.FileError

	switch {
	case stderrors.Is(err, errors.ErrMissingFile):
		suggestions = append(suggestions, "Pass the caret's file, e.g. {\"file\": \"src/main.cpp\", \"line\": 10, \"column\": 5}")
	case stderrors.Is(err, errors.ErrInvalidPosition):
		suggestions = append(suggestions, "line and column are 1-based and must lie inside the buffer")
		suggestions = append(suggestions, "When the file has unsaved edits, pass them as text so positions match")
	case stderrors.Is(err, errors.ErrNotParsable):
		suggestions = append(suggestions, "Only C/C++ sources and headers are indexed (.c .cc .cpp .cxx .h .hh .hpp .hxx ...)")
	case stderrors.Is(err, errors.ErrNotReady):
		suggestions = append(suggestions, "The parser is still batch parsing; check the status tool and retry")
	case stderrors.As(err, &fe):
		suggestions = append(suggestions, fmt.Sprintf("Check that %s exists, or pass its content as text", fe.Path))
	}

	if operation == "calltip" && len(suggestions) == 0 {
		suggestions = append(suggestions, "Place the caret inside the call's parentheses")
	}
	return suggestions
}

// getRelatedOperations suggests related operations that might be helpful
func getRelatedOperations(operation string) []string {
	relatedMap := map[string][]string{
		"complete":         {"calltip", "list_tokens"},
		"calltip":          {"complete", "current_function"},
		"current_function": {"buffer_functions", "calltip"},
		"list_tokens":      {"complete", "buffer_functions"},
		"buffer_functions": {"current_function", "list_tokens"},
		"reparse":          {"status"},
		"status":           {"environment", "reparse"},
		"environment":      {"status"},
	}
	return relatedMap[operation]
}
