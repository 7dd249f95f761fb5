package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CallTool invokes a tool handler in-process, bypassing the stdio transport.
// Error results come back as Go errors carrying the tool's message.
func (s *Server) CallTool(toolName string, params map[string]interface{}) (string, error) {
	ctx := context.Background()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal params: %w", err)
	}
	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      toolName,
			Arguments: paramsJSON,
		},
	}

	handlers := map[string]func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"info":             s.handleInfo,
		"complete":         s.handleComplete,
		"calltip":          s.handleCallTip,
		"current_function": s.handleCurrentFunction,
		"list_tokens":      s.handleListTokens,
		"buffer_functions": s.handleBufferFunctions,
		"reparse":          s.handleReparse,
		"status":           s.handleStatus,
		"environment":      s.handleEnvironment,
	}
	handler, ok := handlers[toolName]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", toolName)
	}

	result, err := handler(ctx, req)
	if err != nil {
		return "", err
	}
	if result == nil || len(result.Content) == 0 {
		return "", nil
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return "", fmt.Errorf("unexpected content type %T", result.Content[0])
	}
	if result.IsError {
		var response map[string]interface{}
		if json.Unmarshal([]byte(text.Text), &response) == nil {
			if msg, ok := response["error"].(string); ok {
				return text.Text, fmt.Errorf("MCP error: %s", msg)
			}
		}
		return text.Text, fmt.Errorf("MCP error: %s", text.Text)
	}
	return text.Text, nil
}
