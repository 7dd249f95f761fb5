package mcp

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ccindex/internal/errors"
)

func resultText(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content should be text")
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &data))
	return data
}

func TestCreateJSONResponse(t *testing.T) {
	result, err := createJSONResponse(map[string]interface{}{"count": 42})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, float64(42), resultText(t, result)["count"])

	_, err = createJSONResponse(func() {})
	assert.Error(t, err, "functions cannot be marshalled")
}

func TestCreateErrorResponse(t *testing.T) {
	result, err := createErrorResponse("complete", fmt.Errorf("boom"))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	data := resultText(t, result)
	assert.Equal(t, false, data["success"])
	assert.Equal(t, "boom", data["error"])
	assert.Equal(t, "complete", data["operation"])
}

func TestCreateSmartErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		err        error
		suggestion string
	}{
		{"missing file", "complete", errors.ErrMissingFile, "caret's file"},
		{"bad position", "calltip", fmt.Errorf("%w: 9:9", errors.ErrInvalidPosition), "1-based"},
		{"not parsable", "reparse", errors.NewFileError("reparse", "a.txt", errors.ErrNotParsable), "Only C/C++"},
		{"unreadable", "complete", errors.NewFileError("read", "gone.cpp", fmt.Errorf("no such file")), "gone.cpp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := createSmartErrorResponse(tt.operation, tt.err, map[string]interface{}{"ready": true})
			require.NoError(t, err)
			assert.True(t, result.IsError)

			data := resultText(t, result)
			suggestions, ok := data["suggestions"].([]interface{})
			require.True(t, ok, "suggestions should be present")
			assert.Contains(t, fmt.Sprint(suggestions...), tt.suggestion)
			assert.NotEmpty(t, data["help"])
			assert.NotEmpty(t, data["related_operations"])
			assert.NotNil(t, data["context"])
		})
	}
}

func TestDecodeArguments(t *testing.T) {
	var params FileParams
	warnings, err := decodeArguments(json.RawMessage(`{"file":"a.cpp","zeta":1,"alpha":"x"}`), fileFields, &params)
	require.NoError(t, err)
	assert.Equal(t, "a.cpp", params.File)
	require.Len(t, warnings, 2)
	assert.Equal(t, "alpha", warnings[0].Name)
	assert.Equal(t, "zeta", warnings[1].Name)

	warnings, err = decodeArguments(nil, fileFields, &params)
	assert.NoError(t, err)
	assert.Empty(t, warnings)

	_, err = decodeArguments(json.RawMessage(`[1,2]`), fileFields, &params)
	assert.Error(t, err)
}
