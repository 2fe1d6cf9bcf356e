package mcptool

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestParseResultSingleText(t *testing.T) {
	resp := &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "42"}}}
	out := parseResult(resp)
	assert.Equal(t, "42", out["result"].Str)
	assert.False(t, out["is_error"].Bool)
}

func TestParseResultMultipleText(t *testing.T) {
	resp := &mcp.CallToolResult{Content: []mcp.Content{
		mcp.TextContent{Type: "text", Text: "a"},
		mcp.TextContent{Type: "text", Text: "b"},
	}}
	out := parseResult(resp)
	assert.Len(t, out["results"].List, 2)
}

func TestParseResultError(t *testing.T) {
	resp := &mcp.CallToolResult{IsError: true, Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "boom"}}}
	out := parseResult(resp)
	assert.True(t, out["is_error"].Bool)
	assert.Equal(t, "boom", out["result"].Str)
}

func TestEnvSlice(t *testing.T) {
	out := envSlice(map[string]string{"A": "1"})
	assert.Equal(t, []string{"A=1"}, out)
	assert.Nil(t, envSlice(nil))
}
