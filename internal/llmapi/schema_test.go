package llmapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchling-go/hatchling/internal/mcp"
)

func TestToDefinitions_FillsEmptySchema(t *testing.T) {
	descriptors := []mcp.ToolInfo{
		{Name: "search", Description: "search the web"},
		{Name: "read_file", Description: "read a file", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}
	defs := ToDefinitions(descriptors)

	require.Len(t, defs, 2)
	assert.JSONEq(t, `{}`, string(defs[0].Parameters))
	assert.JSONEq(t, `{"type":"object"}`, string(defs[1].Parameters))
}

func TestNormalizeToolCall_DegradesOnMalformedJSON(t *testing.T) {
	args := NormalizeToolCall(ToolCall{Name: "broken", Arguments: json.RawMessage(`not json`)})
	assert.Empty(t, args)
}

func TestNormalizeToolCall_ParsesValidArguments(t *testing.T) {
	args := NormalizeToolCall(ToolCall{Name: "search", Arguments: json.RawMessage(`{"query":"go"}`)})
	assert.Equal(t, "go", args["query"])
}

func TestNormalizeToolCall_EmptyArguments(t *testing.T) {
	args := NormalizeToolCall(ToolCall{Name: "noop"})
	assert.Empty(t, args)
}
