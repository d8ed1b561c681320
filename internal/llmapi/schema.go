package llmapi

import (
	"encoding/json"
	"log"

	"github.com/hatchling-go/hatchling/internal/mcp"
)

// ToOllama translates cached MCP tool descriptors into provider-neutral
// tool definitions; the Ollama client wraps each one into the
// `{type, function: {name, description, parameters}}` shape its API
// expects.
func ToOllama(descriptors []mcp.ToolInfo) []ToolDefinition {
	return toDefinitions(descriptors)
}

// ToOpenAI translates cached MCP tool descriptors into the tool
// definition shape the OpenAI-compatible function-calling API expects.
// The wire shape is identical to Ollama's; the provider clients below
// each do their own final marshaling into their SDK's native type.
func ToOpenAI(descriptors []mcp.ToolInfo) []ToolDefinition {
	return toDefinitions(descriptors)
}

// ToDefinitions is the provider-neutral translation shared by ToOllama and
// ToOpenAI; both providers currently consume the identical wire shape.
func ToDefinitions(descriptors []mcp.ToolInfo) []ToolDefinition {
	return toDefinitions(descriptors)
}

func toDefinitions(descriptors []mcp.ToolInfo) []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		params := d.InputSchema
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		defs = append(defs, ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return defs
}

// NormalizeToolCall decodes a tool call's raw argument bytes into a
// generic map, degrading to an empty object (and logging the tool name and
// the parse error) on malformed JSON rather than failing the whole turn.
func NormalizeToolCall(tc ToolCall) map[string]any {
	if len(tc.Arguments) == 0 {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		log.Printf("[llmapi] tool call %q: invalid arguments JSON, using empty object: %v", tc.Name, err)
		return map[string]any{}
	}
	return args
}
