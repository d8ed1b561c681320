package llmapi

import "strings"

// ThinkingCapability describes a model's native thinking support.
type ThinkingCapability struct {
	SupportsNativeThinking bool
	ReasoningEffortParam   string
}

// DetectThinkingCapability determines if a model supports native thinking
// based on model name patterns and a known model list.
func DetectThinkingCapability(modelName string) ThinkingCapability {
	lower := strings.ToLower(modelName)
	parts := strings.Split(lower, "/")
	baseName := parts[len(parts)-1]

	knownThinkingModels := []string{
		"deepseek-reasoner", "deepseek-r1", "deepseek-r2",
		"o1-mini", "o1-preview", "o1", "o3-mini", "o3", "o4-mini",
		"claude-sonnet-4-5", "claude-3-7-sonnet", "glm-5",
	}
	for _, known := range knownThinkingModels {
		if strings.HasPrefix(baseName, known) {
			return ThinkingCapability{SupportsNativeThinking: true, ReasoningEffortParam: "reasoning_effort"}
		}
	}

	thinkingKeywords := []string{"-r1", "-r2", "reasoner", "thinking", "-o1", "-o3", "-o4"}
	for _, kw := range thinkingKeywords {
		if strings.Contains(baseName, kw) {
			return ThinkingCapability{SupportsNativeThinking: true, ReasoningEffortParam: "reasoning_effort"}
		}
	}
	return ThinkingCapability{}
}

// DetectToolCallingCapability reports whether a model is known to support
// native function/tool calling, used to auto-select "fc" tool-call mode.
func DetectToolCallingCapability(modelName string) bool {
	lower := strings.ToLower(modelName)
	knownFCModels := []string{
		"gpt-4", "gpt-3.5", "gpt-5", "o1", "o3", "o4",
		"claude-3", "claude-sonnet", "claude-opus", "claude-haiku",
		"kimi-k2", "qwen", "mistral-large", "llama3.1", "llama3.2", "llama-3",
	}
	for _, known := range knownFCModels {
		if strings.Contains(lower, known) {
			return true
		}
	}
	return false
}

// GetContextWindow returns a best-effort token budget for well-known
// models, or 0 if the model is not recognized.
func GetContextWindow(modelName string) int {
	lower := strings.ToLower(modelName)
	switch {
	case strings.Contains(lower, "gpt-4o"), strings.Contains(lower, "gpt-4.1"):
		return 128_000
	case strings.Contains(lower, "gpt-5"):
		return 256_000
	case strings.Contains(lower, "o1"), strings.Contains(lower, "o3"):
		return 200_000
	case strings.Contains(lower, "claude-3"), strings.Contains(lower, "claude-sonnet"):
		return 200_000
	case strings.Contains(lower, "deepseek"):
		return 64_000
	case strings.Contains(lower, "llama3.1"), strings.Contains(lower, "llama-3.1"):
		return 128_000
	default:
		return 0
	}
}
