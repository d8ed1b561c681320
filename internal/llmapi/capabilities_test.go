package llmapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectThinkingCapability(t *testing.T) {
	assert.True(t, DetectThinkingCapability("o1-preview").SupportsNativeThinking)
	assert.True(t, DetectThinkingCapability("deepseek-r1").SupportsNativeThinking)
	assert.True(t, DetectThinkingCapability("some-custom-thinking-model").SupportsNativeThinking)
	assert.False(t, DetectThinkingCapability("gpt-4o").SupportsNativeThinking)
}

func TestDetectToolCallingCapability(t *testing.T) {
	assert.True(t, DetectToolCallingCapability("gpt-4o-mini"))
	assert.True(t, DetectToolCallingCapability("claude-3-5-sonnet"))
	assert.False(t, DetectToolCallingCapability("text-davinci-003"))
}

func TestGetContextWindow(t *testing.T) {
	assert.Equal(t, 128_000, GetContextWindow("gpt-4o"))
	assert.Equal(t, 200_000, GetContextWindow("claude-3-opus"))
	assert.Equal(t, 0, GetContextWindow("totally-unknown-model"))
}
