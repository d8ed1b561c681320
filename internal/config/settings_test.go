package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("TOOLS_ENABLED", "")
	t.Setenv("MAX_TOOL_CALL_ITERATION", "")
	t.Setenv("MAX_WORKING_TIME_SECONDS", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MCP_SERVER_PATHS", "")

	s := LoadSettings()
	assert.True(t, s.ToolsEnabled)
	assert.Equal(t, 5, s.MaxToolCallIteration)
	assert.Equal(t, 30*time.Second, s.MaxWorkingTime)
	assert.Equal(t, "info", s.LogLevel)
	assert.Empty(t, s.MCPServerPaths)
}

func TestLoadSettings_OverridesFromEnv(t *testing.T) {
	t.Setenv("TOOLS_ENABLED", "false")
	t.Setenv("MAX_TOOL_CALL_ITERATION", "9")
	t.Setenv("MCP_SERVER_PATHS", "a.py,b.py")

	s := LoadSettings()
	assert.False(t, s.ToolsEnabled)
	assert.Equal(t, 9, s.MaxToolCallIteration)
	assert.Equal(t, []string{"a.py", "b.py"}, s.MCPServerPaths)
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Nil(t, splitNonEmpty("", ","))
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a,b", ","))
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a,,b,", ","))
}
