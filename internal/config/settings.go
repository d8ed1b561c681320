package config

import (
	"os"
	"strconv"
	"time"
)

// Settings holds the runtime-tunable chat settings named in the command
// surface (enable_tools/disable_tools, set_max_tool_call_iterations,
// set_max_working_time, set_log_level), loaded from environment variables
// with sane defaults and mutable thereafter via the CLI.
type Settings struct {
	ToolsEnabled         bool
	MaxToolCallIteration int
	MaxWorkingTime       time.Duration
	LogLevel             string
	WorkspaceDir         string
	MCPServerPaths       []string
}

// LoadSettings reads Settings from environment variables:
//
//	TOOLS_ENABLED (default true)
//	MAX_TOOL_CALL_ITERATION (default 5)
//	MAX_WORKING_TIME_SECONDS (default 30)
//	LOG_LEVEL (default "info")
//	WORKSPACE_DIR (left empty when unset; the hatchling command then uses
//	the current working directory)
//	MCP_SERVER_PATHS (comma-separated script paths)
func LoadSettings() Settings {
	return Settings{
		ToolsEnabled:         getEnvBool("TOOLS_ENABLED", true),
		MaxToolCallIteration: getEnvInt("MAX_TOOL_CALL_ITERATION", 5),
		MaxWorkingTime:       time.Duration(getEnvInt("MAX_WORKING_TIME_SECONDS", 30)) * time.Second,
		LogLevel:             getEnvOr("LOG_LEVEL", "info"),
		WorkspaceDir:         os.Getenv("WORKSPACE_DIR"),
		MCPServerPaths:       splitNonEmpty(os.Getenv("MCP_SERVER_PATHS"), ","),
	}
}

func getEnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || string(s[i]) == sep {
			if piece := s[start:i]; piece != "" {
				out = append(out, piece)
			}
			start = i + 1
		}
	}
	return out
}
