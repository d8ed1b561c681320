// Package toolexec implements the Tool Execution Manager: the per-turn
// iteration/time budget tracker and the recursive tool-calling chain
// controller that drives repeated LLM + tool-dispatch rounds until the
// model stops asking for tools or a budget is exhausted.
package toolexec

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hatchling-go/hatchling/internal/llmapi"
	"github.com/hatchling-go/hatchling/internal/mcp"
)

// Defaults mirror the budgets named in the command surface
// (set_max_tool_call_iterations / set_max_working_time).
const (
	DefaultMaxToolCallIteration = 5
	DefaultMaxWorkingTime       = 30 * time.Second
)

// Settings bounds one tool-calling chain.
type Settings struct {
	MaxToolCallIteration int
	MaxWorkingTime       time.Duration
}

// DefaultSettings returns the spec's default budgets.
func DefaultSettings() Settings {
	return Settings{MaxToolCallIteration: DefaultMaxToolCallIteration, MaxWorkingTime: DefaultMaxWorkingTime}
}

// Manager tracks iteration/time budgets for one chat turn and drives tool
// dispatch through an *mcp.Manager.
type Manager struct {
	settings Settings
	mcp      *mcp.Manager

	toolsEnabled bool

	currentIteration int
	startTime        time.Time
	rootQuery        string
}

// NewManager creates a Manager bound to the given MCP fleet.
func NewManager(settings Settings, fleet *mcp.Manager) *Manager {
	return &Manager{settings: settings, mcp: fleet}
}

// SetToolsEnabled toggles whether tool dispatch is attempted at all; when
// false, ProcessToolCalls is a no-op and GetToolsForPayload returns nil,
// so the payload built for the provider carries no tool definitions.
func (m *Manager) SetToolsEnabled(enabled bool) { m.toolsEnabled = enabled }

// ToolsEnabled reports the current setting.
func (m *Manager) ToolsEnabled() bool { return m.toolsEnabled }

// SetMaxToolCallIteration updates the per-turn tool-call budget.
func (m *Manager) SetMaxToolCallIteration(n int) { m.settings.MaxToolCallIteration = n }

// SetMaxWorkingTime updates the per-turn wall-clock budget.
func (m *Manager) SetMaxWorkingTime(d time.Duration) { m.settings.MaxWorkingTime = d }

// ResetForNewQuery resets the iteration counter and clock for a new user
// query and records the query text, which is echoed back into the
// chain's synthetic continuation prompts.
func (m *Manager) ResetForNewQuery(query string) {
	m.currentIteration = 0
	m.startTime = time.Now()
	m.rootQuery = query
}

// CurrentIteration reports how many tool calls have been executed so far
// this turn.
func (m *Manager) CurrentIteration() int { return m.currentIteration }

// GetToolsForPayload returns the tool definitions to attach to the next
// provider request, translated from the MCP fleet's merged tool list.
func (m *Manager) GetToolsForPayload() []llmapi.ToolDefinition {
	if !m.toolsEnabled || m.mcp == nil {
		return nil
	}
	return llmapi.ToDefinitions(m.mcp.AllTools())
}

// ExecuteTool dispatches a single tool call to the MCP fleet, incrementing
// the iteration counter before dispatch (matching the original's
// count-attempts-not-successes semantics), and returns the resulting
// tool-role message. A failed dispatch (unknown tool, disconnected or
// failing server) still yields a tool-role message, whose content is the
// fleet's {"error": <text>} JSON object; err is non-nil only when the
// fleet returns no result at all.
func (m *Manager) ExecuteTool(ctx context.Context, tc llmapi.ToolCall) (llmapi.Message, error) {
	m.currentIteration++

	args := llmapi.NormalizeToolCall(tc)
	results := m.mcp.ProcessToolCalls(ctx, []mcp.ToolCall{{ID: tc.ID, Name: tc.Name, Arguments: args}})
	if len(results) == 0 {
		return llmapi.Message{}, fmt.Errorf("toolexec: no result for tool %q", tc.Name)
	}

	r := results[0]
	log.Printf("[toolexec] tool result (%s): %s", r.Name, truncate(r.Content, 500))
	return llmapi.Message{
		Role:       llmapi.RoleTool,
		Content:    r.Content,
		ToolCallID: r.ToolCallID,
		Name:       r.Name,
	}, nil
}

// ProcessToolCalls runs ExecuteTool over every tool call in an assistant
// message, skipping any ID already present in seen (a message may be
// re-delivered across stream reconnects) and recording newly seen IDs.
func (m *Manager) ProcessToolCalls(ctx context.Context, calls []llmapi.ToolCall, seen map[string]bool) []llmapi.Message {
	if !m.toolsEnabled {
		return nil
	}
	var results []llmapi.Message
	for _, tc := range calls {
		if seen[tc.ID] {
			continue
		}
		seen[tc.ID] = true
		log.Printf("[toolexec] using tool %q with arguments %s", tc.Name, string(tc.Arguments))
		msg, err := m.ExecuteTool(ctx, tc)
		if err != nil {
			log.Printf("[toolexec] tool %q failed: %v", tc.Name, err)
			continue
		}
		results = append(results, msg)
	}
	return results
}

// elapsed reports time spent on the current chain so far.
func (m *Manager) elapsed() time.Duration { return time.Since(m.startTime) }

// LimitReached reports whether the iteration or time budget has been hit,
// and a human-readable reason.
func (m *Manager) LimitReached() (bool, string) {
	if m.currentIteration >= m.settings.MaxToolCallIteration {
		return true, "maximum iterations"
	}
	if m.elapsed() >= m.settings.MaxWorkingTime {
		return true, "time limit"
	}
	return false, ""
}

// ChainStep is one round-trip of the recursive tool-calling chain: a
// provider call followed by dispatch of any tool calls it produced.
type ChainStep func(ctx context.Context, messages []llmapi.Message) (response llmapi.Message, toolResults []llmapi.Message, err error)

// ChainResult accumulates the full chain's output across every recursive
// round.
type ChainResult struct {
	FullResponse string
	ToolCalls    []llmapi.ToolCall
	ToolResults  []llmapi.Message
	LimitReason  string // non-empty if the chain stopped due to a budget
}

// HandleToolCallingChain recurses exactly like the original's
// handle_tool_calling_chain: check budgets, append a synthetic
// continuation prompt asking whether the tool results already answer the
// root query, re-invoke the provider with tools still attached, and keep
// going as long as the provider keeps asking for tools.
func (m *Manager) HandleToolCallingChain(
	ctx context.Context,
	messages []llmapi.Message,
	step ChainStep,
	acc ChainResult,
) (ChainResult, []llmapi.Message) {
	if reached, reason := m.LimitReached(); reached {
		log.Printf("[toolexec] reached %s for tool calling (%d iterations, %s elapsed)",
			reason, m.currentIteration, m.elapsed().Round(time.Millisecond))
		acc.LimitReason = reason
		return acc, messages
	}

	continuation := fmt.Sprintf(
		"Given the tool results: %s, do you have enough information to answer the original query: `%s`? If not, please ask for more information or continue using tools.",
		summarizeToolResults(acc.ToolResults), m.rootQuery,
	)
	messages = append(messages, llmapi.Message{Role: llmapi.RoleUser, Content: continuation})

	response, toolResults, err := step(ctx, messages)
	if err != nil {
		return acc, messages
	}
	messages = append(messages, response)
	for _, tr := range toolResults {
		messages = append(messages, tr)
	}

	if len(toolResults) > 0 {
		next := ChainResult{
			FullResponse: joinResponses(acc.FullResponse, response.Content),
			ToolCalls:    append(append([]llmapi.ToolCall{}, acc.ToolCalls...), response.ToolCalls...),
			ToolResults:  append(append([]llmapi.Message{}, acc.ToolResults...), toolResults...),
		}
		log.Printf("[toolexec] continuing chain: iteration %d/%d, %s elapsed",
			m.currentIteration, m.settings.MaxToolCallIteration, m.elapsed().Round(time.Millisecond))
		return m.HandleToolCallingChain(ctx, messages, step, next)
	}

	acc.FullResponse = joinResponses(acc.FullResponse, response.Content)
	acc.ToolCalls = append(acc.ToolCalls, response.ToolCalls...)
	return acc, messages
}

func joinResponses(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}

func summarizeToolResults(results []llmapi.Message) string {
	if len(results) == 0 {
		return "(none yet)"
	}
	var out string
	for i, r := range results {
		if i > 0 {
			out += "; "
		}
		out += truncate(r.Content, 200)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
