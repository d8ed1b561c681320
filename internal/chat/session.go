package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/hatchling-go/hatchling/internal/llmapi"
	"github.com/hatchling-go/hatchling/internal/mcp"
	"github.com/hatchling-go/hatchling/internal/toolexec"
)

// HistoryBudget bounds how many runes of prior turns are replayed into
// each new request.
const HistoryBudget = 16_000

// Session drives one conversation: it owns the provider, the tool
// execution manager, the MCP fleet, and the rolling turn history, and
// implements the send-message flow — including the tool-calling chain and
// the final/partial answer formatting pass — exactly as the original
// Python chat session does.
type Session struct {
	ID       string
	provider llmapi.Provider
	tools    *toolexec.Manager
	fleet    *mcp.Manager

	history []Turn
	summary string
}

// New creates a Session bound to a provider, a tool execution manager,
// and the MCP fleet it dispatches through.
func New(provider llmapi.Provider, tools *toolexec.Manager, fleet *mcp.Manager) *Session {
	return &Session{ID: uuid.NewString(), provider: provider, tools: tools, fleet: fleet}
}

// SendMessage appends the user's message, runs the initial streamed
// response, and — if the model asked for tools — drives the recursive
// tool-calling chain and a final formatting pass, exactly mirroring
// send_message/_format_response_with_tool_results in the original.
func (s *Session) SendMessage(ctx context.Context, userMsg string, onChunk llmapi.StreamCallback) (string, error) {
	s.tools.ResetForNewQuery(userMsg)
	if s.fleet != nil {
		s.fleet.ResetSessionTracking()
	}

	messages := ToMessages(s.history, HistoryBudget, s.summary)
	messages = append(messages, llmapi.Message{Role: llmapi.RoleUser, Content: userMsg})

	seen := make(map[string]bool)
	response, toolResults, err := s.step(ctx, messages, seen, onChunk)
	if err != nil {
		return "", err
	}
	messages = append(messages, response)
	for _, tr := range toolResults {
		messages = append(messages, tr)
	}

	finalText := response.Content
	usedTools := len(toolResults) > 0

	if usedTools && s.tools.ToolsEnabled() {
		acc := toolexec.ChainResult{
			FullResponse: response.Content,
			ToolCalls:    response.ToolCalls,
			ToolResults:  toolResults,
		}
		chainStep := func(ctx context.Context, msgs []llmapi.Message) (llmapi.Message, []llmapi.Message, error) {
			return s.step(ctx, msgs, seen, nil)
		}
		acc, messages = s.tools.HandleToolCallingChain(ctx, messages, chainStep, acc)

		finalText, err = s.formatResponseWithToolResults(ctx, userMsg, acc, acc.LimitReason == "", onChunk)
		if err != nil {
			return "", err
		}
	}

	s.history = append(s.history, Turn{UserMsg: userMsg, Assistant: finalText, UsedTools: usedTools})
	return finalText, nil
}

// step performs one provider round: a streamed call with tools attached
// (if enabled), followed by dispatch of any tool calls the model made.
func (s *Session) step(ctx context.Context, messages []llmapi.Message, seen map[string]bool, onChunk llmapi.StreamCallback) (llmapi.Message, []llmapi.Message, error) {
	tools := s.tools.GetToolsForPayload()

	var response llmapi.Message
	var err error
	if len(tools) > 0 && s.tools.ToolsEnabled() {
		response, err = s.provider.CallLLMWithTools(ctx, messages, tools, onChunk)
	} else if onChunk != nil {
		response, err = s.provider.CallLLMStream(ctx, messages, onChunk)
	} else {
		response, err = s.provider.CallLLM(ctx, messages)
	}
	if err != nil {
		return llmapi.Message{}, nil, fmt.Errorf("chat: provider call failed: %w", err)
	}

	var toolResults []llmapi.Message
	if len(response.ToolCalls) > 0 {
		toolResults = s.tools.ProcessToolCalls(ctx, response.ToolCalls, seen)
	}
	return response, toolResults, nil
}

// formatResponseWithToolResults builds the final-answer (or, on a budget
// stop, partial-answer) prompt: a fresh two-message exchange (the root
// query plus a formatting instruction referencing the tool calls/results),
// streamed through the provider with no tools attached. On a final pass it
// also appends aggregated citations and resets the fleet's per-turn
// tracking, matching the original's is_final branch.
func (s *Session) formatResponseWithToolResults(ctx context.Context, rootQuery string, acc toolexec.ChainResult, isFinal bool, onChunk llmapi.StreamCallback) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("I used tools in reaction to: `%s`.\n\n", rootQuery))
	sb.WriteString("Tool calls made:\n")
	for _, tc := range acc.ToolCalls {
		sb.WriteString(fmt.Sprintf("- %s(%s)\n", tc.Name, string(tc.Arguments)))
	}
	sb.WriteString("\nTool results:\n")
	for _, tr := range acc.ToolResults {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", tr.Name, tr.Content))
	}

	if acc.LimitReason != "" {
		sb.WriteString(fmt.Sprintf(
			"\nA %s was reached before every tool result came back. Summarize what is known so far, "+
				"note what is still missing, and ask the user whether you should continue.\n", acc.LimitReason))
	} else {
		sb.WriteString(
			"\nWrite the final answer to the original query using these tool results. " +
				"Match the level of detail to the complexity of the question: a short factual " +
				"question deserves a short answer.\n")
	}

	formatting := []llmapi.Message{
		{Role: llmapi.RoleUser, Content: rootQuery},
		{Role: llmapi.RoleUser, Content: sb.String()},
	}

	var final llmapi.Message
	var err error
	if onChunk != nil {
		final, err = s.provider.CallLLMStream(ctx, formatting, onChunk)
	} else {
		final, err = s.provider.CallLLM(ctx, formatting)
	}
	if err != nil {
		return "", fmt.Errorf("chat: format final response: %w", err)
	}

	text := final.Content
	if isFinal && s.fleet != nil {
		citations := s.fleet.GetCitationsForSession(ctx)
		if len(citations) > 0 {
			text += "\n\n" + renderCitations(citations)
		}
		s.fleet.ResetSessionTracking()
	}
	return text, nil
}

func renderCitations(citations []mcp.Citations) string {
	var sb strings.Builder
	sb.WriteString("Sources:\n")
	for _, c := range citations {
		switch {
		case c.Origin != "":
			sb.WriteString("- " + c.Origin + "\n")
		case c.Name != "":
			sb.WriteString("- " + c.Name + "\n")
		case c.MCP != "":
			sb.WriteString("- " + c.MCP + "\n")
		}
	}
	return sb.String()
}

// Summarize replaces older turns with a model-generated summary, keeping
// the newest keepN turns verbatim.
func (s *Session) Summarize(ctx context.Context, keepN int) error {
	if len(s.history) <= keepN {
		return nil
	}
	toSummarize := s.history[:len(s.history)-keepN]
	var sb strings.Builder
	for _, t := range toSummarize {
		sb.WriteString("User: " + t.UserMsg + "\nAssistant: " + t.Assistant + "\n\n")
	}
	prompt := []llmapi.Message{
		{Role: llmapi.RoleUser, Content: "Summarize the following conversation concisely, preserving facts the user might refer back to:\n\n" + sb.String()},
	}
	resp, err := s.provider.CallLLM(ctx, prompt)
	if err != nil {
		return fmt.Errorf("chat: summarize: %w", err)
	}
	if s.summary != "" {
		s.summary = s.summary + "\n" + resp.Content
	} else {
		s.summary = resp.Content
	}
	s.history = s.history[len(s.history)-keepN:]
	log.Printf("[chat] compacted %d turn(s) into summary", len(toSummarize))
	return nil
}
