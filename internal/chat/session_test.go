package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchling-go/hatchling/internal/llmapi"
	"github.com/hatchling-go/hatchling/internal/toolexec"
)

// fakeProvider is a minimal llmapi.Provider double for testing the chat
// session's control flow without a real LLM endpoint.
type fakeProvider struct {
	responses []llmapi.Message
	calls     int
}

func (f *fakeProvider) next() llmapi.Message {
	if f.calls >= len(f.responses) {
		return f.responses[len(f.responses)-1]
	}
	r := f.responses[f.calls]
	f.calls++
	return r
}

func (f *fakeProvider) CallLLM(ctx context.Context, messages []llmapi.Message) (llmapi.Message, error) {
	return f.next(), nil
}

func (f *fakeProvider) CallLLMStream(ctx context.Context, messages []llmapi.Message, onChunk llmapi.StreamCallback) (llmapi.Message, error) {
	r := f.next()
	if onChunk != nil && r.Content != "" {
		onChunk(r.Content)
	}
	return r, nil
}

func (f *fakeProvider) CallLLMWithTools(ctx context.Context, messages []llmapi.Message, tools []llmapi.ToolDefinition, onChunk llmapi.StreamCallback) (llmapi.Message, error) {
	r := f.next()
	if onChunk != nil && r.Content != "" {
		onChunk(r.Content)
	}
	return r, nil
}

func (f *fakeProvider) IsToolCallingEnabled() bool { return true }
func (f *fakeProvider) GetName() string            { return "fake" }

func TestSendMessage_NoToolsUsed(t *testing.T) {
	provider := &fakeProvider{responses: []llmapi.Message{
		{Role: llmapi.RoleAssistant, Content: "hello there"},
	}}
	tools := toolexec.NewManager(toolexec.DefaultSettings(), nil)
	tools.SetToolsEnabled(false)
	session := New(provider, tools, nil)

	reply, err := session.SendMessage(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.Len(t, session.history, 1)
	assert.False(t, session.history[0].UsedTools)
}

func TestSummarize_KeepsNewestTurns(t *testing.T) {
	provider := &fakeProvider{responses: []llmapi.Message{
		{Role: llmapi.RoleAssistant, Content: "a summary"},
	}}
	tools := toolexec.NewManager(toolexec.DefaultSettings(), nil)
	session := New(provider, tools, nil)
	session.history = []Turn{
		{UserMsg: "q1", Assistant: "a1"},
		{UserMsg: "q2", Assistant: "a2"},
		{UserMsg: "q3", Assistant: "a3"},
	}

	require.NoError(t, session.Summarize(context.Background(), 1))
	assert.Len(t, session.history, 1)
	assert.Equal(t, "q3", session.history[0].UserMsg)
	assert.Contains(t, session.summary, "a summary")
}
