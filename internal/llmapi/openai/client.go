// Package openai implements llmapi.Provider over any OpenAI-compatible
// chat completions endpoint via github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hatchling-go/hatchling/internal/llmapi"
	openailib "github.com/sashabaranov/go-openai"
)

// Client implements llmapi.Provider using the OpenAI-compatible protocol.
type Client struct {
	client *openailib.Client
	config *Config
}

// GetConfig returns the client's configuration.
func (c *Client) GetConfig() *Config { return c.config }

// NewClient creates a new OpenAI-compatible client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clientConfig := openailib.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	httpTimeout := time.Duration(config.HTTPTimeout) * time.Second
	clientConfig.HTTPClient = &http.Client{Timeout: httpTimeout}

	return &Client{client: openailib.NewClientWithConfig(clientConfig), config: config}, nil
}

// NewClientFromEnv creates a client using environment variables.
func NewClientFromEnv() (*Client, error) {
	config, err := NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	return NewClient(config)
}

func toOpenAIMessages(messages []llmapi.Message) []openailib.ChatCompletionMessage {
	out := make([]openailib.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = openailib.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == llmapi.RoleTool && msg.ToolCallID != "" {
			out[i].ToolCallID = msg.ToolCallID
			out[i].Name = msg.Name
		}
		if msg.Role == llmapi.RoleAssistant && len(msg.ToolCalls) > 0 {
			tcs := make([]openailib.ToolCall, len(msg.ToolCalls))
			for j, tc := range msg.ToolCalls {
				tcs[j] = openailib.ToolCall{
					ID:   tc.ID,
					Type: openailib.ToolTypeFunction,
					Function: openailib.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			out[i].ToolCalls = tcs
		}
	}
	return out
}

// CallLLM sends messages to the LLM and returns the complete response.
func (c *Client) CallLLM(ctx context.Context, messages []llmapi.Message) (llmapi.Message, error) {
	if len(messages) == 0 {
		return llmapi.Message{}, fmt.Errorf("no messages to send")
	}

	req := openailib.ChatCompletionRequest{Model: c.config.Model, Messages: toOpenAIMessages(messages)}
	c.applyTuning(&req)

	resp, err := c.withRetries(ctx, func() (openailib.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return llmapi.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return llmapi.Message{}, fmt.Errorf("no choices returned from LLM")
	}
	return llmapi.Message{
		Role:             llmapi.RoleAssistant,
		Content:          resp.Choices[0].Message.Content,
		ReasoningContent: resp.Choices[0].Message.ReasoningContent,
	}, nil
}

// CallLLMStream streams the response token-by-token, falling back to a
// synchronous call if the stream itself cannot be created.
func (c *Client) CallLLMStream(ctx context.Context, messages []llmapi.Message, onChunk llmapi.StreamCallback) (llmapi.Message, error) {
	if onChunk == nil {
		return c.CallLLM(ctx, messages)
	}
	if len(messages) == 0 {
		return llmapi.Message{}, fmt.Errorf("no messages to send")
	}

	req := openailib.ChatCompletionRequest{Model: c.config.Model, Messages: toOpenAIMessages(messages), Stream: true}
	c.applyTuning(&req)

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		log.Printf("[llmapi/openai] stream creation failed, falling back to sync: %v", err)
		return c.CallLLM(ctx, messages)
	}
	defer stream.Close()

	var sb, reasoningSB strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if sb.Len() > 0 {
				log.Printf("[llmapi/openai] stream interrupted after %d chars: %v", sb.Len(), err)
				break
			}
			return llmapi.Message{}, fmt.Errorf("stream recv error: %w", err)
		}
		if len(chunk.Choices) > 0 {
			if rc := chunk.Choices[0].Delta.ReasoningContent; rc != "" {
				reasoningSB.WriteString(rc)
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				sb.WriteString(delta)
				onChunk(delta)
			}
		}
	}
	return llmapi.Message{Role: llmapi.RoleAssistant, Content: sb.String(), ReasoningContent: reasoningSB.String()}, nil
}

func toOpenAITools(tools []llmapi.ToolDefinition) []openailib.Tool {
	out := make([]openailib.Tool, len(tools))
	for i, t := range tools {
		out[i] = openailib.Tool{
			Type: openailib.ToolTypeFunction,
			Function: &openailib.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		}
	}
	return out
}

// CallLLMWithTools sends messages with tool definitions for native
// function calling, streaming content deltas through onChunk exactly like
// CallLLMStream, so enabling tools never silences live output. The
// OpenAI-compatible stream format fragments a tool call's arguments
// byte-by-byte across many chunks, keyed by each chunk's tool-call index;
// openaiStreamDecoder does that concatenation and DecodeStream drives it,
// the same driver ollama's complete-record decoder uses. Falls back to a
// single non-streaming request (with retries) if the stream itself cannot
// be created.
func (c *Client) CallLLMWithTools(ctx context.Context, messages []llmapi.Message, tools []llmapi.ToolDefinition, onChunk llmapi.StreamCallback) (llmapi.Message, error) {
	if len(messages) == 0 {
		return llmapi.Message{}, fmt.Errorf("no messages to send")
	}
	openaiTools := toOpenAITools(tools)

	req := openailib.ChatCompletionRequest{Model: c.config.Model, Messages: toOpenAIMessages(messages), Tools: openaiTools, Stream: true}
	c.applyTuning(&req)

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		log.Printf("[llmapi/openai] tool-call stream creation failed, falling back to sync: %v", err)
		return c.callLLMWithToolsSync(ctx, messages, openaiTools)
	}
	defer stream.Close()

	msg, err := llmapi.DecodeStream(&openaiStreamDecoder{stream: stream}, onChunk)
	if err != nil {
		return llmapi.Message{}, fmt.Errorf("tool-call stream recv error: %w", err)
	}
	return msg, nil
}

func (c *Client) callLLMWithToolsSync(ctx context.Context, messages []llmapi.Message, openaiTools []openailib.Tool) (llmapi.Message, error) {
	req := openailib.ChatCompletionRequest{Model: c.config.Model, Messages: toOpenAIMessages(messages), Tools: openaiTools}
	c.applyTuning(&req)

	resp, err := c.withRetries(ctx, func() (openailib.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return llmapi.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return llmapi.Message{}, fmt.Errorf("no choices returned from LLM (tool calling)")
	}

	choice := resp.Choices[0].Message
	result := llmapi.Message{Role: llmapi.RoleAssistant, Content: choice.Content, ReasoningContent: choice.ReasoningContent}
	if len(choice.ToolCalls) > 0 {
		result.ToolCalls = make([]llmapi.ToolCall, len(choice.ToolCalls))
		for i, tc := range choice.ToolCalls {
			result.ToolCalls[i] = llmapi.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: json.RawMessage(tc.Function.Arguments)}
		}
	}
	return result, nil
}

// openaiStreamDecoder adapts an OpenAI-compatible chat completion stream
// to llmapi.StreamDecoder. A single wire chunk can carry more than one
// tool-call fragment (rare, but the schema allows it); extras are queued
// and popped on subsequent Next calls rather than read again from the
// wire, so each Next still corresponds to exactly one ToolCallDelta.
type openaiStreamDecoder struct {
	stream *openailib.ChatCompletionStream

	queue     []llmapi.ToolCallDelta
	delta     string
	toolDelta *llmapi.ToolCallDelta
	isDone    bool
	hasOutput bool
	err       error
}

func (d *openaiStreamDecoder) Next() bool {
	d.delta = ""
	d.toolDelta = nil

	if len(d.queue) > 0 {
		td := d.queue[0]
		d.queue = d.queue[1:]
		d.toolDelta = &td
		d.hasOutput = true
		return true
	}

	chunk, err := d.stream.Recv()
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		if d.hasOutput {
			log.Printf("[llmapi/openai] tool-call stream interrupted: %v", err)
			return false
		}
		d.err = err
		return false
	}
	if len(chunk.Choices) == 0 {
		return true
	}

	choice := chunk.Choices[0]
	d.delta = choice.Delta.Content
	d.isDone = choice.FinishReason != ""
	for _, tc := range choice.Delta.ToolCalls {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		td := llmapi.ToolCallDelta{Index: idx, ID: tc.ID, Name: tc.Function.Name, ArgumentsFragment: tc.Function.Arguments}
		if d.toolDelta == nil {
			d.toolDelta = &td
		} else {
			d.queue = append(d.queue, td)
		}
	}
	if d.delta != "" || d.toolDelta != nil {
		d.hasOutput = true
	}
	return true
}

func (d *openaiStreamDecoder) Err() error           { return d.err }
func (d *openaiStreamDecoder) IsDone() bool         { return d.isDone }
func (d *openaiStreamDecoder) ContentDelta() string { return d.delta }
func (d *openaiStreamDecoder) ToolCallDelta() (llmapi.ToolCallDelta, bool) {
	if d.toolDelta == nil {
		return llmapi.ToolCallDelta{}, false
	}
	return *d.toolDelta, true
}

// IsToolCallingEnabled reports whether function calling is enabled.
func (c *Client) IsToolCallingEnabled() bool { return c.config.ResolveToolCallMode() == "fc" }

// GetName returns the provider name.
func (c *Client) GetName() string { return fmt.Sprintf("openai-compatible (%s)", c.config.Model) }

func (c *Client) applyTuning(req *openailib.ChatCompletionRequest) {
	if c.config.Temperature != nil {
		req.Temperature = *c.config.Temperature
	}
	if c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	if c.config.ResolveThinkingMode() == "native" {
		req.ReasoningEffort = c.config.ReasoningEffort
	}
}

func (c *Client) withRetries(ctx context.Context, call func() (openailib.ChatCompletionResponse, error)) (openailib.ChatCompletionResponse, error) {
	var resp openailib.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, lastErr = call()
		if lastErr == nil {
			return resp, nil
		}
		if attempt < c.config.MaxRetries {
			wait := time.Duration(attempt+1) * time.Second
			log.Printf("[llmapi/openai] retry %d/%d after %v, error: %v", attempt+1, c.config.MaxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return openailib.ChatCompletionResponse{}, ctx.Err()
			}
		}
	}
	return openailib.ChatCompletionResponse{}, fmt.Errorf("LLM call failed after %d retries: %w", c.config.MaxRetries, lastErr)
}
