// Package ollama implements llmapi.Provider over a local or remote Ollama
// server via github.com/ollama/ollama/api. Unlike the OpenAI-compatible
// wire format, Ollama reports each tool call as a single complete record
// on the streamed message rather than a byte-stream of argument deltas,
// so no delta-concatenation bookkeeping is needed here.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/hatchling-go/hatchling/internal/llmapi"
	ollamaapi "github.com/ollama/ollama/api"
)

// Config holds Ollama provider configuration.
type Config struct {
	Host  string // base URL, e.g. http://localhost:11434
	Model string
}

// NewConfigFromEnv reads OLLAMA_HOST and OLLAMA_MODEL.
func NewConfigFromEnv() (*Config, error) {
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		return nil, fmt.Errorf("OLLAMA_MODEL is required")
	}
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	return &Config{Host: host, Model: model}, nil
}

// Client implements llmapi.Provider against an Ollama server.
type Client struct {
	client *ollamaapi.Client
	config *Config
}

// NewClient constructs a Client from config.
func NewClient(config *Config) (*Client, error) {
	u, err := url.Parse(config.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", config.Host, err)
	}
	return &Client{client: ollamaapi.NewClient(u, http.DefaultClient), config: config}, nil
}

// NewClientFromEnv constructs a Client from environment variables.
func NewClientFromEnv() (*Client, error) {
	cfg, err := NewConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg)
}

func toOllamaMessages(messages []llmapi.Message) []ollamaapi.Message {
	out := make([]ollamaapi.Message, len(messages))
	for i, msg := range messages {
		om := ollamaapi.Message{Role: msg.Role, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal(tc.Arguments, &args)
			om.ToolCalls = append(om.ToolCalls, ollamaapi.ToolCall{
				Function: ollamaapi.ToolCallFunction{Name: tc.Name, Arguments: args},
			})
		}
		out[i] = om
	}
	return out
}

func toOllamaTools(tools []llmapi.ToolDefinition) ollamaapi.Tools {
	out := make(ollamaapi.Tools, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		_ = json.Unmarshal(t.Parameters, &params)
		out = append(out, ollamaapi.Tool{
			Type: "function",
			Function: ollamaapi.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// CallLLM sends messages and returns the complete response.
func (c *Client) CallLLM(ctx context.Context, messages []llmapi.Message) (llmapi.Message, error) {
	return c.call(ctx, messages, nil, nil)
}

// CallLLMStream streams the response token-by-token.
func (c *Client) CallLLMStream(ctx context.Context, messages []llmapi.Message, onChunk llmapi.StreamCallback) (llmapi.Message, error) {
	return c.call(ctx, messages, nil, onChunk)
}

// CallLLMWithTools sends messages with tool definitions attached, driving
// the response through the same llmapi.DecodeStream accumulator the
// OpenAI-compatible provider uses, via an ollamaStreamDecoder that
// bridges Ollama's push-style streaming callback onto the pull-based
// StreamDecoder interface. Ollama delivers each tool call as one
// complete record rather than fragmenting arguments across chunks, so
// the decoder's job is bridging, not concatenation.
func (c *Client) CallLLMWithTools(ctx context.Context, messages []llmapi.Message, tools []llmapi.ToolDefinition, onChunk llmapi.StreamCallback) (llmapi.Message, error) {
	if len(messages) == 0 {
		return llmapi.Message{}, fmt.Errorf("no messages to send")
	}

	stream := true
	req := &ollamaapi.ChatRequest{
		Model:    c.config.Model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
		Tools:    toOllamaTools(tools),
	}

	dec := newOllamaStreamDecoder(ctx, c.client, req)
	result, err := llmapi.DecodeStream(dec, onChunk)
	if err != nil {
		return llmapi.Message{}, err
	}

	// Ollama does not assign tool-call IDs; synthesize positional ones so
	// downstream tool-result messages can reference a stable identifier.
	for i := range result.ToolCalls {
		if result.ToolCalls[i].ID == "" {
			result.ToolCalls[i].ID = fmt.Sprintf("call_%d", i)
		}
	}
	return result, nil
}

// ollamaStreamDecoder bridges ollamaapi.Client.Chat's push-style callback
// onto llmapi.StreamDecoder's pull-based Next/ContentDelta/ToolCallDelta
// shape: a goroutine runs the callback-driven call and forwards each
// response onto a channel, which Next reads from. Index is assigned by a
// running counter rather than read off the wire, since Ollama's tool
// calls carry no index of their own.
type ollamaStreamDecoder struct {
	events chan ollamaapi.ChatResponse
	done   chan error

	queue     []llmapi.ToolCallDelta
	delta     string
	toolDelta *llmapi.ToolCallDelta
	isDone    bool
	nextIndex int
	drained   bool
	err       error
}

func newOllamaStreamDecoder(ctx context.Context, client *ollamaapi.Client, req *ollamaapi.ChatRequest) *ollamaStreamDecoder {
	d := &ollamaStreamDecoder{
		events: make(chan ollamaapi.ChatResponse, 8),
		done:   make(chan error, 1),
	}
	go func() {
		err := client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
			d.events <- resp
			return nil
		})
		close(d.events)
		d.done <- err
	}()
	return d
}

func (d *ollamaStreamDecoder) Next() bool {
	d.delta = ""
	d.toolDelta = nil

	if len(d.queue) > 0 {
		td := d.queue[0]
		d.queue = d.queue[1:]
		d.toolDelta = &td
		return true
	}

	resp, ok := <-d.events
	if !ok {
		if d.drained {
			return false
		}
		d.drained = true
		if err := <-d.done; err != nil {
			d.err = fmt.Errorf("ollama chat: %w", err)
		}
		return false
	}

	d.delta = resp.Message.Content
	d.isDone = resp.Done
	for _, tc := range resp.Message.ToolCalls {
		argBytes, _ := json.Marshal(tc.Function.Arguments)
		td := llmapi.ToolCallDelta{Index: d.nextIndex, Name: tc.Function.Name, ArgumentsFragment: string(argBytes)}
		d.nextIndex++
		if d.toolDelta == nil {
			d.toolDelta = &td
		} else {
			d.queue = append(d.queue, td)
		}
	}
	return true
}

func (d *ollamaStreamDecoder) Err() error           { return d.err }
func (d *ollamaStreamDecoder) IsDone() bool         { return d.isDone }
func (d *ollamaStreamDecoder) ContentDelta() string { return d.delta }
func (d *ollamaStreamDecoder) ToolCallDelta() (llmapi.ToolCallDelta, bool) {
	if d.toolDelta == nil {
		return llmapi.ToolCallDelta{}, false
	}
	return *d.toolDelta, true
}

func (c *Client) call(ctx context.Context, messages []llmapi.Message, tools []llmapi.ToolDefinition, onChunk llmapi.StreamCallback) (llmapi.Message, error) {
	if len(messages) == 0 {
		return llmapi.Message{}, fmt.Errorf("no messages to send")
	}

	stream := onChunk != nil
	req := &ollamaapi.ChatRequest{
		Model:    c.config.Model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
	}
	if len(tools) > 0 {
		req.Tools = toOllamaTools(tools)
	}

	var result llmapi.Message
	err := c.client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
		if resp.Message.Content != "" {
			result.Content += resp.Message.Content
			if onChunk != nil {
				onChunk(resp.Message.Content)
			}
		}
		for _, tc := range resp.Message.ToolCalls {
			argBytes, _ := json.Marshal(tc.Function.Arguments)
			result.ToolCalls = append(result.ToolCalls, llmapi.ToolCall{
				Name:      tc.Function.Name,
				Arguments: argBytes,
			})
		}
		return nil
	})
	if err != nil {
		return llmapi.Message{}, fmt.Errorf("ollama chat: %w", err)
	}
	result.Role = llmapi.RoleAssistant

	// Ollama does not assign tool-call IDs; synthesize positional ones so
	// downstream tool-result messages can reference a stable identifier.
	for i := range result.ToolCalls {
		if result.ToolCalls[i].ID == "" {
			result.ToolCalls[i].ID = fmt.Sprintf("call_%d", i)
		}
	}
	return result, nil
}

// IsToolCallingEnabled always reports true: tool-calling availability is a
// function of the model, decided at the prompt layer, not the transport.
func (c *Client) IsToolCallingEnabled() bool { return true }

// GetName returns the provider name.
func (c *Client) GetName() string { return fmt.Sprintf("ollama (%s)", c.config.Model) }
