// Package mcp implements the MCP client/manager federation: a single
// goroutine owns each server connection and serializes every operation
// against it through a queue, mirroring a single-owner task model rather
// than guarding shared state with a mutex.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdk_client "github.com/mark3labs/mcp-go/client"
	sdk_mcp "github.com/mark3labs/mcp-go/mcp"
)

// ErrNotConnected is returned by any operation attempted on a Client whose
// connection-manager goroutine has not completed a successful Connect, or
// whose heartbeat has since observed the server as unreachable.
var ErrNotConnected = errors.New("mcp: client not connected")

// ErrToolTimeout is returned when a tool call exceeds its execution budget.
var ErrToolTimeout = errors.New("mcp: tool call timed out")

const (
	toolCallTimeout  = 30 * time.Second
	heartbeatPeriod  = 30 * time.Second
	disconnectWait   = 2 * time.Second
	operationQueueSz = 32
)

// ServerConfig names a single MCP server: a Python script spawned over
// stdio, exactly as the server is addressed in the chat session's tool
// configuration.
type ServerConfig struct {
	Name string // human-readable identifier, defaults to Path
	Path string // filesystem path to the Python MCP server script
}

// ToolInfo captures the metadata of a single tool exposed by an MCP server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Citations holds the three resource reads performed once at connect time.
type Citations struct {
	Name   string // content of name://<path[1:]>
	Origin string // content of citation://origin/<server_name>
	MCP    string // content of citation://mcp/<server_name>
}

// opKind identifies which internal operation a clientOp requests.
type opKind int

const (
	opConnect opKind = iota
	opDisconnect
	opListTools
	opCallTool
	opCitations
)

type clientOp struct {
	kind   opKind
	ctx    context.Context
	name   string
	args   map[string]any
	result chan opResult
}

type opResult struct {
	tools     []ToolInfo
	text      string
	citations Citations
	err       error
}

// Client owns exactly one MCP server connection. All operations against
// the connection are funneled through a single goroutine (startLoop) via
// an operation queue; callers never touch the underlying SDK session
// directly, so there is no scoped-resource-opened-in-one-goroutine,
// closed-in-another hazard.
type Client struct {
	cfg ServerConfig

	// mu guards ops/loopDone only: the pair is replaced whenever the loop
	// is (re)started, and cleared back to nil when it exits, so that a
	// disconnect observation followed by a fresh Connect gets a brand new
	// queue instead of sending on a channel the old loop already closed.
	mu       sync.Mutex
	ops      chan clientOp
	loopDone chan struct{}

	// connected is only ever read/written inside the owner goroutine.
	connected bool
	inner     sdk_client.MCPClient
	citations Citations

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
}

// NewClient creates an unconnected Client for the given server config.
// Call Connect to start the owner goroutine and perform the handshake.
func NewClient(cfg ServerConfig) *Client {
	if cfg.Name == "" {
		cfg.Name = cfg.Path
	}
	return &Client{cfg: cfg}
}

// Connect starts the connection-manager goroutine (if not already running)
// and blocks until the MCP initialize handshake and citation fetch
// complete.
func (c *Client) Connect(ctx context.Context) error {
	c.ensureLoop()
	return c.do(ctx, opConnect, "", nil).err
}

// ListTools returns metadata for all tools exposed by this server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	res := c.do(ctx, opListTools, "", nil)
	return res.tools, res.err
}

// CallTool invokes the named tool with the given arguments, bounded by a
// fixed per-call timeout, and returns the concatenated text content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	res := c.do(ctx, opCallTool, name, args)
	return res.text, res.err
}

// Citations returns the cached citation resources fetched at connect time.
func (c *Client) Citations(ctx context.Context) (Citations, error) {
	res := c.do(ctx, opCitations, "", nil)
	return res.citations, res.err
}

// Close disconnects and stops the owner goroutine. Safe to call more than
// once, and safe to Connect again afterward: the loop's exit clears the
// queue/done pair so the next operation sees a clean "not connected" state
// instead of a closed channel.
func (c *Client) Close() error {
	c.mu.Lock()
	ops, loopDone := c.ops, c.loopDone
	c.mu.Unlock()
	if loopDone == nil {
		return nil
	}
	res := c.do(context.Background(), opDisconnect, "", nil)
	close(ops)
	<-loopDone
	return res.err
}

// ensureLoop starts a fresh owner goroutine if none is running.
func (c *Client) ensureLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loopDone != nil {
		return
	}
	c.ops = make(chan clientOp, operationQueueSz)
	c.loopDone = make(chan struct{})
	go c.runLoop(c.ops, c.loopDone)
}

func (c *Client) do(ctx context.Context, kind opKind, name string, args map[string]any) opResult {
	c.mu.Lock()
	running := c.loopDone != nil
	c.mu.Unlock()
	if !running {
		if kind != opConnect {
			return opResult{err: ErrNotConnected}
		}
		c.ensureLoop()
	}

	c.mu.Lock()
	ops := c.ops
	c.mu.Unlock()

	reply := make(chan opResult, 1)
	op := clientOp{kind: kind, ctx: ctx, name: name, args: args, result: reply}
	select {
	case ops <- op:
	case <-ctx.Done():
		return opResult{err: ctx.Err()}
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return opResult{err: ctx.Err()}
	}
}

// runLoop is the single owner of c.inner; it is the only goroutine that
// ever reads or mutates connection state, serializing every operation
// against the underlying SDK session. It takes its queue/done pair as
// arguments (rather than reading c.ops/c.loopDone) so a stale loop can
// never be confused with the fresh one a later ensureLoop starts.
func (c *Client) runLoop(ops chan clientOp, loopDone chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.ops == ops {
			c.ops, c.loopDone = nil, nil
		}
		c.mu.Unlock()
		close(loopDone)
	}()
	for op := range ops {
		switch op.kind {
		case opConnect:
			op.result <- opResult{err: c.handleConnect(op.ctx)}
		case opDisconnect:
			op.result <- opResult{err: c.handleDisconnect()}
		case opListTools:
			tools, err := c.handleListTools(op.ctx)
			op.result <- opResult{tools: tools, err: err}
		case opCallTool:
			text, err := c.handleCallTool(op.ctx, op.name, op.args)
			op.result <- opResult{text: text, err: err}
		case opCitations:
			if !c.connected {
				op.result <- opResult{err: ErrNotConnected}
				continue
			}
			op.result <- opResult{citations: c.citations}
		}
	}
	c.handleDisconnect()
}

func (c *Client) handleConnect(ctx context.Context) error {
	if c.connected {
		return nil
	}

	cli, err := sdk_client.NewStdioMCPClient("python", nil, c.cfg.Path)
	if err != nil {
		return fmt.Errorf("mcp: start server %q: %w", c.cfg.Name, err)
	}

	_, err = cli.Initialize(ctx, sdk_mcp.InitializeRequest{
		Params: sdk_mcp.InitializeParams{
			ProtocolVersion: sdk_mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: sdk_mcp.Implementation{
				Name:    "hatchling-go",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		_ = cli.Close()
		return fmt.Errorf("mcp: initialize server %q: %w", c.cfg.Name, err)
	}

	c.inner = cli
	c.connected = true
	c.citations = c.fetchCitations(ctx)
	c.startHeartbeat()
	return nil
}

// fetchCitations reads the three citation resources independently; a
// failure on any one of them is non-fatal and simply leaves that field
// empty, matching the original's try/except-per-resource behavior.
func (c *Client) fetchCitations(ctx context.Context) Citations {
	var out Citations

	nameURI := "name://" + strings.TrimPrefix(c.cfg.Path, "/")
	if text, err := c.readResource(ctx, nameURI); err == nil {
		out.Name = text
	}
	if text, err := c.readResource(ctx, "citation://origin/"+c.cfg.Name); err == nil {
		out.Origin = text
	}
	if text, err := c.readResource(ctx, "citation://mcp/"+c.cfg.Name); err == nil {
		out.MCP = text
	}
	return out
}

func (c *Client) readResource(ctx context.Context, uri string) (string, error) {
	req := sdk_mcp.ReadResourceRequest{}
	req.Params.URI = uri
	result, err := c.inner.ReadResource(ctx, req)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, content := range result.Contents {
		if tc, ok := content.(sdk_mcp.TextResourceContents); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func (c *Client) startHeartbeat() {
	c.heartbeatStop = make(chan struct{})
	c.heartbeatDone = make(chan struct{})
	inner := c.inner
	c.mu.Lock()
	ops := c.ops
	c.mu.Unlock()
	go func() {
		defer close(c.heartbeatDone)
		ticker := time.NewTicker(heartbeatPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-c.heartbeatStop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := inner.Ping(ctx)
				cancel()
				if err != nil {
					// Mark disconnected; policy on reconnection lives in
					// the Manager, not here.
					ops <- clientOp{kind: opDisconnect, ctx: context.Background(), result: make(chan opResult, 1)}
					return
				}
			}
		}
	}()
}

func (c *Client) handleDisconnect() error {
	if !c.connected {
		return nil
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		select {
		case <-c.heartbeatDone:
		case <-time.After(disconnectWait):
		}
		c.heartbeatStop = nil
	}
	var err error
	if c.inner != nil {
		err = c.inner.Close()
		c.inner = nil
	}
	c.connected = false
	return err
}

func (c *Client) handleListTools(ctx context.Context) ([]ToolInfo, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	result, err := c.inner.ListTools(ctx, sdk_mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools %q: %w", c.cfg.Name, err)
	}
	tools := make([]ToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = json.RawMessage("{}")
		}
		tools = append(tools, ToolInfo{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return tools, nil
}

func (c *Client) handleCallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}

	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	req := sdk_mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.inner.CallTool(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %q on %q", ErrToolTimeout, name, c.cfg.Name)
		}
		return "", fmt.Errorf("mcp: call tool %q on %q: %w", name, c.cfg.Name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(sdk_mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return "", fmt.Errorf("mcp: tool %q returned error: %s", name, text)
	}
	return text, nil
}
