package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Manager owns the fleet of MCP server connections for one process. It is
// the single source of truth for which servers are configured, routes
// tool calls to the Client that owns the called tool, and tracks which
// servers were actually used during the current turn so citations can be
// aggregated once, at the end of the turn.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*Client        // server path -> client
	tools   map[string][]ToolInfo     // server path -> cached tool list
	owner   map[string]string         // tool name -> server path
	used    map[string]struct{}       // server paths used so far this turn
}

// NewManager creates an empty Manager. Call Initialize to connect to a
// fleet of servers.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		tools:   make(map[string][]ToolInfo),
		owner:   make(map[string]string),
		used:    make(map[string]struct{}),
	}
}

// Initialize connects to every server path in parallel and discovers its
// tools. Failures are best-effort: a server that fails to connect is
// logged and excluded from the fleet, but does not prevent the others
// from connecting. Initialize reports true if at least one server
// connected successfully.
func (m *Manager) Initialize(ctx context.Context, serverPaths []string) (bool, error) {
	type discovery struct {
		path  string
		cli   *Client
		tools []ToolInfo
	}

	results := make([]discovery, len(serverPaths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range serverPaths {
		i, path := i, path
		g.Go(func() error {
			cli := NewClient(ServerConfig{Path: path})
			if err := cli.Connect(gctx); err != nil {
				log.Printf("[mcp] connect %q failed: %v", path, err)
				return nil
			}
			tools, err := cli.ListTools(gctx)
			if err != nil {
				log.Printf("[mcp] list tools %q failed: %v", path, err)
				_ = cli.Close()
				return nil
			}
			results[i] = discovery{path: path, cli: cli, tools: tools}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	connected := 0
	for _, r := range results {
		if r.cli == nil {
			continue
		}
		m.clients[r.path] = r.cli
		m.tools[r.path] = r.tools
		for _, t := range r.tools {
			m.owner[t.Name] = r.path
		}
		connected++
		log.Printf("[mcp] connected %q (%d tool(s))", r.path, len(r.tools))
	}
	return connected > 0, nil
}

// AllTools returns the tool descriptor lists of every currently connected
// server, concatenated. Names are not deduplicated: a tool name exposed by
// two servers appears twice, and calls to it are routed to whichever
// server Initialize recorded last as its owner.
func (m *Manager) AllTools() []ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []ToolInfo
	for _, tools := range m.tools {
		all = append(all, tools...)
	}
	return all
}

// ResetSessionTracking clears the per-turn "used servers" set; called at
// the start of a new user query.
func (m *Manager) ResetSessionTracking() {
	m.mu.Lock()
	m.used = make(map[string]struct{})
	m.mu.Unlock()
}

// ProcessToolCalls dispatches each formatted tool call to the Client that
// owns it, evicting that Client from the fleet if it reports
// ErrNotConnected (the heartbeat observed the server die). Results are
// returned in the same order as the input calls; a call whose server
// cannot be found or has failed produces an error-content result rather
// than aborting the batch.
func (m *Manager) ProcessToolCalls(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	for i, call := range calls {
		results[i] = m.dispatch(ctx, call)
	}
	return results
}

// ToolCall is the formatted {id, function{name, arguments}} shape used to
// invoke a single tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the outcome of dispatching a single ToolCall.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
}

func (m *Manager) dispatch(ctx context.Context, call ToolCall) ToolResult {
	m.mu.Lock()
	path, ok := m.owner[call.Name]
	var cli *Client
	if ok {
		cli = m.clients[path]
	}
	m.mu.Unlock()

	if !ok || cli == nil {
		return ToolResult{ToolCallID: call.ID, Name: call.Name, Content: errorContent("tool %q not found", call.Name)}
	}

	text, err := cli.CallTool(ctx, call.Name, call.Arguments)
	if err != nil {
		if isNotConnected(err) {
			m.evict(path)
		}
		return ToolResult{ToolCallID: call.ID, Name: call.Name, Content: errorContent("%v", err)}
	}

	m.mu.Lock()
	m.used[path] = struct{}{}
	m.mu.Unlock()

	return ToolResult{ToolCallID: call.ID, Name: call.Name, Content: text}
}

// errorContent renders a tool-call failure as the {"error": <text>} JSON
// shape the model expects in a tool-result message, rather than a plain
// string it would need to parse heuristically.
func errorContent(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	b, err := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: msg})
	if err != nil {
		return `{"error":"internal: failed to encode tool error"}`
	}
	return string(b)
}

// evict removes a server from the fleet entirely — its Client, its cached
// tool list, and every tool-name ownership entry it held — so a later
// AllTools() call no longer advertises a dead server's tools.
func (m *Manager) evict(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tools[path] {
		delete(m.owner, t.Name)
	}
	delete(m.tools, path)
	delete(m.clients, path)
}

func isNotConnected(err error) bool {
	for err != nil {
		if err == ErrNotConnected {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// GetCitationsForSession returns the aggregated citation resources for
// every server used so far this turn, one Citations value per server.
func (m *Manager) GetCitationsForSession(ctx context.Context) []Citations {
	m.mu.Lock()
	used := make([]string, 0, len(m.used))
	for path := range m.used {
		used = append(used, path)
	}
	clients := make(map[string]*Client, len(used))
	for _, path := range used {
		clients[path] = m.clients[path]
	}
	m.mu.Unlock()

	var out []Citations
	for _, path := range used {
		cli := clients[path]
		if cli == nil {
			continue
		}
		c, err := cli.Citations(ctx)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CloseAll disconnects every server in the fleet. Safe to call more than
// once.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for path, cli := range clients {
		if err := cli.Close(); err != nil {
			log.Printf("[mcp] close %q: %v", path, err)
		}
	}
}
