// Command hatchling is the line-oriented REPL that wires the chat session,
// the MCP tool-server fleet, and the Hatch package/environment commands
// together into one process.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/hatchling-go/hatchling/internal/chat"
	"github.com/hatchling-go/hatchling/internal/config"
	"github.com/hatchling-go/hatchling/internal/depresolve"
	"github.com/hatchling-go/hatchling/internal/env"
	"github.com/hatchling-go/hatchling/internal/llmapi"
	"github.com/hatchling-go/hatchling/internal/llmapi/ollama"
	"github.com/hatchling-go/hatchling/internal/llmapi/openai"
	"github.com/hatchling-go/hatchling/internal/logging"
	"github.com/hatchling-go/hatchling/internal/mcp"
	"github.com/hatchling-go/hatchling/internal/pkgloader"
	"github.com/hatchling-go/hatchling/internal/registry"
	"github.com/hatchling-go/hatchling/internal/toolexec"
)

func main() {
	config.LoadEnv()
	if err := config.LoadYAMLOverlay("hatchling.yaml"); err != nil {
		log.Printf("⚠️  hatchling.yaml: %v", err)
	}

	settings := config.LoadSettings()
	if settings.WorkspaceDir == "" {
		settings.WorkspaceDir, _ = os.Getwd()
	}

	logger := logging.New(logging.ParseLevel(settings.LogLevel), 200)

	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║            Hatchling                 ║")
	fmt.Println("║  MCP tool calling · Hatch packages   ║")
	fmt.Println("╚══════════════════════════════════════╝")
	fmt.Printf("📂 Workspace: %s\n", settings.WorkspaceDir)

	provider, name, err := buildProvider()
	if err != nil {
		log.Fatalf("❌ Failed to initialize LLM provider: %v", err)
	}
	fmt.Printf("🤖 Provider: %s\n", name)

	fleet := mcp.NewManager()
	ctx := context.Background()
	if len(settings.MCPServerPaths) > 0 {
		ok, err := fleet.Initialize(ctx, settings.MCPServerPaths)
		if err != nil {
			logger.Warnf("MCP fleet initialize: %v", err)
		} else if ok {
			fmt.Printf("🔌 MCP: %d tool(s) discovered across %d server path(s)\n", len(fleet.AllTools()), len(settings.MCPServerPaths))
		}
	}
	defer fleet.CloseAll()

	toolsMgr := toolexec.NewManager(toolexec.Settings{
		MaxToolCallIteration: settings.MaxToolCallIteration,
		MaxWorkingTime:       settings.MaxWorkingTime,
	}, fleet)
	toolsMgr.SetToolsEnabled(settings.ToolsEnabled)
	fmt.Printf("🔧 Tools enabled: %v (max iterations %d, max time %v)\n",
		settings.ToolsEnabled, settings.MaxToolCallIteration, settings.MaxWorkingTime)

	session := chat.New(provider, toolsMgr, fleet)

	envMgr, err := buildEnvManager(settings.WorkspaceDir)
	if err != nil {
		logger.Warnf("package/environment manager disabled: %v", err)
	}

	repl := &repl{
		settings: &settings,
		session:  session,
		toolsMgr: toolsMgr,
		envMgr:   envMgr,
		logger:   logger,
	}
	repl.run(ctx)
}

func buildProvider() (llmapi.Provider, string, error) {
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		cli, err := ollama.NewClientFromEnv()
		if err != nil {
			return nil, "", err
		}
		return cli, cli.GetName(), nil
	}
	cli, err := openai.NewClientFromEnv()
	if err != nil {
		return nil, "", err
	}
	return cli, cli.GetName(), nil
}

func buildEnvManager(workspaceDir string) (*env.Manager, error) {
	fs := afero.NewOsFs()
	root := filepath.Join(workspaceDir, ".hatch")
	loader := pkgloader.New(fs, filepath.Join(root, "cache"), http.DefaultClient)

	regPath := filepath.Join(root, "registry.json")
	store, err := registry.Load(regPath)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	resolver := depresolve.NewResolver(store.Registry())

	return env.New(fs, root, loader, resolver)
}

// repl drives the line-oriented command surface: plain lines are sent to
// the chat session; lines starting with a known command name are handled
// locally.
type repl struct {
	settings *config.Settings
	session  *chat.Session
	toolsMgr *toolexec.Manager
	envMgr   *env.Manager
	logger   *logging.Logger
}

func (r *repl) run(ctx context.Context) {
	fmt.Println("Type 'help' for commands, 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if r.dispatch(ctx, line) {
			break
		}
	}
}

// dispatch handles one input line, returning true if the REPL should exit.
func (r *repl) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(line, cmd))

	switch {
	case cmd == "exit" || cmd == "quit":
		return true
	case cmd == "help":
		r.printHelp()
	case cmd == "clear":
		fmt.Print("\033[H\033[2J")
	case cmd == "show_logs":
		r.showLogs(rest)
	case cmd == "set_log_level":
		r.logger.SetLevel(logging.ParseLevel(rest))
		fmt.Printf("log level set to %q\n", rest)
	case cmd == "enable_tools":
		r.toolsMgr.SetToolsEnabled(true)
		fmt.Println("tools enabled")
	case cmd == "disable_tools":
		r.toolsMgr.SetToolsEnabled(false)
		fmt.Println("tools disabled")
	case cmd == "set_max_tool_call_iterations":
		if n, err := strconv.Atoi(rest); err == nil {
			r.toolsMgr.SetMaxToolCallIteration(n)
			fmt.Printf("max tool call iterations set to %d\n", n)
		} else {
			fmt.Println("usage: set_max_tool_call_iterations <N>")
		}
	case cmd == "set_max_working_time":
		if n, err := strconv.Atoi(rest); err == nil {
			r.toolsMgr.SetMaxWorkingTime(time.Duration(n) * time.Second)
			fmt.Printf("max working time set to %ds\n", n)
		} else {
			fmt.Println("usage: set_max_working_time <seconds>")
		}
	case strings.HasPrefix(cmd, "hatch:"):
		r.handleHatch(cmd, rest)
	default:
		r.sendMessage(ctx, line)
	}
	return false
}

func (r *repl) sendMessage(ctx context.Context, msg string) {
	reply, err := r.session.SendMessage(ctx, msg, func(chunk string) {
		fmt.Print(chunk)
	})
	if err != nil {
		fmt.Printf("\n❌ %v\n", err)
		return
	}
	if reply != "" {
		fmt.Println()
	}
}

func (r *repl) showLogs(arg string) {
	n := 20
	if arg != "" {
		if parsed, err := strconv.Atoi(arg); err == nil {
			n = parsed
		}
	}
	lines := r.logger.Recent(n)
	if len(lines) == 0 {
		fmt.Println("(no log lines retained yet)")
		return
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

func (r *repl) handleHatch(cmd, rest string) {
	if r.envMgr == nil {
		fmt.Println("package/environment manager unavailable")
		return
	}
	args := strings.Fields(rest)
	switch cmd {
	case "hatch:env:list":
		for name, isCurrent := range r.envMgr.ListEnvironments() {
			marker := " "
			if isCurrent {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
	case "hatch:env:current":
		fmt.Println(r.envMgr.CurrentEnvironment())
	case "hatch:env:create":
		if len(args) < 1 {
			fmt.Println("usage: hatch:env:create <name> [description]")
			return
		}
		if err := r.envMgr.CreateEnvironment(args[0], strings.Join(args[1:], " ")); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "hatch:env:remove":
		if len(args) != 1 {
			fmt.Println("usage: hatch:env:remove <name>")
			return
		}
		if err := r.envMgr.RemoveEnvironment(args[0]); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "hatch:env:switch":
		if len(args) != 1 {
			fmt.Println("usage: hatch:env:switch <name>")
			return
		}
		if err := r.envMgr.SwitchEnvironment(args[0]); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "hatch:pkg:list":
		envName := r.envMgr.CurrentEnvironment()
		if len(args) == 1 {
			envName = args[0]
		}
		pkgs, err := r.envMgr.ListPackagesInEnvironment(envName)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		for _, p := range pkgs {
			fmt.Printf("%s %s (%s)\n", p.Name, p.Version, p.Source.Type)
		}
	case "hatch:pkg:add":
		if len(args) < 1 {
			fmt.Println("usage: hatch:pkg:add <local-path> | hatch:pkg:add <name> <version>")
			return
		}
		envName := r.envMgr.CurrentEnvironment()
		var err error
		if len(args) == 1 {
			err = r.envMgr.AddLocalPackage(envName, args[0])
		} else {
			err = r.envMgr.AddRegistryPackage(envName, args[0], args[1])
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "hatch:pkg:remove":
		if len(args) != 1 {
			fmt.Println("usage: hatch:pkg:remove <name>")
			return
		}
		if err := r.envMgr.RemovePackageFromEnvironment(r.envMgr.CurrentEnvironment(), args[0]); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "hatch:create", "hatch:validate":
		fmt.Println("not implemented: package authoring is out of scope for this runtime")
	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
}

func (r *repl) printHelp() {
	fmt.Println(`commands:
  help                                show this message
  exit, quit                          leave the REPL
  clear                               clear the screen
  show_logs [N]                       show the last N log lines
  set_log_level <level>               change the log verbosity
  enable_tools / disable_tools        toggle MCP tool calling
  set_max_tool_call_iterations <N>    per-turn tool-call budget
  set_max_working_time <seconds>      per-turn wall-clock budget
  hatch:env:list|current|create|remove|switch
  hatch:pkg:list|add|remove
  hatch:create, hatch:validate        (not implemented)
  anything else                       sent to the chat session`)
}
