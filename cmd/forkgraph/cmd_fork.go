package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/forkgraph/internal/agent"
	"github.com/user/forkgraph/internal/ingest"
	"github.com/user/forkgraph/internal/process"
	"github.com/user/forkgraph/internal/types"
)

var forkFlags struct {
	session      string
	model        string
	dir          string
	addDirs      []string
	systemPrompt string
	appendPrompt string
	agents       string
	mcpConfig    string
	settings     string
	maxTurns     int
	tools        string
	allowedTools string
	partial      bool
}

func addForkFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&forkFlags.model, "model", "m", "", "model to use")
	f.StringVar(&forkFlags.dir, "dir", "", "directory to run in")
	f.StringArrayVar(&forkFlags.addDirs, "add-dir", nil, "additional directories to allow")
	f.StringVar(&forkFlags.systemPrompt, "system-prompt", "", "replace the system prompt")
	f.StringVar(&forkFlags.appendPrompt, "append-system-prompt", "", "append to the system prompt")
	f.StringVar(&forkFlags.agents, "agents", "", "custom subagents as JSON")
	f.StringVar(&forkFlags.mcpConfig, "mcp-config", "", "MCP server config as JSON or path")
	f.StringVar(&forkFlags.settings, "settings", "", "additional settings as JSON or path")
	f.IntVar(&forkFlags.maxTurns, "max-turns", 0, "maximum agentic turns")
	f.StringVar(&forkFlags.tools, "tools", "", "restrict available tools")
	f.StringVar(&forkFlags.allowedTools, "allowed-tools", "", "tools that skip permission prompts")
	f.BoolVar(&forkFlags.partial, "partial", false, "include partial streaming messages")
}

func init() {
	forkCmd.Flags().StringVarP(&forkFlags.session, "session", "s", "", "parent session id (default: detect)")
	addForkFlags(forkCmd)
	addForkFlags(newCmd)
	addForkFlags(resumeCmd)
	addForkFlags(lastCmd)
	rootCmd.AddCommand(forkCmd, newCmd, resumeCmd, lastCmd)
}

var forkCmd = &cobra.Command{
	Use:   "fork [message...]",
	Short: "Fork the current session to handle a side task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent := types.SessionID(forkFlags.session)
		if parent == "" {
			parent = agent.DetectSessionID()
			if parent == "" {
				fmt.Fprintln(os.Stderr, "Warning: could not detect current session; starting fresh.")
			}
		}
		return runFork(cmd.Context(), parent, strings.Join(args, " "), parent != "")
	},
}

var newCmd = &cobra.Command{
	Use:   "new [message...]",
	Short: "Start a fresh session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFork(cmd.Context(), "", strings.Join(args, " "), false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id> [message...]",
	Short: "Resume a session without forking it",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFork(cmd.Context(), types.SessionID(args[0]), strings.Join(args[1:], " "), false)
	},
}

var lastCmd = &cobra.Command{
	Use:   "last [message...]",
	Short: "Message the most recent fork",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		e, err := store.LatestFork()
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("no forks found")
		}
		session := e.GetString("session_id")
		if session == "" {
			session = e.GetString("parent_session_id")
		}
		if session == "" {
			return fmt.Errorf("fork %s has no session id", e.GetString("fork_id"))
		}
		return runFork(cmd.Context(), types.SessionID(session), strings.Join(args, " "), false)
	},
}

func runFork(ctx context.Context, parent types.SessionID, message string, forkSession bool) error {
	cfg := loadConfig()
	setupLogging(cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := &agent.Runner{
		Bin:    cfg.Agent.Bin,
		Pool:   process.NewPool(int64(cfg.MaxConcurrent)),
		Ingest: &ingest.Ingestor{Sink: store},
	}
	svc := agent.NewService(store, runner)

	opts := agent.Options{
		Model:                  forkFlags.model,
		WorkingDir:             workingDir(),
		AddDirs:                forkFlags.addDirs,
		SystemPrompt:           forkFlags.systemPrompt,
		AppendSystemPrompt:     forkFlags.appendPrompt,
		Agents:                 forkFlags.agents,
		MCPConfig:              forkFlags.mcpConfig,
		Settings:               forkFlags.settings,
		MaxTurns:               forkFlags.maxTurns,
		Tools:                  forkFlags.tools,
		AllowedTools:           forkFlags.allowedTools,
		IncludePartialMessages: forkFlags.partial,
		Timeout:                cfg.AgentTimeout(),
	}
	if opts.Model == "" {
		opts.Model = cfg.Agent.Model
	}
	if opts.MaxTurns == 0 {
		opts.MaxTurns = cfg.Agent.MaxTurns
	}

	fmt.Println("Starting session...")
	outcome, err := svc.Fork(ctx, agent.ForkRequest{
		ParentSessionID: parent,
		ForkSession:     forkSession,
		Message:         message,
		Options:         opts,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Fork ID: %s (%s)\n", outcome.Fork.ID, outcome.Fork.Name)
	fmt.Printf("Session ID: %s\n", outcome.Run.SessionID)
	if outcome.Run.Success {
		fmt.Println("\nFork completed successfully.")
		if outcome.Run.CostUSD > 0 {
			fmt.Printf("Cost: $%.4f\n", outcome.Run.CostUSD)
		}
	} else {
		fmt.Println("\nFork failed.")
	}
	if resp := outcome.Run.Response(); resp != "" {
		fmt.Printf("\nResponse:\n%s\n", resp)
	}
	return nil
}

func workingDir() string {
	if forkFlags.dir != "" {
		return forkFlags.dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
