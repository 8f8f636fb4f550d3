// internal/agent/options.go

// Package agent runs the claude CLI through the process pool, streams its
// NDJSON output into the graph, and drives the fork status machine.
package agent

import (
	"strconv"
	"time"

	"github.com/user/forkgraph/internal/types"
)

// Options for one claude invocation.
type Options struct {
	// ResumeSessionID resumes an existing session (-r).
	ResumeSessionID types.SessionID
	// SessionID is an explicit session id assigned upfront (--session-id).
	SessionID types.SessionID
	// ForkSession branches the resumed session instead of continuing it.
	ForkSession bool
	// Model to use, if any.
	Model string
	// Message is the prompt sent in print mode (-p).
	Message string
	// WorkingDir is where the process runs.
	WorkingDir string
	// AddDirs grants access to additional directories.
	AddDirs []string

	// SystemPrompt replaces the entire system prompt; AppendSystemPrompt
	// adds to it. SystemPrompt wins when both are set.
	SystemPrompt       string
	AppendSystemPrompt string

	// Agents is custom subagent config as JSON.
	Agents string
	// MCPConfig is MCP server configuration as JSON or a path.
	MCPConfig string
	// Settings is additional settings as JSON or a path.
	Settings string
	// MaxTurns caps agentic turns; zero means no cap.
	MaxTurns int
	// Tools restricts the available tools.
	Tools string
	// AllowedTools lists tools that skip permission prompts.
	AllowedTools string
	// IncludePartialMessages streams partial assistant messages too.
	IncludePartialMessages bool

	// Timeout kills the run after the given duration; zero means no limit.
	Timeout time.Duration
}

// Args builds the claude CLI argument list. The message always goes last.
func (o Options) Args() []string {
	args := []string{
		"--dangerously-skip-permissions",
		"--output-format", "stream-json",
		"--verbose",
	}
	if o.SessionID != "" {
		args = append(args, "--session-id", string(o.SessionID))
	}
	if o.ResumeSessionID != "" {
		args = append(args, "-r", string(o.ResumeSessionID))
	}
	if o.ForkSession {
		args = append(args, "--fork-session")
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.SystemPrompt != "" {
		args = append(args, "--system-prompt", o.SystemPrompt)
	} else if o.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", o.AppendSystemPrompt)
	}
	for _, dir := range o.AddDirs {
		args = append(args, "--add-dir", dir)
	}
	if o.Agents != "" {
		args = append(args, "--agents", o.Agents)
	}
	if o.MCPConfig != "" {
		args = append(args, "--mcp-config", o.MCPConfig)
	}
	if o.Settings != "" {
		args = append(args, "--settings", o.Settings)
	}
	if o.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(o.MaxTurns))
	}
	if o.Tools != "" {
		args = append(args, "--tools", o.Tools)
	}
	if o.AllowedTools != "" {
		args = append(args, "--allowedTools", o.AllowedTools)
	}
	if o.IncludePartialMessages {
		args = append(args, "--include-partial-messages")
	}
	return append(args, "-p", o.Message)
}
