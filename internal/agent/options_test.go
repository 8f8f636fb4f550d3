// internal/agent/options_test.go
package agent

import (
	"reflect"
	"testing"
	"time"
)

func TestArgsMinimal(t *testing.T) {
	args := Options{Message: "do the thing"}.Args()
	want := []string{
		"--dangerously-skip-permissions",
		"--output-format", "stream-json",
		"--verbose",
		"-p", "do the thing",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args = %v, want %v", args, want)
	}
}

func TestArgsFull(t *testing.T) {
	opts := Options{
		ResumeSessionID:        "parent",
		SessionID:              "explicit",
		ForkSession:            true,
		Model:                  "opus",
		Message:                "task",
		AddDirs:                []string{"/a", "/b"},
		AppendSystemPrompt:     "extra",
		MCPConfig:              "mcp.json",
		MaxTurns:               5,
		AllowedTools:           "Bash,Read",
		IncludePartialMessages: true,
		Timeout:                time.Minute,
	}
	args := opts.Args()

	for _, pair := range [][2]string{
		{"--session-id", "explicit"},
		{"-r", "parent"},
		{"--model", "opus"},
		{"--append-system-prompt", "extra"},
		{"--mcp-config", "mcp.json"},
		{"--max-turns", "5"},
		{"--allowedTools", "Bash,Read"},
	} {
		if !hasFlagValue(args, pair[0], pair[1]) {
			t.Errorf("missing %s %s in %v", pair[0], pair[1], args)
		}
	}
	if !hasFlag(args, "--fork-session") || !hasFlag(args, "--include-partial-messages") {
		t.Errorf("missing boolean flags in %v", args)
	}
	if !hasFlagValue(args, "--add-dir", "/a") || !hasFlagValue(args, "--add-dir", "/b") {
		t.Errorf("missing add-dir flags in %v", args)
	}
	// The message is always last.
	if args[len(args)-2] != "-p" || args[len(args)-1] != "task" {
		t.Errorf("message not last: %v", args)
	}
}

func TestArgsSystemPromptWinsOverAppend(t *testing.T) {
	args := Options{Message: "m", SystemPrompt: "full", AppendSystemPrompt: "extra"}.Args()
	if !hasFlagValue(args, "--system-prompt", "full") {
		t.Errorf("missing --system-prompt in %v", args)
	}
	if hasFlag(args, "--append-system-prompt") {
		t.Errorf("--append-system-prompt must be dropped when --system-prompt is set: %v", args)
	}
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func hasFlagValue(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}
