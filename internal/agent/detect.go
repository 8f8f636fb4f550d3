// internal/agent/detect.go
package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/forkgraph/internal/types"
)

const (
	hookSessionFile   = "/tmp/.forkgraph-session"
	claudeSessionFile = ".claude/current-session.json"
)

// DetectSessionID finds the calling session's id so a fork can branch off it.
// A hook-injected file wins; otherwise walk up from the working directory
// looking for the claude session file, then check the home directory. Returns
// "" when nothing is found.
func DetectSessionID() types.SessionID {
	if sid := readHookSession(); sid != "" {
		return sid
	}
	return findClaudeSession()
}

func readHookSession() types.SessionID {
	data, err := os.ReadFile(hookSessionFile)
	if err != nil {
		return ""
	}
	return types.SessionID(strings.TrimSpace(string(data)))
}

func findClaudeSession() types.SessionID {
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			if sid := readClaudeSession(filepath.Join(dir, claudeSessionFile)); sid != "" {
				return sid
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return readClaudeSession(filepath.Join(home, claudeSessionFile))
	}
	return ""
}

func readClaudeSession(path string) types.SessionID {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var f struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return ""
	}
	return types.SessionID(f.SessionID)
}
