// internal/event/event.go
package event

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/user/forkgraph/internal/types"
)

// Type is the event type tag from the agent's stream-json output.
type Type string

const (
	TypeInit        Type = "init"
	TypeStreamDelta Type = "stream_delta"
	TypeAssistant   Type = "assistant"
	TypeUser        Type = "user"
	TypeResult      Type = "result"
	TypeError       Type = "error"
	TypeUnknown     Type = "unknown"
)

// Sentinel tags delimiting injected context the agent never wrote itself.
// Spans between them are stripped from all extracted text.
const (
	reminderOpen  = "<system-reminder>"
	reminderClose = "</system-reminder>"
)

// summaryLimit caps tool outcome summaries stored on a record.
const summaryLimit = 200

// ToolUse is a single tool invocation declared by an event. Its ID is the
// correlation key later events use to attach themselves as children.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResult answers a prior ToolUse.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Summary   string `json:"summary,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Record is one parsed unit of agent output. Raw always holds the original
// line so nothing is lost to fields we don't model.
type Record struct {
	Type            Type            `json:"type"`
	Subtype         string          `json:"subtype,omitempty"`
	UUID            string          `json:"uuid,omitempty"`
	SessionID       types.SessionID `json:"session_id,omitempty"`
	ParentToolUseID string          `json:"parent_tool_use_id,omitempty"`

	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	Result   string `json:"result,omitempty"`

	Model     string `json:"model,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Role      string `json:"role,omitempty"`

	ToolUses    []ToolUse    `json:"tool_uses,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	CostUSD      float64 `json:"cost_usd,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
	NumTurns     int64   `json:"num_turns,omitempty"`

	Raw json.RawMessage `json:"raw"`
}

// ToolUseIDs returns the invocation ids this record declares, in order.
func (r *Record) ToolUseIDs() []string {
	if len(r.ToolUses) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.ToolUses))
	for _, tu := range r.ToolUses {
		ids = append(ids, tu.ID)
	}
	return ids
}

// IsResult reports whether this is the final result event of a run.
func (r *Record) IsResult() bool { return r.Type == TypeResult }

// Parse converts one line of stream-json output into a Record. It returns nil
// for blank lines and lines that are not JSON objects; it never fails on an
// unrecognized type tag; those come back as TypeUnknown with Raw intact and
// no type-specific extraction.
func Parse(line string) *Record {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return nil
	}

	rec := &Record{
		Type: typeTag(stringField(payload, "type")),
		Raw:  json.RawMessage(line),
	}

	rec.UUID = stringField(payload, "uuid")
	rec.Subtype = stringField(payload, "subtype")
	rec.ParentToolUseID = stringField(payload, "parent_tool_use_id")

	// The session id shows up under either spelling depending on the
	// producer; first present wins.
	if sid := stringField(payload, "session_id"); sid != "" {
		rec.SessionID = types.SessionID(sid)
	} else if sid := stringField(payload, "sessionId"); sid != "" {
		rec.SessionID = types.SessionID(sid)
	}

	if rec.Type == TypeUnknown {
		return rec
	}

	if msg, ok := payload["message"].(map[string]any); ok {
		rec.Model = stringField(msg, "model")
		rec.MessageID = stringField(msg, "id")
		rec.Role = stringField(msg, "role")
		extractContent(rec, msg["content"])
	}

	if res := stringField(payload, "result"); res != "" {
		rec.Result = stripReminders(res)
	}

	rec.CostUSD = floatField(payload, "cost_usd")
	rec.TotalCostUSD = floatField(payload, "total_cost_usd")
	rec.DurationMS = int64(floatField(payload, "duration_ms"))
	rec.NumTurns = int64(floatField(payload, "num_turns"))

	return rec
}

func typeTag(s string) Type {
	switch s {
	case "system":
		return TypeInit
	case "stream_event":
		return TypeStreamDelta
	case "assistant":
		return TypeAssistant
	case "user":
		return TypeUser
	case "result":
		return TypeResult
	case "error":
		return TypeError
	}
	return TypeUnknown
}

// extractContent walks message content blocks in document order, filling the
// record's text, thinking, tool use, and tool result fields.
func extractContent(rec *Record, content any) {
	switch c := content.(type) {
	case string:
		if text := stripReminders(c); text != "" {
			rec.Text = text
		}
		return
	case []any:
		var texts []string
		var thinking []string
		for _, raw := range c {
			block, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			switch stringField(block, "type") {
			case "text":
				if text := stripReminders(stringField(block, "text")); text != "" {
					texts = append(texts, text)
				}
			case "thinking":
				if text := stripReminders(stringField(block, "thinking")); text != "" {
					thinking = append(thinking, text)
				}
			case "tool_use":
				id := stringField(block, "id")
				name := stringField(block, "name")
				if id == "" || name == "" {
					continue
				}
				tu := ToolUse{ID: id, Name: name}
				if input, ok := block["input"]; ok {
					if data, err := json.Marshal(input); err == nil {
						tu.Input = data
					}
				}
				rec.ToolUses = append(rec.ToolUses, tu)
			case "tool_result":
				id := stringField(block, "tool_use_id")
				if id == "" {
					continue
				}
				summary := resultText(block["content"])
				if summary != "" {
					texts = append(texts, summary)
				}
				isError, _ := block["is_error"].(bool)
				rec.ToolResults = append(rec.ToolResults, ToolResult{
					ToolUseID: id,
					Summary:   truncate(summary, summaryLimit),
					IsError:   isError,
				})
			}
		}
		rec.Text = strings.Join(texts, "\n")
		if len(thinking) > 0 {
			rec.Thinking = strings.Join(thinking, "\n\n")
		}
	}
}

// resultText extracts the text of a tool_result content value, which may be a
// plain string or an array of blocks. In the array case only the first
// text-bearing block counts.
func resultText(content any) string {
	switch c := content.(type) {
	case string:
		return stripReminders(c)
	case []any:
		for _, raw := range c {
			block, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if stringField(block, "type") != "text" {
				continue
			}
			if text := stripReminders(stringField(block, "text")); text != "" {
				return text
			}
		}
	}
	return ""
}

// stripReminders removes every sentinel-delimited span and trims whitespace.
// An unmatched opening tag drops the rest of the string.
func stripReminders(s string) string {
	for {
		start := strings.Index(s, reminderOpen)
		if start < 0 {
			break
		}
		rest := s[start+len(reminderOpen):]
		end := strings.Index(rest, reminderClose)
		if end < 0 {
			s = s[:start]
			break
		}
		s = s[:start] + rest[end+len(reminderClose):]
	}
	return strings.TrimSpace(s)
}

// truncate caps s at limit bytes without splitting a multibyte rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func floatField(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}
