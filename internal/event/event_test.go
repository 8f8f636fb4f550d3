// internal/event/event_test.go
package event

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseRejectsGarbage(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"not json",
		"{truncated",
	}
	for _, line := range tests {
		if rec := Parse(line); rec != nil {
			t.Errorf("Parse(%q) = %+v, want nil", line, rec)
		}
	}
}

func TestParseAssistantToolUse(t *testing.T) {
	line := `{"type":"assistant","uuid":"u1","session_id":"s1","message":{"role":"assistant","model":"m1","id":"msg_1","content":[{"type":"text","text":"running it"},{"type":"tool_use","id":"t1","name":"bash","input":{"command":"ls"}}]}}`

	rec := Parse(line)
	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.Type != TypeAssistant {
		t.Errorf("type = %s, want assistant", rec.Type)
	}
	if rec.UUID != "u1" || string(rec.SessionID) != "s1" {
		t.Errorf("uuid/session = %q/%q", rec.UUID, rec.SessionID)
	}
	if rec.Model != "m1" || rec.MessageID != "msg_1" || rec.Role != "assistant" {
		t.Errorf("message metadata = %q/%q/%q", rec.Model, rec.MessageID, rec.Role)
	}
	if rec.Text != "running it" {
		t.Errorf("text = %q", rec.Text)
	}
	if len(rec.ToolUses) != 1 {
		t.Fatalf("expected 1 tool use, got %d", len(rec.ToolUses))
	}
	tu := rec.ToolUses[0]
	if tu.ID != "t1" || tu.Name != "bash" {
		t.Errorf("tool use = %+v", tu)
	}
	var input map[string]string
	if err := json.Unmarshal(tu.Input, &input); err != nil || input["command"] != "ls" {
		t.Errorf("tool input round trip failed: %v %v", input, err)
	}
	if got := rec.ToolUseIDs(); !reflect.DeepEqual(got, []string{"t1"}) {
		t.Errorf("ToolUseIDs = %v", got)
	}
}

func TestParseIdempotent(t *testing.T) {
	lines := []string{
		`{"type":"assistant","uuid":"u1","message":{"content":[{"type":"text","text":"hi"}]}}`,
		`{"type":"result","result":"done","cost_usd":0.12,"duration_ms":900,"num_turns":3}`,
		`{"type":"wat","uuid":"u9"}`,
	}
	for _, line := range lines {
		a, b := Parse(line), Parse(line)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("parse not idempotent for %q:\n%+v\n%+v", line, a, b)
		}
	}
}

func TestParseUnknownTypeKeepsRaw(t *testing.T) {
	line := `{"type":"telemetry","uuid":"u2","message":{"content":[{"type":"text","text":"ignored"}]}}`
	rec := Parse(line)
	if rec == nil {
		t.Fatal("unknown type tags must still parse")
	}
	if rec.Type != TypeUnknown {
		t.Errorf("type = %s, want unknown", rec.Type)
	}
	if rec.Text != "" || rec.Thinking != "" || len(rec.ToolUses) != 0 {
		t.Error("unknown events must not carry type-specific extraction")
	}
	if rec.UUID != "u2" {
		t.Errorf("uuid = %q", rec.UUID)
	}
	if string(rec.Raw) != line {
		t.Error("raw payload must be retained untouched")
	}
}

func TestParseSessionIDSpellings(t *testing.T) {
	rec := Parse(`{"type":"user","sessionId":"camel"}`)
	if string(rec.SessionID) != "camel" {
		t.Errorf("sessionId spelling not honored: %q", rec.SessionID)
	}
	// snake_case wins when both are present
	rec = Parse(`{"type":"user","session_id":"snake","sessionId":"camel"}`)
	if string(rec.SessionID) != "snake" {
		t.Errorf("expected snake_case to win, got %q", rec.SessionID)
	}
}

func TestParseStripsReminders(t *testing.T) {
	line := `{"type":"user","message":{"content":[{"type":"text","text":"<system-reminder>injected</system-reminder>real"},{"type":"text","text":"<system-reminder>only noise</system-reminder>"}]}}`
	rec := Parse(line)
	if rec.Text != "real" {
		t.Errorf("text = %q, want %q", rec.Text, "real")
	}
}

func TestParseThinkingBlocks(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"first"},{"type":"text","text":"answer"},{"type":"thinking","thinking":"second"}]}}`
	rec := Parse(line)
	if rec.Thinking != "first\n\nsecond" {
		t.Errorf("thinking = %q", rec.Thinking)
	}
	if rec.Text != "answer" {
		t.Errorf("text = %q", rec.Text)
	}
}

func TestParseToolResult(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		summary string
		isError bool
	}{
		{
			name:    "scalar content",
			line:    `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"file listing"}]}}`,
			summary: "file listing",
		},
		{
			name:    "block array takes first text block",
			line:    `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":[{"type":"image"},{"type":"text","text":"from block"},{"type":"text","text":"later"}]}]}}`,
			summary: "from block",
		},
		{
			name:    "error flag",
			line:    `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"boom","is_error":true}]}}`,
			summary: "boom",
			isError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Parse(tt.line)
			if len(rec.ToolResults) != 1 {
				t.Fatalf("expected 1 tool result, got %d", len(rec.ToolResults))
			}
			tr := rec.ToolResults[0]
			if tr.ToolUseID != "t1" || tr.Summary != tt.summary || tr.IsError != tt.isError {
				t.Errorf("tool result = %+v", tr)
			}
		})
	}
}

func TestParseToolResultTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	line := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"` + long + `"}]}}`
	rec := Parse(line)
	got := rec.ToolResults[0].Summary
	if len(got) != summaryLimit+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("summary length = %d, want %d plus marker", len(got), summaryLimit+3)
	}
}

func TestParseToolResultTruncationKeepsRunesWhole(t *testing.T) {
	// Three-byte runes that don't divide the byte cap evenly: a byte slice
	// at the cap would split one mid-sequence.
	long := strings.Repeat("世", 100)
	line := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"` + long + `"}]}}`
	rec := Parse(line)
	got := rec.ToolResults[0].Summary
	if !utf8.ValidString(got) {
		t.Errorf("summary is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("summary missing truncation marker: %q", got)
	}
	if len(got) > summaryLimit+3 {
		t.Errorf("summary length = %d, want <= %d", len(got), summaryLimit+3)
	}
	if strings.ContainsRune(got, utf8.RuneError) {
		t.Errorf("summary contains a replacement rune: %q", got)
	}
}

func TestParseMalformedBlocksSkipped(t *testing.T) {
	// tool_use without a name, tool_result without an id: both dropped silently
	line := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1"},{"type":"tool_result","content":"orphan"},{"type":"tool_use","id":"t2","name":"grep"}]}}`
	rec := Parse(line)
	if len(rec.ToolUses) != 1 || rec.ToolUses[0].ID != "t2" {
		t.Errorf("tool uses = %+v", rec.ToolUses)
	}
	if len(rec.ToolResults) != 0 {
		t.Errorf("tool results = %+v", rec.ToolResults)
	}
}

func TestParseResultEvent(t *testing.T) {
	line := `{"type":"result","subtype":"success","result":"all done","cost_usd":0.25,"total_cost_usd":1.5,"duration_ms":4200,"num_turns":7}`
	rec := Parse(line)
	if !rec.IsResult() {
		t.Error("expected a result event")
	}
	if rec.Result != "all done" || rec.Subtype != "success" {
		t.Errorf("result/subtype = %q/%q", rec.Result, rec.Subtype)
	}
	if rec.CostUSD != 0.25 || rec.TotalCostUSD != 1.5 || rec.DurationMS != 4200 || rec.NumTurns != 7 {
		t.Errorf("metrics = %v %v %v %v", rec.CostUSD, rec.TotalCostUSD, rec.DurationMS, rec.NumTurns)
	}
}

func TestParseInitEvent(t *testing.T) {
	rec := Parse(`{"type":"system","subtype":"init","session_id":"s1"}`)
	if rec.Type != TypeInit || rec.Subtype != "init" {
		t.Errorf("type/subtype = %s/%s", rec.Type, rec.Subtype)
	}
}

func TestParseStringMessageContent(t *testing.T) {
	rec := Parse(`{"type":"user","message":{"role":"user","content":"plain prompt"}}`)
	if rec.Text != "plain prompt" {
		t.Errorf("text = %q", rec.Text)
	}
}
