// internal/agent/runner_test.go
package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/user/forkgraph/internal/graph"
	"github.com/user/forkgraph/internal/ingest"
	"github.com/user/forkgraph/internal/process"
	"github.com/user/forkgraph/internal/types"
)

// stubAgent writes a shell script that stands in for the claude binary.
func stubAgent(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude-stub")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const happyScript = `echo '{"type":"system","subtype":"init","session_id":"sess-run"}'
echo '{"type":"assistant","uuid":"a1","session_id":"sess-run","message":{"content":[{"type":"text","text":"hello"}]}}'
echo '{"type":"result","uuid":"r1","session_id":"sess-run","result":"done","total_cost_usd":0.5}'
`

func TestRunnerHappyPath(t *testing.T) {
	r := &Runner{Bin: stubAgent(t, happyScript), Pool: process.NewPool(2)}

	res, err := r.Run(context.Background(), Options{Message: "hi"}, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Error("run should succeed")
	}
	if res.SessionID != "sess-run" {
		t.Errorf("session id = %q", res.SessionID)
	}
	if len(res.Messages) != 1 || res.Messages[0] != "hello" {
		t.Errorf("messages = %v", res.Messages)
	}
	if res.Result != "done" {
		t.Errorf("result = %q", res.Result)
	}
	if res.CostUSD != 0.5 {
		t.Errorf("cost = %v", res.CostUSD)
	}
	if res.Response() != "hello" {
		t.Errorf("response = %q", res.Response())
	}
}

func TestRunnerNonZeroExitFails(t *testing.T) {
	r := &Runner{Bin: stubAgent(t, happyScript+"exit 3\n"), Pool: process.NewPool(1)}

	res, err := r.Run(context.Background(), Options{Message: "hi"}, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("non-zero exit must fail the run even with a result event")
	}
}

func TestRunnerNoResultEventFails(t *testing.T) {
	script := `echo '{"type":"assistant","uuid":"a1","session_id":"s1"}'` + "\n"
	r := &Runner{Bin: stubAgent(t, script), Pool: process.NewPool(1)}

	res, err := r.Run(context.Background(), Options{Message: "hi"}, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("a clean exit without a result event is not success")
	}
}

func TestRunnerCountsUnparsableLines(t *testing.T) {
	script := "echo 'not json'\n" + happyScript
	r := &Runner{Bin: stubAgent(t, script), Pool: process.NewPool(1)}

	res, err := r.Run(context.Background(), Options{Message: "hi"}, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Errors != 1 {
		t.Errorf("errors = %d, want 1", res.Errors)
	}
}

func TestRunnerMissingBinary(t *testing.T) {
	r := &Runner{Bin: "/nonexistent/claude", Pool: process.NewPool(1)}

	res, err := r.Run(context.Background(), Options{Message: "hi"}, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("spawn failure must come back as a failed result")
	}
}

func testService(t *testing.T, script string) (*Service, *graph.Store) {
	t.Helper()
	store, err := graph.Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	runner := &Runner{
		Bin:    stubAgent(t, script),
		Pool:   process.NewPool(2),
		Ingest: &ingest.Ingestor{Sink: store},
	}
	return NewService(store, runner), store
}

func TestServiceForkCompletes(t *testing.T) {
	svc, store := testService(t, happyScript)

	outcome, err := svc.Fork(context.Background(), ForkRequest{Message: "summarize the logs"})
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Run.Success {
		t.Error("fork run should succeed")
	}
	if outcome.Fork.Name == "" {
		t.Error("fork must get a generated name")
	}

	e, err := store.GetFork(outcome.Fork.ID)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil {
		t.Fatal("fork entity missing")
	}
	if e.GetString("status") != string(types.ForkCompleted) {
		t.Errorf("status = %q", e.GetString("status"))
	}
	if e.GetString("session_id") != "sess-run" {
		t.Errorf("session_id = %q", e.GetString("session_id"))
	}
	if e.GetString("completed_at") == "" {
		t.Error("completed_at must be stamped")
	}

	n, err := store.CountEventsForFork(outcome.Fork.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("stored events = %d, want 3", n)
	}
}

func TestServiceForkFailure(t *testing.T) {
	svc, store := testService(t, "exit 1\n")

	outcome, err := svc.Fork(context.Background(), ForkRequest{Message: "doomed"})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Run.Success {
		t.Error("run should fail")
	}

	e, err := store.GetFork(outcome.Fork.ID)
	if err != nil {
		t.Fatal(err)
	}
	if e.GetString("status") != string(types.ForkFailed) {
		t.Errorf("status = %q", e.GetString("status"))
	}
	// The upfront session id is kept when the stream never reported one.
	if e.GetString("session_id") == "" {
		t.Error("failed fork still gets its upfront session id")
	}
}

func TestServiceRequiresMessage(t *testing.T) {
	svc, _ := testService(t, happyScript)
	if _, err := svc.Fork(context.Background(), ForkRequest{}); err == nil {
		t.Error("empty message must be rejected")
	}
}

func TestReadClaudeSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "current-session.json")
	if err := os.WriteFile(path, []byte(`{"sessionId":"abc-123"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readClaudeSession(path); got != "abc-123" {
		t.Errorf("session = %q", got)
	}
	if got := readClaudeSession(filepath.Join(t.TempDir(), "missing.json")); got != "" {
		t.Errorf("missing file should yield empty, got %q", got)
	}
}
