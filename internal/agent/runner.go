// internal/agent/runner.go
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/forkgraph/internal/event"
	"github.com/user/forkgraph/internal/ingest"
	"github.com/user/forkgraph/internal/process"
	"github.com/user/forkgraph/internal/types"
)

// DefaultBin is the claude binary looked up on PATH when no explicit path is
// configured.
const DefaultBin = "claude"

// RunResult is what one claude invocation produced.
type RunResult struct {
	// SessionID is the first session id seen in the event stream (may be
	// empty if the run died before emitting one).
	SessionID types.SessionID
	// Messages holds the assistant text blocks in arrival order.
	Messages []string
	// Result is the final result text, if a result event arrived.
	Result string
	// Success means the process exited cleanly AND a result event was seen.
	Success bool
	// CostUSD is the total cost reported by the result event.
	CostUSD float64
	// Stored counts events persisted to the graph, Errors the lines that
	// failed to parse or store.
	Stored int
	Errors int
}

// Response joins the assistant messages, falling back to the result text when
// no assistant text arrived.
func (r *RunResult) Response() string {
	if len(r.Messages) == 0 {
		return r.Result
	}
	return strings.Join(r.Messages, "")
}

// Runner executes claude through a process pool and feeds the NDJSON stream
// into an event sink.
type Runner struct {
	Bin  string
	Pool *process.Pool
	// Ingest persists parsed events; nil means events are consumed but not
	// stored (dry runs).
	Ingest *ingest.Ingestor
}

// Run spawns claude with the given options and consumes its stream to
// completion. Spawn failures come back as a failed RunResult, not an error;
// the error return covers only context cancellation.
func (r *Runner) Run(ctx context.Context, opts Options, forkID types.ForkID) (*RunResult, error) {
	bin := r.Bin
	if bin == "" {
		bin = DefaultBin
	}

	spec := process.NewSpec(bin, opts.Args()...)
	spec.Dir = opts.WorkingDir
	spec.Timeout = opts.Timeout

	proc := r.Pool.Spawn(ctx, spec)
	slog.Info("agent started", "fork_id", forkID, "pool_id", proc.ID, "session_id", opts.SessionID)

	res := &RunResult{}
	sawResult := false
	for out := range proc.Output {
		switch out.Stream {
		case process.StreamStdout:
			rec := event.Parse(out.Line)
			if rec == nil {
				if out.Line != "" {
					res.Errors++
				}
				continue
			}
			if r.Ingest != nil {
				ir := r.Ingest.Record(rec, forkID)
				res.Stored += ir.Stored
				res.Errors += ir.Errors
			}
			if res.SessionID == "" && rec.SessionID != "" {
				res.SessionID = rec.SessionID
			}
			if rec.Type == event.TypeAssistant && rec.Text != "" {
				res.Messages = append(res.Messages, rec.Text)
			}
			if rec.IsResult() {
				sawResult = true
				if rec.Result != "" {
					res.Result = rec.Result
				}
				if rec.TotalCostUSD != 0 {
					res.CostUSD = rec.TotalCostUSD
				} else if rec.CostUSD != 0 {
					res.CostUSD = rec.CostUSD
				}
			}
		case process.StreamStderr:
			slog.Debug("agent stderr", "fork_id", forkID, "line", out.Line)
		}
	}

	procRes, err := proc.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for agent: %w", err)
	}
	res.Success = procRes.Success() && sawResult

	slog.Info("agent finished",
		"fork_id", forkID,
		"success", res.Success,
		"exit_code", procRes.ExitCode,
		"timed_out", procRes.TimedOut,
		"events_stored", res.Stored,
		"cost_usd", res.CostUSD)
	return res, nil
}
