// internal/ingest/ingest.go
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/user/forkgraph/internal/event"
	"github.com/user/forkgraph/internal/graph"
	"github.com/user/forkgraph/internal/types"
)

// EventSink is where parsed records land. *graph.Store satisfies it.
type EventSink interface {
	StoreEvent(rec *event.Record, forkID types.ForkID) (graph.EntityID, error)
}

// Result counts the outcome of a batch. A batch is never aborted: malformed
// lines and storage failures are counted and skipped.
type Result struct {
	Stored int `json:"stored"`
	Errors int `json:"errors"`
}

// Ingestor feeds lines of agent output into an EventSink one at a time.
type Ingestor struct {
	Sink EventSink

	// OnStored, if set, is called after each successful store. The server
	// uses it to broadcast events to websocket subscribers.
	OnStored func(rec *event.Record, id graph.EntityID)
}

// Line parses and stores a single line. Blank lines are ignored (stored and
// errored both zero in the returned counts).
func (in *Ingestor) Line(line string, forkID types.ForkID) Result {
	rec := event.Parse(line)
	if rec == nil {
		if strings.TrimSpace(line) == "" {
			return Result{}
		}
		slog.Debug("skipping unparsable line", "fork_id", forkID)
		return Result{Errors: 1}
	}
	return in.Record(rec, forkID)
}

// Record stores an already-parsed record.
func (in *Ingestor) Record(rec *event.Record, forkID types.ForkID) Result {
	id, err := in.Sink.StoreEvent(rec, forkID)
	if err != nil {
		slog.Warn("store event failed", "fork_id", forkID, "uuid", rec.UUID, "error", err)
		return Result{Errors: 1}
	}
	if in.OnStored != nil {
		in.OnStored(rec, id)
	}
	return Result{Stored: 1}
}

// Lines ingests a batch, continuing past failures.
func (in *Ingestor) Lines(lines []string, forkID types.ForkID) Result {
	var res Result
	for _, line := range lines {
		r := in.Line(line, forkID)
		res.Stored += r.Stored
		res.Errors += r.Errors
	}
	return res
}

// Reader ingests newline-delimited events from r until EOF. The error return
// covers only read failures; per-line problems are counted in the Result.
func (in *Ingestor) Reader(r io.Reader, forkID types.ForkID) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lr := in.Line(scanner.Text(), forkID)
		res.Stored += lr.Stored
		res.Errors += lr.Errors
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read events: %w", err)
	}
	return res, nil
}
