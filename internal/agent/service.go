// internal/agent/service.go
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/forkgraph/internal/graph"
	"github.com/user/forkgraph/internal/names"
	"github.com/user/forkgraph/internal/types"
)

// ForkRequest describes one fork invocation.
type ForkRequest struct {
	// ParentSessionID is the session being forked or resumed; empty starts
	// a fresh session.
	ParentSessionID types.SessionID
	// ForkSession branches the parent instead of continuing it. Ignored
	// when ParentSessionID is empty.
	ForkSession bool
	// Message is the task for the fork.
	Message string
	// Options carries model, directories, prompts and limits. Session and
	// message fields are filled in by the service.
	Options Options
}

// ForkOutcome is the full record of one completed (or failed) fork.
type ForkOutcome struct {
	Fork *types.Fork
	Job  *types.Job
	Run  *RunResult
}

// Service orchestrates forks: it creates the fork and job entities, runs the
// agent, and records the terminal status. The store is not safe for
// concurrent writers, so a single mutex guards every store call.
type Service struct {
	Store  *graph.Store
	Runner *Runner

	mu sync.Mutex
}

// NewService wires a service around a store and runner and points the
// runner's ingestor at the store if it has none.
func NewService(store *graph.Store, runner *Runner) *Service {
	s := &Service{Store: store, Runner: runner}
	if runner.Ingest != nil && runner.Ingest.Sink == nil {
		runner.Ingest.Sink = store
	}
	return s
}

// Fork creates a fork, runs the agent to completion, and stamps the terminal
// status. The returned outcome is valid even when the run failed; the error
// return covers store failures and cancellation.
func (s *Service) Fork(ctx context.Context, req ForkRequest) (*ForkOutcome, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("fork requires a message")
	}

	fork := types.NewFork(types.NewForkID(), req.ParentSessionID)
	fork.Name = names.Generate().FullName
	job := types.NewJob(types.NewJobID(), fork.ID, req.Message)
	// Session id assigned upfront so the fork is addressable before the
	// agent emits its first event.
	sessionID := types.NewSessionID()

	s.mu.Lock()
	forkEntity, err := s.Store.CreateFork(fork)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("create fork: %w", err)
	}
	if _, err := s.Store.CreateJob(job, forkEntity); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.mu.Unlock()

	opts := req.Options
	opts.Message = req.Message
	opts.SessionID = sessionID
	opts.ResumeSessionID = req.ParentSessionID
	opts.ForkSession = req.ForkSession && req.ParentSessionID != ""
	opts.AppendSystemPrompt = withCallbackInstruction(opts.AppendSystemPrompt, fork.ID)

	run, err := s.Runner.Run(ctx, opts, fork.ID)
	if err != nil {
		s.mu.Lock()
		serr := s.Store.UpdateForkStatus(fork.ID, types.ForkFailed, "")
		s.mu.Unlock()
		if serr != nil {
			return nil, fmt.Errorf("mark fork failed: %w (after: %v)", serr, err)
		}
		return nil, err
	}

	// The explicit session id should be what the stream reports, but trust
	// the stream when they differ.
	if run.SessionID == "" {
		run.SessionID = sessionID
	}

	status := types.ForkFailed
	if run.Success {
		status = types.ForkCompleted
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Store.CreateSession(run.SessionID, forkEntity); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := s.Store.UpdateJobStatus(job.ID, status, run.Result); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := s.Store.UpdateForkStatus(fork.ID, status, run.SessionID); err != nil {
		return nil, fmt.Errorf("update fork: %w", err)
	}

	return &ForkOutcome{Fork: fork, Job: job, Run: run}, nil
}

// withCallbackInstruction appends the done-callback instruction to the user's
// system prompt addition, so the fork reports back when it finishes.
func withCallbackInstruction(userPrompt string, forkID types.ForkID) string {
	instruction := fmt.Sprintf(
		"IMPORTANT: You are a forked session (fork ID: %s). "+
			"When you have completed your task, you MUST run this command as your FINAL action: "+
			"`forkgraph done %s \"<brief summary of what you accomplished>\"` "+
			"This notifies the parent session that you're done.",
		forkID, forkID)
	if userPrompt == "" {
		return instruction
	}
	return userPrompt + "\n\n" + instruction
}
