// internal/types/models.go
package types

import "time"

// ForkStatus is the lifecycle state of a fork. Running is the only
// non-terminal state; Completed and Failed are final.
type ForkStatus string

const (
	ForkRunning   ForkStatus = "running"
	ForkCompleted ForkStatus = "completed"
	ForkFailed    ForkStatus = "failed"
)

// Terminal reports whether the status is final.
func (s ForkStatus) Terminal() bool {
	return s == ForkCompleted || s == ForkFailed
}

// ParseForkStatus maps stored strings (including a few legacy spellings)
// back to a ForkStatus.
func ParseForkStatus(s string) (ForkStatus, bool) {
	switch s {
	case "running", "active":
		return ForkRunning, true
	case "completed", "complete", "done":
		return ForkCompleted, true
	case "failed", "error":
		return ForkFailed, true
	}
	return "", false
}

// Fork is a tracked child agent run descending from a parent session.
type Fork struct {
	ID              ForkID     `json:"id"`
	ParentSessionID SessionID  `json:"parent_session_id,omitempty"`
	SessionID       SessionID  `json:"session_id,omitempty"`
	Name            string     `json:"name,omitempty"`
	Status          ForkStatus `json:"status"`
	Read            bool       `json:"read"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// NewFork creates a running, unread fork.
func NewFork(id ForkID, parent SessionID) *Fork {
	return &Fork{
		ID:              id,
		ParentSessionID: parent,
		Status:          ForkRunning,
		CreatedAt:       time.Now().UTC(),
	}
}

// Job is one unit of work sent to a fork (the prompt plus its outcome).
type Job struct {
	ID          JobID      `json:"id"`
	ForkID      ForkID     `json:"fork_id"`
	Description string     `json:"description"`
	Status      ForkStatus `json:"status"`
	Output      string     `json:"output,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a running job attached to a fork.
func NewJob(id JobID, forkID ForkID, description string) *Job {
	return &Job{
		ID:          id,
		ForkID:      forkID,
		Description: description,
		Status:      ForkRunning,
		CreatedAt:   time.Now().UTC(),
	}
}
