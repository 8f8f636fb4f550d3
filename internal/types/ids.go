// internal/types/ids.go
package types

import "github.com/google/uuid"

type ForkID string
type JobID string
type SessionID string

func NewForkID() ForkID {
	return ForkID(uuid.New().String())
}

func NewJobID() JobID {
	return JobID(uuid.New().String())
}

// NewSessionID mints a session id up front so a child agent can be told which
// session to create rather than us discovering it from its output.
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}
