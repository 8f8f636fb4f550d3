// internal/sweeper/sweeper.go

// Package sweeper periodically fails forks that have been running longer than
// a configured age. A fork whose process died without reporting back would
// otherwise stay "running" forever.
package sweeper

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/forkgraph/internal/graph"
	"github.com/user/forkgraph/internal/types"
)

// DefaultMaxAge is how long a fork may stay running before it is swept.
const DefaultMaxAge = 2 * time.Hour

// DefaultSchedule runs the sweep every ten minutes.
const DefaultSchedule = "*/10 * * * *"

// Sweeper marks stale running forks as failed on a cron schedule.
type Sweeper struct {
	store    *graph.Store
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron

	// mu serializes sweep writes against other store writers.
	mu sync.Locker
}

// New creates a sweeper over the store. mu must be the same lock the rest of
// the process uses to guard store writes; pass a no-op locker only when the
// store has no other writers. Zero maxAge and empty schedule take defaults.
func New(store *graph.Store, mu sync.Locker, maxAge time.Duration, schedule string) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		cron:     cron.New(),
		mu:       mu,
	}
}

// Start registers the sweep as a cron entry and starts the ticker.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		n, err := s.Sweep()
		if err != nil {
			slog.Error("sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("swept stale forks", "count", n)
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("sweeper started", "schedule", s.schedule, "max_age", s.maxAge)
	return nil
}

// Stop stops the cron ticker.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// Sweep fails every running fork older than maxAge and returns how many were
// swept.
func (s *Sweeper) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	forks, err := s.store.ListForks()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-s.maxAge)
	swept := 0
	for _, e := range forks {
		if e.GetString("status") != string(types.ForkRunning) {
			continue
		}
		created, err := time.Parse(time.RFC3339Nano, e.GetString("created_at"))
		if err != nil || created.After(cutoff) {
			continue
		}
		forkID := types.ForkID(e.GetString("fork_id"))
		if err := s.store.UpdateForkStatus(forkID, types.ForkFailed, ""); err != nil {
			slog.Warn("failed to sweep fork", "fork_id", forkID, "error", err)
			continue
		}
		slog.Info("fork marked failed by sweeper", "fork_id", forkID, "created_at", created)
		swept++
	}
	return swept, nil
}
