// internal/sweeper/sweeper_test.go
package sweeper

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/user/forkgraph/internal/graph"
	"github.com/user/forkgraph/internal/types"
)

func testStore(t *testing.T) *graph.Store {
	t.Helper()
	store, err := graph.Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createForkAt(t *testing.T, store *graph.Store, id types.ForkID, age time.Duration, status types.ForkStatus) {
	t.Helper()
	fork := types.NewFork(id, "")
	fork.CreatedAt = time.Now().UTC().Add(-age)
	if _, err := store.CreateFork(fork); err != nil {
		t.Fatal(err)
	}
	if status != types.ForkRunning {
		if err := store.UpdateForkStatus(id, status, ""); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSweepFailsStaleRunningForks(t *testing.T) {
	store := testStore(t)
	createForkAt(t, store, "stale", 3*time.Hour, types.ForkRunning)
	createForkAt(t, store, "fresh", time.Minute, types.ForkRunning)
	createForkAt(t, store, "done", 3*time.Hour, types.ForkCompleted)

	s := New(store, &sync.Mutex{}, 2*time.Hour, "")
	n, err := s.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}

	e, err := store.GetFork("stale")
	if err != nil {
		t.Fatal(err)
	}
	if e.GetString("status") != string(types.ForkFailed) {
		t.Errorf("stale status = %q", e.GetString("status"))
	}
	if e.GetString("completed_at") == "" {
		t.Error("swept fork must get completed_at")
	}

	for _, id := range []types.ForkID{"fresh"} {
		e, err := store.GetFork(id)
		if err != nil {
			t.Fatal(err)
		}
		if e.GetString("status") != string(types.ForkRunning) {
			t.Errorf("%s status = %q, want running", id, e.GetString("status"))
		}
	}

	e, err = store.GetFork("done")
	if err != nil {
		t.Fatal(err)
	}
	if e.GetString("status") != string(types.ForkCompleted) {
		t.Errorf("done status = %q", e.GetString("status"))
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	store := testStore(t)
	createForkAt(t, store, "stale", 3*time.Hour, types.ForkRunning)

	s := New(store, &sync.Mutex{}, time.Hour, "")
	if n, _ := s.Sweep(); n != 1 {
		t.Fatalf("first sweep = %d", n)
	}
	if n, _ := s.Sweep(); n != 0 {
		t.Errorf("second sweep = %d, want 0", n)
	}
}

func TestSweepEmptyStore(t *testing.T) {
	s := New(testStore(t), &sync.Mutex{}, 0, "")
	if n, err := s.Sweep(); err != nil || n != 0 {
		t.Errorf("sweep = %d %v", n, err)
	}
}
