// internal/process/pool.go
package process

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// PoolID identifies a process within one Pool instance.
type PoolID uint64

// LifecycleKind tags a pool lifecycle event.
type LifecycleKind int

const (
	LifecycleStarted LifecycleKind = iota
	LifecycleOutput
	LifecycleCompleted
)

// LifecycleEvent is emitted on the pool-wide event channel: Started when a
// process gets a slot, Output for every captured line, Completed when it
// finishes. A process whose slot acquisition is cancelled never starts, so
// its Completed event arrives alone, with Success false.
type LifecycleEvent struct {
	Kind    LifecycleKind
	ID      PoolID
	Output  Output
	Success bool
}

// Proc is a handle to a process spawned through a Pool.
type Proc struct {
	ID PoolID

	// Output mirrors the process's captured lines. It must be consumed
	// (or drained) or the runner blocks; SpawnAll drains it for you.
	Output <-chan Output

	result <-chan *Result
}

// Wait blocks until the process completes and returns its result.
func (p *Proc) Wait(ctx context.Context) (*Result, error) {
	select {
	case res := <-p.result:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pool runs processes under a strict concurrency ceiling. Spawns beyond the
// ceiling queue on the semaphore until a slot frees. The semaphore is the
// only shared mutable state.
type Pool struct {
	sem    *semaphore.Weighted
	nextID atomic.Uint64
	events chan LifecycleEvent
}

// NewPool creates a pool allowing up to maxConcurrent simultaneous processes.
func NewPool(maxConcurrent int64) *Pool {
	return &Pool{sem: semaphore.NewWeighted(maxConcurrent)}
}

// NewPoolWithEvents additionally returns a channel carrying lifecycle events
// for every process the pool runs. A slow consumer applies backpressure once
// the buffer fills.
func NewPoolWithEvents(maxConcurrent int64) (*Pool, <-chan LifecycleEvent) {
	p := NewPool(maxConcurrent)
	p.events = make(chan LifecycleEvent, DefaultBufferSize)
	return p, p.events
}

func (p *Pool) emit(ev LifecycleEvent) {
	if p.events != nil {
		p.events <- ev
	}
}

// Spawn registers the spec and returns a handle immediately. The process
// itself starts once a concurrency slot is acquired. A spawn failure does not
// surface as an error: the handle resolves with a synthetic failed result
// carrying the error text as stderr, so one bad spec never aborts a batch.
func (p *Pool) Spawn(ctx context.Context, spec Spec) *Proc {
	id := PoolID(p.nextID.Add(1) - 1)

	size := spec.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	output := make(chan Output, size)
	result := make(chan *Result, 1)

	go p.run(ctx, id, spec, output, result)

	return &Proc{ID: id, Output: output, result: result}
}

func (p *Pool) run(ctx context.Context, id PoolID, spec Spec, output chan<- Output, result chan<- *Result) {
	defer close(output)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.emit(LifecycleEvent{Kind: LifecycleCompleted, ID: id})
		result <- &Result{ExitCode: 1, Stderr: []string{err.Error()}}
		return
	}
	defer p.sem.Release(1)

	p.emit(LifecycleEvent{Kind: LifecycleStarted, ID: id})

	h, err := Start(spec)
	if err != nil {
		p.emit(LifecycleEvent{Kind: LifecycleCompleted, ID: id})
		result <- &Result{ExitCode: 1, Stderr: []string{err.Error()}}
		return
	}

	res := h.collect(func(o Output) {
		output <- o
		p.emit(LifecycleEvent{Kind: LifecycleOutput, ID: id, Output: o})
	})

	p.emit(LifecycleEvent{Kind: LifecycleCompleted, ID: id, Success: res.Success()})
	result <- res
}

// SpawnAll spawns every spec and blocks until all complete, returning results
// keyed by pool id. Per-process output is drained internally.
func (p *Pool) SpawnAll(ctx context.Context, specs []Spec) (map[PoolID]*Result, error) {
	procs := make([]*Proc, 0, len(specs))
	for _, spec := range specs {
		proc := p.Spawn(ctx, spec)
		go func(out <-chan Output) {
			for range out {
			}
		}(proc.Output)
		procs = append(procs, proc)
	}

	results := make(map[PoolID]*Result, len(procs))
	for _, proc := range procs {
		res, err := proc.Wait(ctx)
		if err != nil {
			return nil, err
		}
		results[proc.ID] = res
	}
	return results, nil
}
