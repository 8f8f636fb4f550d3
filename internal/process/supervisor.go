// internal/process/supervisor.go
package process

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultBufferSize is the output channel capacity when a Spec doesn't set one.
const DefaultBufferSize = 1000

// Spec describes one external process to run. Zero values mean: inherit the
// environment, no working directory change, no timeout.
type Spec struct {
	Program string
	Args    []string
	Dir     string

	// Env is merged over the inherited environment. EnvRemove names
	// variables to drop; EnvClear starts from an empty environment.
	Env       map[string]string
	EnvRemove []string
	EnvClear  bool

	// Timeout bounds output collection. Zero means wait forever.
	Timeout time.Duration

	CaptureStdout bool
	CaptureStderr bool

	// BufferSize is the output channel capacity. Readers block when it
	// fills; lines are never dropped.
	BufferSize int
}

// NewSpec returns a Spec with both streams captured and the default buffer.
func NewSpec(program string, args ...string) Spec {
	return Spec{
		Program:       program,
		Args:          args,
		CaptureStdout: true,
		CaptureStderr: true,
		BufferSize:    DefaultBufferSize,
	}
}

// Stream identifies which stream an Output came from.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
	StreamExit
)

// Output is one event from a running process: a line from either stream, or
// the final exit notification carrying the exit code.
type Output struct {
	Stream Stream
	Line   string
	Code   int
}

// Result is the final outcome of a process.
type Result struct {
	ExitCode int
	Stdout   []string
	Stderr   []string
	TimedOut bool
}

// Success reports a clean exit: zero status and no timeout kill.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// StdoutString joins captured stdout lines.
func (r *Result) StdoutString() string { return strings.Join(r.Stdout, "\n") }

// StderrString joins captured stderr lines.
func (r *Result) StderrString() string { return strings.Join(r.Stderr, "\n") }

// Handle is a running process. Output yields lines as they arrive (order is
// preserved within a stream but not across the two streams), followed by one
// StreamExit event, after which the channel closes. Either consume Output
// yourself or call Wait, not both.
type Handle struct {
	Output <-chan Output

	spec Spec
	cmd  *exec.Cmd
}

// Start spawns the process and begins streaming its output. Spawn failures
// (missing executable, permission denied) are returned immediately.
func Start(spec Spec) (*Handle, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	cmd.Env = buildEnv(spec)

	var stdout, stderr *bufio.Scanner
	if spec.CaptureStdout {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stdout = bufio.NewScanner(pipe)
		stdout.Buffer(make([]byte, 64*1024), 4*1024*1024)
	}
	if spec.CaptureStderr {
		pipe, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		stderr = bufio.NewScanner(pipe)
		stderr.Buffer(make([]byte, 64*1024), 4*1024*1024)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", spec.Program, err)
	}

	size := spec.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	out := make(chan Output, size)

	var wg sync.WaitGroup
	reader := func(scanner *bufio.Scanner, stream Stream) {
		defer wg.Done()
		for scanner.Scan() {
			out <- Output{Stream: stream, Line: scanner.Text()}
		}
	}
	if stdout != nil {
		wg.Add(1)
		go reader(stdout, StreamStdout)
	}
	if stderr != nil {
		wg.Add(1)
		go reader(stderr, StreamStderr)
	}

	go func() {
		wg.Wait()
		// Wait must come after the readers drain the pipes.
		_ = cmd.Wait()
		out <- Output{Stream: StreamExit, Code: cmd.ProcessState.ExitCode()}
		close(out)
	}()

	return &Handle{Output: out, spec: spec, cmd: cmd}, nil
}

// Kill forcibly terminates the process. Readers then hit EOF and the Output
// channel closes normally.
func (h *Handle) Kill() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// Wait collects all output and the exit status, enforcing the spec's timeout.
// On timeout the process is killed, TimedOut is set, and lines that arrive
// after the deadline are discarded.
func (h *Handle) Wait() *Result {
	return h.collect(nil)
}

// collect drains the Output channel into a Result, invoking onOutput for each
// event seen before any timeout. The channel is always drained to completion
// so the reader goroutines can finish.
func (h *Handle) collect(onOutput func(Output)) *Result {
	res := &Result{}

	var deadline <-chan time.Time
	if h.spec.Timeout > 0 {
		timer := time.NewTimer(h.spec.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case o, ok := <-h.Output:
			if !ok {
				return res
			}
			switch o.Stream {
			case StreamStdout:
				res.Stdout = append(res.Stdout, o.Line)
			case StreamStderr:
				res.Stderr = append(res.Stderr, o.Line)
			case StreamExit:
				res.ExitCode = o.Code
			}
			if onOutput != nil {
				onOutput(o)
			}
		case <-deadline:
			res.TimedOut = true
			h.Kill()
			for o := range h.Output {
				if o.Stream == StreamExit {
					res.ExitCode = o.Code
				}
			}
			return res
		}
	}
}

// Run spawns the process and waits for it, collecting all output. The only
// error it returns is a spawn failure.
func Run(spec Spec) (*Result, error) {
	h, err := Start(spec)
	if err != nil {
		return nil, err
	}
	return h.Wait(), nil
}

// buildEnv resolves the spec's environment overlay against the parent
// environment.
func buildEnv(spec Spec) []string {
	var base []string
	if !spec.EnvClear {
		base = os.Environ()
	}

	removed := make(map[string]bool, len(spec.EnvRemove)+len(spec.Env))
	for _, key := range spec.EnvRemove {
		removed[key] = true
	}
	for key := range spec.Env {
		removed[key] = true
	}

	env := make([]string, 0, len(base)+len(spec.Env))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if removed[key] {
			continue
		}
		env = append(env, kv)
	}
	for key, value := range spec.Env {
		env = append(env, key+"="+value)
	}
	return env
}
