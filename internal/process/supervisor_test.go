// internal/process/supervisor_test.go
package process

import (
	"reflect"
	"testing"
	"time"
)

func TestRunEcho(t *testing.T) {
	res, err := Run(NewSpec("echo", "hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success() {
		t.Errorf("expected success, got exit %d timed_out %v", res.ExitCode, res.TimedOut)
	}
	if !reflect.DeepEqual(res.Stdout, []string{"hello world"}) {
		t.Errorf("stdout = %v", res.Stdout)
	}
	if len(res.Stderr) != 0 {
		t.Errorf("stderr = %v", res.Stderr)
	}
}

func TestRunWithEnv(t *testing.T) {
	spec := NewSpec("sh", "-c", "echo $MY_VAR")
	spec.Env = map[string]string{"MY_VAR": "test_value"}
	res, err := Run(spec)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Stdout, []string{"test_value"}) {
		t.Errorf("stdout = %v", res.Stdout)
	}
}

func TestRunEnvRemove(t *testing.T) {
	spec := NewSpec("sh", "-c", `echo "v=$REMOVED_VAR"`)
	spec.Env = map[string]string{"KEPT": "1"}
	spec.EnvRemove = []string{"REMOVED_VAR"}
	t.Setenv("REMOVED_VAR", "should-not-appear")

	res, err := Run(spec)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Stdout, []string{"v="}) {
		t.Errorf("stdout = %v", res.Stdout)
	}
}

func TestRunWorkingDir(t *testing.T) {
	dir := t.TempDir()
	spec := NewSpec("pwd")
	spec.Dir = dir
	res, err := Run(spec)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Stdout) != 1 {
		t.Fatalf("stdout = %v", res.Stdout)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	if _, err := Run(NewSpec("nonexistent_command_12345")); err == nil {
		t.Fatal("expected spawn error")
	}
}

func TestRunTimeout(t *testing.T) {
	spec := NewSpec("sleep", "10")
	spec.Timeout = 100 * time.Millisecond

	start := time.Now()
	res, err := Run(spec)
	if err != nil {
		t.Fatal(err)
	}
	if !res.TimedOut {
		t.Error("expected timed_out")
	}
	if res.Success() {
		t.Error("timed-out process must not be a success")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout did not kill the process promptly: %v", elapsed)
	}
}

func TestRunStderr(t *testing.T) {
	res, err := Run(NewSpec("sh", "-c", "echo error >&2"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success() {
		t.Error("expected success")
	}
	if len(res.Stdout) != 0 {
		t.Errorf("stdout = %v", res.Stdout)
	}
	if !reflect.DeepEqual(res.Stderr, []string{"error"}) {
		t.Errorf("stderr = %v", res.Stderr)
	}
}

func TestRunExitCode(t *testing.T) {
	res, err := Run(NewSpec("sh", "-c", "exit 42"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Success() {
		t.Error("expected failure")
	}
	if res.ExitCode != 42 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
}

func TestStartStreamsInOrder(t *testing.T) {
	h, err := Start(NewSpec("sh", "-c", "echo one; echo two; echo three"))
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	for o := range h.Output {
		if o.Stream == StreamStdout {
			lines = append(lines, o.Line)
		}
		if o.Stream == StreamExit && o.Code != 0 {
			t.Errorf("exit code = %d", o.Code)
		}
	}
	if !reflect.DeepEqual(lines, []string{"one", "two", "three"}) {
		t.Errorf("lines = %v", lines)
	}
}

func TestCaptureDisabled(t *testing.T) {
	spec := NewSpec("sh", "-c", "echo out; echo err >&2")
	spec.CaptureStdout = false
	res, err := Run(spec)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Stdout) != 0 {
		t.Errorf("stdout should not be captured: %v", res.Stdout)
	}
	if !reflect.DeepEqual(res.Stderr, []string{"err"}) {
		t.Errorf("stderr = %v", res.Stderr)
	}
}
