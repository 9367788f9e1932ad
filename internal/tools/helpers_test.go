package tools

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/clawinfra/aido/internal/process"
)

type recordedRun struct {
	command string
	stdin   string
	timeout time.Duration
	cmd     *exec.Cmd
}

// fakeExec records runs instead of spawning processes.
type fakeExec struct {
	runs   []recordedRun
	err    error
	result *process.Result
	onRun  func(command string)
}

func (f *fakeExec) Run(_ context.Context, command, stdin string, timeout time.Duration, opts ...process.RunOption) (*process.Result, error) {
	cmd := exec.Command("true")
	rc := process.RunConfig{Cmd: cmd}
	for _, opt := range opts {
		opt(&rc)
	}
	f.runs = append(f.runs, recordedRun{command: command, stdin: stdin, timeout: timeout, cmd: cmd})
	if f.onRun != nil {
		f.onRun(command)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	code := 0
	return &process.Result{ExitCode: &code}, nil
}

// dispatch is like call but accepts any result type, for tools that return
// *process.Result on success.
func dispatch(t *testing.T, reg *Registry, name string, args map[string]any) any {
	t.Helper()
	res, err := reg.Dispatch(context.Background(), name, args)
	if err != nil {
		t.Fatalf("dispatch %s: %v", name, err)
	}
	return res
}
