// Package process runs shell commands as child processes and captures
// their output streams under a wall-clock timeout.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	readChunkSize     = 8192
	defaultDrainGrace = 100 * time.Millisecond
)

// Result holds the outcome of a single Run call. It is never modified
// after Run returns.
type Result struct {
	// ExitCode is set only when the process ended on its own.
	ExitCode *int `json:"exit_code"`
	// Signal describes how the platform terminated a process that did not
	// exit on its own (e.g. "killed").
	Signal   string        `json:"signal,omitempty"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Combined string        `json:"combined_output"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"-"`
}

// MarshalJSON renders Duration as seconds with millisecond precision.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		Duration float64 `json:"duration"`
	}{plain(r), r.Duration.Seconds()})
}

// RunConfig is what a RunOption may change before the child starts.
type RunConfig struct {
	Cmd *exec.Cmd
	// Echo, when set, receives stdout and stderr chunks as they arrive.
	Echo io.Writer
}

// RunOption customises a run.
type RunOption func(*RunConfig)

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) RunOption {
	return func(rc *RunConfig) {
		if rc.Cmd.Env == nil {
			rc.Cmd.Env = os.Environ()
		}
		rc.Cmd.Env = append(rc.Cmd.Env, env...)
	}
}

// WithStdin replaces the stdin payload with r, e.g. to let the child read
// the caller's terminal.
func WithStdin(r io.Reader) RunOption {
	return func(rc *RunConfig) { rc.Cmd.Stdin = r }
}

// WithDir sets the working directory of the child.
func WithDir(dir string) RunOption {
	return func(rc *RunConfig) { rc.Cmd.Dir = dir }
}

// WithEcho copies output to w while the child runs. The Result still
// holds everything.
func WithEcho(w io.Writer) RunOption {
	return func(rc *RunConfig) { rc.Echo = w }
}

// Runner spawns shell commands. A Runner holds no per-run state and may be
// reused for any number of sequential or concurrent runs.
type Runner struct {
	logger     *slog.Logger
	shell      []string
	drainGrace time.Duration
}

// NewRunner creates a runner that executes commands through the platform
// shell.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		logger:     logger.With("component", "process_runner"),
		shell:      defaultShell(),
		drainGrace: defaultDrainGrace,
	}
}

type streamID int

const (
	streamStdout streamID = iota
	streamStderr
)

type chunk struct {
	from streamID
	data []byte
}

type capture struct {
	stdout, stderr, combined bytes.Buffer
}

func (c *capture) add(ch chunk) {
	if ch.from == streamStdout {
		c.stdout.Write(ch.data)
	} else {
		c.stderr.Write(ch.data)
	}
	c.combined.Write(ch.data)
}

// Run executes command with stdin fed to the child and closed, then
// collects stdout and stderr until the process exits or timeout elapses.
// A timeout <= 0 disables the limit. On timeout (or ctx cancellation) the
// whole process group is killed and TimedOut is set; output captured up to
// that point is kept.
//
// Run returns an error only when the process cannot be started, or when
// ctx was cancelled (in which case the partial Result is returned too).
func (r *Runner) Run(ctx context.Context, command, stdin string, timeout time.Duration, opts ...RunOption) (*Result, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	defer stdoutR.Close()
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutW.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	defer stderrR.Close()

	args := append(append([]string{}, r.shell[1:]...), command)
	cmd := exec.Command(r.shell[0], args...)
	// exec copies the payload into the child's stdin pipe and closes it,
	// so the child sees EOF once everything has been written.
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcessGroup(cmd)
	rc := RunConfig{Cmd: cmd}
	for _, opt := range opts {
		opt(&rc)
	}

	r.logger.Debug("starting process", "command", command, "stdin_bytes", len(stdin), "timeout", timeout)

	start := time.Now()
	startErr := cmd.Start()
	// The child owns its copies of the write ends now.
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		return nil, fmt.Errorf("start process: %w", startErr)
	}

	chunks := make(chan chunk, 16)
	var pumps errgroup.Group
	pumps.Go(func() error { return pump(stdoutR, streamStdout, chunks) })
	pumps.Go(func() error { return pump(stderrR, streamStderr, chunks) })
	go func() {
		if err := pumps.Wait(); err != nil {
			r.logger.Debug("output pump stopped", "error", err)
		}
		close(chunks)
	}()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var (
		out       capture
		waitErr   error
		reaped    bool
		timedOut  bool
		cancelErr error
	)
	live := chunks
loop:
	for {
		select {
		case c, ok := <-live:
			if !ok {
				live = nil
				continue
			}
			out.add(c)
			echo(rc.Echo, c)
		case waitErr = <-exited:
			reaped = true
			break loop
		case <-timer:
			timedOut = true
			break loop
		case <-ctx.Done():
			timedOut = true
			cancelErr = ctx.Err()
			break loop
		}
	}
	duration := time.Since(start).Round(time.Millisecond)

	if !reaped {
		if err := killProcessGroup(cmd); err != nil {
			r.logger.Warn("kill process", "pid", cmd.Process.Pid, "error", err)
		}
		r.logger.Debug("process killed", "command", command, "elapsed", duration)
		waitErr = <-exited
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		r.logger.Debug("process wait", "error", waitErr)
	}

	// Final drain: whatever is still buffered in the pipes, bounded so that
	// a lingering grandchild holding a pipe open cannot stall us. Pipes
	// without deadline support (Windows) rely on the backstop timer; their
	// pumps are left to finish in the background.
	deadline := time.Now().Add(r.drainGrace)
	_ = stdoutR.SetReadDeadline(deadline)
	_ = stderrR.SetReadDeadline(deadline)
	backstop := time.NewTimer(2 * r.drainGrace)
	defer backstop.Stop()
drain:
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				break drain
			}
			out.add(c)
			echo(rc.Echo, c)
		case <-backstop.C:
			r.logger.Debug("output still open after drain grace", "command", command)
			go func() {
				for range chunks {
				}
			}()
			break drain
		}
	}

	res := &Result{
		Stdout:   out.stdout.String(),
		Stderr:   out.stderr.String(),
		Combined: out.combined.String(),
		TimedOut: timedOut,
		Duration: duration,
	}
	if ps := cmd.ProcessState; ps != nil {
		if ps.Exited() {
			code := ps.ExitCode()
			res.ExitCode = &code
		} else {
			res.Signal = strings.TrimPrefix(ps.String(), "signal: ")
		}
	}

	r.logger.Debug("process finished",
		"command", command,
		"timed_out", res.TimedOut,
		"stdout_bytes", len(res.Stdout),
		"stderr_bytes", len(res.Stderr),
		"duration", res.Duration,
	)

	if cancelErr != nil {
		return res, fmt.Errorf("process cancelled: %w", cancelErr)
	}
	return res, nil
}

func echo(w io.Writer, c chunk) {
	if w != nil {
		_, _ = w.Write(c.data)
	}
}

// pump copies r into out as chunks until EOF or the drain deadline.
func pump(r io.Reader, from streamID, out chan<- chunk) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- chunk{from: from, data: data}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}
