package tools

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/clawinfra/aido/internal/process"
)

func (tb *Toolbox) execTools() []builtin {
	return []builtin{
		{
			spec: ToolSpec{
				Name:        "execute_shell_command",
				Description: "Execute a shell command with optional timeout and stdin support",
				Params: []Param{
					{Name: "command", Type: TypeString, Description: "The shell command to execute", Example: "ls -la | head -n 20", Required: true},
					{Name: "stdin", Type: TypeString, Description: "The standard input for the command", Example: "yes\n"},
					{Name: "timeout", Type: "float", Description: "Max execution time in seconds before the process is killed (0 for no timeout, default 200)", Example: "60"},
				},
			},
			handler: bind(tb.executeShellCommand),
		},
		{
			spec: ToolSpec{
				Name:        "execute_python_script",
				Description: "Execute a Python script",
				Params: []Param{
					{Name: "script", Type: TypeString, Description: "The Python script to execute", Example: "print(2 + 2)", Required: true},
					{Name: "stdin", Type: TypeString, Description: "The standard input for the script", Example: "42\n"},
				},
			},
			handler: bind(tb.scriptRunner("python3", "py_script_*.py")),
		},
		{
			spec: ToolSpec{
				Name:        "execute_php_script",
				Description: "Execute a PHP script",
				Params: []Param{
					{Name: "script", Type: TypeString, Description: "The PHP script to execute", Example: "<?php echo PHP_VERSION;", Required: true},
					{Name: "stdin", Type: TypeString, Description: "The standard input for the script", Example: "42\n", Required: true},
				},
			},
			handler: bind(tb.scriptRunner("php", "php_script_*.php")),
		},
	}
}

type shellArgs struct {
	Command string   `arg:"command"`
	Stdin   string   `arg:"stdin"`
	Timeout *float64 `arg:"timeout"`
}

func (tb *Toolbox) executeShellCommand(ctx context.Context, args shellArgs) (any, error) {
	timeout := tb.opts.ShellTimeout
	if args.Timeout != nil {
		timeout = time.Duration(*args.Timeout * float64(time.Second))
		if timeout <= 0 {
			timeout = unlimitedTimeout
		}
	}
	return tb.run(ctx, args.Command, args.Stdin, timeout)
}

type scriptArgs struct {
	Script string `arg:"script"`
	Stdin  string `arg:"stdin"`
}

func (tb *Toolbox) scriptRunner(interpreter, pattern string) func(context.Context, scriptArgs) (any, error) {
	return func(ctx context.Context, args scriptArgs) (any, error) {
		f, err := os.CreateTemp("", pattern)
		if err != nil {
			return errorResult("create temp script: %v", err), nil
		}
		defer os.Remove(f.Name())

		_, err = f.WriteString(args.Script)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errorResult("write temp script: %v", err), nil
		}

		command, err := process.QuoteCommand([]string{interpreter, f.Name()})
		if err != nil {
			return errorResult("%v", err), nil
		}
		return tb.run(ctx, command, args.Stdin, tb.opts.ShellTimeout)
	}
}

// run executes command in the tool cwd. Spawn failures are reported to the
// model; only cancellation of ctx aborts the session.
func (tb *Toolbox) run(ctx context.Context, command, stdin string, timeout time.Duration, opts ...process.RunOption) (any, error) {
	opts = append([]process.RunOption{process.WithDir(tb.Cwd())}, opts...)
	res, err := tb.opts.Exec.Run(ctx, command, stdin, timeout, opts...)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("run %q: %w", command, ctx.Err())
	}
	if err != nil {
		return errorResult("failed to start process %q: %v", command, err), nil
	}
	if res.TimedOut {
		tb.logger.Info("command timed out", "command", command, "timeout", timeout)
	}
	return res, nil
}
