package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"golang.org/x/term"
)

const responsePrompt = "Your response: "

// TerminalPrompter asks questions on a terminal with line editing and
// history, and falls back to plain line reads when input is not a TTY.
type TerminalPrompter struct {
	in    io.Reader
	out   io.Writer
	style lipgloss.Style

	mu    sync.Mutex
	rl    *readline.Instance
	lines *bufio.Reader
}

// NewTerminalPrompter creates a prompter reading answers from in.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:    in,
		out:   out,
		style: lipgloss.NewRenderer(out).NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
	}
}

func (p *TerminalPrompter) isTerminal() bool {
	f, ok := p.in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Ask prints question and returns the trimmed answer.
func (p *TerminalPrompter) Ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, p.style.Render(question))

	if p.isTerminal() {
		if p.rl == nil {
			rl, err := readline.NewEx(&readline.Config{
				Prompt: responsePrompt,
				Stdin:  io.NopCloser(p.in),
				Stdout: p.out,
			})
			if err != nil {
				return "", fmt.Errorf("open readline: %w", err)
			}
			p.rl = rl
		}
		line, err := p.rl.Readline()
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	if p.lines == nil {
		p.lines = bufio.NewReader(p.in)
	}
	fmt.Fprint(p.out, responsePrompt)
	line, err := p.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read response: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Close releases the readline instance, if one was opened.
func (p *TerminalPrompter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rl == nil {
		return nil
	}
	return p.rl.Close()
}

func (tb *Toolbox) askUserTool() builtin {
	return builtin{
		spec: ToolSpec{
			Name:        "ask_user",
			Description: "Ask the user a question and return their response",
			Params: []Param{
				{Name: "question", Type: TypeString, Description: "The question to ask the user", Example: "Which branch should I deploy?", Required: true},
			},
		},
		handler: bind(tb.askUser),
	}
}

type askArgs struct {
	Question string `arg:"question"`
}

func (tb *Toolbox) askUser(ctx context.Context, args askArgs) (any, error) {
	answer, err := tb.opts.Prompter.Ask(ctx, args.Question)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return errorResult("no response from user: %v", err), nil
	}
	return map[string]any{"response": answer}, nil
}
