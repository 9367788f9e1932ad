package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type printer struct {
	out, err io.Writer
	answer   lipgloss.Style
	errLabel lipgloss.Style
	heading  lipgloss.Style
}

func newPrinter(out, errOut io.Writer) *printer {
	r := lipgloss.NewRenderer(out)
	er := lipgloss.NewRenderer(errOut)
	return &printer{
		out:      out,
		err:      errOut,
		answer:   r.NewStyle(),
		errLabel: er.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		heading:  er.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
	}
}

// Answer writes the model's final answer to stdout.
func (p *printer) Answer(text string) {
	fmt.Fprintln(p.out, p.answer.Render(strings.TrimRight(text, "\n")))
}

// Error writes err to stderr with a highlighted label.
func (p *printer) Error(err error) {
	fmt.Fprintf(p.err, "%s %v\n", p.errLabel.Render("error:"), err)
}

// Status writes a progress line to stderr.
func (p *printer) Status(format string, args ...any) {
	fmt.Fprintln(p.err, p.heading.Render(fmt.Sprintf(format, args...)))
}
