package cli

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/clawinfra/aido/internal/process"
)

const aidoSystemPrompt = `You are "aido", an automated assistant for proactive AI-driven development tasks.

Core responsibilities:
- Interpret and execute user instructions given in natural language.
- Infer sensible defaults for minor ambiguities such as formatting, file layout and naming.
- Ask for clarification with the 'ask_user' tool only when a significant ambiguity remains.

Development tasks:
- Generate and edit code, create files, install packages and run the commands the task needs.
- Validate what you did and confirm completion to the user.
- Write files with the 'file_put_contents' tool.

Guidelines:
1. Execute the given instructions precisely.
2. Use the available tools to complete the task.
3. Call 'ask_user' for clarifications and wait for the answer; never ask questions in plain text.
4. If functionality or context is missing, describe what is missing and stop.
5. Update files only through 'file_put_contents'; do not print file contents in the answer.`

var aifixGuidelines = []string{
	"Fix the issue accurately based on the provided problem data.",
	"Use all available tools to complete the task.",
	"Save any changes to disk and re-run the command until it executes successfully.",
	"If the task requires any clarification or confirmation, immediately call the ask_user tool with the question and wait for the response. Do not include the question as plain text in your answer. If further clarification is needed, abort the process.",
	"If additional functionality or context is needed, describe what is missing and abort the process.",
	"When a file update is required, call the file_put_contents tool with the correct file path and updated content. Do not output the updated file content in plain text.",
}

// issueReport is the failing command as shown to the model.
type issueReport struct {
	Command  string `yaml:"command"`
	ExitCode *int   `yaml:"exit_code"`
	Signal   string `yaml:"signal,omitempty"`
	TimedOut bool   `yaml:"timed_out"`
	Stdout   string `yaml:"stdout"`
	Stderr   string `yaml:"stderr"`
}

// buildFixQuery turns the outcome of a failing command into aifix's
// instructions for the model.
func buildFixQuery(command string, res *process.Result) (string, error) {
	details, err := yaml.Marshal(issueReport{
		Command:  command,
		ExitCode: res.ExitCode,
		Signal:   res.Signal,
		TimedOut: res.TimedOut,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	})
	if err != nil {
		return "", fmt.Errorf("encode issue details: %w", err)
	}

	var b strings.Builder
	b.WriteString("Please analyze and resolve the following issue using all available tools if needed:\n\n")
	b.WriteString("Issue Details:\n")
	b.Write(details)
	b.WriteString("\nAdditional Guidelines:\n")
	for i, g := range aifixGuidelines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, g)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
