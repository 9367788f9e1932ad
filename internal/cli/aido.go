package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// errUsage marks argument errors; the command has already printed usage.
var errUsage = errors.New("usage")

// NewAidoCmd builds the aido command: it joins its arguments into one
// instruction and runs a tool-calling session for it.
func NewAidoCmd(version string) *cobra.Command {
	var (
		flags      globalFlags
		listTools  bool
		storeKey   bool
		forgetKey  bool
		initConfig bool
		format     string
	)

	cmd := &cobra.Command{
		Use:           "aido [flags] <instructions...>",
		Short:         "Run natural-language instructions with model-driven tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  aido "create a hello world program in Go and run it"
  aido -m 4o list the ten largest files here`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case storeKey:
				return runStoreKey(cmd)
			case forgetKey:
				return runForgetKey(cmd)
			case initConfig:
				return runInitConfig(cmd, &flags)
			case listTools:
				return runListTools(cmd, &flags, format)
			}
			args, model := takeModelArgs(args)
			if model != "" {
				flags.model = model
			}
			instructions := strings.TrimSpace(strings.Join(args, " "))
			if instructions == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), `Usage: aido "your instructions here"`)
				return errUsage
			}
			return runAsk(cmd, &flags, aidoSystemPrompt, instructions)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&listTools, "list-tools", false, "print the tool descriptors and exit")
	cmd.Flags().BoolVar(&storeKey, "store-key", false, "read an API key from stdin and save it in the OS keyring")
	cmd.Flags().BoolVar(&forgetKey, "forget-key", false, "remove the API key from the OS keyring")
	cmd.Flags().BoolVar(&initConfig, "init-config", false, "write a config file with the default settings")
	cmd.Flags().StringVar(&format, "format", "json", "descriptor format for --list-tools (json or yaml)")
	// Everything after the first instruction word belongs to the instruction.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runAsk(cmd *cobra.Command, flags *globalFlags, systemPrompt, instructions string) error {
	s, err := newSession(cmd, flags, true)
	if err != nil {
		return err
	}
	defer s.Close()

	s.logger.Debug("starting session", "instructions", instructions)
	answer, err := s.ask(cmd.Context(), systemPrompt, instructions)
	if err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Answer(answer)
	return nil
}

func runListTools(cmd *cobra.Command, flags *globalFlags, format string) error {
	s, err := newSession(cmd, flags, false)
	if err != nil {
		return err
	}
	defer s.Close()
	return writeDescriptors(cmd.OutOrStdout(), s.registry.Descriptors(), format)
}

func writeDescriptors(w io.Writer, v any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

// Execute runs cmd with a context cancelled on shutdown signals and maps
// the outcome to a process exit code.
func Execute(cmd *cobra.Command, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 1
	case errors.Is(err, context.Canceled):
		newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Error(errors.New("interrupted"))
		return 130
	default:
		newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Error(err)
		return 1
	}
}
