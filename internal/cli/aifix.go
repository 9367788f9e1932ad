package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawinfra/aido/internal/process"
)

// NewAifixCmd builds the aifix command: it runs a failing command, then
// asks the model to fix whatever made it fail.
func NewAifixCmd(version string) *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:           "aifix [flags] <command> [args...]",
		Short:         "Run a failing command and let the model fix it",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       `  aifix go test ./...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "Usage: aifix failing thing")
				return errUsage
			}
			command, err := process.QuoteCommand(args)
			if err != nil {
				return err
			}

			s, err := newSession(cmd, &flags, true)
			if err != nil {
				return err
			}
			defer s.Close()

			p := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
			p.Status("running %s", command)
			res, err := s.runner.Run(cmd.Context(), command, "", 0,
				process.WithStdin(cmd.InOrStdin()),
				process.WithDir(s.toolbox.Cwd()),
				process.WithEcho(cmd.ErrOrStderr()),
			)
			if err != nil {
				return fmt.Errorf("run %s: %w", command, err)
			}
			if res.ExitCode != nil && *res.ExitCode == 0 {
				s.logger.Info("command succeeded, asking anyway", "command", command)
			}

			query, err := buildFixQuery(command, res)
			if err != nil {
				return err
			}
			s.logger.Debug("fix query", "query", query)

			answer, err := s.ask(cmd.Context(), "", query)
			if err != nil {
				return err
			}
			p.Answer(answer)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().SetInterspersed(false)
	return cmd
}
