package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/clawinfra/aido/internal/config"
)

// runStoreKey reads an API key and saves it in the OS keyring.
func runStoreKey(cmd *cobra.Command) error {
	key, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "OpenAI API key: ")
	if err != nil {
		return err
	}
	if err := config.StoreAPIKey(key); err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Status("API key stored in OS keyring.")
	return nil
}

// runForgetKey removes the API key saved by runStoreKey.
func runForgetKey(cmd *cobra.Command) error {
	if err := config.DeleteAPIKey(); err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Status("API key removed from OS keyring.")
	return nil
}

// runInitConfig writes a config file holding the defaults, without an API
// key. An existing file is left alone.
func runInitConfig(cmd *cobra.Command, flags *globalFlags) error {
	path := flags.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("check config: %w", err)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Status("wrote %s", path)
	return nil
}

// readSecret reads one line without echo on a terminal, or a plain line
// from any other reader.
func readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read api key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read api key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
