// Package cli implements the aido and aifix commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clawinfra/aido/internal/cache"
	"github.com/clawinfra/aido/internal/config"
	"github.com/clawinfra/aido/internal/models"
	"github.com/clawinfra/aido/internal/orchestrator"
	"github.com/clawinfra/aido/internal/process"
	"github.com/clawinfra/aido/internal/tools"
)

// globalFlags are shared by both commands.
type globalFlags struct {
	configPath string
	model      string
	verbose    bool
}

func (f *globalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to the config file (default ~/.config/aido.json)")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "model name or alias (4o, 4omini, 4o-mini, o3mini, o4mini)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
}

// takeModelArgs removes --model=NAME words from args, which may appear
// anywhere in an instruction. The last one wins.
func takeModelArgs(args []string) (rest []string, model string) {
	rest = make([]string, 0, len(args))
	for _, a := range args {
		if name, ok := strings.CutPrefix(a, "--model="); ok {
			model = name
			continue
		}
		rest = append(rest, a)
	}
	return rest, model
}

// session bundles everything one invocation needs.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	model    string
	runner   *process.Runner
	registry *tools.Registry
	toolbox  *tools.Toolbox
	prompter *tools.TerminalPrompter
	cache    *cache.Store
}

// newSession loads the config and registers every tool. requireKey is
// false for commands that never reach the model endpoint.
func newSession(cmd *cobra.Command, flags *globalFlags, requireKey bool) (*session, error) {
	config.LoadDotEnv(".env", ".env.local")

	path := flags.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.SlogLevel()
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(cmd.ErrOrStderr(), level)

	if requireKey {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	model := cfg.DefaultModel
	if flags.model != "" {
		model = flags.model
	}

	s := &session{
		cfg:      cfg,
		logger:   logger,
		model:    config.ResolveModel(model),
		runner:   process.NewRunner(logger),
		registry: tools.NewRegistry(logger, tools.WithArgumentAliases(cfg.ArgumentAliases)),
		prompter: tools.NewTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
	}

	opts := tools.Options{
		Exec:         s.runner,
		Prompter:     s.prompter,
		ShellTimeout: cfg.ShellTimeout(),
		FetchTTL:     cfg.CacheTTL(),
		Logger:       logger,
	}
	if cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath)
		if err != nil {
			// fetch_url still works uncached.
			logger.Warn("fetch cache unavailable", "path", cfg.CachePath, "error", err)
		} else {
			s.cache = store
			opts.Cache = store
			if n, err := store.Purge(cmd.Context(), cfg.CacheTTL()); err != nil {
				logger.Warn("purge fetch cache", "error", err)
			} else if n > 0 {
				logger.Debug("purged expired fetch cache entries", "count", n)
			}
		}
	}

	s.toolbox, err = tools.NewToolbox(opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := s.toolbox.Register(s.registry); err != nil {
		s.Close()
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}

	if cfg.CustomToolsPath != "" {
		defs, err := tools.LoadCustomTools(cfg.CustomToolsPath)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := s.toolbox.RegisterCustom(s.registry, defs); err != nil {
			s.Close()
			return nil, fmt.Errorf("register custom tools: %w", err)
		}
	}

	logger.Debug("session ready", "model", s.model, "tools", s.registry.Len(), "config", cfg.Path())
	return s, nil
}

// ask runs one orchestrated session and returns the final answer.
func (s *session) ask(ctx context.Context, systemPrompt, instructions string) (string, error) {
	provider := models.NewOpenAIProvider(s.cfg, s.logger)
	o := orchestrator.New(provider, s.registry, orchestrator.NewConversationLog(), s.model, s.logger,
		orchestrator.WithSystemPrompt(systemPrompt),
		orchestrator.WithMaxRounds(s.cfg.MaxRounds),
	)
	return o.Run(ctx, instructions)
}

func (s *session) Close() {
	if s.prompter != nil {
		_ = s.prompter.Close()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("close fetch cache", "error", err)
		}
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
