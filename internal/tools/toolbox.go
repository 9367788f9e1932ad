package tools

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/clawinfra/aido/internal/process"
)

// Options configures the built-in tools.
type Options struct {
	// Cwd is the initial working directory. Defaults to the process cwd.
	Cwd string

	Files    FileOps
	Exec     ExecOps
	Cache    Cache
	Prompter Prompter
	HTTP     *http.Client

	// ShellTimeout applies when the model gives no timeout. Default: 200s.
	ShellTimeout time.Duration
	// FetchTTL is how long fetched pages are served from Cache. Default: 1h.
	FetchTTL time.Duration
	// FetchPageSize is the page size of fetch_url in bytes. Default: 1 MiB.
	FetchPageSize int

	Logger *slog.Logger
}

const (
	defaultShellTimeout  = 200 * time.Second
	unlimitedTimeout     = time.Hour
	defaultFetchTTL      = time.Hour
	defaultFetchPageSize = 1 << 20
	fetchTimeout         = 30 * time.Second
	maxRedirects         = 10
	maxPageSize          = 100
)

func (o Options) defaults() (Options, error) {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return o, fmt.Errorf("get working directory: %w", err)
		}
		o.Cwd = wd
	}
	if o.Files == nil {
		o.Files = LocalFileOps{}
	}
	if o.Exec == nil {
		o.Exec = process.NewRunner(o.Logger)
	}
	if o.Prompter == nil {
		o.Prompter = NewTerminalPrompter(os.Stdin, os.Stdout)
	}
	if o.HTTP == nil {
		o.HTTP = newFetchClient()
	}
	if o.ShellTimeout <= 0 {
		o.ShellTimeout = defaultShellTimeout
	}
	if o.FetchTTL <= 0 {
		o.FetchTTL = defaultFetchTTL
	}
	if o.FetchPageSize <= 0 {
		o.FetchPageSize = defaultFetchPageSize
	}
	return o, nil
}

// Toolbox owns the state shared by the built-in tools, chiefly the working
// directory that cd changes and every relative path resolves against.
type Toolbox struct {
	opts   Options
	logger *slog.Logger

	mu  sync.Mutex
	cwd string
}

// NewToolbox creates a toolbox, filling unset options with defaults.
func NewToolbox(opts Options) (*Toolbox, error) {
	opts, err := opts.defaults()
	if err != nil {
		return nil, err
	}
	return &Toolbox{
		opts:   opts,
		logger: opts.Logger.With("component", "toolbox"),
		cwd:    opts.Cwd,
	}, nil
}

// Cwd returns the current working directory of the tools.
func (tb *Toolbox) Cwd() string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.cwd
}

func (tb *Toolbox) setCwd(dir string) {
	tb.mu.Lock()
	tb.cwd = dir
	tb.mu.Unlock()
}

// resolvePath cleans up a model-supplied path: surrounding whitespace is
// dropped, a leading ~ expands to the home directory and relative paths
// are joined to the tool cwd.
func (tb *Toolbox) resolvePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(tb.Cwd(), path)
}

func newFetchClient() *http.Client {
	return &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

func userAgent() string {
	return "aido-bot; bot; go/" + runtime.Version()
}

type builtin struct {
	spec    ToolSpec
	handler Handler
}

// Register adds every built-in tool to reg.
func (tb *Toolbox) Register(reg *Registry) error {
	var all []builtin
	all = append(all, tb.fileTools()...)
	all = append(all, tb.execTools()...)
	all = append(all, tb.fetchTool(), tb.askUserTool())

	for _, b := range all {
		if err := reg.Register(b.spec, b.handler); err != nil {
			return err
		}
	}
	tb.logger.Debug("registered builtin tools", "count", len(all))
	return nil
}
