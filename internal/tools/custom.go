package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/clawinfra/aido/internal/process"
)

// CustomTool is a user-defined tool backed by a shell command. Its
// arguments reach the command as AIDO_ARG_<NAME> environment variables.
type CustomTool struct {
	Name        string  `toml:"name"`
	Description string  `toml:"description"`
	Command     string  `toml:"command"`
	TimeoutSecs int     `toml:"timeout_secs"`
	Params      []Param `toml:"params"`
}

type customToolsFile struct {
	Tools []CustomTool `toml:"tools"`
}

// LoadCustomTools reads tool definitions from a TOML file. A missing file
// yields no tools.
func LoadCustomTools(path string) ([]CustomTool, error) {
	var file customToolsFile
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse custom tools %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse custom tools %s: unknown keys %v", path, undecoded)
	}
	for i, t := range file.Tools {
		if strings.TrimSpace(t.Command) == "" {
			return nil, fmt.Errorf("custom tool %d (%q): empty command", i, t.Name)
		}
	}
	return file.Tools, nil
}

// RegisterCustom registers user-defined tools. Registration stops at the
// first tool that fails, e.g. one that shadows a built-in.
func (tb *Toolbox) RegisterCustom(reg *Registry, defs []CustomTool) error {
	for _, def := range defs {
		spec := ToolSpec{Name: def.Name, Description: def.Description, Params: def.Params}
		if err := reg.Register(spec, tb.customHandler(def)); err != nil {
			return err
		}
	}
	if len(defs) > 0 {
		tb.logger.Debug("registered custom tools", "count", len(defs))
	}
	return nil
}

func (tb *Toolbox) customHandler(def CustomTool) Handler {
	timeout := tb.opts.ShellTimeout
	if def.TimeoutSecs > 0 {
		timeout = time.Duration(def.TimeoutSecs) * time.Second
	}
	return func(ctx context.Context, call Call) (any, error) {
		env := make([]string, 0, len(def.Params))
		for _, p := range def.Params {
			v, ok := call.Args[p.Name]
			if !ok {
				continue
			}
			env = append(env, argEnvName(p.Name)+"="+formatArg(v))
		}
		return tb.run(ctx, def.Command, "", timeout, process.WithEnv(env...))
	}
}

func argEnvName(name string) string {
	var b strings.Builder
	b.WriteString("AIDO_ARG_")
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func formatArg(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
