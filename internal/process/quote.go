package process

import (
	"errors"
	"strings"
)

// ErrNullByte is returned when an argument cannot be passed to a shell.
var ErrNullByte = errors.New("argument contains a null byte")

// QuoteCommand joins args into a single command line for the platform
// shell, quoting every argument that is not made only of safe characters.
func QuoteCommand(args []string) (string, error) {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.ContainsRune(arg, 0) {
			return "", ErrNullByte
		}
		quoted = append(quoted, quoteArg(arg))
	}
	return strings.Join(quoted, " "), nil
}

const windowsSafe = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ.,-_+/:\\"

// quoteWindowsArg quotes arg for cmd.exe and the CommandLineToArgvW rules:
// inside double quotes cmd leaves & | < > ^ alone, and backslashes only
// need doubling when they precede a quote. %VAR% still expands.
func quoteWindowsArg(arg string) string {
	if arg != "" && strings.Trim(arg, windowsSafe) == "" {
		return arg
	}
	var b strings.Builder
	b.WriteByte('"')
	slashes := 0
	for _, r := range arg {
		switch r {
		case '\\':
			slashes++
			continue
		case '"':
			b.WriteString(strings.Repeat(`\`, 2*slashes+1))
		default:
			b.WriteString(strings.Repeat(`\`, slashes))
		}
		b.WriteRune(r)
		slashes = 0
	}
	b.WriteString(strings.Repeat(`\`, 2*slashes))
	b.WriteByte('"')
	return b.String()
}
