// pkg/execute/helpers.go

package execute

import (
	"strings"
)

func buildCommandString(command string, args ...string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}

// ShellQuote renders argv as a single-quoted POSIX shell command line.
// The remote side runs commands through the login shell of the SSH user, so
// every argument is quoted before it crosses the wire.
func ShellQuote(command string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(command))
	for _, arg := range args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n\"'\\$`&|;<>()*?[]#~%{}") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
