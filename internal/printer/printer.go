// Package printer writes operator-facing output: colored status lines on
// stdout and formatted errors on stderr.
package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)

	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

// SetOutput redirects stdout and stderr output. Passing nil restores the
// process streams.
func SetOutput(stdout, stderr io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	out, errOut = stdout, stderr
}

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	_, _ = green.Fprint(out, msg)
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}

// Warning prints a warning message in yellow with a warning prefix.
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠") {
		msg = "⚠  " + msg
	}
	_, _ = yellow.Fprint(out, msg)
}

// Step prints a step of a multi-step operation.
func Step(format string, a ...any) {
	_, _ = cyan.Fprintf(out, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a title, explanation and suggestions to stderr and returns an
// error carrying only the title, for cobra to propagate.
func Error(title, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details printed in key order.
func ErrorWithContext(title, explanation string, context map[string]string, suggestions []string) error {
	_, _ = red.Fprintf(errOut, "%s\n\n", title)
	if explanation != "" {
		_, _ = fmt.Fprintf(errOut, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		_, _ = fmt.Fprintln(errOut)
		for _, k := range keys {
			_, _ = fmt.Fprintf(errOut, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		_, _ = fmt.Fprintf(errOut, "\n%s\n", suggestions[0])
	default:
		_, _ = fmt.Fprintf(errOut, "\nEither:\n")
		for i, s := range suggestions {
			_, _ = fmt.Fprintf(errOut, "  %d. %s\n", i+1, s)
		}
	}
	return reportedError{title: title}
}

type reportedError struct{ title string }

func (e reportedError) Error() string { return e.title }

// Reported reports whether err was already printed by Error or ErrorWithContext.
func Reported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}
