package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/crudkit/internal/crud/response"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level       ErrorLevel
	Context     string
	Problem     string
	Suggestions []string
	Hints       []string
	NoColor     bool
}

// FormatError creates a standardized error message
//
// Example output:
//
//	✗ FAILED_TO_FIND: failed to find entity users.User
//
//	   → Show every user: crudkit users list
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	header := color.New(color.FgRed, color.Bold)
	symbol := "✗"
	if opts.Level == ErrorLevelWarning {
		header = color.New(color.FgYellow, color.Bold)
		symbol = "!"
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		header.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.Hints) > 0 {
		b.WriteString("\n")
		for _, hint := range opts.Hints {
			cyan.Fprintf(&b, "   → %s\n", hint)
		}
	}
	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// hints per response error code
var codeHints = map[string][]string{
	"failed_to_find": {"Show every user: crudkit users list"},
	"hook_failed":    {"Check the input items: crudkit users import --help"},
	"request_failed": {"Show the command usage: crudkit users --help"},
}

// FormatResponse renders every error of a failed response. Canceled
// responses render as a warning.
func FormatResponse(resp response.Response, noColor bool) string {
	if resp.Canceled {
		return FormatError(ErrorOptions{
			Level:   ErrorLevelWarning,
			Problem: "request canceled",
			NoColor: noColor,
		})
	}

	var b strings.Builder
	for _, e := range resp.Errors {
		b.WriteString(FormatError(ErrorOptions{
			Context: e.Code,
			Problem: e.Message,
			Hints:   codeHints[e.Code],
			NoColor: noColor,
		}))
	}
	return b.String()
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}
