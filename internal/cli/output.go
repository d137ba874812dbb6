package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Output handles formatted output for the CLI, switching between
// human-readable colored text and machine-readable JSON off the
// persistent --json flag.
type Output struct {
	writer   io.Writer
	jsonMode bool
}

// NewOutput creates a new Output instance bound to cmd's --json flag.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{writer: cmd.OutOrStdout(), jsonMode: jsonMode}
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Printf prints a formatted message with no added color.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Println prints its arguments with a trailing newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Success prints a green confirmation message.
func (o *Output) Success(format string, args ...interface{}) {
	o.colored(color.FgGreen, format, args...)
}

// Error prints a red error message.
func (o *Output) Error(format string, args ...interface{}) {
	o.colored(color.FgRed, format, args...)
}

// Warning prints a yellow warning message.
func (o *Output) Warning(format string, args ...interface{}) {
	o.colored(color.FgYellow, format, args...)
}

// Info prints a cyan informational message.
func (o *Output) Info(format string, args ...interface{}) {
	o.colored(color.FgCyan, format, args...)
}

// Bold prints a message in bold.
func (o *Output) Bold(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(o.writer, color.New(color.Bold).Sprint(msg))
}

// Dim prints a faint message.
func (o *Output) Dim(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(o.writer, color.New(color.Faint).Sprint(msg))
}

// Bullish prints an up-structure line in green.
func (o *Output) Bullish(format string, args ...interface{}) {
	o.colored(color.FgGreen, format, args...)
}

// Bearish prints a down-structure line in red.
func (o *Output) Bearish(format string, args ...interface{}) {
	o.colored(color.FgRed, format, args...)
}

func (o *Output) colored(attr color.Attribute, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(o.writer, color.New(attr).Sprint(msg))
}
