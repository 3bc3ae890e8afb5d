package console

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	infoColor    = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	remoteColor  = color.New(color.FgMagenta)
)

// Console writes user-facing progress messages. Logs go through slog, not here.
type Console struct {
	out    io.Writer
	errOut io.Writer
}

// New creates a Console writing to out and errOut
func New(out, errOut io.Writer) *Console {
	return &Console{out: out, errOut: errOut}
}

// Std returns a Console bound to os.Stdout and os.Stderr
func Std() *Console {
	return New(os.Stdout, os.Stderr)
}

// Discard returns a Console that drops every message
func Discard() *Console {
	return New(io.Discard, io.Discard)
}

// Out returns the writer used for regular output
func (c *Console) Out() io.Writer { return c.out }

// Err returns the writer used for error output
func (c *Console) Err() io.Writer { return c.errOut }

func (c *Console) Info(format string, args ...any) {
	_, _ = infoColor.Fprintln(c.out, fmt.Sprintf(format, args...))
}

func (c *Console) Success(format string, args ...any) {
	_, _ = successColor.Fprintln(c.out, fmt.Sprintf(format, args...))
}

func (c *Console) Warn(format string, args ...any) {
	_, _ = warnColor.Fprintln(c.errOut, fmt.Sprintf(format, args...))
}

func (c *Console) Error(format string, args ...any) {
	_, _ = errorColor.Fprintln(c.errOut, fmt.Sprintf(format, args...))
}

// Remote echoes a command about to run on a remote host
func (c *Console) Remote(command string) {
	_, _ = remoteColor.Fprintf(c.out, "[remote]: %s\n", command)
}
