package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// isTTY reports whether w is a terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// colorEnabled reports whether finding levels should be colorized: only on
// a real terminal, and never when NO_COLOR is set.
func colorEnabled(w io.Writer) bool {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	return isTTY(w)
}

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

// colorizeLevel wraps level ("error", "warn", ...) in an ANSI color code
// when enabled is true, otherwise returns it unchanged.
func colorizeLevel(level string, enabled bool) string {
	if !enabled {
		return level
	}
	switch level {
	case "error":
		return fmt.Sprintf("%s%s%s", ansiRed, level, ansiReset)
	case "warn", "warning":
		return fmt.Sprintf("%s%s%s", ansiYellow, level, ansiReset)
	default:
		return level
	}
}
