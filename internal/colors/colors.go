// Package colors provides terminal color support for relsync output, with
// automatic fallback for non-color terminals.
package colors

import (
	"os"
	"strings"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"

	colorGray    = "\033[90m"
	brightRed    = "\033[91m"
	brightGreen  = "\033[92m"
	brightYellow = "\033[93m"
	brightCyan   = "\033[96m"
)

var colorEnabled = shouldUseColor()

// shouldUseColor determines if the terminal supports colors
func shouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}

	term := strings.ToLower(os.Getenv("TERM"))
	if term == "dumb" || term == "" {
		return false
	}
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return true
}

// SetColorEnabled allows manual control of color output
func SetColorEnabled(enabled bool) {
	colorEnabled = enabled
}

func colorize(text, color string) string {
	if !colorEnabled {
		return text
	}
	return color + text + colorReset
}

// Success colors text for completed operations.
func Success(text string) string {
	return colorize(text, brightGreen)
}

// Error colors text for failures.
func Error(text string) string {
	return colorize(text, brightRed)
}

// Warning colors text for recoverable problems.
func Warning(text string) string {
	return colorize(text, brightYellow)
}

// Info colors incidental values in command output.
func Info(text string) string {
	return colorize(text, brightCyan)
}

func Gray(text string) string {
	return colorize(text, colorGray)
}

func Bold(text string) string {
	if !colorEnabled {
		return text
	}
	return colorBold + text + colorReset
}
