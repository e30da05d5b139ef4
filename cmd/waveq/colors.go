package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiBlue   = "\x1b[34m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// colorStatus wraps a status word in an ANSI color when writing to a
// terminal.
func colorStatus(writer io.Writer, status string) string {
	if !shouldColorize(writer) {
		return status
	}
	switch status {
	case "completed":
		return ansiGreen + status + ansiReset
	case "processing", "submitted":
		return ansiBlue + status + ansiReset
	case "cancelled":
		return ansiYellow + status + ansiReset
	case "failed":
		return ansiRed + status + ansiReset
	default:
		return status
	}
}
