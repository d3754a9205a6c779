package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"kycflow/internal/domain"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func outcomeColor(status domain.OutcomeStatus) string {
	switch status {
	case domain.OutcomeAccepted:
		return ansiGreen
	case domain.OutcomeRejected:
		return ansiYellow
	case domain.OutcomeFailed:
		return ansiRed
	default:
		return ""
	}
}

func paint(text, color string, colorize bool) string {
	if !colorize || color == "" {
		return text
	}
	return color + text + ansiReset
}
