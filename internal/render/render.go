// Package render formats run messages, task lists and skill catalogs for
// the terminal.
package render

import (
	"os"

	"golang.org/x/term"

	"github.com/joss/elf/internal/domain"
)

// StatusIcon returns the icon for a task status.
func StatusIcon(status domain.TaskStatus) string {
	switch status {
	case domain.StatusComplete:
		return "✓"
	case domain.StatusRunning:
		return "▶"
	case domain.StatusIncomplete:
		return "○"
	default:
		return "•"
	}
}

// BoolIcon returns icon for boolean.
func BoolIcon(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}

// Truncate shortens a string to max runes.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
