package selftest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"
)

// Report is the outcome of a health check run.
type Report struct {
	Status     string                     `json:"status"` // healthy, degraded, unhealthy
	HasTTY     bool                       `json:"has_tty"`
	Components map[string]ComponentStatus `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// DetectTTY records whether stdin is interactive, which decides whether
// Ctrl-C can stop a run.
func (r *Report) DetectTTY() {
	r.HasTTY = term.IsTerminal(int(os.Stdin.Fd()))
}

// IsHealthy returns true when no component reported an error.
func (r *Report) IsHealthy() bool {
	return r.Status != "unhealthy"
}

func (r *Report) names() []string {
	names := make([]string, 0, len(r.Components))
	for name := range r.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary returns a human-readable summary.
func (r *Report) Summary() string {
	var sb strings.Builder

	sb.WriteString("ELF ENVIRONMENT CHECK\n")
	sb.WriteString(strings.Repeat("─", 40) + "\n")

	ttyStatus := "No (runs cannot be interrupted interactively)"
	if r.HasTTY {
		ttyStatus = "Yes"
	}
	sb.WriteString(fmt.Sprintf("TTY:            %s\n", ttyStatus))

	for _, name := range r.names() {
		c := r.Components[name]
		line := fmt.Sprintf("%-15s %s", name+":", strings.ToUpper(c.Status))
		if c.Latency > 0 {
			line += fmt.Sprintf(" (%dms)", c.Latency)
		}
		if c.Detail != "" {
			line += "  " + c.Detail
		}
		sb.WriteString(line + "\n")
		if c.Error != "" {
			sb.WriteString(fmt.Sprintf("  ✗ %s\n", c.Error))
		}
	}

	sb.WriteString("\n")
	switch r.Status {
	case "healthy":
		sb.WriteString("Status: HEALTHY\n")
	case "degraded":
		sb.WriteString("Status: DEGRADED - some skills are unavailable\n")
	default:
		sb.WriteString("Status: UNHEALTHY - fix errors above\n")
	}
	return sb.String()
}

// QuickCheck returns a one-line status suitable for non-verbose output.
func (r *Report) QuickCheck() string {
	var failing []string
	for _, name := range r.names() {
		if c := r.Components[name]; c.Status != StatusOK {
			failing = append(failing, fmt.Sprintf("%s:%s", name, c.Status))
		}
	}
	if len(failing) == 0 {
		return "healthy"
	}
	return r.Status + " " + strings.Join(failing, " ")
}
