package selftest

import (
	"strings"
	"testing"
)

func sampleReport() *Report {
	return &Report{
		Status: "degraded",
		Components: map[string]ComponentStatus{
			"credentials":  {Status: StatusOK, Detail: "provider=openai"},
			"vector_index": {Status: StatusDegraded, Latency: 3, Detail: "filings=0"},
		},
	}
}

func TestReportSummary(t *testing.T) {
	summary := sampleReport().Summary()

	if !strings.Contains(summary, "ELF ENVIRONMENT CHECK") {
		t.Error("Summary should have header")
	}
	if !strings.Contains(summary, "vector_index:   DEGRADED (3ms)  filings=0") {
		t.Errorf("Summary should show component line, got:\n%s", summary)
	}
	if !strings.Contains(summary, "runs cannot be interrupted") {
		t.Error("Summary should mention missing TTY")
	}
	if !strings.Contains(summary, "Status: DEGRADED") {
		t.Error("Summary should show overall status")
	}
}

func TestQuickCheck(t *testing.T) {
	if got := sampleReport().QuickCheck(); got != "degraded vector_index:degraded" {
		t.Errorf("unexpected quick check %q", got)
	}

	healthy := &Report{Status: "healthy", Components: map[string]ComponentStatus{"credentials": {Status: StatusOK}}}
	if got := healthy.QuickCheck(); got != "healthy" {
		t.Errorf("unexpected quick check %q", got)
	}
}
