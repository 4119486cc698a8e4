package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsGlobal(t *testing.T) {
	m1 := Global()
	m2 := Global()

	if m1 != m2 {
		t.Error("Global() should return same instance")
	}
}

func TestRecordExecution(t *testing.T) {
	m := New()

	m.RecordExecution("filing_search", OutcomeSuccess, 120*time.Millisecond)
	m.RecordExecution("filing_search", OutcomeError, 30*time.Millisecond)
	m.RecordExecution("text_completion", OutcomeCancelled, 5*time.Millisecond)

	if m.Executions.Load() != 3 {
		t.Errorf("expected 3 executions, got %d", m.Executions.Load())
	}
	if m.Errors.Load() != 1 {
		t.Errorf("expected 1 error, got %d", m.Errors.Load())
	}
	if m.Cancelled.Load() != 1 {
		t.Errorf("expected 1 cancellation, got %d", m.Cancelled.Load())
	}
	if m.LastDurationMs.Load() != 5 {
		t.Errorf("expected last duration 5, got %d", m.LastDurationMs.Load())
	}
	if n := m.SkillCount("filing_search", OutcomeSuccess); n != 1 {
		t.Errorf("expected 1 filing_search success, got %d", n)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordExecution("filing_search", OutcomeSuccess, time.Second)

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"elf_uptime_seconds",
		"elf_skill_executions_total 1",
		"elf_skill_errors_total 0",
		"elf_last_execution_duration_ms 1000",
		`elf_skill_outcomes_total{skill="filing_search",outcome="success"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}
