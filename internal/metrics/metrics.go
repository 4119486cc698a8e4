// Package metrics provides a Prometheus-compatible text endpoint for skill
// execution counters.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome classifies a finished skill execution.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Metrics holds skill execution counters.
type Metrics struct {
	Executions atomic.Int64
	Errors     atomic.Int64
	Cancelled  atomic.Int64

	// LastDurationMs is the duration of the last finished execution.
	LastDurationMs atomic.Int64

	mu      sync.Mutex
	bySkill map[string]map[Outcome]int64

	startTime time.Time
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// New returns an empty metrics set.
func New() *Metrics {
	return &Metrics{bySkill: make(map[string]map[Outcome]int64), startTime: time.Now()}
}

// Global returns the process-wide metrics instance.
func Global() *Metrics {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// RecordExecution records one finished execution of skill.
func (m *Metrics) RecordExecution(skill string, outcome Outcome, d time.Duration) {
	m.Executions.Add(1)
	switch outcome {
	case OutcomeError:
		m.Errors.Add(1)
	case OutcomeCancelled:
		m.Cancelled.Add(1)
	}
	m.LastDurationMs.Store(d.Milliseconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bySkill[skill] == nil {
		m.bySkill[skill] = make(map[Outcome]int64)
	}
	m.bySkill[skill][outcome]++
}

// SkillCount returns how many executions of skill ended with outcome.
func (m *Metrics) SkillCount(skill string, outcome Outcome) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bySkill[skill][outcome]
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(w, "# HELP elf_uptime_seconds Time since the server started\n")
		fmt.Fprintf(w, "# TYPE elf_uptime_seconds gauge\n")
		fmt.Fprintf(w, "elf_uptime_seconds %.2f\n\n", time.Since(m.startTime).Seconds())

		fmt.Fprintf(w, "# HELP elf_skill_executions_total Total skill executions\n")
		fmt.Fprintf(w, "# TYPE elf_skill_executions_total counter\n")
		fmt.Fprintf(w, "elf_skill_executions_total %d\n\n", m.Executions.Load())

		fmt.Fprintf(w, "# HELP elf_skill_errors_total Total failed skill executions\n")
		fmt.Fprintf(w, "# TYPE elf_skill_errors_total counter\n")
		fmt.Fprintf(w, "elf_skill_errors_total %d\n\n", m.Errors.Load())

		fmt.Fprintf(w, "# HELP elf_skill_cancelled_total Total cancelled skill executions\n")
		fmt.Fprintf(w, "# TYPE elf_skill_cancelled_total counter\n")
		fmt.Fprintf(w, "elf_skill_cancelled_total %d\n\n", m.Cancelled.Load())

		fmt.Fprintf(w, "# HELP elf_last_execution_duration_ms Last skill execution duration\n")
		fmt.Fprintf(w, "# TYPE elf_last_execution_duration_ms gauge\n")
		fmt.Fprintf(w, "elf_last_execution_duration_ms %d\n\n", m.LastDurationMs.Load())

		fmt.Fprintf(w, "# HELP elf_skill_outcomes_total Skill executions by skill and outcome\n")
		fmt.Fprintf(w, "# TYPE elf_skill_outcomes_total counter\n")
		m.mu.Lock()
		names := make([]string, 0, len(m.bySkill))
		for name := range m.bySkill {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, o := range []Outcome{OutcomeSuccess, OutcomeError, OutcomeCancelled} {
				if n := m.bySkill[name][o]; n > 0 {
					fmt.Fprintf(w, "elf_skill_outcomes_total{skill=%q,outcome=%q} %d\n", name, o, n)
				}
			}
		}
		m.mu.Unlock()
	}
}
