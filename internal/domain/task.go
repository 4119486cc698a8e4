// Package domain defines the task, message and document records shared by
// the orchestration engine, the skills and the surfaces that render them.
package domain

import (
	"fmt"
	"strings"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusIncomplete TaskStatus = "incomplete"
	StatusRunning    TaskStatus = "running"
	StatusComplete   TaskStatus = "complete"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusIncomplete, StatusRunning, StatusComplete:
		return true
	}
	return false
}

// Parameters are the resolved inputs a skill reports back so a re-run can
// skip resolving them again.
type Parameters struct {
	Query            string `json:"query,omitempty" yaml:"query,omitempty"`
	Symbol           string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	ReportingPeriods []int  `json:"reportingPeriods,omitempty" yaml:"reportingPeriods,omitempty"`
}

// IsZero reports whether no parameter is set.
func (p *Parameters) IsZero() bool {
	return p == nil || (p.Query == "" && p.Symbol == "" && len(p.ReportingPeriods) == 0)
}

// Task is one unit of work bound to exactly one skill.
type Task struct {
	ID               int         `json:"id" yaml:"id"`
	Task             string      `json:"task" yaml:"task"`
	Skill            string      `json:"skill" yaml:"skill"`
	Icon             string      `json:"icon,omitempty" yaml:"icon,omitempty"`
	DependentTaskIDs []int       `json:"dependent_task_ids" yaml:"dependent_task_ids"`
	Status           TaskStatus  `json:"status" yaml:"status"`
	Parameters       *Parameters `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Output           string      `json:"output,omitempty" yaml:"output,omitempty"`
}

// Clone returns a deep copy.
func (t Task) Clone() Task {
	c := t
	c.DependentTaskIDs = append([]int(nil), t.DependentTaskIDs...)
	if c.DependentTaskIDs == nil {
		c.DependentTaskIDs = []int{}
	}
	if t.Parameters != nil {
		p := *t.Parameters
		p.ReportingPeriods = append([]int(nil), t.Parameters.ReportingPeriods...)
		c.Parameters = &p
	}
	return c
}

// TaskOutput is one entry of the append-only output ledger.
type TaskOutput struct {
	Completed bool   `json:"completed"`
	Output    string `json:"output,omitempty"`
}

// TaskOutputs maps task ID to its recorded output.
type TaskOutputs map[int]TaskOutput

// DependentText renders the outputs of deps as "Task <id> Output: <output>"
// lines in the order listed. Missing entries render an empty output.
func (o TaskOutputs) DependentText(deps []int) string {
	lines := make([]string, 0, len(deps))
	for _, id := range deps {
		lines = append(lines, fmt.Sprintf("Task %d Output: %s", id, o[id].Output))
	}
	return strings.Join(lines, "\n")
}
