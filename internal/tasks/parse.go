package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joss/elf/internal/domain"
)

var (
	// ErrMalformedPlan reports a planning reply that is not a valid task list.
	ErrMalformedPlan = errors.New("malformed task list")
	// ErrMalformedReflection reports a reflection reply that is not a valid
	// [newTasks, insertAfterIds, updatedTasks] triple.
	ErrMalformedReflection = errors.New("malformed reflection")
)

// ParseError is a strict-schema failure at a model output boundary.
type ParseError struct {
	Stage  string // "plan" or "reflection"
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Stage, e.Reason)
}

func (e *ParseError) Unwrap() error {
	if e.Stage == stageReflection {
		return ErrMalformedReflection
	}
	return ErrMalformedPlan
}

const (
	stagePlan       = "plan"
	stageReflection = "reflection"
)

// wireTask is a task as a model writes it. Pointers tell absent fields from
// empty ones.
type wireTask struct {
	ID               *int               `json:"id"`
	Task             *string            `json:"task"`
	Skill            *string            `json:"skill"`
	Icon             *string            `json:"icon"`
	DependentTaskIDs *[]int             `json:"dependent_task_ids"`
	Status           *domain.TaskStatus `json:"status"`
	Parameters       *domain.Parameters `json:"parameters"`
}

func (w wireTask) task() domain.Task {
	t := domain.Task{DependentTaskIDs: []int{}, Status: domain.StatusIncomplete}
	if w.ID != nil {
		t.ID = *w.ID
	}
	if w.Task != nil {
		t.Task = strings.TrimSpace(*w.Task)
	}
	if w.Skill != nil {
		t.Skill = strings.TrimSpace(*w.Skill)
	}
	if w.Icon != nil {
		t.Icon = *w.Icon
	}
	if w.DependentTaskIDs != nil {
		t.DependentTaskIDs = append(t.DependentTaskIDs, *w.DependentTaskIDs...)
	}
	if w.Status != nil && *w.Status != "" {
		t.Status = *w.Status
	}
	t.Parameters = w.Parameters
	return t
}

// jsonBody strips a code fence and any prose around the outermost JSON
// array.
func jsonBody(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// ParsePlan decodes a planning reply into tasks. Every task needs a
// positive unique ID, a description and a skill known to the catalog; IDs
// must ascend and dependencies must point at earlier tasks of the plan.
func ParsePlan(raw string, known func(string) bool) ([]domain.Task, error) {
	fail := func(format string, args ...any) error {
		return &ParseError{Stage: stagePlan, Reason: fmt.Sprintf(format, args...), Raw: raw}
	}

	var wire []wireTask
	if err := json.Unmarshal([]byte(jsonBody(raw)), &wire); err != nil {
		return nil, fail("%v", err)
	}
	if len(wire) == 0 {
		return nil, fail("empty task list")
	}

	tasks := make([]domain.Task, 0, len(wire))
	seen := make(map[int]bool, len(wire))
	prev := 0
	for i, w := range wire {
		if w.ID == nil || w.Task == nil || w.Skill == nil {
			return nil, fail("task %d: id, task and skill are required", i)
		}
		t := w.task()
		switch {
		case t.ID <= 0:
			return nil, fail("task %d: id must be positive, got %d", i, t.ID)
		case seen[t.ID]:
			return nil, fail("duplicate task id %d", t.ID)
		case t.ID < prev:
			return nil, fail("task ids out of order: %d after %d", t.ID, prev)
		case t.Task == "":
			return nil, fail("task %d: empty description", t.ID)
		case known != nil && !known(t.Skill):
			return nil, fail("task %d: unknown skill %q", t.ID, t.Skill)
		case !t.Status.Valid():
			return nil, fail("task %d: unknown status %q", t.ID, t.Status)
		}
		for _, dep := range t.DependentTaskIDs {
			if dep >= t.ID || !seen[dep] {
				return nil, fail("task %d: dependency %d is not an earlier task", t.ID, dep)
			}
		}
		// A fresh plan has nothing executed yet.
		t.Status = domain.StatusIncomplete
		t.Output = ""
		seen[t.ID] = true
		prev = t.ID
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Update is a partial task: nil fields are left unchanged.
type Update struct {
	ID               int
	Task             *string
	Skill            *string
	Icon             *string
	DependentTaskIDs *[]int
	Status           *domain.TaskStatus
	Parameters       *domain.Parameters
}

func (w wireTask) update() Update {
	return Update{
		ID:               *w.ID,
		Task:             w.Task,
		Skill:            w.Skill,
		Icon:             w.Icon,
		DependentTaskIDs: w.DependentTaskIDs,
		Status:           w.Status,
		Parameters:       w.Parameters,
	}
}

// Reflection is a parsed [newTasks, insertAfterIds, updatedTasks] triple.
type Reflection struct {
	NewTasks    []domain.Task
	InsertAfter []int
	Updates     []Update
}

// Empty reports whether the reflection changes nothing.
func (r Reflection) Empty() bool {
	return len(r.NewTasks) == 0 && len(r.Updates) == 0
}

// ParseReflection decodes a reflection reply. The first two arrays must
// have the same length and every entry must carry an id; the semantic
// checks happen when the reflection is applied.
func ParseReflection(raw string) (Reflection, error) {
	fail := func(format string, args ...any) error {
		return &ParseError{Stage: stageReflection, Reason: fmt.Sprintf(format, args...), Raw: raw}
	}

	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(jsonBody(raw)), &parts); err != nil {
		return Reflection{}, fail("%v", err)
	}
	if len(parts) != 3 {
		return Reflection{}, fail("expected 3 arrays, got %d", len(parts))
	}

	var added, updated []wireTask
	var after []int
	if err := json.Unmarshal(parts[0], &added); err != nil {
		return Reflection{}, fail("new tasks: %v", err)
	}
	if err := json.Unmarshal(parts[1], &after); err != nil {
		return Reflection{}, fail("insert positions: %v", err)
	}
	if err := json.Unmarshal(parts[2], &updated); err != nil {
		return Reflection{}, fail("updated tasks: %v", err)
	}
	if len(added) != len(after) {
		return Reflection{}, fail("%d new tasks but %d insert positions", len(added), len(after))
	}

	r := Reflection{InsertAfter: after}
	for i, w := range added {
		if w.ID == nil || w.Task == nil || w.Skill == nil {
			return Reflection{}, fail("new task %d: id, task and skill are required", i)
		}
		r.NewTasks = append(r.NewTasks, w.task())
	}
	for i, w := range updated {
		if w.ID == nil {
			return Reflection{}, fail("updated task %d: id is required", i)
		}
		r.Updates = append(r.Updates, w.update())
	}
	return r, nil
}
