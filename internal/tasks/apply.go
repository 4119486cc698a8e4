package tasks

import (
	"fmt"
	"strings"

	"github.com/joss/elf/internal/domain"
)

// ApplyReport describes what a reflection changed and what it clamped.
type ApplyReport struct {
	Added    []int
	Updated  []int
	Rejected []string
}

func (r *ApplyReport) reject(format string, args ...any) {
	r.Rejected = append(r.Rejected, fmt.Sprintf(format, args...))
}

// Summary renders the report for the message log.
func (r ApplyReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Added tasks: %v\nUpdated tasks: %v\n", r.Added, r.Updated)
	for _, reason := range r.Rejected {
		fmt.Fprintf(&b, "- ignored: %s\n", reason)
	}
	return b.String()
}

// Apply merges a reflection into a copy of g and returns the copy. Output
// that breaks a graph invariant is clamped rather than trusted:
//   - a new task with an unknown skill or no description is dropped
//   - a new task whose ID is taken or not positive gets MaxID+1, and later
//     new tasks of the same batch follow the renumbering in their
//     dependencies and insert positions
//   - dependencies that are missing or not smaller than the task's ID are
//     dropped
//   - new tasks start incomplete
//   - an insert position that names no task appends
//   - updates only address tasks of g, and never change status
//
// g itself is never modified.
func Apply(g *Graph, r Reflection, known func(string) bool) (*Graph, ApplyReport) {
	next := g.Clone()
	var report ApplyReport
	renumbered := make(map[int]int)

	for i, t := range r.NewTasks {
		if t.Task == "" {
			report.reject("new task %d has no description", t.ID)
			continue
		}
		if known != nil && !known(t.Skill) {
			report.reject("new task %d uses unknown skill %q", t.ID, t.Skill)
			continue
		}
		orig := t.ID
		if t.ID <= 0 || next.Has(t.ID) {
			id := next.MaxID() + 1
			report.reject("new task id %d reassigned to %d", t.ID, id)
			t.ID = id
		}
		deps := make([]int, len(t.DependentTaskIDs))
		for j, dep := range t.DependentTaskIDs {
			deps[j] = renumber(renumbered, dep)
		}
		t.DependentTaskIDs = clampDeps(next, t.ID, deps, &report)
		t.Status = domain.StatusIncomplete
		t.Output = ""

		after := renumber(renumbered, r.InsertAfter[i])
		if !next.Has(after) {
			report.reject("insert position %d not found, task %d appended", after, t.ID)
		}
		if err := next.Add(t, after); err != nil {
			report.reject("%v", err)
			continue
		}
		if orig > 0 && orig != t.ID {
			renumbered[orig] = t.ID
		}
		report.Added = append(report.Added, t.ID)
	}

	for _, u := range r.Updates {
		if !g.Has(u.ID) {
			report.reject("update for unknown task %d", u.ID)
			continue
		}
		cur := &next.tasks[next.index[u.ID]]
		if u.Task != nil && strings.TrimSpace(*u.Task) != "" {
			cur.Task = strings.TrimSpace(*u.Task)
		}
		if u.Skill != nil && *u.Skill != cur.Skill {
			if known != nil && !known(*u.Skill) {
				report.reject("task %d skill change to unknown %q", u.ID, *u.Skill)
			} else {
				cur.Skill = *u.Skill
			}
		}
		if u.Icon != nil {
			cur.Icon = *u.Icon
		}
		if u.DependentTaskIDs != nil {
			cur.DependentTaskIDs = clampDeps(next, cur.ID, *u.DependentTaskIDs, &report)
		}
		if u.Status != nil && *u.Status != cur.Status {
			report.reject("task %d status change %s -> %s", u.ID, cur.Status, *u.Status)
		}
		if !u.Parameters.IsZero() {
			cur.Parameters = u.Parameters
		}
		report.Updated = append(report.Updated, u.ID)
	}
	return next, report
}

func renumber(ids map[int]int, id int) int {
	if to, ok := ids[id]; ok {
		return to
	}
	return id
}

func clampDeps(g *Graph, id int, deps []int, report *ApplyReport) []int {
	out := make([]int, 0, len(deps))
	seen := make(map[int]bool, len(deps))
	for _, dep := range deps {
		if dep >= id || !g.Has(dep) {
			report.reject("task %d dependency %d dropped", id, dep)
			continue
		}
		if !seen[dep] {
			seen[dep] = true
			out = append(out, dep)
		}
	}
	return out
}
