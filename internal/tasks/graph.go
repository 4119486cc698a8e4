// Package tasks owns the task graph of one run: plan generation, dependency
// ordered execution and reflection-driven rewrites.
package tasks

import (
	"fmt"

	"github.com/joss/elf/internal/domain"
)

// Graph is an ordered arena of tasks addressed by ID. Order is insertion
// order, which for a parsed plan equals ascending ID order. A Graph is not
// safe for concurrent mutation; one run owns one Graph.
type Graph struct {
	tasks []domain.Task
	index map[int]int
}

// NewGraph builds a graph from tasks in the given order.
func NewGraph(tasks []domain.Task) *Graph {
	g := &Graph{tasks: make([]domain.Task, 0, len(tasks))}
	for _, t := range tasks {
		g.tasks = append(g.tasks, t.Clone())
	}
	g.reindex()
	return g
}

func (g *Graph) reindex() {
	g.index = make(map[int]int, len(g.tasks))
	for i, t := range g.tasks {
		g.index[t.ID] = i
	}
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Tasks returns a deep copy of the tasks in graph order.
func (g *Graph) Tasks() []domain.Task {
	out := make([]domain.Task, len(g.tasks))
	for i, t := range g.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Get returns a copy of the task with the given ID.
func (g *Graph) Get(id int) (domain.Task, bool) {
	i, ok := g.index[id]
	if !ok {
		return domain.Task{}, false
	}
	return g.tasks[i].Clone(), true
}

func (g *Graph) Has(id int) bool {
	_, ok := g.index[id]
	return ok
}

// Clone returns an independent copy.
func (g *Graph) Clone() *Graph {
	return NewGraph(g.tasks)
}

// MaxID returns the largest task ID, or 0 for an empty graph.
func (g *Graph) MaxID() int {
	max := 0
	for _, t := range g.tasks {
		if t.ID > max {
			max = t.ID
		}
	}
	return max
}

// InsertAfter places t immediately after the task with ID afterID, or at
// the end when no such task exists. The caller enforces ID uniqueness.
func (g *Graph) InsertAfter(t domain.Task, afterID int) {
	t = t.Clone()
	pos, ok := g.index[afterID]
	if !ok {
		g.tasks = append(g.tasks, t)
	} else {
		g.tasks = append(g.tasks, domain.Task{})
		copy(g.tasks[pos+2:], g.tasks[pos+1:])
		g.tasks[pos+1] = t
	}
	g.reindex()
}

// Add inserts t after afterID like InsertAfter, refusing a task whose ID is
// taken or not positive or whose dependencies do not point at earlier tasks.
func (g *Graph) Add(t domain.Task, afterID int) error {
	if t.ID <= 0 || g.Has(t.ID) {
		return fmt.Errorf("task id %d is taken or invalid", t.ID)
	}
	for _, dep := range t.DependentTaskIDs {
		if dep >= t.ID || !g.Has(dep) {
			return fmt.Errorf("task %d: dependency %d is not an earlier task", t.ID, dep)
		}
	}
	g.InsertAfter(t, afterID)
	return nil
}

func (g *Graph) setStatus(id int, status domain.TaskStatus) {
	if i, ok := g.index[id]; ok {
		g.tasks[i].Status = status
	}
}

// complete records a finished execution. Non-empty parameters replace the
// cached ones.
func (g *Graph) complete(id int, output string, params *domain.Parameters) {
	i, ok := g.index[id]
	if !ok {
		return
	}
	t := &g.tasks[i]
	t.Status = domain.StatusComplete
	t.Output = output
	if !params.IsZero() {
		p := *params
		p.ReportingPeriods = append([]int(nil), params.ReportingPeriods...)
		t.Parameters = &p
	}
}

// Eligible reports whether every dependency of t is complete.
func (g *Graph) Eligible(t domain.Task) bool {
	for _, dep := range t.DependentTaskIDs {
		i, ok := g.index[dep]
		if !ok || g.tasks[i].Status != domain.StatusComplete {
			return false
		}
	}
	return true
}

// Next returns the first incomplete task, in graph order, whose
// dependencies are all complete.
func (g *Graph) Next() (domain.Task, bool) {
	for _, t := range g.tasks {
		if t.Status == domain.StatusIncomplete && g.Eligible(t) {
			return t.Clone(), true
		}
	}
	return domain.Task{}, false
}

// Pending counts tasks that are not complete.
func (g *Graph) Pending() int {
	n := 0
	for _, t := range g.tasks {
		if t.Status != domain.StatusComplete {
			n++
		}
	}
	return n
}
