package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joss/elf/internal/completion"
	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/examples"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/runctl"
)

// DefaultMaxTasks bounds how many executions one run performs.
const DefaultMaxTasks = 20

// RunStatus is how a run ended.
type RunStatus string

const (
	RunComplete RunStatus = "complete"
	RunStopped  RunStatus = "stopped"
	RunNoPlan   RunStatus = "no-plan"
	RunBlocked  RunStatus = "blocked"
	RunLimited  RunStatus = "limited"
)

// RunOptions configure one orchestration run.
type RunOptions struct {
	Objective string
	Language  string
	Catalog   string
	Prior     *examples.Example
	Reflect   bool
	MaxTasks  int

	// OnChange receives the task list after every mutation.
	OnChange func(tasks []domain.Task)
}

// RunResult is the final state of a run.
type RunResult struct {
	Status  RunStatus
	Tasks   []domain.Task
	Outputs domain.TaskOutputs
	// Output is the output of the last task executed.
	Output   string
	Executed int
}

// Run plans the objective and executes tasks in dependency order until none
// is left, the run is stopped, or the execution budget is spent. Failed
// skills produce an empty output and the run goes on; only a failed plan
// ends the run early. Cancellation is reported through Status, never as an
// error.
func (r *Registry) Run(ctx context.Context, opts RunOptions, sink domain.MessageSink) (RunResult, error) {
	log := r.log.WithRun(logging.GetRunID(ctx))
	start := time.Now()
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = DefaultMaxTasks
	}
	if opts.Catalog == "" && r.skills != nil {
		opts.Catalog = r.skills.CatalogDescription()
	}
	changed := func() {
		if opts.OnChange != nil {
			opts.OnChange(r.graph.Tasks())
		}
	}

	sink.Emit(domain.NewMessage(domain.MessageObjective, 0, "Objective", opts.Objective, "🎯"))

	result := RunResult{Outputs: domain.TaskOutputs{}}
	err := r.CreateTaskList(ctx, PlanInput{
		Objective: opts.Objective,
		Catalog:   opts.Catalog,
		Language:  opts.Language,
		Prior:     opts.Prior,
	}, sink)
	if err != nil {
		if completion.IsCancelled(err) || !runctl.Active(ctx) {
			result.Status = RunStopped
			return result, nil
		}
		result.Status = RunNoPlan
		sink.Emit(domain.NewMessage(domain.MessageFailed, 0, "No task list was created", err.Error(), "⚠️"))
		return result, err
	}
	sink.Emit(domain.NewMessage(domain.MessageTaskList, 0, "Task list", tasksJSON(r.graph.Tasks()), planIcon))
	changed()

	for {
		if !runctl.Active(ctx) {
			result.Status = RunStopped
			break
		}
		task, ok := r.graph.Next()
		if !ok {
			result.Status = RunComplete
			if r.graph.Pending() > 0 {
				result.Status = RunBlocked
				log.Warn("run_blocked", map[string]interface{}{"pending": r.graph.Pending()}, nil)
			}
			break
		}
		if result.Executed >= opts.MaxTasks {
			result.Status = RunLimited
			log.Warn("run_limit_reached", map[string]interface{}{"max_tasks": opts.MaxTasks}, nil)
			break
		}

		r.graph.setStatus(task.ID, domain.StatusRunning)
		changed()
		sink.Emit(domain.NewMessage(domain.MessageNextTask, task.ID, fmt.Sprintf("Next task: %d", task.ID), task.Task, task.Icon))

		out, err := r.ExecuteTask(ctx, task, result.Outputs, opts.Objective, opts.Language, sink)
		if !runctl.Active(ctx) {
			r.graph.setStatus(task.ID, domain.StatusIncomplete)
			changed()
			result.Status = RunStopped
			break
		}
		if err != nil {
			log.Warn("task_failed", map[string]interface{}{"task": task.ID, "skill": task.Skill}, err)
			out.Output = ""
		}

		r.graph.complete(task.ID, out.Output, out.Parameters)
		result.Outputs[task.ID] = domain.TaskOutput{Completed: true, Output: out.Output}
		result.Output = out.Output
		result.Executed++
		changed()

		m := domain.NewMessage(domain.MessageTaskOutput, task.ID, fmt.Sprintf("Task %d output", task.ID), out.Output, task.Icon)
		m.Open = true
		sink.Emit(m)

		if opts.Reflect && r.graph.Pending() > 0 {
			r.reflect(ctx, opts, out.Output, sink)
			changed()
		}
	}

	result.Tasks = r.graph.Tasks()
	if result.Status != RunStopped {
		sink.Emit(domain.NewMessage(domain.MessageDone, 0, "Done", result.Output, "✅"))
	}
	log.TimedEvent("run_finished", start, map[string]interface{}{
		"status":   string(result.Status),
		"executed": result.Executed,
		"tasks":    len(result.Tasks),
	})
	return result, nil
}

// reflect runs one reflection pass. Failures keep the graph as it was.
func (r *Registry) reflect(ctx context.Context, opts RunOptions, output string, sink domain.MessageSink) {
	refl, err := r.ReflectOnOutput(ctx, opts.Objective, output, opts.Catalog)
	if err != nil {
		if !completion.IsCancelled(err) {
			r.log.WithRun(logging.GetRunID(ctx)).Warn("reflection_failed", nil, err)
			sink.Emit(domain.NewMessage(domain.MessageReflection, 0, "Reflection skipped", err.Error(), "🤔"))
		}
		return
	}
	if !runctl.Active(ctx) || refl.Empty() {
		return
	}
	report := r.ApplyReflection(refl)
	sink.Emit(domain.NewMessage(domain.MessageReflection, 0, "Reflection", report.Summary(), "🤔"))
	sink.Emit(domain.NewMessage(domain.MessageTaskList, 0, "Task list", tasksJSON(r.graph.Tasks()), planIcon))
}

func tasksJSON(tasks []domain.Task) string {
	data, _ := json.MarshalIndent(tasks, "", "  ")
	return "```json\n" + string(data) + "\n```"
}
