package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joss/elf/internal/completion"
	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/examples"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/skills"
)

const (
	planIcon    = "📝"
	planTitle   = "Creating task list"
	streamFence = "```json\n"
)

// PlanInput is what plan generation needs.
type PlanInput struct {
	Objective string
	Catalog   string
	Language  string

	// Prior is a worked task list for the same objective. When nil the most
	// similar curated example is used.
	Prior *examples.Example
}

// Registry owns the task graph of one run.
type Registry struct {
	gateway  completion.Gateway
	model    string
	selector *examples.Selector
	skills   *skills.Registry
	executor skills.Executor
	graph    *Graph
	log      *logging.Logger
}

// NewRegistry wires a task registry. executor runs skills by name; skillset
// decides which skill names plans may use.
func NewRegistry(gateway completion.Gateway, model string, selector *examples.Selector, skillset *skills.Registry, executor skills.Executor) *Registry {
	return &Registry{
		gateway:  gateway,
		model:    model,
		selector: selector,
		skills:   skillset,
		executor: executor,
		graph:    NewGraph(nil),
		log:      logging.New("tasks"),
	}
}

// Graph returns the current graph. Callers must treat it as read-only.
func (r *Registry) Graph() *Graph {
	return r.graph
}

// Tasks returns a copy of the current task list.
func (r *Registry) Tasks() []domain.Task {
	return r.graph.Tasks()
}

// SetTasks replaces the graph, e.g. to resume a stored run.
func (r *Registry) SetTasks(tasks []domain.Task) {
	r.graph = NewGraph(tasks)
}

func (r *Registry) known(name string) bool {
	return r.skills == nil || r.skills.Has(name)
}

// CreateTaskList asks the model for a plan and replaces the graph with it.
// The planning reply streams into sink as it arrives. On any failure the
// graph is left empty and the error says why: completion.ErrCancelled, a
// gateway error, or a *ParseError.
func (r *Registry) CreateTaskList(ctx context.Context, in PlanInput, sink domain.MessageSink) error {
	log := r.log.WithRun(logging.GetRunID(ctx))
	start := time.Now()
	r.graph = NewGraph(nil)

	var guidance string
	if in.Prior != nil && len(in.Prior.Tasks) > 0 {
		guidance = priorGuidance(in.Prior)
	} else {
		ex, err := r.selector.MostRelevant(ctx, examples.KindObjective, in.Objective)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", completion.ErrCancelled, err)
			}
			return fmt.Errorf("select example: %w", err)
		}
		guidance = exampleGuidance(ex)
	}

	streamed := domain.NewMessage(domain.MessageTaskExecute, 0, planTitle, streamFence, planIcon)
	var buf strings.Builder
	buf.WriteString(streamFence)

	reply, err := r.gateway.Complete(ctx, completion.Request{
		System: systemPrompt,
		Prompt: planPrompt(in.Objective, in.Catalog, in.Language, guidance),
		Params: completion.Params{Model: r.model, Temperature: 0, MaxTokens: 1500, TopP: 1, Stream: true},
		OnToken: func(token string) {
			buf.WriteString(token)
			m := streamed
			m.Text = buf.String()
			sink.Emit(m)
		},
	})
	if err != nil {
		if completion.IsCancelled(err) {
			log.Info("plan_cancelled", nil)
		} else {
			log.Error("plan_failed", map[string]interface{}{"objective": in.Objective}, err)
		}
		return err
	}

	tasks, err := ParsePlan(reply, r.known)
	if err != nil {
		log.Warn("plan_malformed", map[string]interface{}{"reply": reply}, err)
		return err
	}
	r.graph = NewGraph(tasks)
	log.TimedEvent("plan_created", start, map[string]interface{}{"tasks": len(tasks)})
	return nil
}

// ExecuteTask runs one task through its skill with the outputs of its
// dependencies, joined as "Task <id> Output: <output>" lines.
func (r *Registry) ExecuteTask(ctx context.Context, task domain.Task, outputs domain.TaskOutputs, objective, language string, sink domain.MessageSink) (skills.Output, error) {
	return r.executor.Execute(ctx, task.Skill, skills.Input{
		Task:             task,
		DependentOutputs: outputs.DependentText(task.DependentTaskIDs),
		Objective:        objective,
		Language:         language,
		Sink:             sink,
	})
}

// ReflectOnOutput asks the model how the plan should change given the
// latest output. A malformed reply yields an empty Reflection and a
// *ParseError; the graph is not touched either way.
func (r *Registry) ReflectOnOutput(ctx context.Context, objective, output, catalog string) (Reflection, error) {
	reply, err := r.gateway.Complete(ctx, completion.Request{
		System: systemPrompt,
		Prompt: reflectionPrompt(objective, output, catalog, r.graph.Tasks()),
		Params: completion.Params{Model: r.model, Temperature: 0.7, MaxTokens: 1500, TopP: 1},
	})
	if err != nil {
		return Reflection{}, err
	}
	refl, err := ParseReflection(reply)
	if err != nil {
		r.log.WithRun(logging.GetRunID(ctx)).Warn("reflection_malformed", map[string]interface{}{"reply": reply}, err)
		return Reflection{}, err
	}
	return refl, nil
}

// ApplyReflection validates refl against the graph and swaps in the result.
func (r *Registry) ApplyReflection(refl Reflection) ApplyReport {
	next, report := Apply(r.graph, refl, r.known)
	r.graph = next
	if len(report.Rejected) > 0 {
		r.log.Warn("reflection_clamped", map[string]interface{}{"rejected": report.Rejected}, nil)
	}
	return report
}

// IsParseError reports whether err is a strict-schema parse failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
