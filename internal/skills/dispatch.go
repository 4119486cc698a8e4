package skills

import (
	"context"
	"time"

	"github.com/joss/elf/internal/logging"
)

// Executor runs a skill by name.
type Executor interface {
	Execute(ctx context.Context, name string, in Input) (Output, error)
}

// Dispatcher runs remote-tagged skills through a RemoteExecutor when one is
// configured and every other skill in-process. Callers never see the
// difference.
type Dispatcher struct {
	registry *Registry
	remote   Executor
	log      *logging.Logger
	recovery *logging.RecoveryHandler
}

// NewDispatcher creates a dispatcher; remote may be nil.
func NewDispatcher(registry *Registry, remote Executor) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		remote:   remote,
		log:      logging.New("skills"),
		recovery: logging.NewRecoveryHandler("skills"),
	}
}

// Execute runs the named skill. A skill whose credentials are missing
// returns an empty output without doing any work. A panicking skill is
// reported as an error.
func (d *Dispatcher) Execute(ctx context.Context, name string, in Input) (Output, error) {
	skill, err := d.registry.Get(name)
	if err != nil {
		return Output{}, err
	}
	desc := skill.Descriptor()
	log := d.log.WithRun(logging.GetRunID(ctx))

	if !d.registry.Valid(desc) {
		log.Warn("skill_invalid", map[string]interface{}{
			"skill":    name,
			"requires": desc.RequiredCredentials,
		}, nil)
		return Output{}, nil
	}

	start := time.Now()
	where := LocationLocal
	var out Output
	if desc.Location == LocationRemote && d.remote != nil {
		where = LocationRemote
		out, err = d.remote.Execute(ctx, name, in)
	} else {
		err = d.recovery.WrapError(func() error {
			var execErr error
			out, execErr = skill.Execute(ctx, in)
			return execErr
		})
	}
	if err != nil {
		return Output{}, err
	}

	log.TimedEvent("skill_executed", start, map[string]interface{}{
		"skill":    name,
		"task":     in.Task.ID,
		"location": string(where),
		"bytes":    len(out.Output),
	})
	return out, nil
}
