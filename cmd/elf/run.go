package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joss/elf/internal/config"
	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/examples"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/runctl"
	"github.com/joss/elf/internal/runstore"
	"github.com/joss/elf/internal/tasks"
)

func runCmd() *cobra.Command {
	var (
		language    string
		model       string
		exampleFile string
		noReflect   bool
		maxTasks    int
		saveExample bool
	)

	cmd := &cobra.Command{
		Use:   "run <objective...>",
		Short: "Plan and execute an objective",
		Long: `Plan the objective into a task list and execute it task by task.

Ctrl-C stops after the current step; a second Ctrl-C aborts immediately.
The run and its message log are stored and can be inspected with 'elf runs'.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			objective := strings.Join(args, " ")
			if language == "" {
				language = config.Env().Language
			}

			prior, err := loadPrior(exampleFile, objective)
			if err != nil {
				exitOnError(err)
			}

			ctx, ctl := runctl.WithControl(context.Background())
			defer ctl.Abort()
			watchInterrupts(ctl)

			a, err := newApp(ctx, model)
			if err != nil {
				exitOnError(err)
			}
			defer a.Close()

			store, err := runstore.Open(config.GetPaths().RunsDB)
			if err != nil {
				exitOnError(err)
			}
			defer store.Close()

			run, err := store.Create(ctx, objective, language)
			if err != nil {
				exitOnError(err)
			}
			ctx = logging.WithRunID(ctx, run.ID)
			log := logging.New("cli").WithRun(run.ID)

			persist := store.Sink(ctx, run.ID, func(err error) {
				log.Warn("message_not_saved", nil, err)
			})

			var sink domain.MessageSink
			var finish func()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				sink = fanout(persist, func(m domain.Message) { enc.Encode(m) })
				finish = func() {}
			} else {
				live := renderer().Live(os.Stdout)
				sink = fanout(persist, live.Sink())
				finish = live.Finish
			}

			result, runErr := a.tasks.Run(ctx, tasks.RunOptions{
				Objective: objective,
				Language:  language,
				Prior:     prior,
				Reflect:   !noReflect,
				MaxTasks:  maxTasks,
				OnChange: func(ts []domain.Task) {
					if err := store.SaveTasks(context.WithoutCancel(ctx), run.ID, ts); err != nil {
						log.Warn("tasks_not_saved", nil, err)
					}
				},
			}, sink)
			finish()

			finalCtx := context.WithoutCancel(ctx)
			if err := store.SaveTasks(finalCtx, run.ID, result.Tasks); err != nil {
				log.Warn("tasks_not_saved", nil, err)
			}
			if err := store.Finish(finalCtx, run.ID, string(result.Status), result.Output); err != nil {
				log.Warn("run_not_finished", nil, err)
			}
			if runErr != nil {
				exitOnError(runErr)
			}

			if saveExample && result.Status == tasks.RunComplete {
				path, err := examples.SaveTaskList(config.GetPaths().Examples, objective, result.Tasks)
				if err != nil {
					log.Warn("example_not_saved", nil, err)
				} else if !asJSON {
					fmt.Fprintf(os.Stderr, "Saved task list to %s\n", path)
				}
			}
			if !asJSON {
				fmt.Fprintf(os.Stderr, "\nrun %s: %s (%d tasks executed)\n", run.ID, result.Status, result.Executed)
			}
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Output language code (default: ELF_LANGUAGE or en)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Chat model (default: ELF_MODEL)")
	cmd.Flags().StringVar(&exampleFile, "example-file", "", "JSON task list to use as planning guidance")
	cmd.Flags().BoolVar(&noReflect, "no-reflect", false, "Skip reflection after each task")
	cmd.Flags().IntVar(&maxTasks, "max-tasks", tasks.DefaultMaxTasks, "Maximum task executions per run")
	cmd.Flags().BoolVar(&saveExample, "save-example", false, "Save the finished task list as guidance for the same objective")
	return cmd
}

// loadPrior returns the guidance task list: the given file, or a saved list
// whose objective matches exactly.
func loadPrior(file, objective string) (*examples.Example, error) {
	if file == "" {
		return examples.LoadTaskList(config.GetPaths().Examples, objective)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read example file: %w", err)
	}
	var ex examples.Example
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("parse example file: %w", err)
	}
	if len(ex.Tasks) == 0 {
		return nil, fmt.Errorf("example file %s has no tasks", file)
	}
	return &ex, nil
}

// watchInterrupts maps the first interrupt to a cooperative stop and the
// second to an abort.
func watchInterrupts(ctl *runctl.Control) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	logging.SafeGo("cli", func() {
		<-sigs
		fmt.Fprintln(os.Stderr, "\nStopping after the current step (Ctrl-C again to abort)...")
		ctl.Stop()
		<-sigs
		ctl.Abort()
	})
}
