package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/elf/internal/config"
	"github.com/joss/elf/internal/runstore"
)

func openRunStore() *runstore.Store {
	store, err := runstore.Open(config.GetPaths().RunsDB)
	if err != nil {
		exitOnError(err)
	}
	return store
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored runs",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent runs",
		Run: func(cmd *cobra.Command, args []string) {
			store := openRunStore()
			defer store.Close()

			runs, err := store.List(context.Background(), limit)
			if err != nil {
				exitOnError(err)
			}
			if asJSON {
				printJSON(runs)
				return
			}
			fmt.Println(renderer().Runs(runs))
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs")

	var withMessages bool
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run with its tasks and output",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openRunStore()
			defer store.Close()
			ctx := context.Background()

			run, err := store.Get(ctx, args[0])
			if err != nil {
				exitOnError(err)
			}

			if !withMessages {
				if asJSON {
					printJSON(run)
					return
				}
				fmt.Print(renderer().Run(run))
				return
			}

			msgs, err := store.Messages(ctx, run.ID)
			if err != nil {
				exitOnError(err)
			}
			if asJSON {
				printJSON(map[string]any{"run": run, "messages": msgs})
				return
			}
			r := renderer()
			fmt.Print(r.Run(run))
			fmt.Println()
			fmt.Println(r.MessageLog(msgs))
		},
	}
	showCmd.Flags().BoolVar(&withMessages, "messages", false, "Include the message log")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run and its messages",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openRunStore()
			defer store.Close()

			if err := store.Delete(context.Background(), args[0]); err != nil {
				exitOnError(err)
			}
			fmt.Printf("Deleted run %s\n", args[0])
		},
	}

	cmd.AddCommand(listCmd, showCmd, deleteCmd)
	return cmd
}
