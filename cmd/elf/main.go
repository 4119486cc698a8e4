// Package main provides the elf CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joss/elf/internal/config"
	"github.com/joss/elf/internal/logging"
)

var (
	version = "0.1.0"
	pretty  = true
	asJSON  bool
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "elf",
		Short: "Autonomous task agent - plans, executes and reflects on objectives",
		Long: `elf: an autonomous agent that turns an objective into a task list,
runs each task through a skill and refines the plan as outputs arrive.

Use 'elf run <objective>' to start a run.
Use 'elf skills' to see which skills are ready.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.ParseLevel(config.Env().LogLevel)
			if verbose {
				level = logging.LevelDebug
			}
			logging.SetLevel(level)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "agent", Title: "Agent:"},
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "serve", Title: "Surfaces:"},
	)

	run := runCmd()
	run.GroupID = "agent"
	rootCmd.AddCommand(run)

	sk := skillsCmd()
	sk.GroupID = "agent"
	rootCmd.AddCommand(sk)

	runs := runsCmd()
	runs.GroupID = "agent"
	rootCmd.AddCommand(runs)

	ingest := ingestCmd()
	ingest.GroupID = "data"
	rootCmd.AddCommand(ingest)

	serve := serveCmd()
	serve.GroupID = "serve"
	rootCmd.AddCommand(serve)

	mcp := mcpCmd()
	mcp.GroupID = "serve"
	rootCmd.AddCommand(mcp)

	doctor := doctorCmd()
	doctor.GroupID = "data"
	rootCmd.AddCommand(doctor)

	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show elf version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("elf version %s\n", version)
		},
	}
}
