package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/elf/internal/config"
	"github.com/joss/elf/internal/runstore"
	"github.com/joss/elf/internal/search"
	"github.com/joss/elf/internal/selftest"
)

func doctorCmd() *cobra.Command {
	var quick bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check environment health",
		Long: `Diagnose the elf runtime environment.

Checks:
  - Provider and embedding credentials
  - Document store and run store
  - Similarity index (and its graph backend)
  - Remote skill server, when ELF_REMOTE_URL is set`,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			env := config.Env()

			checks := []selftest.Check{selftest.CredentialCheck(env)}

			st, err := openStores(ctx, env)
			if err != nil {
				checks = append(checks, selftest.Failed("stores", err))
			} else {
				defer st.Close()
				checks = append(checks,
					selftest.PingCheck("document_store", st.docs, 100*time.Millisecond),
					selftest.IndexCheck(st.index, search.NamespaceFilings, search.NamespaceFilingTables, search.NamespaceTranscripts),
				)
			}

			runs, err := runstore.Open(config.GetPaths().RunsDB)
			if err != nil {
				checks = append(checks, selftest.Failed("run_store", err))
			} else {
				defer runs.Close()
				checks = append(checks, selftest.PingCheck("run_store", runs, 100*time.Millisecond))
			}

			if env.RemoteURL != "" {
				checks = append(checks, selftest.RemoteCheck(env.RemoteURL, &http.Client{}))
			}

			report := selftest.CheckHealth(ctx, checks...)
			report.DetectTTY()

			switch {
			case asJSON:
				printJSON(report)
			case quick:
				fmt.Println(report.QuickCheck())
			default:
				fmt.Print(report.Summary())
			}
			if !report.IsHealthy() {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVarP(&quick, "quick", "q", false, "One-line status")
	return cmd
}
