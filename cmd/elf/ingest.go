package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joss/elf/internal/config"
	"github.com/joss/elf/internal/ingest"
)

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <manifest.yaml>",
		Short: "Load filings and transcripts into the document store and index",
		Long: `Load documents listed in a YAML manifest.

Each document is stored three ways: its metadata row, its raw body object
and an embedding in the similarity index.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			m, err := ingest.LoadManifest(args[0])
			if err != nil {
				exitOnError(err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			st, err := openStores(ctx, config.Env())
			if err != nil {
				exitOnError(err)
			}
			defer st.Close()

			stats, err := ingest.NewIngester(st.docs, st.objects, st.index, st.embedder).Ingest(ctx, m)
			if err != nil {
				exitOnError(err)
			}
			if asJSON {
				printJSON(stats)
				return
			}
			fmt.Printf("Ingested %d filings, %d tables, %d transcripts (%d tokens, %d errors)\n",
				stats.Filings, stats.Tables, stats.Transcripts, stats.Tokens, stats.Errors)
		},
	}
}
