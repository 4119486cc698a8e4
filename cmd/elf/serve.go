package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joss/elf/internal/mcpserver"
	"github.com/joss/elf/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve skill execution over HTTP",
		Long: `Run every registered skill in-process behind an HTTP endpoint.

Point ELF_REMOTE_URL at this server so remote-tagged skills run here.`,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, "")
			if err != nil {
				exitOnError(err)
			}
			defer a.Close()

			if err := server.New(a.skills, a.local, addr).Start(ctx); err != nil {
				exitOnError(err)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose skills as MCP tools over stdio",
		Run: func(cmd *cobra.Command, args []string) {
			a, err := newApp(context.Background(), "")
			if err != nil {
				exitOnError(err)
			}
			defer a.Close()

			s := mcpserver.New("elf", version, a.skills, a.executor)
			if err := mcpserver.Serve(s); err != nil {
				exitOnError(err)
			}
		},
	}
}
