package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/elf/internal/server"
)

func skillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List registered skills and whether they are ready",
		Run: func(cmd *cobra.Command, args []string) {
			a, err := newApp(context.Background(), "")
			if err != nil {
				exitOnError(err)
			}
			defer a.Close()

			if asJSON {
				descs := a.skills.List()
				out := make([]server.SkillInfo, 0, len(descs))
				for _, d := range descs {
					out = append(out, server.SkillInfo{Descriptor: d, Valid: a.skills.Valid(d)})
				}
				printJSON(out)
				return
			}
			fmt.Print(renderer().Skills(a.skills.List(), a.skills.Valid))
		},
	}
}
