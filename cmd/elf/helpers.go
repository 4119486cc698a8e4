package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/render"
)

// exitOnError prints the error to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// renderer returns a renderer that colors only when stdout is a terminal.
func renderer() *render.Renderer {
	return render.New(pretty && render.IsTerminal(os.Stdout))
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitOnError(err)
	}
}

// fanout delivers every message to each sink in order.
func fanout(sinks ...domain.MessageSink) domain.MessageSink {
	return func(m domain.Message) {
		for _, s := range sinks {
			s.Emit(m)
		}
	}
}
