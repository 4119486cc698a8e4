// Package extract reduces a large document to task-relevant notes by
// walking it in overlapping windows.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joss/elf/internal/completion"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/runctl"
	"github.com/joss/elf/internal/tokens"
)

const (
	// ChunkSize is the window length in characters.
	ChunkSize = 15000
	// ChunkOverlap is how much each window repeats the end of the previous one.
	ChunkOverlap = 500

	// maxNoteTokens bounds the notes fed back into each prompt.
	maxNoteTokens = 3000

	sentinelNone = "none"
)

// Progress receives one human-readable status line per chunk.
type Progress func(status string)

// ChunkCount returns ceil(n / (ChunkSize - ChunkOverlap)).
func ChunkCount(n int) int {
	step := ChunkSize - ChunkOverlap
	return (n + step - 1) / step
}

// Chunks splits text into windows of ChunkSize characters starting every
// ChunkSize-ChunkOverlap characters.
func Chunks(text string) []string {
	runes := []rune(text)
	step := ChunkSize - ChunkOverlap
	chunks := make([]string, 0, ChunkCount(len(runes)))
	for start := 0; start < len(runes); start += step {
		end := min(start+ChunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Extractor runs the per-chunk extraction calls.
type Extractor struct {
	gateway completion.Gateway
	model   string
	log     *logging.Logger
}

func New(gateway completion.Gateway, model string) *Extractor {
	return &Extractor{
		gateway: gateway,
		model:   model,
		log:     logging.New("extract"),
	}
}

// Extract walks text chunk by chunk, feeding the notes gathered so far into
// each call. A reply of "none" adds nothing. When the run stops, Extract
// returns the notes from chunks already finished. A failed chunk is logged
// and skipped.
func (e *Extractor) Extract(ctx context.Context, objective, task, text string, progress Progress) string {
	chunks := Chunks(text)
	log := e.log.WithRun(logging.GetRunID(ctx))
	start := time.Now()

	var notes strings.Builder
	done := 0
	for i, chunk := range chunks {
		if !runctl.Active(ctx) {
			log.Info("extract_stopped", map[string]interface{}{"chunk": i + 1, "total": len(chunks)})
			break
		}
		if progress != nil {
			progress(fmt.Sprintf("    - chunk %d of %d\n", i+1, len(chunks)))
		}

		prompt := Prompt(objective, task, tokens.TruncateTail(notes.String(), maxNoteTokens), chunk)
		reply, err := e.gateway.Complete(ctx, completion.Request{
			Prompt: prompt,
			Params: completion.Params{
				Model:       e.model,
				Temperature: 0,
				MaxTokens:   800,
				TopP:        1,
			},
		})
		if err != nil {
			if completion.IsCancelled(err) {
				log.Info("extract_cancelled", map[string]interface{}{"chunk": i + 1, "total": len(chunks)})
				break
			}
			log.Warn("chunk_failed", map[string]interface{}{"chunk": i + 1, "total": len(chunks)}, err)
			continue
		}
		done++
		if strings.EqualFold(strings.TrimSpace(reply), sentinelNone) {
			continue
		}
		notes.WriteString(reply)
	}

	log.TimedEvent("extract", start, map[string]interface{}{
		"chunks":      len(chunks),
		"completed":   done,
		"note_tokens": tokens.Count(notes.String()),
	})
	return notes.String()
}

// Prompt builds the extraction prompt for one chunk.
func Prompt(objective, task, notes, chunk string) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant that helps people extract information out of documents.\n")
	fmt.Fprintf(&b, "Your current task is %s.\n", task)
	fmt.Fprintf(&b, "The task serves the objective: %s.\n", objective)
	b.WriteString("Analyze the following text and return information directly related to your current task.\n")
	b.WriteString("Only return information directly related to your current task.\n")
	b.WriteString("Only return new information that is not already in the information gathered thus far. If there is none, reply with the single word none.\n")
	if notes != "" {
		fmt.Fprintf(&b, "The following is information that we've gathered thus far: %s\n", notes)
	}
	fmt.Fprintf(&b, "Text to analyze: %s\n", chunk)
	b.WriteString("New Information:\n")
	return b.String()
}
