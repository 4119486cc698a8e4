package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/elf/internal/completion"
	"github.com/joss/elf/internal/runctl"
	"github.com/joss/elf/internal/testutil"
)

func TestChunkCount(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 1},
		{14500, 1},
		{14501, 2},
		{15000, 2},
		{29000, 2},
		{29001, 3},
		{100000, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkCount(tt.n), "n=%d", tt.n)
		assert.Len(t, Chunks(strings.Repeat("a", tt.n)), tt.want, "n=%d", tt.n)
	}
}

func TestChunks_Overlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40000; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	text := b.String()
	chunks := Chunks(text)
	require.Len(t, chunks, 3)

	step := ChunkSize - ChunkOverlap
	for i, c := range chunks {
		start := i * step
		end := min(start+ChunkSize, len(text))
		assert.Equal(t, text[start:end], c, "chunk %d", i)
	}
	// consecutive windows share ChunkOverlap characters
	assert.Equal(t, chunks[0][step:], chunks[1][:ChunkOverlap])
}

func TestChunks_Runes(t *testing.T) {
	text := strings.Repeat("é", 14501)
	chunks := Chunks(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkSize, len([]rune(chunks[0])))
}

func TestExtract_NoneAddsNothing(t *testing.T) {
	gw := testutil.NewGateway()
	gw.Fallback = "NoNe"
	ex := New(gw, "test-model")

	notes := ex.Extract(context.Background(), "obj", "task", strings.Repeat("x", 40000), nil)
	assert.Empty(t, notes)
	assert.Len(t, gw.Calls(), 3)
}

func TestExtract_Accumulates(t *testing.T) {
	gw := testutil.NewGateway(
		testutil.Rule{Match: "Text to analyze", Reply: "Revenue grew 10%. ", Times: 1},
		testutil.Rule{Match: "Text to analyze", Reply: " none ", Times: 1},
		testutil.Rule{Match: "Text to analyze", Reply: "Margins expanded.", Times: 1},
	)
	ex := New(gw, "test-model")

	var progress []string
	notes := ex.Extract(context.Background(), "obj", "find revenue", strings.Repeat("x", 40000), func(s string) {
		progress = append(progress, s)
	})

	assert.Equal(t, "Revenue grew 10%. Margins expanded.", notes)
	assert.Equal(t, []string{
		"    - chunk 1 of 3\n",
		"    - chunk 2 of 3\n",
		"    - chunk 3 of 3\n",
	}, progress)

	calls := gw.Calls()
	require.Len(t, calls, 3)
	assert.NotContains(t, calls[0].Prompt, "gathered thus far")
	assert.Contains(t, calls[1].Prompt, "gathered thus far: Revenue grew 10%.")
	assert.Contains(t, calls[0].Prompt, "Your current task is find revenue.")
	assert.Equal(t, "test-model", calls[0].Params.Model)
	assert.Equal(t, 800, calls[0].Params.MaxTokens)
}

func TestExtract_EmptyText(t *testing.T) {
	gw := testutil.NewGateway()
	notes := New(gw, "m").Extract(context.Background(), "obj", "task", "", nil)
	assert.Empty(t, notes)
	assert.Empty(t, gw.Calls())
}

func TestExtract_FailedChunkIsSkipped(t *testing.T) {
	gw := testutil.NewGateway(
		testutil.Rule{Match: "Text to analyze", Err: errors.New("upstream 500"), Times: 1},
		testutil.Rule{Match: "Text to analyze", Reply: "kept", Times: 1},
	)
	notes := New(gw, "m").Extract(context.Background(), "obj", "task", strings.Repeat("x", 20000), nil)
	assert.Equal(t, "kept", notes)
}

func TestExtract_AbortMidChunk(t *testing.T) {
	ctx, ctl := runctl.WithControl(context.Background())
	gw := testutil.NewGateway(
		testutil.Rule{Match: "Text to analyze", Reply: "first. ", Times: 1},
		testutil.Rule{
			Match: "Text to analyze",
			Reply: "second. ",
			Times: 1,
			Before: func(context.Context, completion.Request) {
				ctl.Abort()
			},
		},
	)

	notes := New(gw, "m").Extract(ctx, "obj", "task", strings.Repeat("x", 60000), nil)
	assert.Equal(t, "first. ", notes)
	assert.Len(t, gw.Calls(), 2)
}

func TestExtract_StopBetweenChunks(t *testing.T) {
	ctx, ctl := runctl.WithControl(context.Background())
	gw := testutil.NewGateway(
		testutil.Rule{
			Match: "Text to analyze",
			Reply: "only. ",
			Times: 1,
			Before: func(context.Context, completion.Request) {
				ctl.Stop()
			},
		},
	)

	var progress []string
	notes := New(gw, "m").Extract(ctx, "obj", "task", strings.Repeat("x", 60000), func(s string) {
		progress = append(progress, s)
	})
	assert.Equal(t, "only. ", notes)
	assert.Len(t, gw.Calls(), 1)
	assert.Len(t, progress, 1)
}
