package examples

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/vector"
)

type failingEmbedder struct{ calls int }

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return nil, errors.New("embedding service down")
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

func (f *failingEmbedder) Dimensions() int { return 0 }

func TestLoadEmbedded(t *testing.T) {
	sets, err := LoadEmbedded()
	require.NoError(t, err)

	for _, kind := range []Kind{KindObjective, KindFilingQuery, KindTranscriptQuery} {
		assert.NotEmpty(t, sets[kind], kind)
	}
	for _, ex := range sets[KindObjective] {
		require.NotEmpty(t, ex.Tasks, ex.Objective)
		for i, task := range ex.Tasks {
			assert.Equal(t, i+1, task.ID)
			for _, dep := range task.DependentTaskIDs {
				assert.Less(t, dep, task.ID)
			}
		}
	}
	for _, ex := range sets[KindFilingQuery] {
		assert.NotEmpty(t, ex.SearchQuery)
		assert.NotEmpty(t, ex.Task)
	}
}

func TestSelector_MostRelevant(t *testing.T) {
	sets, err := LoadEmbedded()
	require.NoError(t, err)
	sel := NewSelectorWithSets(vector.NewLocalEmbedder(384), sets)
	ctx := context.Background()

	t.Run("similar objective wins", func(t *testing.T) {
		want := sets[KindObjective][3]
		got, err := sel.MostRelevant(ctx, KindObjective, want.Objective)
		require.NoError(t, err)
		assert.Equal(t, want.Objective, got.Objective)
	})

	t.Run("dissimilar objective falls back to first", func(t *testing.T) {
		got, err := sel.MostRelevant(ctx, KindObjective, "zebra quantum origami")
		require.NoError(t, err)
		assert.Equal(t, sets[KindObjective][0].Objective, got.Objective)
	})

	t.Run("filing queries match on task", func(t *testing.T) {
		want := sets[KindFilingQuery][1]
		got, err := sel.MostRelevant(ctx, KindFilingQuery, want.Task)
		require.NoError(t, err)
		assert.Equal(t, want.SearchQuery, got.SearchQuery)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := sel.MostRelevant(ctx, Kind("nope"), "x")
		assert.Error(t, err)
	})
}

func TestSelector_Threshold(t *testing.T) {
	sets := map[Kind][]Example{
		KindObjective: {
			{Objective: "default objective"},
			{Objective: "write a poem about the ocean"},
		},
	}
	sel := NewSelectorWithSets(vector.NewLocalEmbedder(384), sets)

	got, err := sel.MostRelevant(context.Background(), KindObjective, "write a poem about the ocean")
	require.NoError(t, err)
	assert.Equal(t, "write a poem about the ocean", got.Objective)

	sel.threshold = 1.01
	got, err = sel.MostRelevant(context.Background(), KindObjective, "write a poem about the ocean")
	require.NoError(t, err)
	assert.Equal(t, "default objective", got.Objective)
}

func TestSelector_EmbeddingFailureUsesDefault(t *testing.T) {
	sets := map[Kind][]Example{KindObjective: {{Objective: "a"}, {Objective: "b"}}}
	sel := NewSelectorWithSets(&failingEmbedder{}, sets)

	got, err := sel.MostRelevant(context.Background(), KindObjective, "b")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Objective)
}

func TestSelector_Cancelled(t *testing.T) {
	sel := NewSelectorWithSets(vector.NewLocalEmbedder(64), map[Kind][]Example{KindObjective: {{Objective: "a"}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sel.MostRelevant(ctx, KindObjective, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelector_CachesExampleEmbeddings(t *testing.T) {
	sel := NewSelectorWithSets(vector.NewLocalEmbedder(64), map[Kind][]Example{KindObjective: {{Objective: "a b"}, {Objective: "c d"}}})
	_, err := sel.MostRelevant(context.Background(), KindObjective, "a b")
	require.NoError(t, err)
	assert.Len(t, sel.cache, 2)
}

func TestTaskListRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "examples")

	ex, err := LoadTaskList(dir, "anything")
	require.NoError(t, err)
	assert.Nil(t, ex)

	tasks := []domain.Task{
		{ID: 1, Task: "Search filings", Skill: "filing_search", DependentTaskIDs: []int{}, Status: domain.StatusComplete},
		{ID: 2, Task: "Write report", Skill: "text_completion", DependentTaskIDs: []int{1}, Status: domain.StatusComplete},
	}
	path, err := SaveTaskList(dir, "Summarize Q1 2023 revenue drivers for ACME", tasks)
	require.NoError(t, err)
	assert.Equal(t, "summarize-q1-2023-revenue-drivers-for-acme.json", filepath.Base(path))

	ex, err = LoadTaskList(dir, "Summarize Q1 2023 revenue drivers for ACME")
	require.NoError(t, err)
	require.NotNil(t, ex)
	assert.Equal(t, tasks, ex.Tasks)

	ex, err = LoadTaskList(dir, "summarize q1 2023 revenue drivers for acme")
	require.NoError(t, err)
	assert.Nil(t, ex)
}

func TestTaskListJSON(t *testing.T) {
	ex := Example{Tasks: []domain.Task{{ID: 1, Task: "t", Skill: "text_completion", DependentTaskIDs: []int{}, Status: domain.StatusIncomplete}}}
	assert.JSONEq(t, `[{"id":1,"task":"t","skill":"text_completion","dependent_task_ids":[],"status":"incomplete"}]`, ex.TaskListJSON())
	assert.Equal(t, "[]", Example{}.TaskListJSON())
}
