// Package examples selects curated worked examples that anchor plan and
// search-query generation.
package examples

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/vector"
)

// Threshold is the minimum cosine similarity for the best example to be used
// instead of the first (default) example of its set.
const Threshold = 0.80

// Kind names a curated example set.
type Kind string

const (
	KindObjective       Kind = "objective"
	KindFilingQuery     Kind = "filingSearchQuery"
	KindTranscriptQuery Kind = "transcriptSearchQuery"
)

//go:embed data/*.yaml
var dataFS embed.FS

var files = map[Kind]string{
	KindObjective:       "data/objectives.yaml",
	KindFilingQuery:     "data/filing_queries.yaml",
	KindTranscriptQuery: "data/transcript_queries.yaml",
}

// Example is one curated entry. Objective examples carry Tasks; query
// examples carry Task, DependentTaskOutput and SearchQuery.
type Example struct {
	Objective           string        `yaml:"objective" json:"objective"`
	Tasks               []domain.Task `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Task                string        `yaml:"task,omitempty" json:"task,omitempty"`
	DependentTaskOutput string        `yaml:"dependent_task_output,omitempty" json:"dependent_task_output,omitempty"`
	SearchQuery         string        `yaml:"search_query,omitempty" json:"search_query,omitempty"`
}

// Key is the text an example is matched on: the task for filing queries,
// the objective otherwise.
func (e Example) Key(kind Kind) string {
	if kind == KindFilingQuery {
		return e.Task
	}
	return e.Objective
}

// TaskListJSON renders the example's task list the way it is shown to the
// planner.
func (e Example) TaskListJSON() string {
	tasks := e.Tasks
	if tasks == nil {
		tasks = []domain.Task{}
	}
	data, _ := json.Marshal(tasks)
	return string(data)
}

// LoadEmbedded parses the example sets compiled into the binary.
func LoadEmbedded() (map[Kind][]Example, error) {
	sets := make(map[Kind][]Example, len(files))
	for kind, name := range files {
		data, err := dataFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var list []Example
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%s: no examples", name)
		}
		sets[kind] = list
	}
	return sets, nil
}

// Selector picks the most relevant example of a set by embedding
// similarity. Example embeddings are cached for the life of the selector.
type Selector struct {
	embedder  vector.Embedder
	sets      map[Kind][]Example
	threshold float64
	log       *logging.Logger

	mu    sync.Mutex
	cache map[string][]float32
}

// NewSelector builds a selector over the embedded example sets.
func NewSelector(embedder vector.Embedder) (*Selector, error) {
	sets, err := LoadEmbedded()
	if err != nil {
		return nil, err
	}
	return NewSelectorWithSets(embedder, sets), nil
}

// NewSelectorWithSets builds a selector over caller-supplied sets.
func NewSelectorWithSets(embedder vector.Embedder, sets map[Kind][]Example) *Selector {
	return &Selector{
		embedder:  embedder,
		sets:      sets,
		threshold: Threshold,
		log:       logging.New("examples"),
		cache:     make(map[string][]float32),
	}
}

// Default returns the first example of a set.
func (s *Selector) Default(kind Kind) (Example, error) {
	set := s.sets[kind]
	if len(set) == 0 {
		return Example{}, fmt.Errorf("no examples for kind %q", kind)
	}
	return set[0], nil
}

// MostRelevant returns the example whose key is most similar to text when
// that similarity is at least Threshold, otherwise the first example. An
// embedding failure other than cancellation also yields the first example.
func (s *Selector) MostRelevant(ctx context.Context, kind Kind, text string) (Example, error) {
	def, err := s.Default(kind)
	if err != nil {
		return Example{}, err
	}

	input, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return Example{}, ctx.Err()
		}
		s.log.Warn("embed_input_failed", map[string]interface{}{"kind": string(kind)}, err)
		return def, nil
	}

	best, bestScore := -1, -2.0
	for i, ex := range s.sets[kind] {
		vec, err := s.embedKey(ctx, ex.Key(kind))
		if err != nil {
			if ctx.Err() != nil {
				return Example{}, ctx.Err()
			}
			s.log.Warn("embed_example_failed", map[string]interface{}{"kind": string(kind), "index": i}, err)
			continue
		}
		if score := vector.CosineSimilarity(input, vec); score > bestScore {
			best, bestScore = i, score
		}
	}

	s.log.Debug("example_selected", map[string]interface{}{
		"kind":  string(kind),
		"index": best,
		"score": bestScore,
	})
	if best < 0 || bestScore < s.threshold {
		return def, nil
	}
	return s.sets[kind][best], nil
}

func (s *Selector) embedKey(ctx context.Context, key string) ([]float32, error) {
	s.mu.Lock()
	vec, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return vec, nil
	}

	vec, err := s.embedder.Embed(ctx, key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[key] = vec
	s.mu.Unlock()
	return vec, nil
}

// LoadTaskList returns the saved task list in dir whose objective matches
// exactly, or nil when none does. Files are read in name order.
func LoadTaskList(dir, objective string) (*Example, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read examples dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var ex Example
		if err := json.Unmarshal(data, &ex); err != nil {
			continue
		}
		if ex.Objective == objective && len(ex.Tasks) > 0 {
			return &ex, nil
		}
	}
	return nil, nil
}

// SaveTaskList writes a finished plan so a later run with the same objective
// can reuse it as guidance.
func SaveTaskList(dir, objective string, tasks []domain.Task) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create examples dir: %w", err)
	}
	data, err := json.MarshalIndent(Example{Objective: objective, Tasks: tasks}, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, slug(objective)+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write example: %w", err)
	}
	return path, nil
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 60 {
			break
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		out = "example"
	}
	return out
}
