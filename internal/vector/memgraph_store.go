package vector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joss/elf/internal/graph"
)

// MemgraphStore keeps vectors as (:VectorEntry) nodes. Scoring happens in
// Cypher; metadata filters are applied on the returned rows because
// metadata is stored as a JSON string property.
type MemgraphStore struct {
	db graph.Driver
}

func NewMemgraphStore(db graph.Driver) *MemgraphStore {
	return &MemgraphStore{db: db}
}

func (s *MemgraphStore) Upsert(ctx context.Context, entries ...Entry) error {
	const query = `
		MERGE (v:VectorEntry {id: $id, namespace: $namespace})
		SET v.text = $text,
			v.metadata = $metadata,
			v.vector = $vector
	`
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("upsert: entry in %q has no id", e.Namespace)
		}
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata %s: %w", e.ID, err)
		}
		vec := make([]float64, len(e.Vector))
		for i, v := range e.Vector {
			vec[i] = float64(v)
		}
		err = s.db.ExecuteWrite(ctx, query, map[string]any{
			"id":        e.ID,
			"namespace": e.Namespace,
			"text":      e.Text,
			"metadata":  string(metaJSON),
			"vector":    vec,
		})
		if err != nil {
			return fmt.Errorf("upsert %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *MemgraphStore) Query(ctx context.Context, vec []float32, q Query) ([]Match, error) {
	const query = `
		MATCH (v:VectorEntry)
		WHERE ($namespace = "" OR v.namespace = $namespace) AND v.vector IS NOT NULL
		WITH v, $vector AS target
		WITH v,
			 reduce(dot = 0.0, i IN range(0, size(v.vector)-1) | dot + v.vector[i] * target[i]) AS dot_product,
			 reduce(ss_a = 0.0, x IN v.vector | ss_a + x*x) AS norm_a_sq,
			 reduce(ss_b = 0.0, y IN target | ss_b + y*y) AS norm_b_sq
		WITH v, dot_product, sqrt(norm_a_sq) * sqrt(norm_b_sq) AS denominator
		WITH v, CASE WHEN denominator = 0 THEN 0 ELSE dot_product / denominator END AS score
		ORDER BY score DESC
		RETURN v.id AS id, v.metadata AS metadata, score
	`

	target := make([]float64, len(vec))
	for i, v := range vec {
		target[i] = float64(v)
	}

	records, err := s.db.Execute(ctx, query, map[string]any{
		"namespace": q.Namespace,
		"vector":    target,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Namespace, err)
	}

	var matches []Match
	for _, rec := range records {
		var meta map[string]any
		if raw := graph.GetString(rec, "metadata"); raw != "" {
			_ = json.Unmarshal([]byte(raw), &meta)
		}
		if !q.Filter.Matches(meta) {
			continue
		}
		m := Match{ID: graph.GetString(rec, "id"), Score: graph.GetFloat(rec, "score")}
		if q.IncludeMetadata {
			m.Metadata = meta
		}
		matches = append(matches, m)
		if q.TopK > 0 && len(matches) == q.TopK {
			break
		}
	}
	return matches, nil
}

func (s *MemgraphStore) Count(ctx context.Context, namespace string) (int, error) {
	const query = `
		MATCH (v:VectorEntry)
		WHERE $namespace = "" OR v.namespace = $namespace
		RETURN count(v) AS count
	`
	records, err := s.db.Execute(ctx, query, map[string]any{"namespace": namespace})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return graph.GetInt(records[0], "count"), nil
}

// Close closes the underlying driver.
func (s *MemgraphStore) Close() error {
	return s.db.Close()
}

var _ Index = (*MemgraphStore)(nil)
