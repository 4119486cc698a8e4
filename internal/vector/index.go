// Package vector provides embeddings and the namespaced similarity index
// that retrieval skills query.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Entry is one stored vector with its metadata.
type Entry struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	Text      string         `json:"text,omitempty"`
	Vector    []float32      `json:"vector"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Condition restricts one metadata field. Eq and In may be combined.
type Condition struct {
	Eq any   `json:"$eq,omitempty"`
	In []any `json:"$in,omitempty"`
}

// Filter is a conjunction of per-field conditions.
type Filter map[string]Condition

// Query describes one similarity search.
type Query struct {
	Namespace       string
	TopK            int
	Filter          Filter
	IncludeMetadata bool
}

// Match is one ranked result.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Index is the similarity search surface.
type Index interface {
	Query(ctx context.Context, vec []float32, q Query) ([]Match, error)
	Upsert(ctx context.Context, entries ...Entry) error
	Count(ctx context.Context, namespace string) (int, error)
	Close() error
}

// Matches reports whether metadata satisfies every condition in f.
func (f Filter) Matches(metadata map[string]any) bool {
	for field, cond := range f {
		v, ok := metadata[field]
		if cond.Eq != nil {
			if !ok || scalarKey(v) != scalarKey(cond.Eq) {
				return false
			}
		}
		if cond.In != nil {
			if !ok {
				return false
			}
			key := scalarKey(v)
			found := false
			for _, candidate := range cond.In {
				if scalarKey(candidate) == key {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// scalarKey normalizes numbers so 20231, int64(20231) and float64(20231)
// (what JSON decoding yields) compare equal.
func scalarKey(v any) string {
	switch n := v.(type) {
	case string:
		return "s:" + n
	case int:
		return "n:" + strconv.FormatInt(int64(n), 10)
	case int64:
		return "n:" + strconv.FormatInt(n, 10)
	case int32:
		return "n:" + strconv.FormatInt(int64(n), 10)
	case float64:
		if n == math.Trunc(n) {
			return "n:" + strconv.FormatInt(int64(n), 10)
		}
		return "n:" + strconv.FormatFloat(n, 'g', -1, 64)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return "n:" + strconv.FormatInt(i, 10)
		}
		return "n:" + n.String()
	case bool:
		return "b:" + strconv.FormatBool(n)
	default:
		return fmt.Sprintf("?:%v", n)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rank scores candidates against vec, applies q's filter, and returns the
// top q.TopK matches by descending score.
func rank(vec []float32, candidates []Entry, q Query) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, e := range candidates {
		if q.Namespace != "" && e.Namespace != q.Namespace {
			continue
		}
		if len(e.Vector) == 0 || !q.Filter.Matches(e.Metadata) {
			continue
		}
		m := Match{ID: e.ID, Score: CosineSimilarity(vec, e.Vector)}
		if q.IncludeMetadata {
			m.Metadata = e.Metadata
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if q.TopK > 0 && len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches
}
