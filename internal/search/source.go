package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/joss/elf/internal/docstore"
	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/vector"
)

// Index namespaces searched by the sources.
const (
	NamespaceFilings      = "filings"
	NamespaceFilingTables = "filings_tables"
	NamespaceTranscripts  = "transcripts"

	// TopK is how many matches each namespace query returns.
	TopK = 10
)

// Source runs one retrieval and returns documents sorted by descending
// score. Documents whose body is empty are returned with empty Text.
type Source interface {
	Search(ctx context.Context, query, symbol string, periods []int) ([]domain.SearchDocument, error)
}

// Filter builds the metadata filter for a symbol and period list. Either
// may be empty.
func Filter(symbol string, periods []int) vector.Filter {
	f := vector.Filter{}
	if symbol != "" {
		f["symbol"] = vector.Condition{Eq: symbol}
	}
	if len(periods) > 0 {
		in := make([]any, len(periods))
		for i, p := range periods {
			in[i] = p
		}
		f["yearQuarter"] = vector.Condition{In: in}
	}
	return f
}

// Store bundles the collaborators a source reads from.
type Store struct {
	Embedder vector.Embedder
	Index    vector.Index
	Repo     docstore.Repository
	Objects  docstore.ObjectStore
}

func (s Store) query(ctx context.Context, namespace string, vec []float32, filter vector.Filter) ([]vector.Match, error) {
	matches, err := s.Index.Query(ctx, vec, vector.Query{
		Namespace:       namespace,
		TopK:            TopK,
		Filter:          filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", namespace, err)
	}
	return matches, nil
}

func rowIDs(matches []vector.Match) ([]int, map[int]float64) {
	ids := make([]int, 0, len(matches))
	scores := make(map[int]float64, len(matches))
	for _, m := range matches {
		id, ok := docstore.RowID(m.ID)
		if !ok {
			continue
		}
		if _, seen := scores[id]; !seen {
			ids = append(ids, id)
		}
		scores[id] = m.Score
	}
	return ids, scores
}

func sortByScore(docs []domain.SearchDocument) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
}

// FilingSource searches filing prose and filing tables and merges them.
type FilingSource struct {
	store Store
	log   *logging.Logger
}

func NewFilingSource(store Store) *FilingSource {
	return &FilingSource{store: store, log: logging.New("search")}
}

func (s *FilingSource) Search(ctx context.Context, query, symbol string, periods []int) ([]domain.SearchDocument, error) {
	start := time.Now()
	vec, err := s.store.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	filter := Filter(symbol, periods)

	prose, err := s.section(ctx, NamespaceFilings, docstore.TypeFilings, vec, filter, s.store.Repo.FilingsByID, docstore.ProseText)
	if err != nil {
		return nil, err
	}
	tables, err := s.section(ctx, NamespaceFilingTables, docstore.TypeFilingsTable, vec, filter, s.store.Repo.FilingTablesByID, docstore.TableText)
	if err != nil {
		return nil, err
	}

	docs := append(prose, tables...)
	sortByScore(docs)
	s.log.WithRun(logging.GetRunID(ctx)).TimedEvent("filing_search", start, map[string]interface{}{
		"prose":  len(prose),
		"tables": len(tables),
		"symbol": symbol,
	})
	return docs, nil
}

func (s *FilingSource) section(
	ctx context.Context,
	namespace, docType string,
	vec []float32,
	filter vector.Filter,
	lookup func(context.Context, []int) ([]docstore.Filing, error),
	decode func(json.RawMessage) (string, error),
) ([]domain.SearchDocument, error) {
	matches, err := s.store.query(ctx, namespace, vec, filter)
	if err != nil || len(matches) == 0 {
		return nil, err
	}

	ids, scores := rowIDs(matches)
	rows, err := lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", namespace, err)
	}

	docs := make([]domain.SearchDocument, 0, len(rows))
	for _, f := range rows {
		if f.Location == "" {
			continue
		}
		text, err := fetchText(ctx, s.store.Objects, f.Location, decode)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("document_unreadable", map[string]interface{}{"namespace": namespace, "id": f.ID}, err)
			continue
		}
		docs = append(docs, f.Document(docType, text, scores[f.ID]))
	}
	sortByScore(docs)
	return docs, nil
}

// TranscriptSource searches earnings call transcripts.
type TranscriptSource struct {
	store Store
	log   *logging.Logger
}

func NewTranscriptSource(store Store) *TranscriptSource {
	return &TranscriptSource{store: store, log: logging.New("search")}
}

func (s *TranscriptSource) Search(ctx context.Context, query, symbol string, periods []int) ([]domain.SearchDocument, error) {
	start := time.Now()
	vec, err := s.store.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.store.query(ctx, NamespaceTranscripts, vec, Filter(symbol, periods))
	if err != nil || len(matches) == 0 {
		return nil, err
	}

	ids, scores := rowIDs(matches)
	rows, err := s.store.Repo.TranscriptsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup transcripts: %w", err)
	}

	docs := make([]domain.SearchDocument, 0, len(rows))
	for _, t := range rows {
		if t.Location == "" {
			continue
		}
		text, err := fetchText(ctx, s.store.Objects, t.Location, docstore.ProseText)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("document_unreadable", map[string]interface{}{"namespace": NamespaceTranscripts, "id": t.ID}, err)
			continue
		}
		docs = append(docs, t.Document(text, scores[t.ID]))
	}
	sortByScore(docs)
	s.log.WithRun(logging.GetRunID(ctx)).TimedEvent("transcript_search", start, map[string]interface{}{
		"matches": len(docs),
		"symbol":  symbol,
	})
	return docs, nil
}

func fetchText(ctx context.Context, objects docstore.ObjectStore, key string, decode func(json.RawMessage) (string, error)) (string, error) {
	body, err := objects.FetchRawObject(ctx, docstore.Bucket, key)
	if err != nil {
		return "", err
	}
	return decode(body)
}
