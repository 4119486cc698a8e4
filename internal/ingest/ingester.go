package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joss/elf/internal/docstore"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/search"
	"github.com/joss/elf/internal/tokens"
	"github.com/joss/elf/internal/vector"
)

// Writer stores document metadata rows.
type Writer interface {
	UpsertFiling(ctx context.Context, f docstore.Filing) error
	UpsertFilingTable(ctx context.Context, f docstore.Filing) error
	UpsertTranscript(ctx context.Context, t docstore.Transcript) error
}

// ObjectWriter stores raw document bodies.
type ObjectWriter interface {
	PutObject(ctx context.Context, bucket, key string, body []byte) error
}

// Ingester writes each document three ways: the metadata row, the raw body
// object and an index entry whose ID ends in the row ID.
type Ingester struct {
	repo     Writer
	objects  ObjectWriter
	index    vector.Index
	embedder vector.Embedder
	log      *logging.Logger
}

// NewIngester creates a document ingester.
func NewIngester(repo Writer, objects ObjectWriter, index vector.Index, embedder vector.Embedder) *Ingester {
	return &Ingester{
		repo:     repo,
		objects:  objects,
		index:    index,
		embedder: embedder,
		log:      logging.New("ingest"),
	}
}

// Stats tracks ingestion statistics.
type Stats struct {
	Filings     int `json:"filings"`
	Tables      int `json:"tables"`
	Transcripts int `json:"transcripts"`
	Tokens      int `json:"tokens"`
	Errors      int `json:"errors"`
}

// document is one normalized manifest entry.
type document struct {
	namespace string
	entryID   string
	key       string
	body      []byte
	text      string
	metadata  map[string]any
	store     func(ctx context.Context, key string) error
}

// Ingest stores every document of m. A document that fails is counted and
// skipped; cancellation stops the run.
func (i *Ingester) Ingest(ctx context.Context, m *Manifest) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	docs, err := i.documents(m)
	if err != nil {
		return nil, err
	}

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := i.store(ctx, d); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Errors++
			i.log.Warn("document_failed", map[string]interface{}{"id": d.entryID}, err)
			continue
		}

		stats.Tokens += tokens.Count(d.text)
		switch d.namespace {
		case search.NamespaceFilings:
			stats.Filings++
		case search.NamespaceFilingTables:
			stats.Tables++
		case search.NamespaceTranscripts:
			stats.Transcripts++
		}
	}

	i.log.TimedEvent("ingest", start, map[string]interface{}{
		"filings":     stats.Filings,
		"tables":      stats.Tables,
		"transcripts": stats.Transcripts,
		"errors":      stats.Errors,
	})
	return stats, nil
}

func (i *Ingester) store(ctx context.Context, d document) error {
	if err := i.objects.PutObject(ctx, docstore.Bucket, d.key, d.body); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	if err := d.store(ctx, d.key); err != nil {
		return fmt.Errorf("store row: %w", err)
	}
	vec, err := i.embedder.Embed(ctx, d.text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	return i.index.Upsert(ctx, vector.Entry{
		ID:        d.entryID,
		Namespace: d.namespace,
		Vector:    vec,
		Metadata:  d.metadata,
	})
}

func (i *Ingester) documents(m *Manifest) ([]document, error) {
	docs := make([]document, 0, m.Len())

	for _, f := range m.Filings {
		f := f
		body, err := json.Marshal([]string{f.Text})
		if err != nil {
			return nil, err
		}
		docs = append(docs, document{
			namespace: search.NamespaceFilings,
			entryID:   fmt.Sprintf("filing_%d", f.ID),
			key:       location(f.Location, "filings", f.ID),
			body:      body,
			text:      f.Text,
			metadata:  metadata(f.Symbol, periodOf(f.FiscalYear, f.FiscalQuarter, f.CalendarYear, f.CalendarQuarter)),
			store: func(ctx context.Context, key string) error {
				row := f.Filing
				row.Location = key
				return i.repo.UpsertFiling(ctx, row)
			},
		})
	}

	for _, t := range m.Tables {
		t := t
		body, err := json.Marshal(map[string]any{
			"precedingText":  t.PrecedingText,
			"decomposedNode": t.Rows,
			"succeedingText": t.SucceedingText,
		})
		if err != nil {
			return nil, err
		}
		text, err := docstore.TableText(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, document{
			namespace: search.NamespaceFilingTables,
			entryID:   fmt.Sprintf("filing_table_%d", t.ID),
			key:       location(t.Location, "filings_tables", t.ID),
			body:      body,
			text:      text,
			metadata:  metadata(t.Symbol, periodOf(t.FiscalYear, t.FiscalQuarter, t.CalendarYear, t.CalendarQuarter)),
			store: func(ctx context.Context, key string) error {
				row := t.Filing
				row.Location = key
				return i.repo.UpsertFilingTable(ctx, row)
			},
		})
	}

	for _, t := range m.Transcripts {
		t := t
		body, err := json.Marshal([]string{t.Text})
		if err != nil {
			return nil, err
		}
		docs = append(docs, document{
			namespace: search.NamespaceTranscripts,
			entryID:   fmt.Sprintf("transcript_%d", t.ID),
			key:       location(t.Location, "transcripts", t.ID),
			body:      body,
			text:      t.Text,
			metadata:  metadata(t.Symbol, periodOf(t.Year, t.Quarter, t.CalendarYear, t.CalendarQuarter)),
			store: func(ctx context.Context, key string) error {
				row := t.Transcript
				row.Location = key
				return i.repo.UpsertTranscript(ctx, row)
			},
		})
	}
	return docs, nil
}

func location(given, prefix string, id int) string {
	if given != "" {
		return given
	}
	return fmt.Sprintf("%s/%d.json", prefix, id)
}

// periodOf encodes a reporting period as year*10+quarter, preferring the
// fiscal period. Zero means unknown.
func periodOf(fiscalYear, fiscalQuarter, calendarYear, calendarQuarter int) int {
	if fiscalYear != 0 && fiscalQuarter != 0 {
		return fiscalYear*10 + fiscalQuarter
	}
	if calendarYear != 0 && calendarQuarter != 0 {
		return calendarYear*10 + calendarQuarter
	}
	return 0
}

func metadata(symbol string, period int) map[string]any {
	md := map[string]any{}
	if symbol != "" {
		md["symbol"] = symbol
	}
	if period != 0 {
		md["yearQuarter"] = period
	}
	return md
}
