package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_Filings(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	require.NoError(t, repo.Ping(ctx))

	require.NoError(t, repo.UpsertFiling(ctx, Filing{ID: 1, Location: "f/1.json", Symbol: "ACME", FilingType: "10-Q", FiscalQuarter: 1, FiscalYear: 2023}))
	require.NoError(t, repo.UpsertFiling(ctx, Filing{ID: 2, Location: "f/2.json", Symbol: "ACME", FilingType: "10-K", CalendarYear: 2022}))
	require.NoError(t, repo.UpsertFilingTable(ctx, Filing{ID: 1, Location: "t/1.json", Symbol: "ACME", FilingType: "10-Q"}))

	got, err := repo.FilingsByID(ctx, []int{2, 1, 99})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, "f/1.json", got[0].Location)
	assert.Equal(t, 2022, got[1].CalendarYear)

	tables, err := repo.FilingTablesByID(ctx, []int{1})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "t/1.json", tables[0].Location)

	// replace keeps one row
	require.NoError(t, repo.UpsertFiling(ctx, Filing{ID: 1, Location: "f/1b.json", Symbol: "ACME", FilingType: "10-Q"}))
	got, err = repo.FilingsByID(ctx, []int{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "f/1b.json", got[0].Location)
}

func TestSQLiteRepository_Transcripts(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	require.NoError(t, repo.UpsertTranscript(ctx, Transcript{
		ID: 7, Location: "tr/7.json", Symbol: "ACME", Title: "ACME - Earnings call Q1 2023",
		ParticipantName: "Jane Doe", ParticipantDescription: "CFO", Session: "Q&A", Quarter: 1, Year: 2023,
	}))

	got, err := repo.TranscriptsByID(ctx, []int{7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Jane Doe", got[0].ParticipantName)
	assert.Equal(t, "Q&A", got[0].Session)
}

func TestSQLiteRepository_EmptyIDs(t *testing.T) {
	repo := openTestRepo(t)
	got, err := repo.FilingsByID(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	tr, err := repo.TranscriptsByID(context.Background(), []int{})
	require.NoError(t, err)
	assert.Empty(t, tr)
}

func TestFSObjectStore(t *testing.T) {
	ctx := context.Background()
	store := NewFSObjectStore(t.TempDir())

	require.NoError(t, store.PutObject(ctx, Bucket, "filings/1.json", []byte(`["hello"]`)))
	body, err := store.FetchRawObject(ctx, Bucket, "filings/1.json")
	require.NoError(t, err)
	assert.JSONEq(t, `["hello"]`, string(body))

	_, err = store.FetchRawObject(ctx, Bucket, "filings/missing.json")
	assert.True(t, IsNotFound(err))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "object", nf.Entity)

	assert.Error(t, store.PutObject(ctx, Bucket, "bad.json", []byte(`not json`)))
	_, err = store.FetchRawObject(ctx, Bucket, ".")
	assert.True(t, errors.Is(err, ErrInvalidKey))
}

func TestFSObjectStore_KeysStayInBucket(t *testing.T) {
	ctx := context.Background()
	store := NewFSObjectStore(t.TempDir())
	require.NoError(t, store.PutObject(ctx, Bucket, "../../escape.json", []byte(`[]`)))

	// the key is confined to the bucket
	body, err := store.FetchRawObject(ctx, Bucket, "escape.json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(body))
}

func TestFSObjectStore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFSObjectStore(t.TempDir()).FetchRawObject(ctx, Bucket, "x.json")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRowID(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"filing_123", 123, true},
		{"filing_table_456", 456, true},
		{"789", 789, true},
		{"filing_abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := RowID(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestProseText(t *testing.T) {
	text, err := ProseText(json.RawMessage(`["first","second"]`))
	require.NoError(t, err)
	assert.Equal(t, "first", text)

	text, err = ProseText(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = ProseText(json.RawMessage(`{"a":1}`))
	assert.Error(t, err)
}

func TestTableText(t *testing.T) {
	text, err := TableText(json.RawMessage(`{"precedingText":"Revenue table","decomposedNode":[["Q1","100"],["Q2","120"]],"succeedingText":"End"}`))
	require.NoError(t, err)
	assert.Equal(t, "Revenue table\nQ1 100\nQ2 120\nEnd", text)

	text, err = TableText(json.RawMessage(`{"precedingText":"no rows"}`))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestFilingTitle(t *testing.T) {
	q := Filing{Symbol: "ACME", FilingType: "10-Q", CalendarQuarter: 2, CalendarYear: 2023, FiscalQuarter: 1, FiscalYear: 2023}
	assert.Equal(t, "ACME Q1 2023 10-Q", q.Title())

	k := Filing{Symbol: "ACME", FilingType: "10-K", CalendarYear: 2022}
	assert.Equal(t, "ACME 2022 10-K", k.Title())
}

func TestDocuments(t *testing.T) {
	f := Filing{ID: 3, Symbol: "ACME", FilingType: "10-Q", FiscalQuarter: 1, FiscalYear: 2023,
		Part: "Part I", Item: "Item 2", ItemDescription: "MD&A", LastHeader: "Revenue", HTMLURL: "http://x"}

	prose := f.Document(TypeFilings, "body", 0.9)
	assert.Equal(t, "Part I - Item 2 - Revenue", prose.Subtitle)
	assert.Equal(t, TypeFilings, prose.Type)
	assert.Equal(t, "http://x", prose.DocLink)

	table := f.Document(TypeFilingsTable, "rows", 0.5)
	assert.Equal(t, "Part I - MD&A - Revenue", table.Subtitle)

	tr := Transcript{ID: 9, Title: "ACME call", ParticipantName: "Jane", Session: "Q&A"}
	doc := tr.Document("speech", 0.7)
	assert.Equal(t, "Jane", doc.Subtitle)
	assert.Equal(t, "Q&A", doc.Section)
	assert.Equal(t, TypeTranscripts, doc.Type)
}
