package search

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/elf/internal/completion"
	"github.com/joss/elf/internal/docstore"
	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/examples"
	"github.com/joss/elf/internal/extract"
	"github.com/joss/elf/internal/runctl"
	"github.com/joss/elf/internal/skills"
	"github.com/joss/elf/internal/testutil"
	"github.com/joss/elf/internal/vector"
)

const (
	objective = "Summarize ACME's Q1 2023 revenue drivers"
	taskText  = "Search ACME's 10-Q for revenue drivers"
)

type fixture struct {
	store    Store
	repo     *docstore.SQLiteRepository
	objects  *docstore.FSObjectStore
	index    *vector.LanceStore
	embedder *vector.LocalEmbedder
	selector *examples.Selector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	repo, err := docstore.OpenSQLite(filepath.Join(dir, "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	index, err := vector.NewLanceStore(filepath.Join(dir, "vectors"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	embedder := vector.NewLocalEmbedder(64)
	selector, err := examples.NewSelector(embedder)
	require.NoError(t, err)

	objects := docstore.NewFSObjectStore(filepath.Join(dir, "objects"))
	return &fixture{
		store:    Store{Embedder: embedder, Index: index, Repo: repo, Objects: objects},
		repo:     repo,
		objects:  objects,
		index:    index,
		embedder: embedder,
		selector: selector,
	}
}

// addFiling stores a prose filing section with the given body text and
// period, and indexes it under "filing_<id>".
func (f *fixture) addFiling(t *testing.T, id int, symbol string, year, quarter int, text string) {
	t.Helper()
	ctx := context.Background()
	key := fmt.Sprintf("filings/%d.json", id)
	body, err := json.Marshal([]string{text})
	require.NoError(t, err)
	require.NoError(t, f.objects.PutObject(ctx, docstore.Bucket, key, body))
	require.NoError(t, f.repo.UpsertFiling(ctx, docstore.Filing{
		ID:              id,
		Location:        key,
		Symbol:          symbol,
		FilingType:      "10-Q",
		FiscalYear:      year,
		FiscalQuarter:   quarter,
		CalendarYear:    year,
		CalendarQuarter: quarter,
		LastHeader:      fmt.Sprintf("Section %d", id),
	}))

	vec, err := f.embedder.Embed(ctx, "revenue drivers "+text)
	require.NoError(t, err)
	require.NoError(t, f.index.Upsert(ctx, vector.Entry{
		ID:        fmt.Sprintf("filing_%d", id),
		Namespace: NamespaceFilings,
		Vector:    vec,
		Metadata:  map[string]any{"symbol": symbol, "yearQuarter": year*10 + quarter},
	}))
}

func (f *fixture) skill(gw completion.Gateway) *Skill {
	return NewFilingSearch(Deps{
		Gateway:   gw,
		Model:     "test",
		Selector:  f.selector,
		Extractor: extract.New(gw, "test"),
		Source:    NewFilingSource(f.store),
		Now:       func() time.Time { return time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC) },
	})
}

func scriptedGateway(extra ...testutil.Rule) *testutil.Gateway {
	rules := append(extra,
		testutil.Rule{Match: "Generate a search query", Reply: `"revenue drivers"`},
		testutil.Rule{Match: "Return the ticker symbol", Reply: "ACME"},
		testutil.Rule{Match: "Generate a list of financial reporting periods", Reply: "```json\n{\"timePeriods\": [\"Q1 2023\"]}\n```"},
		testutil.Rule{Match: "extract information out of documents", Reply: "Revenue grew 12% on cloud demand"},
		testutil.Rule{Match: "You are an expert analyst", Reply: "ACME revenue grew 12%, driven by cloud."},
	)
	return testutil.NewGateway(rules...)
}

func input(sink domain.MessageSink) skills.Input {
	return skills.Input{
		Task:      domain.Task{ID: 1, Task: taskText, Skill: "filing_search", DependentTaskIDs: []int{}},
		Objective: objective,
		Sink:      sink,
	}
}

func TestFilingSearchEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.addFiling(t, 1, "ACME", 2023, 1, "Cloud revenue increased.")
	f.addFiling(t, 2, "ACME", 2023, 1, "Services revenue was flat.")
	f.addFiling(t, 3, "ACME", 2022, 4, "Older quarter.")
	f.addFiling(t, 4, "OTHER", 2023, 1, "Different company.")

	gw := scriptedGateway()
	var msgs testutil.Messages
	out, err := f.skill(gw).Execute(context.Background(), input(msgs.Sink()))
	require.NoError(t, err)

	assert.Equal(t, "ACME revenue grew 12%, driven by cloud.", out.Output)
	require.NotNil(t, out.Parameters)
	assert.Equal(t, "revenue drivers", out.Parameters.Query)
	assert.Equal(t, "ACME", out.Parameters.Symbol)
	assert.Equal(t, []int{20231}, out.Parameters.ReportingPeriods)

	assert.Equal(t, 2, gw.CallsMatching("extract information out of documents"))
	assert.Equal(t, 1, gw.CallsMatching("You are an expert analyst"))
	assert.Equal(t, 1, gw.CallsMatching("Most Recently Reported Period: Q1 2023"))

	var analyst string
	for _, c := range gw.Calls() {
		if strings.Contains(c.Prompt, "You are an expert analyst") {
			analyst = c.Prompt
		}
	}
	assert.Contains(t, analyst, "Notes from Document 1:\nRevenue grew 12% on cloud demand.\n\n")
	assert.Contains(t, analyst, "Notes from Document 2:")
	assert.NotContains(t, analyst, "Notes from Document 3:")
	assert.Contains(t, analyst, "Report must be answered in English.")

	params := msgs.OfType(domain.MessageTaskParameters)
	require.Len(t, params, 1)
	assert.Equal(t, "🗄 Filing Parameters", params[0].Title)
	assert.True(t, params[0].Open)
	assert.JSONEq(t, `{"query":"revenue drivers","symbol":"ACME","reportingPeriods":[20231]}`, params[0].Text)

	logs := msgs.OfType(domain.MessageSearchLogs)
	require.NotEmpty(t, logs)
	last := logs[len(logs)-1]
	assert.Equal(t, "🔎 Search Logs", last.Title)
	assert.Contains(t, last.Text, "Search query: revenue drivers")
	assert.Contains(t, last.Text, "1. Reading: ACME Q1 2023 10-Q")
}

func TestFilingSearchUsesCachedParameters(t *testing.T) {
	f := newFixture(t)
	f.addFiling(t, 1, "ACME", 2023, 1, "Cloud revenue increased.")

	gw := scriptedGateway()
	in := input(nil)
	in.Task.Parameters = &domain.Parameters{Query: "cloud", Symbol: "ACME", ReportingPeriods: []int{20231}}

	out, err := f.skill(gw).Execute(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Output)
	assert.Zero(t, gw.CallsMatching("Generate a search query"))
	assert.Zero(t, gw.CallsMatching("Return the ticker symbol"))
	assert.Zero(t, gw.CallsMatching("Generate a list of financial reporting periods"))
}

func TestFilingSearchNoMatchesSkipsSynthesis(t *testing.T) {
	f := newFixture(t)
	f.addFiling(t, 1, "OTHER", 2023, 1, "Different company.")

	gw := scriptedGateway()
	out, err := f.skill(gw).Execute(context.Background(), input(nil))
	require.NoError(t, err)

	assert.Empty(t, out.Output)
	require.NotNil(t, out.Parameters)
	assert.Equal(t, "ACME", out.Parameters.Symbol)
	assert.Zero(t, gw.CallsMatching("You are an expert analyst"))
	assert.Zero(t, gw.CallsMatching("extract information out of documents"))
}

func TestFilingSearchNoneSymbolSkipsPeriods(t *testing.T) {
	f := newFixture(t)
	f.addFiling(t, 1, "ACME", 2023, 1, "Cloud revenue increased.")

	gw := scriptedGateway(testutil.Rule{Match: "Return the ticker symbol", Reply: "None"})
	out, err := f.skill(gw).Execute(context.Background(), input(nil))
	require.NoError(t, err)

	assert.Equal(t, "", out.Parameters.Symbol)
	assert.Empty(t, out.Parameters.ReportingPeriods)
	assert.Zero(t, gw.CallsMatching("Generate a list of financial reporting periods"))
	assert.Equal(t, 1, gw.CallsMatching("You are an expert analyst"))
}

func TestFilingSearchReadsAtMostFiveDocuments(t *testing.T) {
	f := newFixture(t)
	f.addFiling(t, 1, "ACME", 2023, 1, "")
	for id := 2; id <= 8; id++ {
		f.addFiling(t, id, "ACME", 2023, 1, fmt.Sprintf("Paragraph %d.", id))
	}

	gw := scriptedGateway()
	var msgs testutil.Messages
	_, err := f.skill(gw).Execute(context.Background(), input(msgs.Sink()))
	require.NoError(t, err)

	assert.Equal(t, MaxDocuments, gw.CallsMatching("extract information out of documents"))
	logs := msgs.OfType(domain.MessageSearchLogs)
	assert.Contains(t, logs[len(logs)-1].Text, "Content too short. Skipped.")
}

func TestFilingSearchStopDuringExtractionReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	f.addFiling(t, 1, "ACME", 2023, 1, "Cloud revenue increased.")
	f.addFiling(t, 2, "ACME", 2023, 1, "Services revenue was flat.")

	ctx, ctl := runctl.WithControl(context.Background())
	gw := scriptedGateway(testutil.Rule{
		Match:  "extract information out of documents",
		Reply:  "partial",
		Before: func(context.Context, completion.Request) { ctl.Stop() },
	})

	out, err := f.skill(gw).Execute(ctx, input(nil))
	require.NoError(t, err)
	assert.Equal(t, skills.Output{}, out)
	assert.Zero(t, gw.CallsMatching("You are an expert analyst"))
}

func TestFilingSearchAbortDuringQueryReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx, ctl := runctl.WithControl(context.Background())
	gw := scriptedGateway(testutil.Rule{
		Match:  "Generate a search query",
		Before: func(context.Context, completion.Request) { ctl.Abort() },
	})

	out, err := f.skill(gw).Execute(ctx, input(nil))
	require.NoError(t, err)
	assert.Equal(t, skills.Output{}, out)
	assert.Zero(t, gw.CallsMatching("Return the ticker symbol"))
}

func TestFilingSearchQueryFailureIsAnError(t *testing.T) {
	f := newFixture(t)
	gw := scriptedGateway(testutil.Rule{Match: "Generate a search query", Err: fmt.Errorf("upstream 500")})

	_, err := f.skill(gw).Execute(context.Background(), input(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate query")
}

func TestTranscriptSearchTruncatesContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	long := strings.Repeat("a", 30000)
	body, err := json.Marshal([]string{long})
	require.NoError(t, err)
	require.NoError(t, f.objects.PutObject(ctx, docstore.Bucket, "transcripts/1.json", body))
	require.NoError(t, f.repo.UpsertTranscript(ctx, docstore.Transcript{
		ID: 1, Location: "transcripts/1.json", Symbol: "ACME", Title: "ACME Q1 2023 Earnings Call",
		Quarter: 1, Year: 2023, CalendarQuarter: 1, CalendarYear: 2023,
		ParticipantName: "Jane Roe", ParticipantDescription: "CFO", Session: "Prepared Remarks",
	}))
	vec, err := f.embedder.Embed(ctx, "revenue drivers")
	require.NoError(t, err)
	require.NoError(t, f.index.Upsert(ctx, vector.Entry{
		ID: "transcript_1", Namespace: NamespaceTranscripts, Vector: vec,
		Metadata: map[string]any{"symbol": "ACME", "yearQuarter": 20231},
	}))

	gw := scriptedGateway()
	s := NewTranscriptSearch(Deps{
		Gateway:   gw,
		Selector:  f.selector,
		Extractor: extract.New(gw, ""),
		Source:    NewTranscriptSource(f.store),
		Now:       func() time.Time { return time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC) },
	})
	in := input(nil)
	in.Task.Skill = "transcript_search"

	out, err := s.Execute(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Output)
	// 20000 characters fit in two overlapping windows.
	assert.Equal(t, 2, gw.CallsMatching("extract information out of documents"))
	assert.Equal(t, "📞", s.Descriptor().Icon)
}

func TestFilterShape(t *testing.T) {
	f := Filter("ACME", []int{20231, 20224})
	assert.Equal(t, vector.Condition{Eq: "ACME"}, f["symbol"])
	assert.Equal(t, []any{20231, 20224}, f["yearQuarter"].In)
	assert.Empty(t, Filter("", nil))
}

func TestParsePeriods(t *testing.T) {
	got, err := ParsePeriods(`{"timePeriods": ["Q1 2023", "q4 2022", "FY2022"]}`)
	require.NoError(t, err)
	assert.Equal(t, []int{20231, 20224}, got)

	_, err = ParsePeriods(`not json`)
	assert.ErrorIs(t, err, ErrMalformedPeriods)

	_, err = ParsePeriods(`{"timePeriods": ["last year"]}`)
	assert.ErrorIs(t, err, ErrMalformedPeriods)

	got, err = ParsePeriods(`{"timePeriods": []}`)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLatestReportedPeriod(t *testing.T) {
	assert.Equal(t, "Q1 2023", LatestReportedPeriod(time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Q4 2022", LatestReportedPeriod(time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCleanSymbol(t *testing.T) {
	assert.Equal(t, "ACME", cleanSymbol(" acme.\n"))
	assert.Equal(t, "", cleanSymbol("none"))
	assert.Equal(t, "", cleanSymbol("I don't know"))
}
