// Package search implements the retrieval-synthesis skills: resolve a query,
// a company and its reporting periods, retrieve documents, extract notes
// from each and synthesize one report.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joss/elf/internal/completion"
	"github.com/joss/elf/internal/config"
	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/examples"
	"github.com/joss/elf/internal/extract"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/runctl"
	"github.com/joss/elf/internal/skills"
)

// MaxDocuments caps how many non-empty documents one invocation reads.
const MaxDocuments = 5

const (
	logsIcon     = "🌐"
	summaryIcon  = "🌐"
	summaryTitle = "🔎 Search Logs"
	noneSymbol   = "none"
)

var wrappingQuotes = regexp.MustCompile(`^"|"$`)

// profile holds what differs between filing and transcript search.
type profile struct {
	descriptor   skills.Descriptor
	queryKind    examples.Kind
	exampleKey   func(in skills.Input) string
	queryPrompt  func(task, deps, objective string, ex examples.Example) string
	searchTitle  string
	paramsTitle  string
	excerptLabel string
	previewLen   int
	maxContent   int
}

var filingProfile = profile{
	descriptor: skills.Descriptor{
		Name:                "filing_search",
		HumanDescription:    "Searches available public company SEC Filings.",
		ModelDescription:    "Semantic search of public company SEC Filings.",
		Icon:                "🗄",
		RequiredCredentials: []string{config.CredentialIndex, config.CredentialLLM},
		Location:            skills.LocationRemote,
	},
	queryKind:    examples.KindFilingQuery,
	exampleKey:   func(in skills.Input) string { return in.Task.Task },
	queryPrompt:  filingQueryPrompt,
	searchTitle:  "🗄 Searching Filings",
	paramsTitle:  "🗄 Filing Parameters",
	excerptLabel: "Filing excerpt",
	previewLen:   500,
}

var transcriptProfile = profile{
	descriptor: skills.Descriptor{
		Name:                "transcript_search",
		HumanDescription:    "Searches available public company conference call transcripts.",
		ModelDescription:    "Semantic search of public company conference call transcripts.",
		Icon:                "📞",
		RequiredCredentials: []string{config.CredentialIndex, config.CredentialLLM},
		Location:            skills.LocationRemote,
	},
	queryKind:    examples.KindTranscriptQuery,
	exampleKey:   func(in skills.Input) string { return in.Objective },
	queryPrompt:  transcriptQueryPrompt,
	searchTitle:  "📞 Searching Call Transcripts",
	paramsTitle:  "📞 Transcript Parameters",
	excerptLabel: "Transcript excerpt",
	previewLen:   100,
	maxContent:   20000,
}

// Deps are the collaborators of a search skill.
type Deps struct {
	Gateway   completion.Gateway
	Model     string
	Selector  *examples.Selector
	Extractor *extract.Extractor
	Source    Source

	// Now returns the current time; the latest reported period is derived
	// from it. Defaults to time.Now.
	Now func() time.Time
}

// Skill is a retrieval-synthesis skill.
type Skill struct {
	profile profile
	deps    Deps
	log     *logging.Logger
}

var _ skills.Skill = (*Skill)(nil)

// NewFilingSearch builds the filing_search skill.
func NewFilingSearch(deps Deps) *Skill {
	return newSkill(filingProfile, deps)
}

// NewTranscriptSearch builds the transcript_search skill.
func NewTranscriptSearch(deps Deps) *Skill {
	return newSkill(transcriptProfile, deps)
}

func newSkill(p profile, deps Deps) *Skill {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Skill{profile: p, deps: deps, log: logging.New("search")}
}

func (s *Skill) Descriptor() skills.Descriptor {
	return s.profile.descriptor
}

// statusLog accumulates the markdown search log of one invocation and
// re-emits it under a single message ID so it updates in place.
type statusLog struct {
	sink   domain.MessageSink
	taskID int
	id     string
	text   strings.Builder
}

func newStatusLog(sink domain.MessageSink, taskID int) *statusLog {
	return &statusLog{sink: sink, taskID: taskID, id: domain.NewMessage(domain.MessageSearchLogs, taskID, "", "", "").ID}
}

func (l *statusLog) add(title, line string) {
	l.text.WriteString(line)
	l.emit(title, l.text.String())
}

func (l *statusLog) emit(title, text string) {
	m := domain.NewMessage(domain.MessageSearchLogs, l.taskID, title, "```markdown\n"+text+"\n```", logsIcon)
	m.ID = l.id
	l.sink.Emit(m)
}

func (l *statusLog) String() string {
	return l.text.String()
}

// Execute runs the state machine. Cancellation at any point returns an empty
// output and no error.
func (s *Skill) Execute(ctx context.Context, in skills.Input) (skills.Output, error) {
	log := s.log.WithRun(logging.GetRunID(ctx))
	task := in.Task
	params := domain.Parameters{}
	if task.Parameters != nil {
		params = *task.Clone().Parameters
	}

	// 1. query
	if params.Query == "" {
		q, err := s.resolveQuery(ctx, in)
		if err != nil {
			return cancelledOr(err)
		}
		params.Query = q
	}
	if !runctl.Active(ctx) {
		return skills.Output{}, nil
	}

	// 2. symbol
	if params.Symbol == "" {
		sym, err := s.complete(ctx, symbolPrompt(task.Task, in.Objective), 0, 20)
		if err != nil {
			if completion.IsCancelled(err) {
				return skills.Output{}, nil
			}
			log.Warn("symbol_failed", map[string]interface{}{"task": task.ID}, err)
		}
		params.Symbol = cleanSymbol(sym)
	}
	if !runctl.Active(ctx) {
		return skills.Output{}, nil
	}

	// 3. periods
	if params.Symbol != "" && len(params.ReportingPeriods) == 0 {
		latest := LatestReportedPeriod(s.deps.Now())
		raw, err := s.complete(ctx, periodsPrompt(params.Symbol, latest, task.Task, in.Objective), 0, 200)
		switch {
		case completion.IsCancelled(err):
			return skills.Output{}, nil
		case err != nil:
			log.Warn("periods_failed", map[string]interface{}{"task": task.ID}, err)
		default:
			periods, perr := ParsePeriods(raw)
			if perr != nil {
				log.Warn("periods_malformed", map[string]interface{}{"task": task.ID, "raw": raw}, perr)
			}
			params.ReportingPeriods = periods
		}
	}
	if !runctl.Active(ctx) {
		return skills.Output{}, nil
	}

	status := newStatusLog(in.Sink, task.ID)
	status.add(s.profile.searchTitle, fmt.Sprintf("Search query: %s\nSymbol %s\nQuarter List: %v\n", params.Query, displaySymbol(params.Symbol), params.ReportingPeriods))
	paramsJSON, _ := json.Marshal(params)
	pm := domain.NewMessage(domain.MessageTaskParameters, task.ID, s.profile.paramsTitle, string(paramsJSON), s.profile.descriptor.Icon)
	pm.Open = true
	in.Sink.Emit(pm)

	// 4. retrieval
	docs, err := s.deps.Source.Search(ctx, params.Query, params.Symbol, params.ReportingPeriods)
	if err != nil {
		return cancelledOr(err)
	}
	result := skills.Output{Parameters: &params}
	if len(docs) == 0 {
		status.add(s.profile.searchTitle, "No documents found.\n")
		log.Info("no_documents", map[string]interface{}{"task": task.ID, "query": params.Query})
		return result, nil
	}
	if !runctl.Active(ctx) {
		return skills.Output{}, nil
	}
	status.add("📖 Reading content...", "✅ Completed search. \nNow reading content.\n")

	// 5. documents
	results, ok := s.readDocuments(ctx, in, docs, status)
	if !ok {
		return skills.Output{}, nil
	}

	// 6. synthesis
	status.emit("Analyzing results...", status.String()+"Analyze results...")
	report, err := s.deps.Gateway.Complete(ctx, completion.Request{
		Prompt: analystPrompt(results, task.Task, languageName(in.Language)),
		Params: completion.Params{Model: s.deps.Model, Temperature: 0, MaxTokens: 1500, TopP: 1},
	})
	if err != nil {
		return cancelledOr(err)
	}
	if !runctl.Active(ctx) {
		return skills.Output{}, nil
	}

	summary := domain.NewMessage(domain.MessageSearchLogs, task.ID, summaryTitle, "```markdown\n"+status.String()+"\n```", summaryIcon)
	in.Sink.Emit(summary)

	result.Output = report
	return result, nil
}

// readDocuments runs extraction over up to MaxDocuments non-empty documents
// in score order. It reports false when the run stopped.
func (s *Skill) readDocuments(ctx context.Context, in skills.Input, docs []domain.SearchDocument, status *statusLog) (string, bool) {
	sortByScore(docs)

	var results strings.Builder
	index, completed := 1, 0
	for _, doc := range docs {
		if !runctl.Active(ctx) {
			return "", false
		}
		if completed >= MaxDocuments {
			break
		}

		status.add(fmt.Sprintf("%d. Reading: %s ...", index, doc.Title), fmt.Sprintf("%d. Reading: %s ...\n", index, doc.Title))
		content := doc.Text
		if content == "" {
			status.add(fmt.Sprintf("%d. %s...", index, s.profile.excerptLabel), "  - Content too short. Skipped. \n")
			index++
			continue
		}
		status.add(fmt.Sprintf("%d. %s...", index, s.profile.excerptLabel),
			fmt.Sprintf("  - Content reading completed. Length:%d. Now extracting relevant info...\n", len([]rune(content))))

		content = fmt.Sprintf("The following information is from %s:\n%s", doc.Title, content)
		if s.profile.maxContent > 0 {
			if r := []rune(content); len(r) > s.profile.maxContent {
				content = string(r[:s.profile.maxContent])
			}
		}

		title := fmt.Sprintf("%d. Extracting relevant info...", index)
		status.add(title, "  - Extracting relevant information\n")
		info := s.deps.Extractor.Extract(ctx, in.Objective, in.Task.Task, content, func(line string) {
			status.add(fmt.Sprintf("%d. Extracting relevant info... %s", index, strings.TrimSpace(line)), line)
		})
		if !runctl.Active(ctx) {
			return "", false
		}

		status.add(fmt.Sprintf("%d. Relevant info...", index),
			fmt.Sprintf("  - Relevant info: %s ...\n", preview(info, s.profile.previewLen)))
		fmt.Fprintf(&results, "Notes from Document %d:\n%s.\n\n", index, info)
		index++
		completed++
	}
	return results.String(), true
}

func (s *Skill) resolveQuery(ctx context.Context, in skills.Input) (string, error) {
	ex, err := s.deps.Selector.MostRelevant(ctx, s.profile.queryKind, s.profile.exampleKey(in))
	if err != nil {
		return "", err
	}
	raw, err := s.complete(ctx, s.profile.queryPrompt(in.Task.Task, in.DependentOutputs, in.Objective, ex), 0, 100)
	if err != nil {
		return "", fmt.Errorf("generate query: %w", err)
	}
	q := wrappingQuotes.ReplaceAllString(strings.TrimSpace(raw), "")
	if q == "" {
		q = in.Task.Task
	}
	return q, nil
}

func (s *Skill) complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return s.deps.Gateway.Complete(ctx, completion.Request{
		Prompt: prompt,
		Params: completion.Params{Model: s.deps.Model, Temperature: temperature, MaxTokens: maxTokens, TopP: 1},
	})
}

func cancelledOr(err error) (skills.Output, error) {
	if completion.IsCancelled(err) {
		return skills.Output{}, nil
	}
	return skills.Output{}, err
}

// cleanSymbol normalizes a model's ticker reply; "none" becomes "".
func cleanSymbol(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'.`)
	if s == "" || strings.EqualFold(s, noneSymbol) || strings.ContainsAny(s, " \n") {
		return ""
	}
	return strings.ToUpper(s)
}

func displaySymbol(s string) string {
	if s == "" {
		return noneSymbol
	}
	return s
}

func preview(s string, n int) string {
	s = strings.NewReplacer("\r\n", "", "\n", "").Replace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

var languageNames = map[string]string{
	"en": "English",
	"ja": "Japanese",
	"fr": "French",
	"de": "German",
	"es": "Spanish",
	"zh": "Chinese",
	"ko": "Korean",
	"pt": "Portuguese",
}

// languageName maps a language code to the name used in prompts; unknown
// values pass through.
func languageName(code string) string {
	if code == "" {
		return languageNames["en"]
	}
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
