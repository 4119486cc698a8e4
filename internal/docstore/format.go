package docstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/joss/elf/internal/domain"
)

// Document types carried on domain.SearchDocument.
const (
	TypeFilings      = "filings"
	TypeFilingsTable = "filings_table"
	TypeTranscripts  = "transcripts"
)

// RowID extracts the row ID from a similarity match ID such as
// "filing_123" or "filing_table_456": the trailing "_<int>" segment.
func RowID(matchID string) (int, bool) {
	i := strings.LastIndexByte(matchID, '_')
	id, err := strconv.Atoi(matchID[i+1:])
	if err != nil {
		return 0, false
	}
	return id, true
}

// ProseText returns the text of a prose or transcript body, a JSON array
// whose first element is the text.
func ProseText(body json.RawMessage) (string, error) {
	var parts []string
	if err := json.Unmarshal(body, &parts); err != nil {
		return "", fmt.Errorf("decode prose body: %w", err)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], nil
}

type tableBody struct {
	PrecedingText  string     `json:"precedingText"`
	DecomposedNode [][]string `json:"decomposedNode"`
	SucceedingText string     `json:"succeedingText"`
}

// TableText flattens a table body into surrounding text plus one line per
// row. A body without rows yields "".
func TableText(body json.RawMessage) (string, error) {
	var t tableBody
	if err := json.Unmarshal(body, &t); err != nil {
		return "", fmt.Errorf("decode table body: %w", err)
	}
	if t.DecomposedNode == nil {
		return "", nil
	}
	rows := make([]string, len(t.DecomposedNode))
	for i, row := range t.DecomposedNode {
		rows[i] = strings.Join(row, " ")
	}
	return t.PrecedingText + "\n" + strings.Join(rows, "\n") + "\n" + t.SucceedingText, nil
}

func (f Filing) quarter() int {
	if f.FiscalQuarter != 0 {
		return f.FiscalQuarter
	}
	return f.CalendarQuarter
}

func (f Filing) year() int {
	if f.FiscalYear != 0 {
		return f.FiscalYear
	}
	return f.CalendarYear
}

// Title renders "<SYM> Q<q> <year> <type>"; annual reports omit the quarter.
func (f Filing) Title() string {
	if f.FilingType == "10-K" {
		return fmt.Sprintf("%s %d %s", f.Symbol, f.year(), f.FilingType)
	}
	return fmt.Sprintf("%s Q%d %d %s", f.Symbol, f.quarter(), f.year(), f.FilingType)
}

// ProseSubtitle joins the non-empty part, item and header.
func (f Filing) ProseSubtitle() string {
	return joinNonEmpty(" - ", f.Part, f.Item, f.LastHeader)
}

// TableSubtitle joins the part, item description and header.
func (f Filing) TableSubtitle() string {
	return joinNonEmpty(" - ", f.Part, f.ItemDescription, f.LastHeader)
}

// Document builds a SearchDocument for a filing section.
func (f Filing) Document(docType, text string, score float64) domain.SearchDocument {
	subtitle := f.ProseSubtitle()
	if docType == TypeFilingsTable {
		subtitle = f.TableSubtitle()
	}
	return domain.SearchDocument{
		ID:              f.ID,
		Text:            text,
		Score:           score,
		Title:           f.Title(),
		Subtitle:        subtitle,
		Type:            docType,
		Symbol:          f.Symbol,
		FiscalYear:      f.FiscalYear,
		FiscalQuarter:   f.FiscalQuarter,
		CalendarYear:    f.CalendarYear,
		CalendarQuarter: f.CalendarQuarter,
		EventDate:       f.FilingDate,
		DocLink:         f.HTMLURL,
	}
}

// Document builds a SearchDocument for a transcript speech.
func (t Transcript) Document(text string, score float64) domain.SearchDocument {
	return domain.SearchDocument{
		ID:              t.ID,
		Text:            text,
		Score:           score,
		Title:           t.Title,
		Subtitle:        joinNonEmpty(" - ", t.ParticipantName, t.ParticipantDescription),
		Type:            TypeTranscripts,
		Symbol:          t.Symbol,
		Section:         t.Session,
		FiscalYear:      t.Year,
		FiscalQuarter:   t.Quarter,
		CalendarYear:    t.CalendarYear,
		CalendarQuarter: t.CalendarQuarter,
		EventDate:       t.Time,
		DocLink:         t.HTMLURL,
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
