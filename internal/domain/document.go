package domain

// SearchDocument is the unit a retrieval returns. It lives for one skill
// invocation and is never persisted by the orchestration layer.
type SearchDocument struct {
	ID              int     `json:"id"`
	Text            string  `json:"text"`
	Score           float64 `json:"score"`
	Title           string  `json:"title"`
	Subtitle        string  `json:"subtitle"`
	Type            string  `json:"type"`
	Symbol          string  `json:"symbol"`
	Section         string  `json:"section,omitempty"`
	FiscalYear      int     `json:"fiscal_year,omitempty"`
	FiscalQuarter   int     `json:"fiscal_quarter,omitempty"`
	CalendarYear    int     `json:"calendar_year,omitempty"`
	CalendarQuarter int     `json:"calendar_quarter,omitempty"`
	EventDate       string  `json:"event_date,omitempty"`
	DocLink         string  `json:"doc_link,omitempty"`
}
