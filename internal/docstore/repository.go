// Package docstore resolves search match IDs to document metadata and bodies.
package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Filing is a processed filing section, either prose or a table.
type Filing struct {
	ID              int    `json:"id" yaml:"id"`
	FilingListID    int    `json:"filing_list_id" yaml:"filing_list_id"`
	Index           int    `json:"index" yaml:"index"`
	Location        string `json:"location" yaml:"location"`
	Part            string `json:"part" yaml:"part"`
	Item            string `json:"item" yaml:"item"`
	ItemDescription string `json:"item_description" yaml:"item_description"`
	LastHeader      string `json:"last_header" yaml:"last_header"`
	Symbol          string `json:"symbol" yaml:"symbol"`
	FilingType      string `json:"filing_type" yaml:"filing_type"`
	CalendarQuarter int    `json:"calendar_quarter" yaml:"calendar_quarter"`
	CalendarYear    int    `json:"calendar_year" yaml:"calendar_year"`
	FiscalQuarter   int    `json:"fiscal_quarter" yaml:"fiscal_quarter"`
	FiscalYear      int    `json:"fiscal_year" yaml:"fiscal_year"`
	ReportDate      string `json:"report_date" yaml:"report_date"`
	FilingDate      string `json:"filing_date" yaml:"filing_date"`
	HTMLURL         string `json:"html_url" yaml:"html_url"`
}

// Transcript is one processed speech from an earnings call.
type Transcript struct {
	ID                     int    `json:"id" yaml:"id"`
	TranscriptID           int    `json:"transcript_id" yaml:"transcript_id"`
	ParticipantName        string `json:"participant_name" yaml:"participant_name"`
	ParticipantDescription string `json:"participant_description" yaml:"participant_description"`
	ParticipantRole        string `json:"participant_role" yaml:"participant_role"`
	Session                string `json:"session" yaml:"session"`
	SpeechPosition         int    `json:"speech_position" yaml:"speech_position"`
	Location               string `json:"location" yaml:"location"`
	Symbol                 string `json:"symbol" yaml:"symbol"`
	Title                  string `json:"title" yaml:"title"`
	Quarter                int    `json:"quarter" yaml:"quarter"`
	Year                   int    `json:"year" yaml:"year"`
	CalendarQuarter        int    `json:"calendar_quarter" yaml:"calendar_quarter"`
	CalendarYear           int    `json:"calendar_year" yaml:"calendar_year"`
	Time                   string `json:"time" yaml:"time"`
	HTMLURL                string `json:"html_url" yaml:"html_url"`
}

// Repository resolves integer row IDs to metadata records. IDs that have no
// row are skipped rather than reported.
type Repository interface {
	FilingsByID(ctx context.Context, ids []int) ([]Filing, error)
	FilingTablesByID(ctx context.Context, ids []int) ([]Filing, error)
	TranscriptsByID(ctx context.Context, ids []int) ([]Transcript, error)
}

// SQLiteRepository stores document metadata in a single SQLite file.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

var _ Repository = (*SQLiteRepository)(nil)

// OpenSQLite opens (creating if needed) the metadata database at path.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	r := &SQLiteRepository{db: db, path: path}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS filings (
		id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		filing_list_id INTEGER NOT NULL DEFAULT 0,
		idx INTEGER NOT NULL DEFAULT 0,
		location TEXT NOT NULL,
		part TEXT NOT NULL DEFAULT '',
		item TEXT NOT NULL DEFAULT '',
		item_description TEXT NOT NULL DEFAULT '',
		last_header TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		filing_type TEXT NOT NULL,
		calendar_quarter INTEGER NOT NULL DEFAULT 0,
		calendar_year INTEGER NOT NULL DEFAULT 0,
		fiscal_quarter INTEGER NOT NULL DEFAULT 0,
		fiscal_year INTEGER NOT NULL DEFAULT 0,
		report_date TEXT NOT NULL DEFAULT '',
		filing_date TEXT NOT NULL DEFAULT '',
		html_url TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_filings_symbol ON filings(symbol);

	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY,
		transcript_id INTEGER NOT NULL DEFAULT 0,
		participant_name TEXT NOT NULL DEFAULT '',
		participant_description TEXT NOT NULL DEFAULT '',
		participant_role TEXT NOT NULL DEFAULT '',
		session TEXT NOT NULL DEFAULT '',
		speech_position INTEGER NOT NULL DEFAULT 0,
		location TEXT NOT NULL,
		symbol TEXT NOT NULL,
		title TEXT NOT NULL,
		quarter INTEGER NOT NULL DEFAULT 0,
		year INTEGER NOT NULL DEFAULT 0,
		calendar_quarter INTEGER NOT NULL DEFAULT 0,
		calendar_year INTEGER NOT NULL DEFAULT 0,
		time TEXT NOT NULL DEFAULT '',
		html_url TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_symbol ON transcripts(symbol);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const (
	kindProse = "prose"
	kindTable = "table"
)

// UpsertFiling stores a prose filing section.
func (r *SQLiteRepository) UpsertFiling(ctx context.Context, f Filing) error {
	return r.upsertFiling(ctx, kindProse, f)
}

// UpsertFilingTable stores a filing table section.
func (r *SQLiteRepository) UpsertFilingTable(ctx context.Context, f Filing) error {
	return r.upsertFiling(ctx, kindTable, f)
}

func (r *SQLiteRepository) upsertFiling(ctx context.Context, kind string, f Filing) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO filings (id, kind, filing_list_id, idx, location, part, item, item_description,
			last_header, symbol, filing_type, calendar_quarter, calendar_year, fiscal_quarter, fiscal_year,
			report_date, filing_date, html_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, kind, f.FilingListID, f.Index, f.Location, f.Part, f.Item, f.ItemDescription,
		f.LastHeader, f.Symbol, f.FilingType, f.CalendarQuarter, f.CalendarYear, f.FiscalQuarter, f.FiscalYear,
		f.ReportDate, f.FilingDate, f.HTMLURL)
	if err != nil {
		return fmt.Errorf("upsert %s filing %d: %w", kind, f.ID, err)
	}
	return nil
}

// UpsertTranscript stores a transcript speech.
func (r *SQLiteRepository) UpsertTranscript(ctx context.Context, t Transcript) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transcripts (id, transcript_id, participant_name, participant_description,
			participant_role, session, speech_position, location, symbol, title, quarter, year,
			calendar_quarter, calendar_year, time, html_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.TranscriptID, t.ParticipantName, t.ParticipantDescription,
		t.ParticipantRole, t.Session, t.SpeechPosition, t.Location, t.Symbol, t.Title, t.Quarter, t.Year,
		t.CalendarQuarter, t.CalendarYear, t.Time, t.HTMLURL)
	if err != nil {
		return fmt.Errorf("upsert transcript %d: %w", t.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) FilingsByID(ctx context.Context, ids []int) ([]Filing, error) {
	return r.filingsByID(ctx, kindProse, ids)
}

func (r *SQLiteRepository) FilingTablesByID(ctx context.Context, ids []int) ([]Filing, error) {
	return r.filingsByID(ctx, kindTable, ids)
}

func (r *SQLiteRepository) filingsByID(ctx context.Context, kind string, ids []int) ([]Filing, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	in, args := inClause(ids)
	args = append([]any{kind}, args...)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, filing_list_id, idx, location, part, item, item_description, last_header, symbol,
			filing_type, calendar_quarter, calendar_year, fiscal_quarter, fiscal_year, report_date,
			filing_date, html_url
		FROM filings WHERE kind = ? AND id IN (`+in+`) ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s filings: %w", kind, err)
	}
	defer rows.Close()

	var out []Filing
	for rows.Next() {
		var f Filing
		if err := rows.Scan(&f.ID, &f.FilingListID, &f.Index, &f.Location, &f.Part, &f.Item,
			&f.ItemDescription, &f.LastHeader, &f.Symbol, &f.FilingType, &f.CalendarQuarter,
			&f.CalendarYear, &f.FiscalQuarter, &f.FiscalYear, &f.ReportDate, &f.FilingDate, &f.HTMLURL); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) TranscriptsByID(ctx context.Context, ids []int) ([]Transcript, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	in, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, transcript_id, participant_name, participant_description, participant_role, session,
			speech_position, location, symbol, title, quarter, year, calendar_quarter, calendar_year,
			time, html_url
		FROM transcripts WHERE id IN (`+in+`) ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var t Transcript
		if err := rows.Scan(&t.ID, &t.TranscriptID, &t.ParticipantName, &t.ParticipantDescription,
			&t.ParticipantRole, &t.Session, &t.SpeechPosition, &t.Location, &t.Symbol, &t.Title,
			&t.Quarter, &t.Year, &t.CalendarQuarter, &t.CalendarYear, &t.Time, &t.HTMLURL); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func inClause(ids []int) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}
