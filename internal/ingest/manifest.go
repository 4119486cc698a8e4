// Package ingest loads documents into the document store and the similarity
// index.
package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joss/elf/internal/docstore"
)

// Manifest lists the documents of one ingest run.
type Manifest struct {
	Filings     []FilingDoc     `yaml:"filings"`
	Tables      []TableDoc      `yaml:"tables"`
	Transcripts []TranscriptDoc `yaml:"transcripts"`
}

// FilingDoc is a prose filing section with its body text.
type FilingDoc struct {
	docstore.Filing `yaml:",inline"`
	Text            string `yaml:"text"`
}

// TableDoc is a filing table with the text around it.
type TableDoc struct {
	docstore.Filing `yaml:",inline"`
	PrecedingText   string     `yaml:"preceding_text"`
	Rows            [][]string `yaml:"rows"`
	SucceedingText  string     `yaml:"succeeding_text"`
}

// TranscriptDoc is one speech of an earnings call.
type TranscriptDoc struct {
	docstore.Transcript `yaml:",inline"`
	Text                string `yaml:"text"`
}

// LoadManifest reads a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML manifest. Every document needs a positive ID.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for _, f := range m.Filings {
		if f.ID <= 0 {
			return nil, fmt.Errorf("filing %q: id must be positive", f.LastHeader)
		}
	}
	for _, t := range m.Tables {
		if t.ID <= 0 {
			return nil, fmt.Errorf("table %q: id must be positive", t.LastHeader)
		}
	}
	for _, t := range m.Transcripts {
		if t.ID <= 0 {
			return nil, fmt.Errorf("transcript %q: id must be positive", t.Title)
		}
	}
	return &m, nil
}

// Len is the number of documents in the manifest.
func (m *Manifest) Len() int {
	return len(m.Filings) + len(m.Tables) + len(m.Transcripts)
}
