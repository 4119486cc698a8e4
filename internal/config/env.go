// Package config provides centralized configuration management.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Credential names a skill may require.
const (
	CredentialLLM   = "llm"
	CredentialIndex = "index"
)

// ElfEnv holds all environment-derived settings.
type ElfEnv struct {
	// Provider selects the completion backend (ELF_PROVIDER)
	Provider string

	// Model is the default chat model (ELF_MODEL)
	Model string

	// Language is the output language for plans and reports (ELF_LANGUAGE)
	Language string

	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string

	// EmbeddingProvider is openai, tei or local (ELF_EMBEDDING_PROVIDER)
	EmbeddingProvider string

	// TEIURL is the text-embeddings-inference endpoint (TEI_URL)
	TEIURL string

	// VectorBackend is lance or memgraph (ELF_VECTOR_BACKEND)
	VectorBackend string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// DocsDB is the SQLite document metadata database (ELF_DOCS_DB)
	DocsDB string

	// ObjectsDir holds raw document bodies, one directory per bucket (ELF_OBJECTS_DIR)
	ObjectsDir string

	// RemoteURL is the remote skill endpoint; empty runs every skill in-process (ELF_REMOTE_URL)
	RemoteURL string

	// LogLevel is the minimum log level (ELF_LOG_LEVEL)
	LogLevel string
}

var (
	env     *ElfEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *ElfEnv {
	envOnce.Do(func() {
		p := GetPaths()
		env = &ElfEnv{
			Provider:          getEnvDefault("ELF_PROVIDER", "openai"),
			Model:             os.Getenv("ELF_MODEL"),
			Language:          getEnvDefault("ELF_LANGUAGE", "en"),
			OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
			AnthropicKey:      os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicBaseURL:  os.Getenv("ANTHROPIC_BASE_URL"),
			EmbeddingProvider: os.Getenv("ELF_EMBEDDING_PROVIDER"),
			TEIURL:            os.Getenv("TEI_URL"),
			VectorBackend:     getEnvDefault("ELF_VECTOR_BACKEND", "lance"),
			Neo4jURI:          getEnvDefault("NEO4J_URI", "bolt://localhost:7687"),
			Neo4jUser:         os.Getenv("NEO4J_USER"),
			Neo4jPassword:     os.Getenv("NEO4J_PASSWORD"),
			DocsDB:            getEnvDefault("ELF_DOCS_DB", filepath.Join(p.Data, "documents.db")),
			ObjectsDir:        getEnvDefault("ELF_OBJECTS_DIR", p.Objects),
			RemoteURL:         os.Getenv("ELF_REMOTE_URL"),
			LogLevel:          getEnvDefault("ELF_LOG_LEVEL", "info"),
		}
		if env.Model == "" {
			env.Model = defaultModel(env.Provider)
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

func defaultModel(provider string) string {
	if provider == "anthropic" {
		return "claude-sonnet-4-20250514"
	}
	return "gpt-4o"
}

// APIKey returns the key for the configured completion provider.
func (e *ElfEnv) APIKey() string {
	if e.Provider == "anthropic" {
		return e.AnthropicKey
	}
	return e.OpenAIKey
}

// BaseURL returns the base URL override for the configured completion provider.
func (e *ElfEnv) BaseURL() string {
	if e.Provider == "anthropic" {
		return e.AnthropicBaseURL
	}
	return e.OpenAIBaseURL
}

// Credentials returns the credential names available to skills, sorted.
// "llm" needs a provider key; "index" needs a working embedder, which is
// always true for the local embedder.
func (e *ElfEnv) Credentials() []string {
	var creds []string
	if e.APIKey() != "" {
		creds = append(creds, CredentialLLM)
	}
	switch e.EmbeddingProvider {
	case "tei":
		if e.TEIURL != "" {
			creds = append(creds, CredentialIndex)
		}
	case "local":
		creds = append(creds, CredentialIndex)
	default:
		if e.OpenAIKey != "" {
			creds = append(creds, CredentialIndex)
		}
	}
	sort.Strings(creds)
	return creds
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Paths holds standard directory paths.
type Paths struct {
	// Home is the elf home directory (~/.elf)
	Home string

	// Data holds SQLite databases (~/.elf/data)
	Data string

	// Vectors is the file-backed vector store directory (~/.elf/vectors)
	Vectors string

	// Objects holds raw document bodies (~/.elf/objects)
	Objects string

	// Examples holds saved task lists keyed by objective (~/.elf/examples)
	Examples string

	// RunsDB is the run store database (~/.elf/data/runs.db)
	RunsDB string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
// ELF_HOME overrides the home directory.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		elfHome := os.Getenv("ELF_HOME")
		if elfHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				home = "."
			}
			elfHome = filepath.Join(home, ".elf")
		}

		data := filepath.Join(elfHome, "data")
		paths = &Paths{
			Home:     elfHome,
			Data:     data,
			Vectors:  filepath.Join(elfHome, "vectors"),
			Objects:  filepath.Join(elfHome, "objects"),
			Examples: filepath.Join(elfHome, "examples"),
			RunsDB:   filepath.Join(data, "runs.db"),
		}
	})
	return paths
}

// ResetPaths resets the cached paths (for testing).
func ResetPaths() {
	pathsOnce = sync.Once{}
	paths = nil
}

// Path returns a path under the elf home directory.
func Path(parts ...string) string {
	p := GetPaths()
	allParts := append([]string{p.Home}, parts...)
	return filepath.Join(allParts...)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
